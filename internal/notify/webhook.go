package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	billing "prepaid-billing/internal/billing/domain"
)

// WebhookNotifier posts alerts as text messages to a chat webhook.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

type webhookPayload struct {
	MsgType string        `json:"msgtype"`
	Text    webhookText   `json:"text"`
	Alert   billing.Alert `json:"alert"`
}

type webhookText struct {
	Content string `json:"content"`
}

// NewWebhookNotifier constructs a notifier.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Notify sends an alert to the webhook.
func (n *WebhookNotifier) Notify(ctx context.Context, alert billing.Alert) error {
	if n == nil || n.url == "" {
		return errors.New("webhook notifier: empty url")
	}
	payload := webhookPayload{
		MsgType: "text",
		Text:    webhookText{Content: formatAlert(alert)},
		Alert:   alert,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook notifier: http %d", resp.StatusCode)
	}
	return nil
}

func formatAlert(alert billing.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[Billing %s]\n", alert.Type)
	fmt.Fprintf(&b, "Account: %s\n", alert.AccountID)
	fmt.Fprintf(&b, "Balance: %s\n", alert.Balance.StringFixed(2))
	if !alert.Threshold.IsZero() {
		fmt.Fprintf(&b, "Threshold: %s\n", alert.Threshold.StringFixed(2))
	}
	if alert.Message != "" {
		fmt.Fprintf(&b, "%s\n", alert.Message)
	}
	if !alert.OccurredAt.IsZero() {
		fmt.Fprintf(&b, "At: %s\n", alert.OccurredAt.UTC().Format(time.RFC3339))
	}
	return strings.TrimSpace(b.String())
}
