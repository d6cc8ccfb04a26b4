package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	billing "prepaid-billing/internal/billing/domain"
)

const defaultTimeout = 10 * time.Second

// Client submits invoices to the external settlement (RMS/MDM) API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient constructs a settlement client.
func NewClient(baseURL, token string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("settlement client: empty base url")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

type invoicePayload struct {
	InvoiceID         string `json:"invoice_id"`
	AccountID         string `json:"account_id"`
	BillingPeriod     string `json:"billing_period"`
	TotalUnits        string `json:"total_units"`
	TotalEnergyCharge string `json:"total_energy_charge"`
	TotalFixedCharge  string `json:"total_fixed_charge"`
	TotalSubsidy      string `json:"total_subsidy"`
	TotalAmount       string `json:"total_amount"`
	OpeningBalance    string `json:"opening_balance"`
	ClosingBalance    string `json:"closing_balance"`
}

// SubmitInvoice posts one invoice. A 409 means the settlement side already holds it.
func (c *Client) SubmitInvoice(ctx context.Context, inv billing.Invoice) error {
	body := invoicePayload{
		InvoiceID:         inv.ID,
		AccountID:         inv.AccountID,
		BillingPeriod:     inv.BillingPeriod.String(),
		TotalUnits:        inv.TotalUnits.StringFixed(3),
		TotalEnergyCharge: inv.TotalEnergyCharge.StringFixed(2),
		TotalFixedCharge:  inv.TotalFixedCharge.StringFixed(2),
		TotalSubsidy:      inv.TotalSubsidy.StringFixed(2),
		TotalAmount:       inv.TotalAmount.StringFixed(2),
		OpeningBalance:    inv.OpeningBalance.StringFixed(2),
		ClosingBalance:    inv.ClosingBalance.StringFixed(2),
	}
	return c.doJSON(ctx, http.MethodPost, "/api/v1/invoices", inv.ID, body, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path, idempotencyKey string, body any, out any) error {
	var reqBody *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(payload)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return billing.Transient("settlement request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return nil
	}
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("settlement client: http %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return billing.Transient("settlement response", err)
		}
		return err
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
