package notify

import (
	"context"

	"go.uber.org/zap"

	billing "prepaid-billing/internal/billing/domain"
)

// LoggingNotifier writes alerts to the log.
type LoggingNotifier struct {
	logger *zap.Logger
}

// NewLoggingNotifier constructs a notifier.
func NewLoggingNotifier(logger *zap.Logger) *LoggingNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingNotifier{logger: logger}
}

// Notify logs alert.
func (n *LoggingNotifier) Notify(_ context.Context, alert billing.Alert) error {
	n.logger.Info("account alert",
		zap.String("type", string(alert.Type)),
		zap.String("account_id", alert.AccountID),
		zap.String("balance", alert.Balance.StringFixed(2)),
		zap.String("message", alert.Message),
	)
	return nil
}
