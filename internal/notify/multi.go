package notify

import (
	"context"

	"go.uber.org/multierr"

	billing "prepaid-billing/internal/billing/domain"
)

// Notifier delivers one alert.
type Notifier interface {
	Notify(ctx context.Context, alert billing.Alert) error
}

// MultiNotifier dispatches alerts to several notifiers.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier constructs a MultiNotifier. Nil entries are dropped.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	m := &MultiNotifier{}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

// Notify forwards alert to every notifier; one failure does not stop the others.
func (m *MultiNotifier) Notify(ctx context.Context, alert billing.Alert) error {
	if m == nil {
		return nil
	}
	var err error
	for _, n := range m.notifiers {
		err = multierr.Append(err, n.Notify(ctx, alert))
	}
	return err
}
