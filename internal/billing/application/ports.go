package application

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	billing "prepaid-billing/internal/billing/domain"
)

// AccountStore persists accounts and their ledger.
type AccountStore interface {
	ListActiveAccounts(ctx context.Context) ([]billing.Account, error)
	GetAccount(ctx context.Context, accountID string) (billing.Account, error)
	UpdateContact(ctx context.Context, account billing.Account) error
	// SaveRecharge stores tx and the recharged account atomically. A reused reference is a duplicate error;
	// a stored balance other than account.Balance minus tx.Amount is a conflict error.
	SaveRecharge(ctx context.Context, account billing.Account, tx billing.RechargeTransaction) error
}

// ConsumptionStore holds the append-only consumption ledger.
type ConsumptionStore interface {
	HasConsumption(ctx context.Context, accountID string, billingDate time.Time) (bool, error)
	// CommitDeductions appends every record and updates every account in one unit.
	CommitDeductions(ctx context.Context, deductions []billing.Deduction) error
	ListConsumption(ctx context.Context, accountID string, from, to time.Time) ([]billing.ConsumptionRecord, error)
	ListPeriodConsumption(ctx context.Context, period billing.Period) ([]billing.ConsumptionRecord, error)
}

// TariffStore resolves tariff plans.
type TariffStore interface {
	GetTariff(ctx context.Context, planID string) (billing.TariffPlan, error)
}

// InvoiceStore persists invoices.
type InvoiceStore interface {
	// FindInvoice returns nil when no invoice exists for the pair.
	FindInvoice(ctx context.Context, accountID string, period billing.Period) (*billing.Invoice, error)
	GetInvoice(ctx context.Context, invoiceID string) (billing.Invoice, error)
	CreateInvoice(ctx context.Context, invoice billing.Invoice) error
	ListInvoicesToSync(ctx context.Context) ([]billing.Invoice, error)
	UpdateInvoiceSync(ctx context.Context, invoice billing.Invoice) error
}

// JobRunStore appends job run logs.
type JobRunStore interface {
	AppendJobRun(ctx context.Context, run billing.JobRunLog) error
	HasCompletedRun(ctx context.Context, jobDate time.Time) (bool, error)
}

// UsageSource reports the kWh an account used on a day.
type UsageSource interface {
	DailyUsage(ctx context.Context, accountID string, billingDate time.Time) (decimal.Decimal, error)
}

// NotificationSink delivers account alerts.
type NotificationSink interface {
	Notify(ctx context.Context, alert billing.Alert) error
}

// SettlementClient submits invoices to the external settlement system.
type SettlementClient interface {
	SubmitInvoice(ctx context.Context, invoice billing.Invoice) error
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

type nopSink struct{}

func (nopSink) Notify(context.Context, billing.Alert) error { return nil }
