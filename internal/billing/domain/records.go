package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// ConsumptionRecord is the immutable audit entry of one deduction.
type ConsumptionRecord struct {
	AccountID           string          `json:"account_id"`
	BillingDate         time.Time       `json:"billing_date"`
	Timestamp           time.Time       `json:"timestamp"`
	KWhConsumed         decimal.Decimal `json:"kwh_consumed"`
	SubsidyUnitsApplied decimal.Decimal `json:"subsidy_units_applied"`
	SubsidyAmount       decimal.Decimal `json:"subsidy_amount"`
	EnergyCharge        decimal.Decimal `json:"energy_charge"`
	FixedCharge         decimal.Decimal `json:"fixed_charge"`
	TotalDeduction      decimal.Decimal `json:"total_deduction"`
	BalanceBefore       decimal.Decimal `json:"balance_before"`
	BalanceAfter        decimal.Decimal `json:"balance_after"`
}

// RechargeTransaction is an immutable top-up. Reference is unique across all transactions.
type RechargeTransaction struct {
	ID          string          `json:"id"`
	AccountID   string          `json:"account_id"`
	Amount      decimal.Decimal `json:"amount"`
	Timestamp   time.Time       `json:"timestamp"`
	VoucherCode string          `json:"voucher_code,omitempty"`
	Reference   string          `json:"reference"`
}

// SyncStatus is the settlement state of an invoice.
type SyncStatus string

const (
	SyncPending SyncStatus = "PENDING"
	SyncSynced  SyncStatus = "SYNCED"
	SyncFailed  SyncStatus = "FAILED"
)

// Invoice is the monthly roll-up of an account's consumption records.
type Invoice struct {
	ID                string          `json:"id"`
	AccountID         string          `json:"account_id"`
	BillingPeriod     Period          `json:"billing_period"`
	RecordCount       int             `json:"record_count"`
	TotalUnits        decimal.Decimal `json:"total_units"`
	TotalEnergyCharge decimal.Decimal `json:"total_energy_charge"`
	TotalFixedCharge  decimal.Decimal `json:"total_fixed_charge"`
	TotalSubsidyUnits decimal.Decimal `json:"total_subsidy_units"`
	TotalSubsidy      decimal.Decimal `json:"total_subsidy"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	OpeningBalance    decimal.Decimal `json:"opening_balance"`
	ClosingBalance    decimal.Decimal `json:"closing_balance"`
	SyncStatus        SyncStatus      `json:"sync_status"`
	SyncError         string          `json:"sync_error,omitempty"`
	SyncAttempts      int             `json:"sync_attempts"`
	CreatedAt         time.Time       `json:"created_at"`
	SyncedAt          time.Time       `json:"synced_at,omitempty"`
}

// JobStatus is the outcome of a daily billing run.
type JobStatus string

const (
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
)

// JobRunLog summarises one invocation of the daily billing batch.
type JobRunLog struct {
	ID             string    `json:"id"`
	JobDate        time.Time `json:"job_date"`
	TotalAccounts  int       `json:"total_accounts"`
	ProcessedCount int       `json:"processed_count"`
	FailedCount    int       `json:"failed_count"`
	SkippedCount   int       `json:"skipped_count"`
	Status         JobStatus `json:"status"`
	Error          string    `json:"error,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}
