package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"time"

	billing "prepaid-billing/internal/billing/domain"
)

//go:embed schema.sql
var schemaSQL string

// Store persists billing state in Postgres through database/sql.
type Store struct {
	db *sql.DB
}

// NewStore constructs a store.
func NewStore(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("billing store: nil db")
	}
	return &Store{db: db}, nil
}

// EnsureSchema creates missing tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	return Classify("ensure schema", err)
}

const accountColumns = `account_id, name, address, phone, balance, status, tariff_plan_id, updated_at`

// ListActiveAccounts returns ACTIVE accounts ordered by id.
func (s *Store) ListActiveAccounts(ctx context.Context) ([]billing.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+accountColumns+`
FROM accounts
WHERE status = 'ACTIVE'
ORDER BY account_id`)
	if err != nil {
		return nil, Classify("list accounts", err)
	}
	defer rows.Close()

	var out []billing.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, Classify("scan account", err)
		}
		out = append(out, account)
	}
	return out, Classify("list accounts", rows.Err())
}

// GetAccount loads an account.
func (s *Store) GetAccount(ctx context.Context, accountID string) (billing.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE account_id = $1`, accountID)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return billing.Account{}, billing.NotFound("account %s not found", accountID)
	}
	if err != nil {
		return billing.Account{}, Classify("get account", err)
	}
	return account, nil
}

// PutAccount inserts or replaces an account.
func (s *Store) PutAccount(ctx context.Context, account billing.Account) error {
	if account.Status == "" {
		account.Status = billing.StatusActive
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO accounts (`+accountColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (account_id) DO UPDATE SET
	name = EXCLUDED.name,
	address = EXCLUDED.address,
	phone = EXCLUDED.phone,
	balance = EXCLUDED.balance,
	status = EXCLUDED.status,
	tariff_plan_id = EXCLUDED.tariff_plan_id,
	updated_at = EXCLUDED.updated_at`,
		account.AccountID, account.Name, account.Address, account.Phone, account.Balance,
		string(account.Status), account.TariffPlanID, nonZeroTime(account.UpdatedAt),
	)
	return Classify("put account", err)
}

// UpdateContact stores the contact fields of account.
func (s *Store) UpdateContact(ctx context.Context, account billing.Account) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE accounts SET name = $2, address = $3, phone = $4, updated_at = $5
WHERE account_id = $1`,
		account.AccountID, account.Name, account.Address, account.Phone, nonZeroTime(account.UpdatedAt))
	if err != nil {
		return Classify("update contact", err)
	}
	return requireRow(res, billing.NotFound("account %s not found", account.AccountID))
}

// SaveRecharge inserts tx and updates the account balance in one transaction.
// The update only applies while the stored balance is still account.Balance minus tx.Amount.
func (s *Store) SaveRecharge(ctx context.Context, account billing.Account, tx billing.RechargeTransaction) error {
	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Classify("begin recharge", err)
	}
	_, err = dbtx.ExecContext(ctx, `
INSERT INTO recharge_transactions (id, account_id, amount, recorded_at, voucher_code, reference)
VALUES ($1,$2,$3,$4,$5,$6)`,
		tx.ID, tx.AccountID, tx.Amount, tx.Timestamp, tx.VoucherCode, tx.Reference)
	if err != nil {
		_ = dbtx.Rollback()
		err = Classify("insert recharge", err)
		if errors.Is(err, billing.ErrDuplicate) {
			return billing.Duplicate("recharge reference %s already used", tx.Reference)
		}
		return err
	}
	res, err := dbtx.ExecContext(ctx, `
UPDATE accounts SET balance = $2, status = $3, updated_at = $4
WHERE account_id = $1 AND balance = $5`,
		account.AccountID, account.Balance, string(account.Status), nonZeroTime(account.UpdatedAt), account.Balance.Sub(tx.Amount))
	if err != nil {
		_ = dbtx.Rollback()
		return Classify("update balance", err)
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		_ = dbtx.Rollback()
		if err != nil {
			return Classify("update balance", err)
		}
		return s.missingOrConflict(ctx, account.AccountID)
	}
	return Classify("commit recharge", dbtx.Commit())
}

// PutTariff inserts or replaces a tariff plan.
func (s *Store) PutTariff(ctx context.Context, plan billing.TariffPlan) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO tariff_plans (plan_id, rate_per_kwh, fixed_charge_daily, subsidy_units, subsidy_rate, low_balance_threshold)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (plan_id) DO UPDATE SET
	rate_per_kwh = EXCLUDED.rate_per_kwh,
	fixed_charge_daily = EXCLUDED.fixed_charge_daily,
	subsidy_units = EXCLUDED.subsidy_units,
	subsidy_rate = EXCLUDED.subsidy_rate,
	low_balance_threshold = EXCLUDED.low_balance_threshold`,
		plan.PlanID, plan.RatePerKWh, plan.FixedChargeDaily, plan.SubsidyUnits, plan.SubsidyRate, plan.LowBalanceThreshold)
	return Classify("put tariff", err)
}

// GetTariff loads a tariff plan.
func (s *Store) GetTariff(ctx context.Context, planID string) (billing.TariffPlan, error) {
	var plan billing.TariffPlan
	err := s.db.QueryRowContext(ctx, `
SELECT plan_id, rate_per_kwh, fixed_charge_daily, subsidy_units, subsidy_rate, low_balance_threshold
FROM tariff_plans
WHERE plan_id = $1`, planID).Scan(
		&plan.PlanID, &plan.RatePerKWh, &plan.FixedChargeDaily, &plan.SubsidyUnits, &plan.SubsidyRate, &plan.LowBalanceThreshold,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return billing.TariffPlan{}, billing.NotFound("tariff plan %s not found", planID)
	}
	if err != nil {
		return billing.TariffPlan{}, Classify("get tariff", err)
	}
	return plan, nil
}

// HasConsumption reports whether the account was billed for the day.
func (s *Store) HasConsumption(ctx context.Context, accountID string, billingDate time.Time) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
SELECT EXISTS (SELECT 1 FROM consumption_records WHERE account_id = $1 AND billing_date = $2)`,
		accountID, billing.DayStart(billingDate)).Scan(&exists)
	if err != nil {
		return false, Classify("has consumption", err)
	}
	return exists, nil
}

// CommitDeductions appends the records and moves the balances in one transaction.
// A balance that changed since the deduction was computed rolls the whole chunk back.
func (s *Store) CommitDeductions(ctx context.Context, deductions []billing.Deduction) error {
	if len(deductions) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Classify("begin deductions", err)
	}
	for _, d := range deductions {
		rec := d.Record
		_, err := tx.ExecContext(ctx, `
INSERT INTO consumption_records (
	account_id, billing_date, recorded_at, kwh_consumed, subsidy_units_applied, subsidy_amount,
	energy_charge, fixed_charge, total_deduction, balance_before, balance_after
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			rec.AccountID, billing.DayStart(rec.BillingDate), rec.Timestamp, rec.KWhConsumed, rec.SubsidyUnitsApplied, rec.SubsidyAmount,
			rec.EnergyCharge, rec.FixedCharge, rec.TotalDeduction, rec.BalanceBefore, rec.BalanceAfter,
		)
		if err != nil {
			_ = tx.Rollback()
			return Classify("insert consumption "+rec.AccountID, err)
		}
		res, err := tx.ExecContext(ctx, `
UPDATE accounts SET balance = $2, status = $3, updated_at = $4
WHERE account_id = $1 AND balance = $5`,
			d.Account.AccountID, d.Account.Balance, string(d.Account.Status), nonZeroTime(d.Account.UpdatedAt), rec.BalanceBefore,
		)
		if err != nil {
			_ = tx.Rollback()
			return Classify("update balance "+rec.AccountID, err)
		}
		if err := requireRow(res, billing.Conflict("account %s balance changed", rec.AccountID)); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return Classify("commit deductions", tx.Commit())
}

const recordColumns = `account_id, billing_date, recorded_at, kwh_consumed, subsidy_units_applied, subsidy_amount,
	energy_charge, fixed_charge, total_deduction, balance_before, balance_after`

// ListConsumption returns the account's records in [from, to) ordered by time.
func (s *Store) ListConsumption(ctx context.Context, accountID string, from, to time.Time) ([]billing.ConsumptionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+recordColumns+`
FROM consumption_records
WHERE account_id = $1 AND recorded_at >= $2 AND recorded_at < $3
ORDER BY recorded_at, id`, accountID, from, to)
	if err != nil {
		return nil, Classify("list consumption", err)
	}
	return scanRecords(rows)
}

// ListPeriodConsumption returns every record whose billing date falls in period.
func (s *Store) ListPeriodConsumption(ctx context.Context, period billing.Period) ([]billing.ConsumptionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+recordColumns+`
FROM consumption_records
WHERE billing_date >= $1 AND billing_date < $2
ORDER BY recorded_at, id`, period.Start(), period.End())
	if err != nil {
		return nil, Classify("list period consumption", err)
	}
	return scanRecords(rows)
}

const invoiceColumns = `id, account_id, billing_period, record_count, total_units, total_energy_charge, total_fixed_charge,
	total_subsidy_units, total_subsidy, total_amount, opening_balance, closing_balance,
	sync_status, sync_error, sync_attempts, created_at, synced_at`

// FindInvoice returns the invoice of the pair or nil.
func (s *Store) FindInvoice(ctx context.Context, accountID string, period billing.Period) (*billing.Invoice, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+invoiceColumns+`
FROM invoices
WHERE account_id = $1 AND billing_period = $2`, accountID, period.String())
	inv, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, Classify("find invoice", err)
	}
	return &inv, nil
}

// GetInvoice loads an invoice by id.
func (s *Store) GetInvoice(ctx context.Context, invoiceID string) (billing.Invoice, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, invoiceID)
	inv, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return billing.Invoice{}, billing.NotFound("invoice %s not found", invoiceID)
	}
	if err != nil {
		return billing.Invoice{}, Classify("get invoice", err)
	}
	return inv, nil
}

// CreateInvoice inserts a new invoice; the (account, period) pair is unique.
func (s *Store) CreateInvoice(ctx context.Context, inv billing.Invoice) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO invoices (`+invoiceColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		inv.ID, inv.AccountID, inv.BillingPeriod.String(), inv.RecordCount, inv.TotalUnits, inv.TotalEnergyCharge, inv.TotalFixedCharge,
		inv.TotalSubsidyUnits, inv.TotalSubsidy, inv.TotalAmount, inv.OpeningBalance, inv.ClosingBalance,
		string(inv.SyncStatus), inv.SyncError, inv.SyncAttempts, inv.CreatedAt, nullTime(inv.SyncedAt),
	)
	return Classify("create invoice", err)
}

// ListInvoicesToSync returns PENDING and FAILED invoices ordered by creation.
func (s *Store) ListInvoicesToSync(ctx context.Context) ([]billing.Invoice, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+invoiceColumns+`
FROM invoices
WHERE sync_status IN ('PENDING','FAILED')
ORDER BY created_at, id`)
	if err != nil {
		return nil, Classify("list invoices to sync", err)
	}
	defer rows.Close()

	var out []billing.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, Classify("scan invoice", err)
		}
		out = append(out, inv)
	}
	return out, Classify("list invoices to sync", rows.Err())
}

// UpdateInvoiceSync stores the sync fields of inv.
func (s *Store) UpdateInvoiceSync(ctx context.Context, inv billing.Invoice) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE invoices SET sync_status = $2, sync_error = $3, sync_attempts = $4, synced_at = $5
WHERE id = $1`,
		inv.ID, string(inv.SyncStatus), inv.SyncError, inv.SyncAttempts, nullTime(inv.SyncedAt))
	if err != nil {
		return Classify("update invoice sync", err)
	}
	return requireRow(res, billing.NotFound("invoice %s not found", inv.ID))
}

// AppendJobRun stores a job run log.
func (s *Store) AppendJobRun(ctx context.Context, run billing.JobRunLog) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO job_run_logs (
	id, job_date, total_accounts, processed_count, failed_count, skipped_count, status, error, started_at, finished_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		run.ID, billing.DayStart(run.JobDate), run.TotalAccounts, run.ProcessedCount, run.FailedCount, run.SkippedCount,
		string(run.Status), run.Error, run.StartedAt, run.FinishedAt,
	)
	return Classify("append job run", err)
}

// HasCompletedRun reports whether a COMPLETED run exists for the day.
func (s *Store) HasCompletedRun(ctx context.Context, jobDate time.Time) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
SELECT EXISTS (SELECT 1 FROM job_run_logs WHERE job_date = $1 AND status = 'COMPLETED')`,
		billing.DayStart(jobDate)).Scan(&exists)
	if err != nil {
		return false, Classify("has completed run", err)
	}
	return exists, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (billing.Account, error) {
	var (
		account billing.Account
		status  string
	)
	err := row.Scan(
		&account.AccountID, &account.Name, &account.Address, &account.Phone, &account.Balance,
		&status, &account.TariffPlanID, &account.UpdatedAt,
	)
	if err != nil {
		return billing.Account{}, err
	}
	account.Status = billing.AccountStatus(status)
	account.UpdatedAt = account.UpdatedAt.UTC()
	return account, nil
}

func scanRecords(rows *sql.Rows) ([]billing.ConsumptionRecord, error) {
	defer rows.Close()
	var out []billing.ConsumptionRecord
	for rows.Next() {
		var rec billing.ConsumptionRecord
		err := rows.Scan(
			&rec.AccountID, &rec.BillingDate, &rec.Timestamp, &rec.KWhConsumed, &rec.SubsidyUnitsApplied, &rec.SubsidyAmount,
			&rec.EnergyCharge, &rec.FixedCharge, &rec.TotalDeduction, &rec.BalanceBefore, &rec.BalanceAfter,
		)
		if err != nil {
			return nil, Classify("scan consumption", err)
		}
		rec.BillingDate = billing.DayStart(rec.BillingDate)
		rec.Timestamp = rec.Timestamp.UTC()
		out = append(out, rec)
	}
	return out, Classify("scan consumption", rows.Err())
}

func scanInvoice(row rowScanner) (billing.Invoice, error) {
	var (
		inv      billing.Invoice
		period   string
		status   string
		syncedAt sql.NullTime
	)
	err := row.Scan(
		&inv.ID, &inv.AccountID, &period, &inv.RecordCount, &inv.TotalUnits, &inv.TotalEnergyCharge, &inv.TotalFixedCharge,
		&inv.TotalSubsidyUnits, &inv.TotalSubsidy, &inv.TotalAmount, &inv.OpeningBalance, &inv.ClosingBalance,
		&status, &inv.SyncError, &inv.SyncAttempts, &inv.CreatedAt, &syncedAt,
	)
	if err != nil {
		return billing.Invoice{}, err
	}
	inv.BillingPeriod, err = billing.ParsePeriod(period)
	if err != nil {
		return billing.Invoice{}, err
	}
	inv.SyncStatus = billing.SyncStatus(status)
	inv.CreatedAt = inv.CreatedAt.UTC()
	if syncedAt.Valid {
		inv.SyncedAt = syncedAt.Time.UTC()
	}
	return inv, nil
}

func (s *Store) missingOrConflict(ctx context.Context, accountID string) error {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE account_id = $1)`, accountID).Scan(&exists)
	if err != nil {
		return Classify("account exists", err)
	}
	if !exists {
		return billing.NotFound("account %s not found", accountID)
	}
	return billing.Conflict("account %s balance changed", accountID)
}

func requireRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func nonZeroTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
