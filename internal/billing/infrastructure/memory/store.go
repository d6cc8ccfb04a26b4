package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	billing "prepaid-billing/internal/billing/domain"
)

// Hooks inject failures for tests. Nil hooks are ignored.
type Hooks struct {
	ListAccounts     func() error
	GetTariff        func(planID string) error
	CommitDeductions func(deductions []billing.Deduction) error
	SaveRecharge     func(tx billing.RechargeTransaction) error
}

// Store is an in-memory implementation of every billing store port.
type Store struct {
	mu        sync.RWMutex
	accounts  map[string]billing.Account
	tariffs   map[string]billing.TariffPlan
	records   []billing.ConsumptionRecord
	billed    map[string]struct{}
	recharges []billing.RechargeTransaction
	refs      map[string]struct{}
	invoices  map[string]billing.Invoice
	periodIdx map[string]string
	runs      []billing.JobRunLog
	hooks     Hooks
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		accounts:  make(map[string]billing.Account),
		tariffs:   make(map[string]billing.TariffPlan),
		billed:    make(map[string]struct{}),
		refs:      make(map[string]struct{}),
		invoices:  make(map[string]billing.Invoice),
		periodIdx: make(map[string]string),
	}
}

// SetHooks replaces the failure hooks.
func (s *Store) SetHooks(hooks Hooks) {
	s.mu.Lock()
	s.hooks = hooks
	s.mu.Unlock()
}

// PutAccount inserts or replaces an account.
func (s *Store) PutAccount(account billing.Account) {
	if account.Status == "" {
		account.Status = billing.StatusActive
	}
	s.mu.Lock()
	s.accounts[account.AccountID] = account
	s.mu.Unlock()
}

// PutTariff inserts or replaces a tariff plan.
func (s *Store) PutTariff(plan billing.TariffPlan) {
	s.mu.Lock()
	s.tariffs[plan.PlanID] = plan
	s.mu.Unlock()
}

// ListActiveAccounts returns ACTIVE accounts ordered by id.
func (s *Store) ListActiveAccounts(ctx context.Context) ([]billing.Account, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.hooks.ListAccounts != nil {
		if err := s.hooks.ListAccounts(); err != nil {
			return nil, err
		}
	}
	var out []billing.Account
	for _, account := range s.accounts {
		if account.Status == billing.StatusActive {
			out = append(out, account)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, nil
}

// GetAccount loads an account.
func (s *Store) GetAccount(ctx context.Context, accountID string) (billing.Account, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[accountID]
	if !ok {
		return billing.Account{}, billing.NotFound("account %s not found", accountID)
	}
	return account, nil
}

// UpdateContact stores the contact fields of account.
func (s *Store) UpdateContact(ctx context.Context, account billing.Account) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.accounts[account.AccountID]
	if !ok {
		return billing.NotFound("account %s not found", account.AccountID)
	}
	current.Name = account.Name
	current.Address = account.Address
	current.Phone = account.Phone
	current.UpdatedAt = account.UpdatedAt
	s.accounts[account.AccountID] = current
	return nil
}

// SaveRecharge stores tx and the account's new balance and status together.
// The stored balance must still be account.Balance minus tx.Amount, otherwise a conflict is returned.
func (s *Store) SaveRecharge(ctx context.Context, account billing.Account, tx billing.RechargeTransaction) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hooks.SaveRecharge != nil {
		if err := s.hooks.SaveRecharge(tx); err != nil {
			return err
		}
	}
	if _, ok := s.refs[tx.Reference]; ok {
		return billing.Duplicate("recharge reference %s already used", tx.Reference)
	}
	current, ok := s.accounts[account.AccountID]
	if !ok {
		return billing.NotFound("account %s not found", account.AccountID)
	}
	if !current.Balance.Equal(account.Balance.Sub(tx.Amount)) {
		return billing.Conflict("account %s balance changed", account.AccountID)
	}
	s.refs[tx.Reference] = struct{}{}
	s.recharges = append(s.recharges, tx)
	s.accounts[account.AccountID] = account
	return nil
}

// Recharges returns stored recharge transactions in insertion order.
func (s *Store) Recharges() []billing.RechargeTransaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]billing.RechargeTransaction(nil), s.recharges...)
}

// GetTariff loads a tariff plan.
func (s *Store) GetTariff(ctx context.Context, planID string) (billing.TariffPlan, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.hooks.GetTariff != nil {
		if err := s.hooks.GetTariff(planID); err != nil {
			return billing.TariffPlan{}, err
		}
	}
	plan, ok := s.tariffs[planID]
	if !ok {
		return billing.TariffPlan{}, billing.NotFound("tariff plan %s not found", planID)
	}
	return plan, nil
}

// HasConsumption reports whether the account was billed for the day.
func (s *Store) HasConsumption(ctx context.Context, accountID string, billingDate time.Time) (bool, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.billed[dayKey(accountID, billingDate)]
	return ok, nil
}

// CommitDeductions appends the records and updates the accounts, all or nothing.
func (s *Store) CommitDeductions(ctx context.Context, deductions []billing.Deduction) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hooks.CommitDeductions != nil {
		if err := s.hooks.CommitDeductions(deductions); err != nil {
			return err
		}
	}

	seen := make(map[string]struct{}, len(deductions))
	for _, d := range deductions {
		key := dayKey(d.Record.AccountID, d.Record.BillingDate)
		if _, ok := s.billed[key]; ok {
			return billing.Duplicate("account %s already billed for %s", d.Record.AccountID, billing.DayKey(d.Record.BillingDate))
		}
		if _, ok := seen[key]; ok {
			return billing.Duplicate("account %s billed twice for %s", d.Record.AccountID, billing.DayKey(d.Record.BillingDate))
		}
		seen[key] = struct{}{}
		current, ok := s.accounts[d.Account.AccountID]
		if !ok {
			return billing.NotFound("account %s not found", d.Account.AccountID)
		}
		if !current.Balance.Equal(d.Record.BalanceBefore) {
			return billing.Conflict("account %s balance changed", d.Account.AccountID)
		}
	}

	for _, d := range deductions {
		s.billed[dayKey(d.Record.AccountID, d.Record.BillingDate)] = struct{}{}
		s.records = append(s.records, d.Record)
		s.accounts[d.Account.AccountID] = d.Account
	}
	return nil
}

// ListConsumption returns the account's records in [from, to) ordered by time.
func (s *Store) ListConsumption(ctx context.Context, accountID string, from, to time.Time) ([]billing.ConsumptionRecord, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []billing.ConsumptionRecord
	for _, rec := range s.records {
		if rec.AccountID != accountID {
			continue
		}
		if rec.Timestamp.Before(from) || !rec.Timestamp.Before(to) {
			continue
		}
		out = append(out, rec)
	}
	sortRecords(out)
	return out, nil
}

// ListPeriodConsumption returns every record whose billing date falls in period.
func (s *Store) ListPeriodConsumption(ctx context.Context, period billing.Period) ([]billing.ConsumptionRecord, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []billing.ConsumptionRecord
	for _, rec := range s.records {
		if period.Contains(rec.BillingDate) {
			out = append(out, rec)
		}
	}
	sortRecords(out)
	return out, nil
}

// Records returns every stored consumption record in insertion order.
func (s *Store) Records() []billing.ConsumptionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]billing.ConsumptionRecord(nil), s.records...)
}

// FindInvoice returns the invoice of the pair or nil.
func (s *Store) FindInvoice(ctx context.Context, accountID string, period billing.Period) (*billing.Invoice, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.periodIdx[periodKey(accountID, period)]
	if !ok {
		return nil, nil
	}
	inv := s.invoices[id]
	return &inv, nil
}

// GetInvoice loads an invoice by id.
func (s *Store) GetInvoice(ctx context.Context, invoiceID string) (billing.Invoice, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invoices[invoiceID]
	if !ok {
		return billing.Invoice{}, billing.NotFound("invoice %s not found", invoiceID)
	}
	return inv, nil
}

// CreateInvoice inserts a new invoice; one per (account, period).
func (s *Store) CreateInvoice(ctx context.Context, invoice billing.Invoice) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	key := periodKey(invoice.AccountID, invoice.BillingPeriod)
	if _, ok := s.periodIdx[key]; ok {
		return billing.Duplicate("invoice for %s %s already exists", invoice.AccountID, invoice.BillingPeriod)
	}
	if _, ok := s.invoices[invoice.ID]; ok {
		return billing.Duplicate("invoice %s already exists", invoice.ID)
	}
	s.invoices[invoice.ID] = invoice
	s.periodIdx[key] = invoice.ID
	return nil
}

// ListInvoicesToSync returns PENDING and FAILED invoices ordered by creation.
func (s *Store) ListInvoicesToSync(ctx context.Context) ([]billing.Invoice, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []billing.Invoice
	for _, inv := range s.invoices {
		if inv.NeedsSync() {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// UpdateInvoiceSync stores the sync fields of invoice.
func (s *Store) UpdateInvoiceSync(ctx context.Context, invoice billing.Invoice) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.invoices[invoice.ID]
	if !ok {
		return billing.NotFound("invoice %s not found", invoice.ID)
	}
	current.SyncStatus = invoice.SyncStatus
	current.SyncError = invoice.SyncError
	current.SyncAttempts = invoice.SyncAttempts
	current.SyncedAt = invoice.SyncedAt
	s.invoices[invoice.ID] = current
	return nil
}

// Invoices returns all invoices ordered by account and period.
func (s *Store) Invoices() []billing.Invoice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]billing.Invoice, 0, len(s.invoices))
	for _, inv := range s.invoices {
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AccountID != out[j].AccountID {
			return out[i].AccountID < out[j].AccountID
		}
		return out[i].BillingPeriod.String() < out[j].BillingPeriod.String()
	})
	return out
}

// AppendJobRun stores a job run log.
func (s *Store) AppendJobRun(ctx context.Context, run billing.JobRunLog) error {
	_ = ctx
	s.mu.Lock()
	s.runs = append(s.runs, run)
	s.mu.Unlock()
	return nil
}

// HasCompletedRun reports whether a COMPLETED run exists for the day.
func (s *Store) HasCompletedRun(ctx context.Context, jobDate time.Time) (bool, error) {
	_ = ctx
	day := billing.DayStart(jobDate)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, run := range s.runs {
		if run.Status == billing.JobCompleted && run.JobDate.Equal(day) {
			return true, nil
		}
	}
	return false, nil
}

// JobRuns returns stored job runs in insertion order.
func (s *Store) JobRuns() []billing.JobRunLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]billing.JobRunLog(nil), s.runs...)
}

func dayKey(accountID string, day time.Time) string {
	return accountID + "|" + billing.DayKey(day)
}

func periodKey(accountID string, period billing.Period) string {
	return accountID + "|" + period.String()
}

func sortRecords(records []billing.ConsumptionRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].Timestamp.Before(records[j].Timestamp)
		}
		return records[i].AccountID < records[j].AccountID
	})
}
