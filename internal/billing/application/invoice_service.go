package application

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	billing "prepaid-billing/internal/billing/domain"
	"prepaid-billing/internal/observability/metrics"
)

// InvoiceService aggregates consumption into monthly invoices.
type InvoiceService struct {
	ledger   ConsumptionStore
	invoices InvoiceStore
	clock    Clock
	logger   *zap.Logger
}

// NewInvoiceService constructs the monthly aggregator.
func NewInvoiceService(ledger ConsumptionStore, invoices InvoiceStore, clock Clock, logger *zap.Logger) (*InvoiceService, error) {
	if ledger == nil {
		return nil, errors.New("invoice service: nil consumption store")
	}
	if invoices == nil {
		return nil, errors.New("invoice service: nil invoice store")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InvoiceService{ledger: ledger, invoices: invoices, clock: clock, logger: logger}, nil
}

// GenerateMonthly creates one invoice per account that consumed in period and has none yet.
// It returns only the invoices created by this call, so a repeated call returns none.
func (s *InvoiceService) GenerateMonthly(ctx context.Context, period billing.Period) ([]billing.Invoice, error) {
	if period.IsZero() {
		return nil, billing.Validation("billing period required")
	}
	records, err := s.ledger.ListPeriodConsumption(ctx, period)
	if err != nil {
		return nil, err
	}

	byAccount := make(map[string][]billing.ConsumptionRecord)
	for _, rec := range records {
		byAccount[rec.AccountID] = append(byAccount[rec.AccountID], rec)
	}
	accountIDs := make([]string, 0, len(byAccount))
	for id := range byAccount {
		accountIDs = append(accountIDs, id)
	}
	sort.Strings(accountIDs)

	log := s.logger.With(zap.String("period", period.String()))
	var created []billing.Invoice
	for _, accountID := range accountIDs {
		existing, err := s.invoices.FindInvoice(ctx, accountID, period)
		if err != nil {
			return created, err
		}
		if existing != nil {
			continue
		}
		invoice, err := billing.AggregateInvoice(accountID, period, byAccount[accountID], s.clock.Now().UTC())
		if err != nil {
			if errors.Is(err, billing.ErrNotFound) {
				continue
			}
			return created, err
		}
		invoice.ID = uuid.NewString()
		if err := s.invoices.CreateInvoice(ctx, invoice); err != nil {
			if errors.Is(err, billing.ErrDuplicate) {
				log.Info("invoice already exists", zap.String("account_id", accountID))
				continue
			}
			return created, err
		}
		created = append(created, invoice)
	}
	metrics.AddInvoicesGenerated(len(created))
	log.Info("monthly invoices generated", zap.Int("created", len(created)), zap.Int("accounts", len(accountIDs)))
	return created, nil
}

// GetInvoice loads an invoice by id.
func (s *InvoiceService) GetInvoice(ctx context.Context, invoiceID string) (billing.Invoice, error) {
	if invoiceID == "" {
		return billing.Invoice{}, billing.Validation("invoice id is empty")
	}
	return s.invoices.GetInvoice(ctx, invoiceID)
}

// InvoiceRecords returns the consumption records an invoice was aggregated from.
func (s *InvoiceService) InvoiceRecords(ctx context.Context, invoice billing.Invoice) ([]billing.ConsumptionRecord, error) {
	records, err := s.ledger.ListPeriodConsumption(ctx, invoice.BillingPeriod)
	if err != nil {
		return nil, err
	}
	var out []billing.ConsumptionRecord
	for _, rec := range records {
		if rec.AccountID == invoice.AccountID {
			out = append(out, rec)
		}
	}
	return out, nil
}
