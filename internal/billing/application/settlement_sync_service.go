package application

import (
	"context"
	"errors"

	"go.uber.org/zap"

	billing "prepaid-billing/internal/billing/domain"
	"prepaid-billing/internal/observability/metrics"
)

// SyncResult counts one sync pass.
type SyncResult struct {
	Synced int `json:"synced"`
	Failed int `json:"failed"`
}

// SettlementSyncService pushes PENDING and FAILED invoices to settlement.
type SettlementSyncService struct {
	invoices InvoiceStore
	client   SettlementClient
	clock    Clock
	logger   *zap.Logger
}

// NewSettlementSyncService constructs the sync service.
func NewSettlementSyncService(invoices InvoiceStore, client SettlementClient, clock Clock, logger *zap.Logger) (*SettlementSyncService, error) {
	if invoices == nil {
		return nil, errors.New("settlement sync: nil invoice store")
	}
	if client == nil {
		return nil, errors.New("settlement sync: nil settlement client")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettlementSyncService{invoices: invoices, client: client, clock: clock, logger: logger}, nil
}

// Sync submits every unsynced invoice once. A failed submission marks the invoice FAILED
// and the pass moves on; the next call picks it up again.
func (s *SettlementSyncService) Sync(ctx context.Context) (SyncResult, error) {
	invoices, err := s.invoices.ListInvoicesToSync(ctx)
	if err != nil {
		return SyncResult{}, err
	}

	var result SyncResult
	for _, invoice := range invoices {
		if !invoice.NeedsSync() {
			continue
		}
		log := s.logger.With(zap.String("invoice_id", invoice.ID), zap.String("account_id", invoice.AccountID))

		var next billing.Invoice
		if err := s.client.SubmitInvoice(ctx, invoice); err != nil {
			next = invoice.MarkSyncFailed(err.Error())
			result.Failed++
			metrics.IncInvoiceSync(metrics.ResultError)
			log.Warn("invoice sync failed", zap.Int("attempt", next.SyncAttempts), zap.Error(err))
		} else {
			next = invoice.MarkSynced(s.clock.Now().UTC())
			result.Synced++
			metrics.IncInvoiceSync(metrics.ResultSuccess)
		}
		if err := s.invoices.UpdateInvoiceSync(ctx, next); err != nil {
			log.Error("invoice sync status write failed", zap.String("status", string(next.SyncStatus)), zap.Error(err))
		}
	}
	s.logger.Info("settlement sync finished", zap.Int("synced", result.Synced), zap.Int("failed", result.Failed))
	return result, nil
}
