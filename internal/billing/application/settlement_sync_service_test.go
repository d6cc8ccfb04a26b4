package application_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"prepaid-billing/internal/billing/application"
	billing "prepaid-billing/internal/billing/domain"
	"prepaid-billing/internal/billing/infrastructure/memory"
)

type flakySettlement struct {
	mu      sync.Mutex
	failFor map[string]bool
	calls   []string
}

func (f *flakySettlement) SubmitInvoice(_ context.Context, inv billing.Invoice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, inv.AccountID)
	if f.failFor[inv.AccountID] {
		return errors.New("settlement rejected")
	}
	return nil
}

func seedInvoices(t *testing.T, store *memory.Store, accountIDs ...string) {
	t.Helper()
	for i, id := range accountIDs {
		inv := billing.Invoice{
			ID:            uuid.NewString(),
			AccountID:     id,
			BillingPeriod: billing.Period{Year: 2026, Month: time.March},
			SyncStatus:    billing.SyncPending,
			CreatedAt:     time.Date(2026, time.April, 1, 0, i, 0, 0, time.UTC),
		}
		if err := store.CreateInvoice(context.Background(), inv); err != nil {
			t.Fatalf("seed invoice: %v", err)
		}
	}
}

func TestSettlementSync_FailureDoesNotBlockOthers(t *testing.T) {
	store := memory.NewStore()
	seedInvoices(t, store, "acc-1", "acc-2", "acc-3")
	client := &flakySettlement{failFor: map[string]bool{"acc-2": true}}
	svc, err := application.NewSettlementSyncService(store, client, fixedClock{now: billingDay}, nil)
	if err != nil {
		t.Fatalf("service: %v", err)
	}

	result, err := svc.Sync(context.Background())
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if result.Synced != 2 || result.Failed != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	statuses := map[string]billing.SyncStatus{}
	for _, inv := range store.Invoices() {
		statuses[inv.AccountID] = inv.SyncStatus
	}
	if statuses["acc-1"] != billing.SyncSynced || statuses["acc-2"] != billing.SyncFailed || statuses["acc-3"] != billing.SyncSynced {
		t.Fatalf("statuses: %v", statuses)
	}

	// re-invocation picks FAILED invoices up again
	client.failFor = nil
	client.calls = nil
	result, err = svc.Sync(context.Background())
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if result.Synced != 1 || result.Failed != 0 || len(client.calls) != 1 || client.calls[0] != "acc-2" {
		t.Fatalf("retry pass: %+v calls=%v", result, client.calls)
	}
	for _, inv := range store.Invoices() {
		if inv.AccountID == "acc-2" && (inv.SyncStatus != billing.SyncSynced || inv.SyncAttempts != 2) {
			t.Fatalf("acc-2 after retry: %+v", inv)
		}
	}
}

func TestNewSettlementSyncService_RejectsNilClient(t *testing.T) {
	if _, err := application.NewSettlementSyncService(memory.NewStore(), nil, nil, nil); err == nil {
		t.Fatalf("expected error")
	}
}
