package billing

import (
	"errors"
	"testing"
	"time"
)

func TestAggregateInvoice_ReconcilesBalances(t *testing.T) {
	plan := freeSubsidyPlan()
	period := Period{Year: 2026, Month: time.March}
	balance := d("50")
	var records []ConsumptionRecord
	for i, usage := range []string{"10", "1", "0.5"} {
		day := time.Date(2026, time.March, 1+i, 0, 0, 0, 0, time.UTC)
		rec, err := CalculateDeduction(DeductionInput{AccountID: "acc-1", BillingDate: day, Timestamp: day.Add(time.Hour), BalanceBefore: balance, KWhUsed: d(usage), Tariff: plan})
		if err != nil {
			t.Fatalf("calculate: %v", err)
		}
		balance = rec.BalanceAfter
		records = append(records, rec)
	}
	// Out-of-order input and a record from another month.
	records[0], records[2] = records[2], records[0]
	stray, _ := CalculateDeduction(DeductionInput{AccountID: "acc-1", BillingDate: time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC), BalanceBefore: balance, KWhUsed: d("1"), Tariff: plan})
	records = append(records, stray)

	inv, err := AggregateInvoice("acc-1", period, records, time.Date(2026, time.April, 1, 2, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if inv.RecordCount != 3 {
		t.Fatalf("expected 3 records, got %d", inv.RecordCount)
	}
	if !inv.OpeningBalance.Equal(d("50")) {
		t.Fatalf("opening balance: got %s", inv.OpeningBalance)
	}
	if !inv.ClosingBalance.Equal(balance) {
		t.Fatalf("closing balance: got %s want %s", inv.ClosingBalance, balance)
	}
	if !inv.OpeningBalance.Sub(inv.TotalAmount).Equal(inv.ClosingBalance) {
		t.Fatalf("opening - total must equal closing: %s - %s != %s", inv.OpeningBalance, inv.TotalAmount, inv.ClosingBalance)
	}
	if !inv.TotalUnits.Equal(d("11.5")) || !inv.TotalSubsidyUnits.Equal(d("3.5")) || !inv.TotalSubsidy.Equal(d("17.5")) {
		t.Fatalf("unexpected totals: %+v", inv)
	}
	if inv.SyncStatus != SyncPending {
		t.Fatalf("new invoices must be pending, got %s", inv.SyncStatus)
	}
}

func TestAggregateInvoice_NoRecords(t *testing.T) {
	_, err := AggregateInvoice("acc-1", Period{Year: 2026, Month: time.March}, nil, time.Now())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestInvoiceSyncTransitions(t *testing.T) {
	inv := Invoice{ID: "inv-1", SyncStatus: SyncPending}
	failed := inv.MarkSyncFailed("timeout")
	if failed.SyncStatus != SyncFailed || !failed.NeedsSync() || failed.SyncAttempts != 1 {
		t.Fatalf("unexpected failed invoice: %+v", failed)
	}
	synced := failed.MarkSynced(time.Now())
	if synced.SyncStatus != SyncSynced || synced.NeedsSync() || synced.SyncError != "" || synced.SyncAttempts != 2 {
		t.Fatalf("unexpected synced invoice: %+v", synced)
	}
}
