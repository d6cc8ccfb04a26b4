package postgres_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	billing "prepaid-billing/internal/billing/domain"
	"prepaid-billing/internal/billing/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func openStore(t *testing.T) (*postgres.Store, *sql.DB) {
	t.Helper()
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := postgres.NewStore(db)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	ctx := context.Background()
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("schema: %v", err)
	}
	for _, table := range []string{"invoices", "consumption_records", "recharge_transactions", "job_run_logs", "accounts", "tariff_plans"} {
		if _, err := db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			t.Fatalf("clean %s: %v", table, err)
		}
	}
	return store, db
}

func TestStore_CommitDeductionsAndInvoices(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()
	day := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)

	if err := store.PutTariff(ctx, billing.TariffPlan{
		PlanID:              "A1",
		RatePerKWh:          decimal.NewFromInt(5),
		FixedChargeDaily:    decimal.NewFromInt(2),
		SubsidyUnits:        decimal.NewFromInt(2),
		SubsidyRate:         decimal.NewFromInt(1),
		LowBalanceThreshold: decimal.NewFromInt(10),
	}); err != nil {
		t.Fatalf("put tariff: %v", err)
	}
	plan, err := store.GetTariff(ctx, "A1")
	if err != nil {
		t.Fatalf("get tariff: %v", err)
	}
	if err := store.PutAccount(ctx, billing.Account{AccountID: "acc-1", Name: "Asha", Balance: decimal.NewFromInt(50), Status: billing.StatusActive, TariffPlanID: "A1"}); err != nil {
		t.Fatalf("put account: %v", err)
	}
	account, err := store.GetAccount(ctx, "acc-1")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}

	rec, err := billing.CalculateDeduction(billing.DeductionInput{
		AccountID:     "acc-1",
		BillingDate:   day,
		Timestamp:     day.Add(time.Hour),
		BalanceBefore: account.Balance,
		KWhUsed:       decimal.NewFromInt(10),
		Tariff:        plan,
	})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	next, _, err := billing.ApplyDeduction(account, rec, plan)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := store.CommitDeductions(ctx, []billing.Deduction{{Record: rec, Account: next}}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	billed, err := store.HasConsumption(ctx, "acc-1", day.Add(5*time.Hour))
	if err != nil || !billed {
		t.Fatalf("expected billed day, got %v %v", billed, err)
	}
	err = store.CommitDeductions(ctx, []billing.Deduction{{Record: rec, Account: next}})
	if !errors.Is(err, billing.ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	stored, _ := store.GetAccount(ctx, "acc-1")
	if !stored.Balance.Equal(decimal.NewFromInt(8)) {
		t.Fatalf("balance mismatch: %s", stored.Balance)
	}

	period := billing.PeriodOf(day)
	records, err := store.ListPeriodConsumption(ctx, period)
	if err != nil || len(records) != 1 {
		t.Fatalf("period records: %d %v", len(records), err)
	}
	inv, err := billing.AggregateInvoice("acc-1", period, records, day)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	inv.ID = uuid.NewString()
	if err := store.CreateInvoice(ctx, inv); err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	dup := inv
	dup.ID = uuid.NewString()
	if err := store.CreateInvoice(ctx, dup); !errors.Is(err, billing.ErrDuplicate) {
		t.Fatalf("expected duplicate invoice, got %v", err)
	}
	pending, err := store.ListInvoicesToSync(ctx)
	if err != nil || len(pending) != 1 {
		t.Fatalf("pending: %d %v", len(pending), err)
	}
	if err := store.UpdateInvoiceSync(ctx, pending[0].MarkSynced(day)); err != nil {
		t.Fatalf("update sync: %v", err)
	}
	found, err := store.FindInvoice(ctx, "acc-1", period)
	if err != nil || found == nil || found.SyncStatus != billing.SyncSynced {
		t.Fatalf("find invoice: %+v %v", found, err)
	}
}

func TestStore_RechargeReferenceUnique(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()
	if err := store.PutAccount(ctx, billing.Account{AccountID: "acc-2", Balance: decimal.NewFromInt(-9), Status: billing.StatusDisconnected}); err != nil {
		t.Fatalf("put account: %v", err)
	}
	account, _ := store.GetAccount(ctx, "acc-2")
	now := time.Date(2026, time.March, 11, 9, 0, 0, 0, time.UTC)
	next, _, err := billing.ApplyRecharge(account, decimal.NewFromInt(20), now)
	if err != nil {
		t.Fatalf("recharge: %v", err)
	}
	tx := billing.RechargeTransaction{ID: uuid.NewString(), AccountID: "acc-2", Amount: decimal.NewFromInt(20), Timestamp: now, Reference: "ref-1"}
	if err := store.SaveRecharge(ctx, next, tx); err != nil {
		t.Fatalf("save recharge: %v", err)
	}
	tx.ID = uuid.NewString()
	if err := store.SaveRecharge(ctx, next, tx); !errors.Is(err, billing.ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	stored, _ := store.GetAccount(ctx, "acc-2")
	if stored.Status != billing.StatusActive || !stored.Balance.Equal(decimal.NewFromInt(11)) {
		t.Fatalf("unexpected account: %+v", stored)
	}

	// next was computed from the -9 balance; writing it again would erase the first recharge
	stale := billing.RechargeTransaction{ID: uuid.NewString(), AccountID: "acc-2", Amount: decimal.NewFromInt(20), Timestamp: now, Reference: "ref-2"}
	if err := store.SaveRecharge(ctx, next, stale); !errors.Is(err, billing.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	stored, _ = store.GetAccount(ctx, "acc-2")
	if !stored.Balance.Equal(decimal.NewFromInt(11)) {
		t.Fatalf("stale recharge changed balance: %s", stored.Balance)
	}
}
