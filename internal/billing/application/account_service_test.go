package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"prepaid-billing/internal/billing/application"
	billing "prepaid-billing/internal/billing/domain"
	"prepaid-billing/internal/billing/infrastructure/memory"
)

func TestAccountService_RechargeReconnects(t *testing.T) {
	store := seededStore(nil)
	store.PutAccount(billing.Account{AccountID: "acc-1", Balance: d("-9"), Status: billing.StatusDisconnected, TariffPlanID: "A1"})
	sink := &recordingSink{}
	svc, err := application.NewAccountService(store, store, sink, fixedClock{now: billingDay}, nil)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	ctx := context.Background()

	res, err := svc.Recharge(ctx, application.RechargeRequest{AccountID: "acc-1", Amount: d("5"), Reference: "r-1"})
	if err != nil {
		t.Fatalf("recharge: %v", err)
	}
	if res.Account.Status != billing.StatusDisconnected || !res.Account.Balance.Equal(d("-4")) {
		t.Fatalf("still in arrears, must stay disconnected: %+v", res.Account)
	}

	res, err = svc.Recharge(ctx, application.RechargeRequest{AccountID: "acc-1", Amount: d("20"), VoucherCode: " V-77 ", Reference: "r-2"})
	if err != nil {
		t.Fatalf("recharge: %v", err)
	}
	if res.Account.Status != billing.StatusActive || !res.Account.Balance.Equal(d("16")) {
		t.Fatalf("expected reconnect: %+v", res.Account)
	}
	if res.Transaction.VoucherCode != "V-77" || res.Transaction.ID == "" {
		t.Fatalf("transaction: %+v", res.Transaction)
	}
	if types := sink.types(); len(types) != 1 || types[0] != billing.AlertReconnected {
		t.Fatalf("alerts: %v", types)
	}

	_, err = svc.Recharge(ctx, application.RechargeRequest{AccountID: "acc-1", Amount: d("1"), Reference: "r-2"})
	if !errors.Is(err, billing.ErrDuplicate) {
		t.Fatalf("expected duplicate reference error, got %v", err)
	}
	stored, _ := store.GetAccount(ctx, "acc-1")
	if !stored.Balance.Equal(d("16")) || len(store.Recharges()) != 2 {
		t.Fatalf("duplicate must not change state: %s, %d txs", stored.Balance, len(store.Recharges()))
	}
}

func TestAccountService_RechargeValidation(t *testing.T) {
	store := seededStore(map[string]string{"acc-1": "10"})
	svc, _ := application.NewAccountService(store, store, nil, nil, nil)
	ctx := context.Background()

	cases := []application.RechargeRequest{
		{AccountID: "acc-1", Amount: decimal.Zero, Reference: "r"},
		{AccountID: "acc-1", Amount: d("-1"), Reference: "r"},
		{AccountID: "acc-1", Amount: d("1"), Reference: "  "},
		{AccountID: "", Amount: d("1"), Reference: "r"},
	}
	for _, req := range cases {
		if _, err := svc.Recharge(ctx, req); !errors.Is(err, billing.ErrValidation) {
			t.Fatalf("%+v: expected validation error, got %v", req, err)
		}
	}
	if _, err := svc.Recharge(ctx, application.RechargeRequest{AccountID: "nope", Amount: d("1"), Reference: "r"}); !errors.Is(err, billing.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAccountService_UpdateContactAndHistory(t *testing.T) {
	store := seededStore(map[string]string{"acc-1": "50"})
	billDays(t, store, mapUsage{kwh: map[string]decimal.Decimal{"acc-1": d("1")}},
		time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC),
	)
	svc, _ := application.NewAccountService(store, store, nil, fixedClock{now: billingDay}, nil)
	ctx := context.Background()

	address := "12 Lake Road"
	account, err := svc.UpdateContact(ctx, "acc-1", billing.ContactUpdate{Address: &address})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if account.Address != address || !account.Balance.Equal(d("46")) {
		t.Fatalf("unexpected account: %+v", account)
	}

	records, err := svc.ListConsumption(ctx, "acc-1", time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC))
	if err != nil || len(records) != 2 {
		t.Fatalf("history: %d %v", len(records), err)
	}
	if !records[0].Timestamp.Before(records[1].Timestamp) {
		t.Fatalf("history not ordered")
	}
	if _, err := svc.ListConsumption(ctx, "acc-1", billingDay, billingDay); !errors.Is(err, billing.ErrValidation) {
		t.Fatalf("expected validation error for empty range, got %v", err)
	}
}

// billingBetweenReadAndWrite runs the daily batch right after the recharge has read the account.
type billingBetweenReadAndWrite struct {
	*memory.Store
	daily *application.DailyBillingService
	ran   bool
	t     *testing.T
}

func (s *billingBetweenReadAndWrite) GetAccount(ctx context.Context, accountID string) (billing.Account, error) {
	account, err := s.Store.GetAccount(ctx, accountID)
	if !s.ran {
		s.ran = true
		if _, err := s.daily.Run(ctx, billingDay); err != nil {
			s.t.Fatalf("daily run: %v", err)
		}
	}
	return account, err
}

func TestAccountService_RechargeKeepsConcurrentDeduction(t *testing.T) {
	store := seededStore(map[string]string{"acc-1": "50"})
	daily := newDaily(t, store, mapUsage{kwh: map[string]decimal.Decimal{"acc-1": d("10")}})
	accounts := &billingBetweenReadAndWrite{Store: store, daily: daily, t: t}
	svc, err := application.NewAccountService(accounts, store, nil, fixedClock{now: billingDay.Add(2 * time.Hour)}, nil)
	if err != nil {
		t.Fatalf("service: %v", err)
	}

	res, err := svc.Recharge(context.Background(), application.RechargeRequest{AccountID: "acc-1", Amount: d("100"), Reference: "r-race"})
	if err != nil {
		t.Fatalf("recharge: %v", err)
	}
	records := store.Records()
	if len(records) != 1 || !records[0].BalanceAfter.Equal(d("8")) {
		t.Fatalf("deduction missing: %+v", records)
	}
	stored, _ := store.GetAccount(context.Background(), "acc-1")
	// 50 - 42 + 100
	if !stored.Balance.Equal(d("108")) || !res.Account.Balance.Equal(d("108")) {
		t.Fatalf("recharge erased the deduction: stored=%s returned=%s", stored.Balance, res.Account.Balance)
	}
	if len(store.Recharges()) != 1 {
		t.Fatalf("expected one recharge, got %d", len(store.Recharges()))
	}
}

func TestAccountService_RechargeGivesUpAfterRepeatedConflicts(t *testing.T) {
	store := seededStore(map[string]string{"acc-1": "50"})
	calls := 0
	store.SetHooks(memory.Hooks{SaveRecharge: func(billing.RechargeTransaction) error {
		calls++
		return billing.Conflict("account acc-1 balance changed")
	}})
	svc, _ := application.NewAccountService(store, store, nil, fixedClock{now: billingDay}, nil)

	_, err := svc.Recharge(context.Background(), application.RechargeRequest{AccountID: "acc-1", Amount: d("5"), Reference: "r-1"})
	if !errors.Is(err, billing.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}
