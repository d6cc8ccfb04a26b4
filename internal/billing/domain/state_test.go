package billing

import (
	"errors"
	"testing"
	"time"
)

func TestApplyDeduction_DisconnectsAndKeepsArrears(t *testing.T) {
	plan := freeSubsidyPlan()
	account := Account{AccountID: "acc-1", Balance: d("8"), Status: StatusActive, TariffPlanID: "A1"}
	rec, err := CalculateDeduction(DeductionInput{AccountID: "acc-1", BillingDate: time.Now(), BalanceBefore: account.Balance, KWhUsed: d("5"), Tariff: plan})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}

	next, alerts, err := ApplyDeduction(account, rec, plan)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if next.Status != StatusDisconnected {
		t.Fatalf("expected DISCONNECTED, got %s", next.Status)
	}
	if !next.Balance.Equal(d("-9")) {
		t.Fatalf("arrears must be kept: got %s", next.Balance)
	}
	if len(alerts) != 2 || alerts[0].Type != AlertLowBalance || alerts[1].Type != AlertDisconnected {
		t.Fatalf("unexpected alerts: %+v", alerts)
	}
}

func TestApplyDeduction_LowBalanceWithoutDisconnect(t *testing.T) {
	plan := freeSubsidyPlan()
	account := Account{AccountID: "acc-1", Balance: d("50"), Status: StatusActive}
	rec, _ := CalculateDeduction(DeductionInput{AccountID: "acc-1", BillingDate: time.Now(), BalanceBefore: account.Balance, KWhUsed: d("10"), Tariff: plan})

	next, alerts, err := ApplyDeduction(account, rec, plan)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if next.Status != StatusActive {
		t.Fatalf("expected ACTIVE, got %s", next.Status)
	}
	if len(alerts) != 1 || alerts[0].Type != AlertLowBalance {
		t.Fatalf("expected one low balance alert, got %+v", alerts)
	}
}

func TestApplyDeduction_RejectsDisconnectedAccount(t *testing.T) {
	plan := freeSubsidyPlan()
	account := Account{AccountID: "acc-1", Balance: d("-9"), Status: StatusDisconnected}
	rec, _ := CalculateDeduction(DeductionInput{AccountID: "acc-1", BillingDate: time.Now(), BalanceBefore: account.Balance, KWhUsed: d("1"), Tariff: plan})

	_, _, err := ApplyDeduction(account, rec, plan)
	if !errors.Is(err, ErrAccountDisconnected) {
		t.Fatalf("expected ErrAccountDisconnected, got %v", err)
	}
}

func TestApplyRecharge_Transitions(t *testing.T) {
	now := time.Date(2026, time.March, 5, 9, 0, 0, 0, time.UTC)
	account := Account{AccountID: "acc-1", Balance: d("-9"), Status: StatusDisconnected}

	partial, alerts, err := ApplyRecharge(account, d("5"), now)
	if err != nil {
		t.Fatalf("recharge: %v", err)
	}
	if partial.Status != StatusDisconnected || !partial.Balance.Equal(d("-4")) || len(alerts) != 0 {
		t.Fatalf("recharge leaving arrears must stay disconnected: %+v %+v", partial, alerts)
	}

	full, alerts, err := ApplyRecharge(partial, d("4.01"), now)
	if err != nil {
		t.Fatalf("recharge: %v", err)
	}
	if full.Status != StatusActive || !full.Balance.Equal(d("0.01")) {
		t.Fatalf("expected ACTIVE with 0.01, got %+v", full)
	}
	if len(alerts) != 1 || alerts[0].Type != AlertReconnected {
		t.Fatalf("expected reconnected alert, got %+v", alerts)
	}

	if _, _, err := ApplyRecharge(full, d("0"), now); !errors.Is(err, ErrValidation) {
		t.Fatalf("zero recharge must be rejected, got %v", err)
	}
	if _, _, err := ApplyRecharge(full, d("1.00005"), now); !errors.Is(err, ErrValidation) {
		t.Fatalf("sub-scale recharge must be rejected, got %v", err)
	}
	if _, _, err := ApplyRecharge(full, d("1.50000"), now); err != nil {
		t.Fatalf("trailing zeros are within scale: %v", err)
	}
}

func TestApplyContactUpdate(t *testing.T) {
	name := "  Asha Roy "
	empty := " "
	account := Account{AccountID: "acc-1", Name: "old", Address: "addr", Phone: "123"}

	updated, err := ApplyContactUpdate(account, ContactUpdate{Name: &name})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Asha Roy" || updated.Address != "addr" || updated.Phone != "123" {
		t.Fatalf("unexpected account: %+v", updated)
	}
	if _, err := ApplyContactUpdate(account, ContactUpdate{Phone: &empty}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := ApplyContactUpdate(account, ContactUpdate{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for empty update, got %v", err)
	}
}

func TestPeriodParsing(t *testing.T) {
	p, err := ParsePeriod("2026-02")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.String() != "2026-02" || p.Previous().String() != "2026-01" {
		t.Fatalf("unexpected period %s / %s", p, p.Previous())
	}
	if !p.Contains(time.Date(2026, 2, 28, 23, 59, 0, 0, time.UTC)) || p.Contains(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("contains mismatch")
	}
	if _, err := ParsePeriod("2026/02"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestErrorKinds(t *testing.T) {
	err := Transient("write chunk", errors.New("conn reset"))
	if !IsTransient(err) || errors.Is(err, ErrDuplicate) {
		t.Fatalf("kind matching broken for %v", err)
	}
	if KindOf(errors.New("plain")) != KindInternal {
		t.Fatalf("plain errors must be internal")
	}
}
