package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	billing "prepaid-billing/internal/billing/domain"
)

func deduction(accountID string, day time.Time, before, after string) billing.Deduction {
	b := decimal.RequireFromString(before)
	a := decimal.RequireFromString(after)
	return billing.Deduction{
		Record:  billing.ConsumptionRecord{AccountID: accountID, BillingDate: day, Timestamp: day, BalanceBefore: b, BalanceAfter: a},
		Account: billing.Account{AccountID: accountID, Balance: a, Status: billing.StatusActive},
	}
}

func TestCommitDeductions_AllOrNothing(t *testing.T) {
	store := NewStore()
	store.PutAccount(billing.Account{AccountID: "a", Balance: decimal.NewFromInt(10)})
	store.PutAccount(billing.Account{AccountID: "b", Balance: decimal.NewFromInt(10)})
	day := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()

	// b's balance does not match, so a must not be written either
	err := store.CommitDeductions(ctx, []billing.Deduction{
		deduction("a", day, "10", "7"),
		deduction("b", day, "99", "90"),
	})
	if !errors.Is(err, billing.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if len(store.Records()) != 0 {
		t.Fatalf("partial chunk was written")
	}
	if billed, _ := store.HasConsumption(ctx, "a", day); billed {
		t.Fatalf("a marked billed after failed chunk")
	}

	if err := store.CommitDeductions(ctx, []billing.Deduction{deduction("a", day, "10", "7")}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := store.CommitDeductions(ctx, []billing.Deduction{deduction("a", day, "7", "4")}); !errors.Is(err, billing.ErrDuplicate) {
		t.Fatalf("expected duplicate day, got %v", err)
	}
	account, _ := store.GetAccount(ctx, "a")
	if !account.Balance.Equal(decimal.NewFromInt(7)) {
		t.Fatalf("balance %s", account.Balance)
	}
}

func TestListActiveAccounts_SkipsDisconnected(t *testing.T) {
	store := NewStore()
	store.PutAccount(billing.Account{AccountID: "z"})
	store.PutAccount(billing.Account{AccountID: "m", Status: billing.StatusDisconnected})
	store.PutAccount(billing.Account{AccountID: "b"})

	accounts, err := store.ListActiveAccounts(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(accounts) != 2 || accounts[0].AccountID != "b" || accounts[1].AccountID != "z" {
		t.Fatalf("unexpected accounts %+v", accounts)
	}
}

func TestSaveRecharge_RejectsStaleBalance(t *testing.T) {
	store := NewStore()
	store.PutAccount(billing.Account{AccountID: "a", Balance: decimal.NewFromInt(8)})
	ctx := context.Background()

	// computed from a read of 50 that a deduction has since moved to 8
	stale := billing.Account{AccountID: "a", Balance: decimal.NewFromInt(150), Status: billing.StatusActive}
	tx := billing.RechargeTransaction{ID: "t1", AccountID: "a", Amount: decimal.NewFromInt(100), Reference: "r1"}
	if err := store.SaveRecharge(ctx, stale, tx); !errors.Is(err, billing.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if len(store.Recharges()) != 0 {
		t.Fatalf("conflicting recharge was stored")
	}

	fresh := billing.Account{AccountID: "a", Balance: decimal.NewFromInt(108), Status: billing.StatusActive}
	if err := store.SaveRecharge(ctx, fresh, tx); err != nil {
		t.Fatalf("save: %v", err)
	}
	account, _ := store.GetAccount(ctx, "a")
	if !account.Balance.Equal(decimal.NewFromInt(108)) {
		t.Fatalf("balance %s", account.Balance)
	}
}
