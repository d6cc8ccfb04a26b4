package application_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	billing "prepaid-billing/internal/billing/domain"
	"prepaid-billing/internal/billing/infrastructure/memory"
)

var billingDay = time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type mapUsage struct {
	kwh  map[string]decimal.Decimal
	errs map[string]error
}

func (u mapUsage) DailyUsage(_ context.Context, accountID string, _ time.Time) (decimal.Decimal, error) {
	if err := u.errs[accountID]; err != nil {
		return decimal.Zero, err
	}
	return u.kwh[accountID], nil
}

type recordingSink struct {
	mu     sync.Mutex
	alerts []billing.Alert
	err    error
}

func (s *recordingSink) Notify(_ context.Context, alert billing.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
	return s.err
}

func (s *recordingSink) types() []billing.AlertType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]billing.AlertType, 0, len(s.alerts))
	for _, a := range s.alerts {
		out = append(out, a.Type)
	}
	return out
}

func noSleep(context.Context, time.Duration) error { return nil }

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func freePlan(id string) billing.TariffPlan {
	return billing.TariffPlan{
		PlanID:              id,
		RatePerKWh:          d("5"),
		FixedChargeDaily:    d("2"),
		SubsidyUnits:        d("2"),
		SubsidyRate:         d("1"),
		LowBalanceThreshold: d("10"),
	}
}

func seededStore(balances map[string]string) *memory.Store {
	store := memory.NewStore()
	store.PutTariff(freePlan("A1"))
	for id, balance := range balances {
		store.PutAccount(billing.Account{AccountID: id, Balance: d(balance), Status: billing.StatusActive, TariffPlanID: "A1"})
	}
	return store
}

var errMeterDown = errors.New("meter head-end unreachable")
