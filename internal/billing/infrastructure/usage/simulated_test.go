package usage

import (
	"context"
	"testing"
	"time"
)

func TestSimulated_RangeAndDeterminism(t *testing.T) {
	src := NewSimulated(42)
	ctx := context.Background()
	day := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 200; i++ {
		date := day.AddDate(0, 0, i)
		kwh, err := src.DailyUsage(ctx, "acc-1", date)
		if err != nil {
			t.Fatalf("usage: %v", err)
		}
		if kwh.LessThan(minDailyKWh) || kwh.GreaterThan(maxDailyKWh) {
			t.Fatalf("usage out of range: %s", kwh)
		}
		if kwh.Exponent() < -3 {
			t.Fatalf("usage has more than 3 decimals: %s", kwh)
		}
		again, _ := src.DailyUsage(ctx, "acc-1", date.Add(7*time.Hour))
		if !again.Equal(kwh) {
			t.Fatalf("usage not stable within a day: %s vs %s", kwh, again)
		}
	}
}

func TestSimulated_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewSimulated(1).DailyUsage(ctx, "acc-1", time.Now()); err == nil {
		t.Fatalf("expected context error")
	}
}
