package usage

import (
	"context"
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	billing "prepaid-billing/internal/billing/domain"
)

var (
	minDailyKWh = decimal.RequireFromString("2.5")
	maxDailyKWh = decimal.RequireFromString("8.0")
)

// Simulated draws daily usage uniformly from [2.5, 8.0] kWh with three decimals.
// The draw depends only on seed, account and day, so re-runs see the same value.
type Simulated struct {
	seed int64
}

// NewSimulated constructs a simulated meter.
func NewSimulated(seed int64) *Simulated {
	return &Simulated{seed: seed}
}

// DailyUsage implements the usage source port.
func (s *Simulated) DailyUsage(ctx context.Context, accountID string, billingDate time.Time) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(accountID))
	_, _ = h.Write([]byte(billing.DayKey(billingDate)))
	r := rand.New(rand.NewSource(s.seed ^ int64(h.Sum64())))

	span := maxDailyKWh.Sub(minDailyKWh)
	kwh := minDailyKWh.Add(span.Mul(decimal.NewFromFloat(r.Float64())))
	return kwh.Round(3), nil
}
