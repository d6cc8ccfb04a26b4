package usage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	billing "prepaid-billing/internal/billing/domain"
	"prepaid-billing/internal/billing/infrastructure/postgres"
)

// Postgres reads daily meter totals from meter_daily_usage. A missing row is zero usage.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs the reader.
func NewPostgres(db *sql.DB) (*Postgres, error) {
	if db == nil {
		return nil, errors.New("usage reader: nil db")
	}
	return &Postgres{db: db}, nil
}

// DailyUsage implements the usage source port.
func (p *Postgres) DailyUsage(ctx context.Context, accountID string, billingDate time.Time) (decimal.Decimal, error) {
	var kwh decimal.Decimal
	err := p.db.QueryRowContext(ctx, `
SELECT kwh FROM meter_daily_usage
WHERE account_id = $1 AND usage_date = $2`, accountID, billing.DayStart(billingDate)).Scan(&kwh)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, postgres.Classify("daily usage", err)
	}
	return kwh, nil
}
