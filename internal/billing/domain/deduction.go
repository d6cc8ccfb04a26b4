package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places kept for money and kWh. Stores persist exactly this scale.
const Scale int32 = 4

// DeductionInput is the input of CalculateDeduction.
type DeductionInput struct {
	AccountID     string
	BillingDate   time.Time
	Timestamp     time.Time
	BalanceBefore decimal.Decimal
	KWhUsed       decimal.Decimal
	Tariff        TariffPlan
}

// CalculateDeduction turns one usage reading into a consumption record.
// It is pure: subsidised units are billed at rate*(1-subsidy_rate), the remainder at the full rate,
// and the daily fixed charge is added on top. Charges are rounded half away from zero to Scale,
// so balance_after is exactly balance_before minus total_deduction at that scale.
// Callers skip zero usage themselves.
func CalculateDeduction(in DeductionInput) (ConsumptionRecord, error) {
	if in.AccountID == "" {
		return ConsumptionRecord{}, Validation("account id is empty")
	}
	if in.KWhUsed.IsNegative() {
		return ConsumptionRecord{}, Validation("account %s: negative kWh %s", in.AccountID, in.KWhUsed)
	}
	if err := in.Tariff.Validate(); err != nil {
		return ConsumptionRecord{}, err
	}

	rate := in.Tariff.RatePerKWh
	kwh := in.KWhUsed.Round(Scale)
	subsidized := decimal.Min(kwh, in.Tariff.SubsidyUnits.Round(Scale))
	unsubsidized := kwh.Sub(subsidized)

	discounted := subsidized.Mul(rate).Mul(decimal.NewFromInt(1).Sub(in.Tariff.SubsidyRate))
	energyCharge := discounted.Add(unsubsidized.Mul(rate)).Round(Scale)
	subsidyAmount := subsidized.Mul(rate).Mul(in.Tariff.SubsidyRate).Round(Scale)
	fixed := in.Tariff.FixedChargeDaily.Round(Scale)
	total := energyCharge.Add(fixed)

	ts := in.Timestamp
	if ts.IsZero() {
		ts = in.BillingDate
	}

	return ConsumptionRecord{
		AccountID:           in.AccountID,
		BillingDate:         DayStart(in.BillingDate),
		Timestamp:           ts.UTC(),
		KWhConsumed:         kwh,
		SubsidyUnitsApplied: subsidized,
		SubsidyAmount:       subsidyAmount,
		EnergyCharge:        energyCharge,
		FixedCharge:         fixed,
		TotalDeduction:      total,
		BalanceBefore:       in.BalanceBefore,
		BalanceAfter:        in.BalanceBefore.Sub(total),
	}, nil
}
