package billing

import "github.com/shopspring/decimal"

// DefaultPlanID is used for accounts without an explicit tariff plan.
const DefaultPlanID = "A1"

// TariffPlan is the rate structure applied to a deduction. It must not change once referenced.
type TariffPlan struct {
	PlanID              string          `json:"plan_id"`
	RatePerKWh          decimal.Decimal `json:"rate_per_kwh"`
	FixedChargeDaily    decimal.Decimal `json:"fixed_charge_daily"`
	SubsidyUnits        decimal.Decimal `json:"subsidy_units"`
	SubsidyRate         decimal.Decimal `json:"subsidy_rate"`
	LowBalanceThreshold decimal.Decimal `json:"low_balance_threshold"`
}

// Validate checks the plan bounds.
func (t TariffPlan) Validate() error {
	if t.PlanID == "" {
		return Validation("tariff plan id is empty")
	}
	if t.RatePerKWh.IsNegative() {
		return Validation("tariff %s: rate_per_kwh must be >= 0", t.PlanID)
	}
	if t.FixedChargeDaily.IsNegative() {
		return Validation("tariff %s: fixed_charge_daily must be >= 0", t.PlanID)
	}
	if t.SubsidyUnits.IsNegative() {
		return Validation("tariff %s: subsidy_units must be >= 0", t.PlanID)
	}
	if t.SubsidyRate.IsNegative() || t.SubsidyRate.GreaterThan(decimal.NewFromInt(1)) {
		return Validation("tariff %s: subsidy_rate must be within [0,1]", t.PlanID)
	}
	return nil
}
