// Package htbill computes high-tension period bills from meter readings.
package htbill

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	billing "prepaid-billing/internal/billing/domain"
)

var (
	edRate      = decimal.RequireFromString("0.06")
	rentalRate  = decimal.RequireFromString("0.0075")
	dpsSlabRate = decimal.RequireFromString("1.5")
	hundred     = decimal.NewFromInt(100)
)

const (
	dpsSlabDays        = 32
	postDisconnectDays = 90
	agreementTermYears = 1
)

// Readings are cumulative meter registers for the three time-of-day slots and kVAh.
type Readings struct {
	H1   decimal.Decimal `json:"h1"`
	H2   decimal.Decimal `json:"h2"`
	H3   decimal.Decimal `json:"h3"`
	KVAh decimal.Decimal `json:"kvah"`
}

// Rates are per-unit charges.
type Rates struct {
	H1          decimal.Decimal `json:"h1"`
	H2          decimal.Decimal `json:"h2"`
	H3          decimal.Decimal `json:"h3"`
	Subsidy     decimal.Decimal `json:"subsidy"`
	FixedCharge decimal.Decimal `json:"fixed_charge"`
}

// Input bundles everything a period bill depends on.
type Input struct {
	Current           Readings
	Previous          Readings
	MF                decimal.Decimal
	Rates             Rates
	Load              decimal.Decimal
	DisconnectionDate time.Time
	AgreementDate     time.Time
	PreviousBillDate  time.Time
	CurrentBillDate   time.Time
}

// LineItem is one row of the bill.
type LineItem struct {
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
}

// Bill is the itemized result. Items are in display order and end with the total.
type Bill struct {
	Items      []LineItem      `json:"items"`
	ECH1       decimal.Decimal `json:"ec_h1"`
	ECH2       decimal.Decimal `json:"ec_h2"`
	ECH3       decimal.Decimal `json:"ec_h3"`
	ECTotal    decimal.Decimal `json:"ec_total"`
	FC         decimal.Decimal `json:"fc"`
	FCMonths   int             `json:"fc_months"`
	Subsidy    decimal.Decimal `json:"subsidy"`
	ED         decimal.Decimal `json:"ed"`
	Rental     decimal.Decimal `json:"rental"`
	BillMonths int             `json:"bill_months"`
	DPS        decimal.Decimal `json:"dps"`
	DPSDays    int             `json:"dps_days"`
	DPSRate    decimal.Decimal `json:"dps_rate"`
	Total      decimal.Decimal `json:"total"`
}

// Calculate computes the bill. It has no side effects and returns identical output for identical input.
func Calculate(in Input) (Bill, error) {
	if err := in.Validate(); err != nil {
		return Bill{}, err
	}

	var b Bill
	b.ECH1 = slotCharge(in.Current.H1, in.Previous.H1, in.MF, in.Rates.H1)
	b.ECH2 = slotCharge(in.Current.H2, in.Previous.H2, in.MF, in.Rates.H2)
	b.ECH3 = slotCharge(in.Current.H3, in.Previous.H3, in.MF, in.Rates.H3)
	b.ECTotal = b.ECH1.Add(b.ECH2).Add(b.ECH3)

	b.FCMonths = FixedChargeMonths(in.DisconnectionDate, in.AgreementDate)
	b.FC = in.Load.Mul(in.Rates.FixedCharge).Mul(decimal.NewFromInt(int64(b.FCMonths)))

	b.Subsidy = slotCharge(in.Current.KVAh, in.Previous.KVAh, in.MF, in.Rates.Subsidy)

	b.ED = b.ECTotal.Mul(edRate)

	b.BillMonths = MonthDiff(in.PreviousBillDate, in.CurrentBillDate)
	b.Rental = rentalRate.Mul(b.ECTotal.Add(b.FC)).Mul(decimal.NewFromInt(int64(b.BillMonths)))

	b.DPSDays = DaysBetween(in.PreviousBillDate, in.CurrentBillDate)
	b.DPSRate = DPSRate(b.DPSDays)
	b.DPS = b.ECTotal.Add(b.ED).Mul(b.DPSRate).Div(hundred)

	b.Total = b.ECTotal.Add(b.FC).Add(b.Subsidy).Add(b.ED).Add(b.Rental).Add(b.DPS)

	b.Items = []LineItem{
		{Label: "EC - H1", Amount: b.ECH1},
		{Label: "EC - H2", Amount: b.ECH2},
		{Label: "EC - H3", Amount: b.ECH3},
		{Label: "EC TOTAL", Amount: b.ECTotal},
		{Label: fmt.Sprintf("FC (Months=%d)", b.FCMonths), Amount: b.FC},
		{Label: "Subsidy", Amount: b.Subsidy},
		{Label: "ED @6%", Amount: b.ED},
		{Label: fmt.Sprintf("Rental (Months=%d)", b.BillMonths), Amount: b.Rental},
		{Label: fmt.Sprintf("DPS (%d Days, %s%%)", b.DPSDays, b.DPSRate.StringFixed(1)), Amount: b.DPS},
		{Label: "TOTAL BILL", Amount: b.Total},
	}
	return b, nil
}

// Validate rejects inputs the calculation is undefined for.
func (in Input) Validate() error {
	readings := []struct {
		name      string
		cur, prev decimal.Decimal
	}{
		{"H1", in.Current.H1, in.Previous.H1},
		{"H2", in.Current.H2, in.Previous.H2},
		{"H3", in.Current.H3, in.Previous.H3},
		{"kVAh", in.Current.KVAh, in.Previous.KVAh},
	}
	for _, r := range readings {
		if r.prev.IsNegative() {
			return billing.Validation("previous %s reading must be >= 0", r.name)
		}
		if r.cur.LessThan(r.prev) {
			return billing.Validation("current %s reading %s is below previous %s", r.name, r.cur, r.prev)
		}
	}
	if !in.MF.IsPositive() {
		return billing.Validation("multiplying factor must be > 0")
	}
	rates := []struct {
		name  string
		value decimal.Decimal
	}{
		{"H1 rate", in.Rates.H1},
		{"H2 rate", in.Rates.H2},
		{"H3 rate", in.Rates.H3},
		{"subsidy rate", in.Rates.Subsidy},
		{"fixed charge rate", in.Rates.FixedCharge},
		{"load", in.Load},
	}
	for _, r := range rates {
		if r.value.IsNegative() {
			return billing.Validation("%s must be >= 0", r.name)
		}
	}
	dates := []struct {
		name  string
		value time.Time
	}{
		{"disconnection date", in.DisconnectionDate},
		{"agreement date", in.AgreementDate},
		{"previous bill date", in.PreviousBillDate},
		{"current bill date", in.CurrentBillDate},
	}
	for _, d := range dates {
		if d.value.IsZero() {
			return billing.Validation("%s required", d.name)
		}
	}
	if dateOnly(in.CurrentBillDate).Before(dateOnly(in.PreviousBillDate)) {
		return billing.Validation("current bill date is before previous bill date")
	}
	return nil
}

func slotCharge(current, previous, mf, rate decimal.Decimal) decimal.Decimal {
	return current.Sub(previous).Mul(mf).Mul(rate)
}

// MonthDiff counts months from start to end. When start is the last day of its month only
// whole months count; otherwise the partial month adds one.
func MonthDiff(start, end time.Time) int {
	start, end = dateOnly(start), dateOnly(end)
	months := (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month())
	if !isLastDayOfMonth(start) {
		months++
	}
	return months
}

// FixedChargeMonths is the larger of the months to agreement expiry and the months to
// ninety days after disconnection, both counted from the disconnection date.
func FixedChargeMonths(disconnection, agreement time.Time) int {
	toExpiry := MonthDiff(disconnection, addYears(agreement, agreementTermYears))
	toGrace := MonthDiff(disconnection, dateOnly(disconnection).AddDate(0, 0, postDisconnectDays))
	if toExpiry > toGrace {
		return toExpiry
	}
	return toGrace
}

// DPSRate is the surcharge percentage: 1.5 for every full 32 days.
func DPSRate(days int) decimal.Decimal {
	if days < 0 {
		return decimal.Zero
	}
	slabs := days / dpsSlabDays
	return dpsSlabRate.Mul(decimal.NewFromInt(int64(slabs)))
}

// DaysBetween counts calendar days from start to end.
func DaysBetween(start, end time.Time) int {
	return int(dateOnly(end).Sub(dateOnly(start)).Hours() / 24)
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func isLastDayOfMonth(t time.Time) bool {
	return t.AddDate(0, 0, 1).Month() != t.Month()
}

// addYears keeps the day of month, falling back to Feb 28 for Feb 29 in a non-leap year.
func addYears(t time.Time, years int) time.Time {
	t = dateOnly(t)
	out := time.Date(t.Year()+years, t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	if out.Month() != t.Month() {
		out = time.Date(t.Year()+years, t.Month()+1, 0, 0, 0, 0, 0, time.UTC)
	}
	return out
}
