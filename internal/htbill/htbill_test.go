package htbill

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	billing "prepaid-billing/internal/billing/domain"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func date(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func sampleInput() Input {
	return Input{
		Current:           Readings{H1: d("1100"), H2: d("2050"), H3: d("3020"), KVAh: d("5200")},
		Previous:          Readings{H1: d("1000"), H2: d("2000"), H3: d("3000"), KVAh: d("5000")},
		MF:                d("2"),
		Rates:             Rates{H1: d("5"), H2: d("4"), H3: d("3"), Subsidy: d("0.5"), FixedCharge: d("100")},
		Load:              d("50"),
		DisconnectionDate: date(2026, time.January, 15),
		AgreementDate:     date(2025, time.June, 10),
		PreviousBillDate:  date(2025, time.November, 10),
		CurrentBillDate:   date(2026, time.January, 14),
	}
}

func TestCalculate_LineItems(t *testing.T) {
	bill, err := Calculate(sampleInput())
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	want := []LineItem{
		{Label: "EC - H1", Amount: d("1000")},
		{Label: "EC - H2", Amount: d("400")},
		{Label: "EC - H3", Amount: d("120")},
		{Label: "EC TOTAL", Amount: d("1520")},
		{Label: "FC (Months=6)", Amount: d("30000")},
		{Label: "Subsidy", Amount: d("200")},
		{Label: "ED @6%", Amount: d("91.2")},
		{Label: "Rental (Months=3)", Amount: d("709.2")},
		{Label: "DPS (65 Days, 3.0%)", Amount: d("48.336")},
		{Label: "TOTAL BILL", Amount: d("32568.736")},
	}
	if len(bill.Items) != len(want) {
		t.Fatalf("expected %d items, got %d", len(want), len(bill.Items))
	}
	for i, item := range bill.Items {
		if item.Label != want[i].Label || !item.Amount.Equal(want[i].Amount) {
			t.Fatalf("item %d: got %s=%s, want %s=%s", i, item.Label, item.Amount, want[i].Label, want[i].Amount)
		}
	}
}

func TestCalculate_TotalIsSumOfHeads(t *testing.T) {
	bill, err := Calculate(sampleInput())
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	sum := bill.ECTotal.Add(bill.FC).Add(bill.Subsidy).Add(bill.ED).Add(bill.Rental).Add(bill.DPS)
	if !sum.Equal(bill.Total) {
		t.Fatalf("total %s != sum %s", bill.Total, sum)
	}
	if !bill.ECH1.Add(bill.ECH2).Add(bill.ECH3).Equal(bill.ECTotal) {
		t.Fatalf("EC total mismatch")
	}
}

func TestCalculate_Deterministic(t *testing.T) {
	first, err := Calculate(sampleInput())
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	second, err := Calculate(sampleInput())
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	for i := range first.Items {
		if first.Items[i].Label != second.Items[i].Label || first.Items[i].Amount.String() != second.Items[i].Amount.String() {
			t.Fatalf("item %d differs between runs", i)
		}
	}
}

func TestDPSRate(t *testing.T) {
	cases := map[int]string{0: "0", 31: "0", 32: "1.5", 65: "3", 96: "4.5"}
	for days, want := range cases {
		if got := DPSRate(days); !got.Equal(d(want)) {
			t.Fatalf("days %d: got %s want %s", days, got, want)
		}
	}
}

func TestMonthDiff_PartialMonthRule(t *testing.T) {
	cases := []struct {
		start, end time.Time
		want       int
	}{
		{date(2026, time.January, 31), date(2026, time.April, 30), 3},
		{date(2026, time.January, 15), date(2026, time.April, 15), 4},
		{date(2026, time.February, 28), date(2026, time.March, 1), 1},
		{date(2024, time.February, 28), date(2024, time.March, 1), 2},
		{date(2025, time.December, 10), date(2026, time.January, 5), 2},
	}
	for _, tc := range cases {
		if got := MonthDiff(tc.start, tc.end); got != tc.want {
			t.Fatalf("MonthDiff(%s, %s) = %d, want %d", tc.start.Format("2006-01-02"), tc.end.Format("2006-01-02"), got, tc.want)
		}
	}
}

func TestFixedChargeMonths_UsesLongerHorizon(t *testing.T) {
	// agreement long expired: the 90 day window decides
	if got := FixedChargeMonths(date(2026, time.January, 15), date(2020, time.January, 1)); got != 4 {
		t.Fatalf("expected 4 months, got %d", got)
	}
	// leap-day agreement expires on Feb 28
	if got := FixedChargeMonths(date(2024, time.March, 31), date(2024, time.February, 29)); got != 11 {
		t.Fatalf("expected 11 months, got %d", got)
	}
}

func TestCalculate_Validation(t *testing.T) {
	mutations := map[string]func(*Input){
		"reading below previous": func(in *Input) { in.Current.H2 = d("1999") },
		"kvah below previous":    func(in *Input) { in.Current.KVAh = d("10") },
		"zero mf":                func(in *Input) { in.MF = decimal.Zero },
		"negative rate":          func(in *Input) { in.Rates.H3 = d("-1") },
		"negative load":          func(in *Input) { in.Load = d("-5") },
		"missing date":           func(in *Input) { in.AgreementDate = time.Time{} },
		"bill dates reversed": func(in *Input) {
			in.PreviousBillDate, in.CurrentBillDate = in.CurrentBillDate, in.PreviousBillDate
		},
	}
	for name, mutate := range mutations {
		in := sampleInput()
		mutate(&in)
		if _, err := Calculate(in); !errors.Is(err, billing.ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}
