package billing

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Deduction is one account's billing result, committed atomically with its record.
type Deduction struct {
	Record  ConsumptionRecord
	Account Account
}

// AggregateInvoice rolls the period's records of one account into a PENDING invoice.
// Opening balance comes from the chronologically first record, closing balance from the last.
func AggregateInvoice(accountID string, period Period, records []ConsumptionRecord, createdAt time.Time) (Invoice, error) {
	if accountID == "" {
		return Invoice{}, Validation("account id is empty")
	}
	if period.IsZero() {
		return Invoice{}, Validation("billing period required")
	}
	var inPeriod []ConsumptionRecord
	for _, rec := range records {
		if rec.AccountID != accountID {
			return Invoice{}, Validation("record of %s in invoice of %s", rec.AccountID, accountID)
		}
		if period.Contains(rec.BillingDate) {
			inPeriod = append(inPeriod, rec)
		}
	}
	if len(inPeriod) == 0 {
		return Invoice{}, NotFound("no consumption for %s in %s", accountID, period)
	}
	sort.SliceStable(inPeriod, func(i, j int) bool {
		if inPeriod[i].Timestamp.Equal(inPeriod[j].Timestamp) {
			return inPeriod[i].BillingDate.Before(inPeriod[j].BillingDate)
		}
		return inPeriod[i].Timestamp.Before(inPeriod[j].Timestamp)
	})

	inv := Invoice{
		AccountID:         accountID,
		BillingPeriod:     period,
		RecordCount:       len(inPeriod),
		TotalUnits:        decimal.Zero,
		TotalEnergyCharge: decimal.Zero,
		TotalFixedCharge:  decimal.Zero,
		TotalSubsidyUnits: decimal.Zero,
		TotalSubsidy:      decimal.Zero,
		TotalAmount:       decimal.Zero,
		OpeningBalance:    inPeriod[0].BalanceBefore,
		ClosingBalance:    inPeriod[len(inPeriod)-1].BalanceAfter,
		SyncStatus:        SyncPending,
		CreatedAt:         createdAt.UTC(),
	}
	for _, rec := range inPeriod {
		inv.TotalUnits = inv.TotalUnits.Add(rec.KWhConsumed)
		inv.TotalEnergyCharge = inv.TotalEnergyCharge.Add(rec.EnergyCharge)
		inv.TotalFixedCharge = inv.TotalFixedCharge.Add(rec.FixedCharge)
		inv.TotalSubsidyUnits = inv.TotalSubsidyUnits.Add(rec.SubsidyUnitsApplied)
		inv.TotalSubsidy = inv.TotalSubsidy.Add(rec.SubsidyAmount)
		inv.TotalAmount = inv.TotalAmount.Add(rec.TotalDeduction)
	}
	return inv, nil
}

// MarkSynced records a successful settlement submission.
func (inv Invoice) MarkSynced(at time.Time) Invoice {
	inv.SyncStatus = SyncSynced
	inv.SyncError = ""
	inv.SyncAttempts++
	inv.SyncedAt = at.UTC()
	return inv
}

// MarkSyncFailed records a failed settlement submission. FAILED invoices are picked up again on the next sync.
func (inv Invoice) MarkSyncFailed(reason string) Invoice {
	inv.SyncStatus = SyncFailed
	inv.SyncError = reason
	inv.SyncAttempts++
	return inv
}

// NeedsSync reports whether the invoice is selected by settlement sync.
func (inv Invoice) NeedsSync() bool {
	return inv.SyncStatus == SyncPending || inv.SyncStatus == SyncFailed
}
