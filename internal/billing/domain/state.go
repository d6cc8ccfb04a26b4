package billing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AlertType names a notification event.
type AlertType string

const (
	AlertLowBalance   AlertType = "LOW_BALANCE"
	AlertDisconnected AlertType = "DISCONNECTED"
	AlertReconnected  AlertType = "RECONNECTED"
)

// Alert is produced by state transitions and handed to a notification sink.
type Alert struct {
	Type       AlertType       `json:"type"`
	AccountID  string          `json:"account_id"`
	Balance    decimal.Decimal `json:"balance"`
	Threshold  decimal.Decimal `json:"threshold,omitempty"`
	Message    string          `json:"message"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// ApplyDeduction moves account to the record's closing balance.
// The balance is kept as computed; a negative value is arrears and is never clamped.
// ACTIVE becomes DISCONNECTED when the balance reaches zero or below.
func ApplyDeduction(account Account, record ConsumptionRecord, tariff TariffPlan) (Account, []Alert, error) {
	if account.Status == StatusDisconnected {
		return account, nil, ErrAccountDisconnected
	}
	if record.AccountID != account.AccountID {
		return account, nil, Validation("record for %s applied to account %s", record.AccountID, account.AccountID)
	}
	if !record.BalanceBefore.Equal(account.Balance) {
		return account, nil, &Error{Kind: KindConflict, Message: fmt.Sprintf("account %s balance moved since deduction was calculated", account.AccountID)}
	}

	next := account
	next.Balance = record.BalanceAfter
	next.UpdatedAt = record.Timestamp

	var alerts []Alert
	if next.Balance.LessThanOrEqual(tariff.LowBalanceThreshold) {
		alerts = append(alerts, Alert{
			Type:       AlertLowBalance,
			AccountID:  account.AccountID,
			Balance:    next.Balance,
			Threshold:  tariff.LowBalanceThreshold,
			Message:    fmt.Sprintf("Low balance! %s", next.Balance.StringFixed(2)),
			OccurredAt: record.Timestamp,
		})
	}
	if next.Balance.Sign() <= 0 {
		next.Status = StatusDisconnected
		alerts = append(alerts, Alert{
			Type:       AlertDisconnected,
			AccountID:  account.AccountID,
			Balance:    next.Balance,
			Message:    fmt.Sprintf("Account %s disconnected, balance %s", account.AccountID, next.Balance.StringFixed(2)),
			OccurredAt: record.Timestamp,
		})
	}
	return next, alerts, nil
}

// ApplyRecharge credits amount to account. A DISCONNECTED account is reconnected once the balance is positive.
func ApplyRecharge(account Account, amount decimal.Decimal, at time.Time) (Account, []Alert, error) {
	if !amount.IsPositive() {
		return account, nil, Validation("recharge amount must be > 0")
	}
	if !amount.Equal(amount.Round(Scale)) {
		return account, nil, Validation("recharge amount %s has more than %d decimal places", amount, Scale)
	}
	next := account
	next.Balance = account.Balance.Add(amount)
	next.UpdatedAt = at.UTC()

	var alerts []Alert
	if account.Status == StatusDisconnected && next.Balance.IsPositive() {
		next.Status = StatusActive
		alerts = append(alerts, Alert{
			Type:       AlertReconnected,
			AccountID:  account.AccountID,
			Balance:    next.Balance,
			Message:    fmt.Sprintf("Account %s reconnected after recharge, balance %s", account.AccountID, next.Balance.StringFixed(2)),
			OccurredAt: at.UTC(),
		})
	}
	return next, alerts, nil
}
