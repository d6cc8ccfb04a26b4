package billing

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AccountStatus is the connection state of a prepaid account.
type AccountStatus string

const (
	StatusActive       AccountStatus = "ACTIVE"
	StatusDisconnected AccountStatus = "DISCONNECTED"
)

// Valid reports whether the status is known.
func (s AccountStatus) Valid() bool {
	return s == StatusActive || s == StatusDisconnected
}

// Account is a prepaid consumer account.
type Account struct {
	AccountID    string          `json:"account_id"`
	Name         string          `json:"name"`
	Address      string          `json:"address"`
	Phone        string          `json:"phone"`
	Balance      decimal.Decimal `json:"balance"`
	Status       AccountStatus   `json:"status"`
	TariffPlanID string          `json:"tariff_plan_id"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// PlanID returns the tariff plan, falling back to DefaultPlanID.
func (a Account) PlanID() string {
	if a.TariffPlanID == "" {
		return DefaultPlanID
	}
	return a.TariffPlanID
}

// ContactUpdate lists the profile fields that may change. Nil fields are left untouched.
type ContactUpdate struct {
	Name    *string `json:"name,omitempty"`
	Address *string `json:"address,omitempty"`
	Phone   *string `json:"phone,omitempty"`
}

// ApplyContactUpdate returns a copy of account with the update applied.
func ApplyContactUpdate(account Account, update ContactUpdate) (Account, error) {
	if update.Name == nil && update.Address == nil && update.Phone == nil {
		return account, Validation("contact update has no fields")
	}
	set := func(field string, value *string, dst *string) error {
		if value == nil {
			return nil
		}
		trimmed := strings.TrimSpace(*value)
		if trimmed == "" {
			return Validation("%s must not be empty", field)
		}
		*dst = trimmed
		return nil
	}
	if err := set("name", update.Name, &account.Name); err != nil {
		return Account{}, err
	}
	if err := set("address", update.Address, &account.Address); err != nil {
		return Account{}, err
	}
	if err := set("phone", update.Phone, &account.Phone); err != nil {
		return Account{}, err
	}
	return account, nil
}
