package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CheckingAccount is a named cash ledger, unique per (user_id, name).
type CheckingAccount struct {
	ID             int             `json:"id" db:"id"`
	UserID         int             `json:"user_id" db:"user_id"`
	Name           string          `json:"name" db:"name"`
	CurrentBalance decimal.Decimal `json:"current_balance" db:"current_balance"`
}

// CreditCard tracks limit utilization, unique per (user_id, name).
// AvailableLimit is always derived, never stored.
type CreditCard struct {
	ID         int             `json:"id" db:"id"`
	UserID     int             `json:"user_id" db:"user_id"`
	Name       string          `json:"name" db:"name"`
	TotalLimit decimal.Decimal `json:"total_limit" db:"total_limit"`
	UsedLimit  decimal.Decimal `json:"used_limit" db:"used_limit"`
}

// AvailableLimit returns total_limit - used_limit.
func (c CreditCard) AvailableLimit() decimal.Decimal {
	return c.TotalLimit.Sub(c.UsedLimit)
}

// SplitwisePerson is a peer-debt ledger entry. Positive net_balance means the
// peer owes the owner; negative means the owner owes the peer.
type SplitwisePerson struct {
	ID          int             `json:"id" db:"id"`
	UserID      int             `json:"user_id" db:"user_id"`
	Name        string          `json:"name" db:"name"`
	NetBalance  decimal.Decimal `json:"net_balance" db:"net_balance"`
	LastUpdated time.Time       `json:"last_updated" db:"last_updated"`
}
