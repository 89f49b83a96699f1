package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction types
const (
	TypeExpense     = "expense"
	TypeIncome      = "income"
	TypeTransfer    = "transfer"
	TypeDebtPayment = "debt_payment"
)

// Transaction represents one row of the expenses table. Rows are write-once;
// only the reconciliation marker is updated after insert.
type Transaction struct {
	ID              int             `json:"id" db:"id"`
	UserID          int             `json:"user_id" db:"user_id"`
	Date            time.Time       `json:"date" db:"date"`
	Amount          decimal.Decimal `json:"amount" db:"amount"`
	Type            string          `json:"type" db:"type"`
	PaymentMethod   string          `json:"payment_method" db:"payment_method"`
	UsedCreditCard  string          `json:"used_credit_card" db:"used_credit_card"`
	PaidTo          string          `json:"paid_to" db:"paid_to"`
	Category        string          `json:"category" db:"category"`
	Subcategory     string          `json:"subcategory" db:"subcategory"`
	IsSplitwise     bool            `json:"is_splitwise" db:"is_splitwise"`
	SplitwisePerson string          `json:"splitwise_person" db:"splitwise_person"`
	Description     string          `json:"description" db:"description"`
	ReconciledAt    *time.Time      `json:"reconciled_at,omitempty" db:"reconciled_at"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// ListFilter narrows ListTransactions results. Zero values mean "no filter".
type ListFilter struct {
	Type string
	From time.Time
	To   time.Time
}
