package models

import (
	"time"
)

// Ledger entry kinds. The ledger is append-only; an account's balance is
// the sum of its entries, never a stored counter.
const (
	EntryKindTopUp     = "top-up"
	EntryKindPurchase  = "purchase"
	EntryKindReward    = "reward"
	EntryKindDeduction = "deduction"
	EntryKindRefund    = "refund"
)

type LedgerEntry struct {
	ID          int       `json:"id" db:"id"`
	AccountID   string    `json:"account_id" db:"account_id"`
	Amount      int64     `json:"amount" db:"amount"` // tokens, positive = credit
	Kind        string    `json:"kind" db:"kind"`
	Description string    `json:"description" db:"description"`
	OrderID     string    `json:"order_id,omitempty" db:"order_id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
