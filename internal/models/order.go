package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Order statuses
const (
	OrderStatusCompleted = "completed"
	OrderStatusRefunded  = "refunded"
)

// LineItem is a purchase-time snapshot of a cart item. It holds copies,
// not live references, so later catalog edits cannot rewrite history.
type LineItem struct {
	Kind   string `json:"kind"`
	ItemID string `json:"item_id"`
	Name   string `json:"name"`
	Price  int64  `json:"price"`
}

// LineItems is stored as a JSONB column.
type LineItems []LineItem

// Value implements driver.Valuer for LineItems
func (li LineItems) Value() (driver.Value, error) {
	if li == nil {
		return json.Marshal(LineItems{})
	}
	return json.Marshal(li)
}

// Scan implements sql.Scanner for LineItems
func (li *LineItems) Scan(value any) error {
	if value == nil {
		*li = nil
		return nil
	}

	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}

	return json.Unmarshal(b, li)
}

// Order is an immutable purchase record created once by checkout.
type Order struct {
	ID            string     `json:"id" db:"id"`
	Reference     string     `json:"reference" db:"reference"`
	AccountID     string     `json:"account_id" db:"account_id"`
	Items         LineItems  `json:"items" db:"items"`
	Subtotal      int64      `json:"subtotal" db:"subtotal"`
	Discount      int64      `json:"discount" db:"discount"`
	Total         int64      `json:"total" db:"total"`
	PaymentMethod string     `json:"payment_method" db:"payment_method"`
	Status        string     `json:"status" db:"status"`
	VoucherCode   string     `json:"voucher_code,omitempty" db:"voucher_code"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}
