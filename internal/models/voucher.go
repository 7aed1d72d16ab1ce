package models

import "time"

// Voucher discount kinds
const (
	DiscountPercentage = "percentage"
	DiscountFixed      = "fixed"
	DiscountFree       = "free"
)

// Voucher is an administrator-created discount rule. Codes are stored
// upper-cased; used_count only ever moves forward, and only through the
// guarded redemption update at checkout.
type Voucher struct {
	ID          int       `json:"id" db:"id"`
	Code        string    `json:"code" db:"code"`
	Kind        string    `json:"kind" db:"kind"`
	Value       int64     `json:"value" db:"value"`
	MinPurchase int64     `json:"min_purchase" db:"min_purchase"`
	MaxDiscount *int64    `json:"max_discount,omitempty" db:"max_discount"` // percentage kind only
	Scope       string    `json:"scope" db:"scope"`
	ExpiresAt   time.Time `json:"expires_at" db:"expires_at"`
	UsageLimit  int       `json:"usage_limit" db:"usage_limit"`
	UsedCount   int       `json:"used_count" db:"used_count"`
	Active      bool      `json:"active" db:"active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
