package models

import "time"

// CartItem is one purchasable reference in a user's cart. At most one item
// per (account, item) pair; the unique index on (account_id, item_id)
// enforces it.
type CartItem struct {
	ID          int       `json:"id" db:"id"`
	AccountID   string    `json:"account_id" db:"account_id"`
	ItemKind    string    `json:"item_kind" db:"item_kind"` // course | exam
	ItemID      string    `json:"item_id" db:"item_id"`
	Name        string    `json:"name" db:"name"`
	Price       int64     `json:"price" db:"price"` // snapshotted at add time
	Description string    `json:"description,omitempty" db:"description"`
	Thumbnail   string    `json:"thumbnail,omitempty" db:"thumbnail"`
	AddedAt     time.Time `json:"added_at" db:"added_at"`
}
