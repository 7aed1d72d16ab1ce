package models

import "time"

// Purchasable item kinds
const (
	ItemKindCourse = "course"
	ItemKindExam   = "exam"
)

// Course is a catalog item (course or exam shell) referenced by carts and
// orders. Price is in whole tokens.
type Course struct {
	ID          string    `json:"id" db:"id"`
	Kind        string    `json:"kind" db:"kind"`
	Name        string    `json:"name" db:"name"`
	Price       int64     `json:"price" db:"price"`
	Description string    `json:"description,omitempty" db:"description"`
	Thumbnail   string    `json:"thumbnail,omitempty" db:"thumbnail"`
	Popularity  int       `json:"popularity" db:"popularity"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
