package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Enrollment statuses
const (
	EnrollmentActive    = "active"
	EnrollmentCompleted = "completed"
)

// LessonMap tracks completed lessons per enrollment, stored as JSONB.
type LessonMap map[string]bool

// Value implements driver.Valuer for LessonMap
func (m LessonMap) Value() (driver.Value, error) {
	if m == nil {
		return json.Marshal(LessonMap{})
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for LessonMap
func (m *LessonMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}

	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}

	return json.Unmarshal(b, m)
}

// Enrollment grants an account ongoing access to a course. Keyed by
// (account_id, course_id), so a repeated purchase overwrites instead of
// duplicating.
type Enrollment struct {
	AccountID        string    `json:"account_id" db:"account_id"`
	CourseID         string    `json:"course_id" db:"course_id"`
	Status           string    `json:"status" db:"status"`
	Progress         int       `json:"progress" db:"progress"` // percent
	CompletedLessons LessonMap `json:"completed_lessons" db:"completed_lessons"`
	EnrolledAt       time.Time `json:"enrolled_at" db:"enrolled_at"`
}
