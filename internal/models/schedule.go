package models

import "time"

// Schedule statuses
const (
	ScheduleAvailable = "available"
	ScheduleFull      = "full"
	ScheduleCancelled = "cancelled"
)

// Booking statuses
const (
	BookingConfirmed = "confirmed"
	BookingCancelled = "cancelled"
	BookingCompleted = "completed"
	BookingNoShow    = "no-show"
)

// TimeSlots is the fixed set of bookable times per day.
var TimeSlots = []string{"09:00", "13:00", "17:00"}

// ValidTimeSlot reports whether slot is one of the fixed daily slots.
func ValidTimeSlot(slot string) bool {
	for _, s := range TimeSlots {
		if s == slot {
			return true
		}
	}
	return false
}

// ExamSchedule is one bookable (date, time slot) unit of exam capacity.
// Invariant: booked_count <= capacity, and status is "full" exactly when
// booked_count equals capacity.
type ExamSchedule struct {
	ID          string    `json:"id" db:"id"`
	ExamID      string    `json:"exam_id" db:"exam_id"`
	ExamName    string    `json:"exam_name" db:"exam_name"`
	CourseID    string    `json:"course_id,omitempty" db:"course_id"`
	Date        time.Time `json:"date" db:"date"`
	TimeSlot    string    `json:"time_slot" db:"time_slot"`
	Capacity    int       `json:"capacity" db:"capacity"`
	BookedCount int       `json:"booked_count" db:"booked_count"`
	Status      string    `json:"status" db:"status"`
	CreatedBy   string    `json:"created_by" db:"created_by"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Booking is one reserved seat. An account holds at most one confirmed
// booking per schedule.
type Booking struct {
	ID           string    `json:"id" db:"id"`
	ScheduleID   string    `json:"schedule_id" db:"schedule_id"`
	ExamID       string    `json:"exam_id" db:"exam_id"`
	AccountID    string    `json:"account_id" db:"account_id"`
	AttendeeName string    `json:"attendee_name" db:"attendee_name"`
	Contact      string    `json:"contact" db:"contact"`
	Date         time.Time `json:"date" db:"date"`
	TimeSlot     string    `json:"time_slot" db:"time_slot"`
	Status       string    `json:"status" db:"status"`
	CancelReason string    `json:"cancel_reason,omitempty" db:"cancel_reason"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
