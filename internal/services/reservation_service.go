package services

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/learnhub/backend/internal/audit"
	"github.com/learnhub/backend/internal/config"
	"github.com/learnhub/backend/internal/models"
	"github.com/lib/pq"
)

// ReservationService owns exam seat capacity. Every booking and
// cancellation goes through a transaction that locks the schedule row,
// and the seat-count increment is a guarded single-statement update: the
// capacity check and the write cannot be separated, so two bookings
// racing for the last seat resolve to one success and one rejection.
type ReservationService struct {
	db    *sql.DB
	cfg   *config.ReservationConfig
	audit *audit.AuditLogger
}

func NewReservationService(db *sql.DB) *ReservationService {
	return &ReservationService{
		db:    db,
		cfg:   config.LoadReservationConfig(),
		audit: audit.NewAuditLogger(),
	}
}

// ScheduleInput carries the fields for creating or updating a slot.
type ScheduleInput struct {
	ExamID   string
	ExamName string
	CourseID string
	Date     time.Time
	TimeSlot string
	Capacity int
}

// ListAvailable returns open schedules for an exam from today onward.
func (s *ReservationService) ListAvailable(ctx context.Context, examID string) ([]models.ExamSchedule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, exam_id, exam_name, COALESCE(course_id, ''), date, time_slot, capacity, booked_count, status, created_by, created_at
		FROM exam_schedules
		WHERE exam_id = $1 AND status = $2 AND date >= CURRENT_DATE
		ORDER BY date, time_slot`, examID, models.ScheduleAvailable)
	if err != nil {
		return nil, storageErr("schedule query", err)
	}
	defer rows.Close()

	schedules := []models.ExamSchedule{}
	for rows.Next() {
		var sc models.ExamSchedule
		if err := rows.Scan(&sc.ID, &sc.ExamID, &sc.ExamName, &sc.CourseID, &sc.Date, &sc.TimeSlot,
			&sc.Capacity, &sc.BookedCount, &sc.Status, &sc.CreatedBy, &sc.CreatedAt); err != nil {
			return nil, storageErr("schedule scan", err)
		}
		schedules = append(schedules, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("schedule rows", err)
	}

	return schedules, nil
}

// Book reserves one seat. Conflicts with concurrent writers are retried
// a bounded number of times before surfacing.
func (s *ReservationService) Book(ctx context.Context, accountID, scheduleID, attendeeName, contact string) (*models.Booking, error) {
	var lastErr error
	for attempt := 0; attempt < s.cfg.BookingRetryAttempts; attempt++ {
		booking, err := s.bookOnce(ctx, accountID, scheduleID, attendeeName, contact)
		if err == nil {
			s.audit.LogBooking(booking.ID, scheduleID, accountID, models.BookingConfirmed)
			return booking, nil
		}

		var cc *ConcurrencyConflict
		if !errors.As(err, &cc) {
			return nil, err
		}
		lastErr = err
		log.Printf("[RESERVATION] Booking conflict on %s, attempt %d", scheduleID, attempt+1)
	}
	return nil, lastErr
}

func (s *ReservationService) bookOnce(ctx context.Context, accountID, scheduleID, attendeeName, contact string) (*models.Booking, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("begin booking", err)
	}
	defer tx.Rollback()

	var sc models.ExamSchedule
	err = tx.QueryRow(`
		SELECT id, exam_id, exam_name, date, time_slot, capacity, booked_count, status
		FROM exam_schedules
		WHERE id = $1
		FOR UPDATE`, scheduleID,
	).Scan(&sc.ID, &sc.ExamID, &sc.ExamName, &sc.Date, &sc.TimeSlot, &sc.Capacity, &sc.BookedCount, &sc.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ruleViolation(RuleNotFound, "schedule not found")
		}
		return nil, storageErr("schedule lock", err)
	}

	if sc.Status == models.ScheduleCancelled {
		return nil, ruleViolation(RuleScheduleClosed, "schedule has been cancelled")
	}
	if sc.Date.Before(time.Now().Truncate(24 * time.Hour)) {
		return nil, ruleViolation(RuleScheduleClosed, "schedule date has passed")
	}
	if sc.BookedCount >= sc.Capacity {
		return nil, ruleViolation(RuleScheduleFull, "no seats left for this slot")
	}

	var existing int
	err = tx.QueryRow(`
		SELECT COUNT(*) FROM bookings
		WHERE schedule_id = $1 AND account_id = $2 AND status = $3`,
		scheduleID, accountID, models.BookingConfirmed).Scan(&existing)
	if err != nil {
		return nil, storageErr("booking lookup", err)
	}
	if existing > 0 {
		return nil, ruleViolation(RuleDuplicateBooking, "account already holds a seat for this slot")
	}

	booking := &models.Booking{
		ID:           uuid.NewString(),
		ScheduleID:   scheduleID,
		ExamID:       sc.ExamID,
		AccountID:    accountID,
		AttendeeName: attendeeName,
		Contact:      contact,
		Date:         sc.Date,
		TimeSlot:     sc.TimeSlot,
		Status:       models.BookingConfirmed,
	}

	err = tx.QueryRow(`
		INSERT INTO bookings (id, schedule_id, exam_id, account_id, attendee_name, contact, date, time_slot, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		RETURNING created_at`,
		booking.ID, booking.ScheduleID, booking.ExamID, booking.AccountID,
		booking.AttendeeName, booking.Contact, booking.Date, booking.TimeSlot, booking.Status,
	).Scan(&booking.CreatedAt)
	if err != nil {
		return nil, storageErr("booking insert", err)
	}

	// Capacity check and increment as one statement; the WHERE guard is
	// what keeps booked_count <= capacity under concurrency.
	result, err := tx.Exec(`
		UPDATE exam_schedules
		SET booked_count = booked_count + 1,
		    status = CASE WHEN booked_count + 1 >= capacity THEN $2 ELSE $3 END
		WHERE id = $1 AND booked_count < capacity AND status <> $4`,
		scheduleID, models.ScheduleFull, models.ScheduleAvailable, models.ScheduleCancelled)
	if err != nil {
		return nil, storageErr("seat increment", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, storageErr("seat increment", err)
	}
	if rowsAffected == 0 {
		return nil, &ConcurrencyConflict{Resource: "exam_schedules/" + scheduleID}
	}

	if err := tx.Commit(); err != nil {
		return nil, storageErr("commit booking", err)
	}

	return booking, nil
}

// Cancel releases a confirmed seat. Already-cancelled bookings are a
// no-op; completed and no-show are terminal.
func (s *ReservationService) Cancel(ctx context.Context, accountID, bookingID, reason string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin cancel", err)
	}
	defer tx.Rollback()

	var scheduleID, status, owner string
	err = tx.QueryRow(`
		SELECT schedule_id, status, account_id FROM bookings
		WHERE id = $1
		FOR UPDATE`, bookingID).Scan(&scheduleID, &status, &owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ruleViolation(RuleNotFound, "booking not found")
		}
		return storageErr("booking lock", err)
	}

	if accountID != "" && owner != accountID {
		return ruleViolation(RuleNotFound, "booking not found")
	}

	switch status {
	case models.BookingCancelled:
		return nil // idempotent
	case models.BookingCompleted, models.BookingNoShow:
		return ruleViolation(RuleBookingTerminal, "booking is already %s", status)
	}

	if _, err := tx.Exec(`
		UPDATE bookings SET status = $2, cancel_reason = $3 WHERE id = $1`,
		bookingID, models.BookingCancelled, reason); err != nil {
		return storageErr("booking update", err)
	}

	if _, err := tx.Exec(`
		UPDATE exam_schedules
		SET booked_count = GREATEST(booked_count - 1, 0),
		    status = CASE WHEN status = $2 THEN $3 ELSE status END
		WHERE id = $1`,
		scheduleID, models.ScheduleFull, models.ScheduleAvailable); err != nil {
		return storageErr("seat release", err)
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit cancel", err)
	}

	s.audit.LogCancellation(bookingID, owner, reason)
	return nil
}

// MarkCompleted closes out a booking after the exam took place. The slot
// already happened, so no seat is released.
func (s *ReservationService) MarkCompleted(ctx context.Context, bookingID string) error {
	return s.markTerminal(ctx, bookingID, models.BookingCompleted)
}

// MarkNoShow records a missed appointment. Terminal, no seat release.
func (s *ReservationService) MarkNoShow(ctx context.Context, bookingID string) error {
	return s.markTerminal(ctx, bookingID, models.BookingNoShow)
}

func (s *ReservationService) markTerminal(ctx context.Context, bookingID, status string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE bookings SET status = $2 WHERE id = $1 AND status = $3`,
		bookingID, status, models.BookingConfirmed)
	if err != nil {
		return storageErr("booking update", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return storageErr("booking update", err)
	}
	if rowsAffected == 0 {
		var current string
		err := s.db.QueryRowContext(ctx, `SELECT status FROM bookings WHERE id = $1`, bookingID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return ruleViolation(RuleNotFound, "booking not found")
		}
		if err != nil {
			return storageErr("booking lookup", err)
		}
		return ruleViolation(RuleBookingTerminal, "booking is already %s", current)
	}
	return nil
}

// ListBookings returns the account's bookings, newest first.
func (s *ReservationService) ListBookings(ctx context.Context, accountID string) ([]models.Booking, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, schedule_id, exam_id, account_id, attendee_name, contact, date, time_slot, status, COALESCE(cancel_reason, ''), created_at
		FROM bookings
		WHERE account_id = $1
		ORDER BY created_at DESC`, accountID)
	if err != nil {
		return nil, storageErr("booking query", err)
	}
	defer rows.Close()

	bookings := []models.Booking{}
	for rows.Next() {
		var b models.Booking
		if err := rows.Scan(&b.ID, &b.ScheduleID, &b.ExamID, &b.AccountID, &b.AttendeeName,
			&b.Contact, &b.Date, &b.TimeSlot, &b.Status, &b.CancelReason, &b.CreatedAt); err != nil {
			return nil, storageErr("booking scan", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("booking rows", err)
	}

	return bookings, nil
}

// CreateSchedule stores one bookable slot. Pure creation, no capacity
// logic beyond input validation.
func (s *ReservationService) CreateSchedule(ctx context.Context, in ScheduleInput, createdBy string) (*models.ExamSchedule, error) {
	if !models.ValidTimeSlot(in.TimeSlot) {
		return nil, validationErrorf("invalid time slot %q", in.TimeSlot)
	}
	if in.Capacity <= 0 {
		return nil, validationErrorf("capacity must be positive")
	}

	sc := &models.ExamSchedule{
		ID:        uuid.NewString(),
		ExamID:    in.ExamID,
		ExamName:  in.ExamName,
		CourseID:  in.CourseID,
		Date:      in.Date,
		TimeSlot:  in.TimeSlot,
		Capacity:  in.Capacity,
		Status:    models.ScheduleAvailable,
		CreatedBy: createdBy,
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO exam_schedules (id, exam_id, exam_name, course_id, date, time_slot, capacity, booked_count, status, created_by, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, 0, $8, $9, NOW())
		RETURNING created_at`,
		sc.ID, sc.ExamID, sc.ExamName, sc.CourseID, sc.Date, sc.TimeSlot, sc.Capacity, sc.Status, sc.CreatedBy,
	).Scan(&sc.CreatedAt)
	if err != nil {
		return nil, storageErr("schedule insert", err)
	}

	return sc, nil
}

// BulkCreateSchedules fans out one slot per (day x time slot) for the
// next daysAhead days, starting tomorrow.
func (s *ReservationService) BulkCreateSchedules(ctx context.Context, in ScheduleInput, daysAhead, slotsPerDay int, createdBy string) ([]models.ExamSchedule, error) {
	if daysAhead <= 0 || daysAhead > s.cfg.MaxDaysAhead {
		return nil, validationErrorf("daysAhead must be between 1 and %d", s.cfg.MaxDaysAhead)
	}
	if slotsPerDay <= 0 || slotsPerDay > len(models.TimeSlots) {
		return nil, validationErrorf("slotsPerDay must be between 1 and %d", len(models.TimeSlots))
	}
	if in.Capacity <= 0 {
		return nil, validationErrorf("capacity must be positive")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("begin bulk create", err)
	}
	defer tx.Rollback()

	start := time.Now().AddDate(0, 0, 1)
	schedules := make([]models.ExamSchedule, 0, daysAhead*slotsPerDay)
	for day := 0; day < daysAhead; day++ {
		date := start.AddDate(0, 0, day)
		for _, slot := range models.TimeSlots[:slotsPerDay] {
			sc := models.ExamSchedule{
				ID:        uuid.NewString(),
				ExamID:    in.ExamID,
				ExamName:  in.ExamName,
				CourseID:  in.CourseID,
				Date:      date,
				TimeSlot:  slot,
				Capacity:  in.Capacity,
				Status:    models.ScheduleAvailable,
				CreatedBy: createdBy,
			}
			err := tx.QueryRow(`
				INSERT INTO exam_schedules (id, exam_id, exam_name, course_id, date, time_slot, capacity, booked_count, status, created_by, created_at)
				VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, 0, $8, $9, NOW())
				RETURNING created_at`,
				sc.ID, sc.ExamID, sc.ExamName, sc.CourseID, sc.Date, sc.TimeSlot, sc.Capacity, sc.Status, sc.CreatedBy,
			).Scan(&sc.CreatedAt)
			if err != nil {
				return nil, storageErr("schedule insert", err)
			}
			schedules = append(schedules, sc)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, storageErr("commit bulk create", err)
	}

	return schedules, nil
}

// UpdateSchedule changes date, slot or capacity. Capacity may not be
// lowered below the seats already booked.
func (s *ReservationService) UpdateSchedule(ctx context.Context, scheduleID string, date time.Time, timeSlot string, capacity int) error {
	if !models.ValidTimeSlot(timeSlot) {
		return validationErrorf("invalid time slot %q", timeSlot)
	}
	if capacity <= 0 {
		return validationErrorf("capacity must be positive")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin update", err)
	}
	defer tx.Rollback()

	var bookedCount int
	err = tx.QueryRow(`
		SELECT booked_count FROM exam_schedules WHERE id = $1 FOR UPDATE`,
		scheduleID).Scan(&bookedCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ruleViolation(RuleNotFound, "schedule not found")
		}
		return storageErr("schedule lock", err)
	}

	if capacity < bookedCount {
		return ruleViolation(RuleCapacityTooLow,
			"capacity %d is below the %d seats already booked", capacity, bookedCount)
	}

	if _, err := tx.Exec(`
		UPDATE exam_schedules
		SET date = $2, time_slot = $3, capacity = $4,
		    status = CASE
		        WHEN status = $5 THEN status
		        WHEN booked_count >= $4 THEN $6
		        ELSE $7
		    END
		WHERE id = $1`,
		scheduleID, date, timeSlot, capacity,
		models.ScheduleCancelled, models.ScheduleFull, models.ScheduleAvailable); err != nil {
		return storageErr("schedule update", err)
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit update", err)
	}

	return nil
}

// DeleteSchedule removes one slot and cancels its active bookings in the
// same transaction, so no booking outlives its schedule.
func (s *ReservationService) DeleteSchedule(ctx context.Context, scheduleID string) error {
	return s.BulkDeleteSchedules(ctx, []string{scheduleID})
}

// BulkDeleteSchedules removes slots and cascade-cancels their bookings.
func (s *ReservationService) BulkDeleteSchedules(ctx context.Context, scheduleIDs []string) error {
	if len(scheduleIDs) == 0 {
		return validationErrorf("no schedule ids supplied")
	}
	if len(scheduleIDs) > s.cfg.MaxBulkDelete {
		return validationErrorf("at most %d schedules per bulk delete", s.cfg.MaxBulkDelete)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin delete", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		UPDATE bookings
		SET status = $2, cancel_reason = $3
		WHERE schedule_id = ANY($1) AND status = $4`,
		pq.Array(scheduleIDs), models.BookingCancelled, "schedule removed", models.BookingConfirmed); err != nil {
		return storageErr("booking cascade", err)
	}

	result, err := tx.Exec(`DELETE FROM exam_schedules WHERE id = ANY($1)`, pq.Array(scheduleIDs))
	if err != nil {
		return storageErr("schedule delete", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return storageErr("schedule delete", err)
	}
	if rowsAffected == 0 {
		return ruleViolation(RuleNotFound, "no matching schedules")
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit delete", err)
	}

	return nil
}
