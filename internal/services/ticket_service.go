package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"

	"github.com/go-redis/redis/v8"
	"github.com/learnhub/backend/internal/config"
	"github.com/learnhub/backend/internal/models"
	"github.com/skip2/go-qrcode"
)

// TicketService renders a confirmed booking as a QR ticket. The payload
// lives in redis under a one-time code; verification at the exam desk
// consumes it.
type TicketService struct {
	db    *sql.DB
	redis *redis.Client
	cfg   *config.ReservationConfig
}

func NewTicketService(db *sql.DB, redisClient *redis.Client) *TicketService {
	return &TicketService{
		db:    db,
		redis: redisClient,
		cfg:   config.LoadReservationConfig(),
	}
}

// Issue creates a QR ticket for a confirmed booking owned by the account.
// Returns the ticket code and the PNG image, base64-encoded.
func (s *TicketService) Issue(ctx context.Context, accountID, bookingID string) (string, string, error) {
	if s.redis == nil {
		return "", "", storageErr("ticket store", errors.New("redis unavailable"))
	}

	var b models.Booking
	err := s.db.QueryRowContext(ctx, `
		SELECT id, schedule_id, exam_id, account_id, attendee_name, date, time_slot, status
		FROM bookings
		WHERE id = $1 AND account_id = $2`, bookingID, accountID,
	).Scan(&b.ID, &b.ScheduleID, &b.ExamID, &b.AccountID, &b.AttendeeName, &b.Date, &b.TimeSlot, &b.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", ruleViolation(RuleNotFound, "booking not found")
		}
		return "", "", storageErr("booking lookup", err)
	}

	if b.Status != models.BookingConfirmed {
		return "", "", ruleViolation(RuleBookingTerminal, "only confirmed bookings can be ticketed")
	}

	payload := map[string]any{
		"bookingId": b.ID,
		"examId":    b.ExamID,
		"attendee":  b.AttendeeName,
		"date":      b.Date.Format("2006-01-02"),
		"timeSlot":  b.TimeSlot,
		"nonce":     generateNonce(),
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", "", err
	}

	code := base64.URLEncoding.EncodeToString(jsonData)

	key := fmt.Sprintf("ticket:%s", code)
	if err := s.redis.Set(ctx, key, jsonData, s.cfg.TicketTTL).Err(); err != nil {
		return "", "", storageErr("ticket store", err)
	}

	qr, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		return "", "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", "", err
	}

	return code, base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Verify consumes a ticket code and returns its payload. A code can be
// verified exactly once.
func (s *TicketService) Verify(ctx context.Context, code string) (map[string]any, error) {
	if s.redis == nil {
		return nil, storageErr("ticket store", errors.New("redis unavailable"))
	}

	key := fmt.Sprintf("ticket:%s", code)

	data, err := s.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ruleViolation(RuleNotFound, "invalid or expired ticket")
	}
	if err != nil {
		return nil, storageErr("ticket read", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}

	s.redis.Del(ctx, key)

	return payload, nil
}

func generateNonce() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}
