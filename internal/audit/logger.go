package audit

import (
	"encoding/json"
	"log"
	"time"
)

type AuditEvent struct {
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	OrderID   string    `json:"order_id,omitempty"`
	BookingID string    `json:"booking_id,omitempty"`
	AccountID string    `json:"account_id"`
	Amount    int64     `json:"amount,omitempty"`
	Status    string    `json:"status"`
	Details   any       `json:"details,omitempty"`
}

type AuditLogger struct{}

func NewAuditLogger() *AuditLogger {
	return &AuditLogger{}
}

func (a *AuditLogger) LogCheckout(orderID, accountID string, total int64, voucherCode string) {
	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: "CHECKOUT",
		OrderID:   orderID,
		AccountID: accountID,
		Amount:    total,
		Status:    "SUCCESS",
	}
	if voucherCode != "" {
		event.Details = map[string]string{"voucher": voucherCode}
	}
	a.log(event)
}

func (a *AuditLogger) LogTopUp(accountID string, amount int64, description string) {
	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: "TOP_UP",
		AccountID: accountID,
		Amount:    amount,
		Status:    "SUCCESS",
		Details:   map[string]string{"description": description},
	}
	a.log(event)
}

func (a *AuditLogger) LogBooking(bookingID, scheduleID, accountID, status string) {
	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: "BOOKING",
		BookingID: bookingID,
		AccountID: accountID,
		Status:    status,
		Details:   map[string]string{"schedule_id": scheduleID},
	}
	a.log(event)
}

func (a *AuditLogger) LogCancellation(bookingID, accountID, reason string) {
	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: "BOOKING_CANCELLED",
		BookingID: bookingID,
		AccountID: accountID,
		Status:    "SUCCESS",
		Details:   map[string]string{"reason": reason},
	}
	a.log(event)
}

func (a *AuditLogger) LogError(refID, accountID string, err error) {
	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: "ERROR",
		OrderID:   refID,
		AccountID: accountID,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	}
	a.log(event)
}

func (a *AuditLogger) log(event AuditEvent) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
