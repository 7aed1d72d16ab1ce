package services

import (
	"errors"
	"fmt"
	"net/http"
)

// Error taxonomy for the commerce core. Business rule violations are
// ordinary outcomes surfaced to the user; concurrency conflicts are
// retried a bounded number of times before surfacing; storage errors
// are returned verbatim with no partial state left behind.

// ValidationError marks bad input shape, caught before any write.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// BusinessRuleViolation marks a rejected operation: insufficient funds,
// invalid voucher, capacity exceeded, duplicate booking, etc.
type BusinessRuleViolation struct {
	Rule    string
	Message string
}

func (e *BusinessRuleViolation) Error() string { return e.Message }

// ConcurrencyConflict marks an optimistic write that lost its race.
type ConcurrencyConflict struct {
	Resource string
}

func (e *ConcurrencyConflict) Error() string {
	return fmt.Sprintf("concurrent update conflict on %s", e.Resource)
}

// StorageError wraps an I/O or transport failure from the database.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

func validationErrorf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func ruleViolation(rule, format string, args ...any) error {
	return &BusinessRuleViolation{Rule: rule, Message: fmt.Sprintf(format, args...)}
}

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// Rule names used in BusinessRuleViolation, stable for clients.
const (
	RuleInsufficientFunds = "insufficient-funds"
	RuleEmptyCart         = "empty-cart"
	RuleDuplicateItem     = "duplicate-item"
	RuleVoucherInvalid    = "voucher-invalid"
	RuleVoucherExpired    = "voucher-expired"
	RuleVoucherExhausted  = "voucher-exhausted"
	RuleVoucherMinimum    = "voucher-minimum"
	RuleScheduleFull      = "schedule-full"
	RuleDuplicateBooking  = "duplicate-booking"
	RuleScheduleClosed    = "schedule-closed"
	RuleCapacityTooLow    = "capacity-too-low"
	RuleBookingTerminal   = "booking-terminal"
	RuleNotFound          = "not-found"
)

// HTTPStatus maps a core error to the response code its handler should use.
func HTTPStatus(err error) int {
	var ve *ValidationError
	var bv *BusinessRuleViolation
	var cc *ConcurrencyConflict

	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &bv):
		if bv.Rule == RuleNotFound {
			return http.StatusNotFound
		}
		return http.StatusUnprocessableEntity
	case errors.As(err, &cc):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
