package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches every *ValidationError.
	ErrValidation       = errors.New("validation_error")
	ErrNotFound         = errors.New("booking_not_found")
	ErrLineItemNotFound = errors.New("line_item_not_found")
	ErrVersionConflict  = errors.New("booking_version_conflict")
)

// Validation codes.
const (
	CodeInvalidDates       = "invalid_dates"
	CodeInvalidGuestCount  = "invalid_guest_count"
	CodeCapacityExceeded   = "capacity_exceeded"
	CodeInvalidStatus      = "invalid_status"
	CodeInvalidTransition  = "invalid_status_transition"
	CodeBookingCancelled   = "booking_cancelled"
	CodeInvalidLineItem    = "invalid_line_item"
	CodeRoomNotFound       = "room_not_found"
	CodeRoomInactive       = "room_inactive"
	CodeGuestNotFound      = "guest_not_found"
	CodeGuestMismatch      = "guest_mismatch"
	CodeNothingPayable     = "nothing_payable"
	CodeInvalidCreditValue = "invalid_credit_amount"
)

// ValidationError rejects a request before anything is written.
type ValidationError struct {
	Field   string
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Field, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Code)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func Invalid(field, code string, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Code: code, Message: fmt.Sprintf(format, args...)}
}
