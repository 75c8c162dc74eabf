package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	availabilitydomain "github.com/smallbiznis/guesthouse/internal/availability/domain"
	bookingdomain "github.com/smallbiznis/guesthouse/internal/booking/domain"
	creditdomain "github.com/smallbiznis/guesthouse/internal/credit/domain"
	"github.com/smallbiznis/guesthouse/internal/editlock"
	guestdomain "github.com/smallbiznis/guesthouse/internal/guest/domain"
	pricingdomain "github.com/smallbiznis/guesthouse/internal/pricing/domain"
	roomdomain "github.com/smallbiznis/guesthouse/internal/room/domain"
	txlogdomain "github.com/smallbiznis/guesthouse/internal/txlog/domain"
	"github.com/smallbiznis/guesthouse/pkg/db"
	"github.com/smallbiznis/guesthouse/pkg/db/pagination"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var domainErr *bookingdomain.ValidationError
	if errors.As(err, &domainErr) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: domainErr.Message,
			Errors: []ValidationError{{
				Field:   domainErr.Field,
				Code:    domainErr.Code,
				Message: domainErr.Message,
			}},
		}
	}

	if isValidationError(err) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{{
				Code:    err.Error(),
				Message: "invalid value",
			}},
		}
	}

	switch {
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, availabilitydomain.ErrAvailabilityConflict):
		return http.StatusConflict, errorPayload{
			Type:    "availability_conflict",
			Message: "the room is already booked for these dates",
		}
	case errors.Is(err, bookingdomain.ErrVersionConflict):
		return http.StatusConflict, errorPayload{
			Type:    "version_conflict",
			Message: "the booking was changed by someone else",
		}
	case errors.Is(err, txlogdomain.ErrUndoConflict):
		return http.StatusConflict, errorPayload{
			Type:    "undo_conflict",
			Message: err.Error(),
		}
	case errors.Is(err, txlogdomain.ErrAlreadyUndone):
		return http.StatusConflict, errorPayload{
			Type:    "already_undone",
			Message: "this change can no longer be undone",
		}
	case errors.Is(err, txlogdomain.ErrUndoNotSupported):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "undo_not_supported",
			Message: "this change cannot be undone",
		}
	case errors.Is(err, creditdomain.ErrInsufficientCredit):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "insufficient_credit",
			Message: "not enough credit",
		}
	case errors.Is(err, editlock.ErrLocked):
		return http.StatusLocked, errorPayload{
			Type:    "locked",
			Message: err.Error(),
		}
	case errors.Is(err, editlock.ErrNotHolder):
		return http.StatusConflict, errorPayload{
			Type:    "edit_lock_not_held",
			Message: "the edit lock is held by someone else",
		}
	case isUnavailable(err):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger the same type the client sees.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	if status >= http.StatusInternalServerError {
		code = err.Error()
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, pagination.ErrInvalidPageToken),
		errors.Is(err, availabilitydomain.ErrInvalidRange),
		errors.Is(err, availabilitydomain.ErrInvalidRoom),
		errors.Is(err, creditdomain.ErrInvalidAmount),
		errors.Is(err, creditdomain.ErrInvalidGuest),
		errors.Is(err, editlock.ErrInvalidEditor),
		errors.Is(err, pricingdomain.ErrInvalidAmount):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, bookingdomain.ErrNotFound),
		errors.Is(err, bookingdomain.ErrLineItemNotFound),
		errors.Is(err, roomdomain.ErrNotFound),
		errors.Is(err, guestdomain.ErrNotFound),
		errors.Is(err, txlogdomain.ErrEntryNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isUnavailable(err error) bool {
	if errors.Is(err, ErrServiceUnavailable) {
		return true
	}
	var perr *db.PersistenceError
	return errors.As(err, &perr) && perr.Unavailable
}
