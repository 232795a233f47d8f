package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	billingcycledomain "github.com/smallbiznis/portbilling/internal/billingcycle/domain"
	exchangeratedomain "github.com/smallbiznis/portbilling/internal/exchangerate/domain"
	invoicedomain "github.com/smallbiznis/portbilling/internal/invoice/domain"
	"github.com/smallbiznis/portbilling/internal/keylock"
	ratingdomain "github.com/smallbiznis/portbilling/internal/rating/domain"
	tariffdomain "github.com/smallbiznis/portbilling/internal/tariff/domain"
	taxdomain "github.com/smallbiznis/portbilling/internal/tax/domain"
	usagedomain "github.com/smallbiznis/portbilling/internal/usage/domain"
	"github.com/smallbiznis/portbilling/pkg/money"
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
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// Sentinels are matched in order; the first hit names the error code.
var (
	validationSentinels = []error{
		ErrInvalidRequest,
		billingcycledomain.ErrInvalidDate,
		billingcycledomain.ErrInvalidCutoffs,
		money.ErrInvalidCurrency,
		usagedomain.ErrInvalidCustomer,
		usagedomain.ErrInvalidVessel,
		usagedomain.ErrInvalidCurrency,
		usagedomain.ErrInvalidDepartureAt,
		usagedomain.ErrInvalidReturnAt,
		usagedomain.ErrInvalidRange,
		tariffdomain.ErrInvalidServiceCode,
		tariffdomain.ErrInvalidServiceType,
		tariffdomain.ErrInvalidUnitPrice,
		tariffdomain.ErrInvalidValidFrom,
		tariffdomain.ErrInvalidVatCode,
		taxdomain.ErrInvalidVatCode,
		taxdomain.ErrInvalidVatRate,
		exchangeratedomain.ErrInvalidCurrency,
		exchangeratedomain.ErrInvalidRate,
		exchangeratedomain.ErrInvalidRateDate,
		invoicedomain.ErrInvalidInvoiceID,
		invoicedomain.ErrInvalidInvoiceNumber,
		invoicedomain.ErrInvalidStatus,
		invoicedomain.ErrInvalidDraft,
		invoicedomain.ErrInvalidConflictResolution,
		ratingdomain.ErrInvalidCustomer,
		ratingdomain.ErrInvalidPeriod,
	}
	notFoundSentinels = []error{
		ErrNotFound,
		invoicedomain.ErrInvoiceNotFound,
		invoicedomain.ErrConflictNotFound,
		usagedomain.ErrUsageNotFound,
		taxdomain.ErrVatCodeNotFound,
		gorm.ErrRecordNotFound,
	}
	conflictSentinels = []error{
		ErrConflict,
		invoicedomain.ErrLockedInvoiceConflict,
		invoicedomain.ErrInvalidTransition,
		invoicedomain.ErrConcurrentModification,
		invoicedomain.ErrConflictAlreadyResolved,
		invoicedomain.ErrInvoiceNumberCollision,
		usagedomain.ErrAlreadyReturned,
		keylock.ErrLockBusy,
	}
	// billing preconditions that the request cannot fix by itself
	unprocessableSentinels = []error{
		ratingdomain.ErrNoBillableUsage,
		invoicedomain.ErrNoBillableLines,
		invoicedomain.ErrCurrencyMismatch,
		tariffdomain.ErrTariffNotFound,
		exchangeratedomain.ErrRateUnavailable,
	}
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

	if sentinel := matchSentinel(err, validationSentinels); sentinel != nil {
		code := sentinel.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	if sentinel := matchSentinel(err, notFoundSentinels); sentinel != nil {
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: sentinelMessage(sentinel, "not found"),
		}
	}
	if sentinel := matchSentinel(err, conflictSentinels); sentinel != nil {
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: sentinelMessage(sentinel, "conflict"),
		}
	}
	if sentinel := matchSentinel(err, unprocessableSentinels); sentinel != nil {
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "unprocessable",
			Message: sentinel.Error(),
		}
	}

	switch {
	case errors.Is(err, ErrServiceUnavailable):
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

// classifyErrorForLog returns the response type and code for request logs.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	if status == http.StatusInternalServerError {
		return payload.Type, "internal_error"
	}
	return payload.Type, payload.Message
}

func matchSentinel(err error, sentinels []error) error {
	for _, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return nil
}

func sentinelMessage(sentinel error, generic string) string {
	switch sentinel {
	case ErrNotFound, ErrConflict, gorm.ErrRecordNotFound:
		return generic
	default:
		return sentinel.Error()
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}
