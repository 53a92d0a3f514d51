package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	addondomain "github.com/smallbiznis/quotara/internal/addon/domain"
	"github.com/smallbiznis/quotara/internal/authorization"
	namespacedomain "github.com/smallbiznis/quotara/internal/namespace/domain"
	notificationdomain "github.com/smallbiznis/quotara/internal/notification/domain"
	quotadomain "github.com/smallbiznis/quotara/internal/quota/domain"
	seatdomain "github.com/smallbiznis/quotara/internal/seat/domain"
	"github.com/smallbiznis/quotara/pkg/db/pagination"
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
	ErrUnauthorized   = errors.New("unauthorized")
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
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

	if isValidationError(err) {
		code := validationErrorCode(err)
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

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authorization.ErrInvalidActor):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrInternal):
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
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
		errors.Is(err, addondomain.ErrInvalidAddOnType),
		errors.Is(err, addondomain.ErrInvalidQuantity),
		errors.Is(err, addondomain.ErrInvalidDates),
		errors.Is(err, quotadomain.ErrInvalidUsageDelta),
		errors.Is(err, quotadomain.ErrInvalidBillingPeriod),
		errors.Is(err, seatdomain.ErrInvalidSortKey),
		errors.Is(err, pagination.ErrInvalidPageToken),
		errors.Is(err, seatdomain.ErrUserNotEligible),
		errors.Is(err, seatdomain.ErrNoSeatsAvailable),
		errors.Is(err, namespacedomain.ErrInvalidName),
		errors.Is(err, namespacedomain.ErrInvalidUsername),
		errors.Is(err, namespacedomain.ErrInvalidParent),
		errors.Is(err, namespacedomain.ErrInvalidRole),
		errors.Is(err, namespacedomain.ErrNotRootNamespace):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, seatdomain.ErrAlreadyAssigned),
		errors.Is(err, addondomain.ErrPurchaseExists),
		errors.Is(err, namespacedomain.ErrMemberExists):
		return true
	default:
		return false
	}
}

func conflictMessage(err error) string {
	if errors.Is(err, seatdomain.ErrAlreadyAssigned) {
		return "seat already assigned"
	}
	return "conflict"
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, namespacedomain.ErrNamespaceNotFound),
		errors.Is(err, namespacedomain.ErrUserNotFound),
		errors.Is(err, addondomain.ErrPurchaseNotFound),
		errors.Is(err, seatdomain.ErrAssignmentNotFound),
		errors.Is(err, quotadomain.ErrUsageRecordNotFound),
		errors.Is(err, notificationdomain.ErrNoActiveCallout),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	if errors.Is(err, ErrInvalidRequest) {
		return "invalid_request"
	}
	return err.Error()
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
	case "user_not_eligible":
		return "user is not eligible for a seat"
	case "no_seats_available":
		return "no seats available on the purchase"
	case "invalid_page_token":
		return "page token does not match the requested ordering"
	default:
		return "invalid value"
	}
}

// classifyErrorForLog feeds the request logger's error_type/error_code
// fields without rendering a response.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	switch {
	case status >= http.StatusInternalServerError:
		return "internal", code
	case status >= http.StatusBadRequest:
		return "client", code
	default:
		return "", code
	}
}
