package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/lukasmk87/basketmanager/internal/audit/domain"
	"github.com/lukasmk87/basketmanager/internal/authorization"
	clubdomain "github.com/lukasmk87/basketmanager/internal/club/domain"
	"github.com/lukasmk87/basketmanager/internal/i18n"
	invoicedomain "github.com/lukasmk87/basketmanager/internal/invoice/domain"
	"github.com/lukasmk87/basketmanager/internal/ratelimit"
	taxdomain "github.com/lukasmk87/basketmanager/internal/tax/domain"
	tenantdomain "github.com/lukasmk87/basketmanager/internal/tenant/domain"
	voucherdomain "github.com/lukasmk87/basketmanager/internal/voucher/domain"
	"github.com/lukasmk87/basketmanager/pkg/db/pagination"
	"github.com/lukasmk87/basketmanager/pkg/validation"
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
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrTenantRequired     = errors.New("tenant_required")
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

		status, payload := mapError(c.Request.Context(), lastErr.Err)
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

func invalidIDError(field string) error {
	return newValidationError(field, "invalid_id", "invalid id")
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

// classifyErrorForLog feeds the request logger with the mapped error type and code.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(context.Background(), err)
	code := payload.Code
	if code == "" && err != nil {
		code = err.Error()
	}
	return payload.Type, code
}

func mapError(ctx context.Context, err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: i18n.TC(ctx, "error.internal"),
		}
	}

	if verr, ok := voucherdomain.AsValidationError(err); ok {
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "invalid_voucher",
			Code:    string(verr.Code),
			Message: i18n.TC(ctx, verr.Code.MessageKey()),
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: i18n.TC(ctx, "error.validation"),
			Errors:  vErr.Errors,
		}
	}

	var fieldErr *validation.Error
	if errors.As(err, &fieldErr) {
		out := make([]ValidationError, 0, len(fieldErr.Fields))
		for _, f := range fieldErr.Fields {
			out = append(out, ValidationError{Field: f.Field, Code: f.Rule, Message: "invalid value"})
		}
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: i18n.TC(ctx, "error.validation"),
			Errors:  out,
		}
	}

	if isValidationError(err) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Code:    err.Error(),
			Message: i18n.TC(ctx, "error.validation"),
		}
	}

	switch {
	case errors.Is(err, tenantdomain.ErrTrialExpired):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "trial_expired",
			Message: i18n.TC(ctx, "error.trial_expired"),
		}
	case errors.Is(err, tenantdomain.ErrTenantSuspended):
		return http.StatusForbidden, errorPayload{
			Type:    "tenant_suspended",
			Message: i18n.TC(ctx, "error.tenant_suspended"),
		}
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authorization.ErrInvalidActor),
		errors.Is(err, authorization.ErrUnknownRole):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: i18n.TC(ctx, "error.unauthorized"),
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: i18n.TC(ctx, "error.forbidden"),
		}
	case errors.Is(err, ratelimit.ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: i18n.TC(ctx, "error.rate_limited"),
		}
	case errors.Is(err, tenantdomain.ErrQuotaExceeded):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "quota_exceeded",
			Message: i18n.TC(ctx, "error.quota_exceeded"),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Code:    err.Error(),
			Message: i18n.TC(ctx, "error.not_found"),
		}
	case isTransitionError(err):
		return http.StatusConflict, errorPayload{
			Type:    "invalid_transition",
			Code:    err.Error(),
			Message: i18n.TC(ctx, "error.invalid_transition"),
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Code:    err.Error(),
			Message: i18n.TC(ctx, "error.conflict"),
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: i18n.TC(ctx, "error.unavailable"),
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: i18n.TC(ctx, "error.internal"),
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
		errors.Is(err, ErrTenantRequired),
		errors.Is(err, pagination.ErrInvalidPageToken),
		errors.Is(err, authorization.ErrInvalidTenant),
		errors.Is(err, tenantdomain.ErrInvalidName),
		errors.Is(err, tenantdomain.ErrInvalidTier),
		errors.Is(err, tenantdomain.ErrInvalidTaxRate),
		errors.Is(err, clubdomain.ErrInvalidName),
		errors.Is(err, clubdomain.ErrInvalidPrice),
		errors.Is(err, clubdomain.ErrInvalidInterval),
		errors.Is(err, clubdomain.ErrInvalidDays),
		errors.Is(err, clubdomain.ErrPlanInactive),
		errors.Is(err, voucherdomain.ErrInvalidType),
		errors.Is(err, voucherdomain.ErrInvalidName),
		errors.Is(err, voucherdomain.ErrInvalidCode),
		errors.Is(err, voucherdomain.ErrInvalidPercent),
		errors.Is(err, voucherdomain.ErrInvalidAmount),
		errors.Is(err, voucherdomain.ErrInvalidTrialDays),
		errors.Is(err, voucherdomain.ErrInvalidDuration),
		errors.Is(err, voucherdomain.ErrInvalidMaxRedemptions),
		errors.Is(err, voucherdomain.ErrInvalidValidity),
		errors.Is(err, voucherdomain.ErrInvalidAmountValue),
		errors.Is(err, voucherdomain.ErrInvalidMonths),
		errors.Is(err, invoicedomain.ErrInvalidTenant),
		errors.Is(err, invoicedomain.ErrInvalidBillableType),
		errors.Is(err, invoicedomain.ErrInvalidAmount),
		errors.Is(err, invoicedomain.ErrInvalidTaxRate),
		errors.Is(err, invoicedomain.ErrInvalidDates),
		errors.Is(err, invoicedomain.ErrInvalidInterval),
		errors.Is(err, invoicedomain.ErrRejectionReason),
		errors.Is(err, invoicedomain.ErrCancellationReason),
		errors.Is(err, taxdomain.ErrInvalidTenant),
		errors.Is(err, taxdomain.ErrInvalidName),
		errors.Is(err, taxdomain.ErrInvalidID),
		errors.Is(err, taxdomain.ErrInvalidTaxCode),
		errors.Is(err, taxdomain.ErrInvalidTaxRate),
		errors.Is(err, auditdomain.ErrInvalidTenant),
		errors.Is(err, auditdomain.ErrInvalidTimeRange),
		errors.Is(err, auditdomain.ErrInvalidAction):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, tenantdomain.ErrNotFound),
		errors.Is(err, clubdomain.ErrNotFound),
		errors.Is(err, clubdomain.ErrPlanNotFound),
		errors.Is(err, voucherdomain.ErrNotFound),
		errors.Is(err, invoicedomain.ErrNotFound),
		errors.Is(err, invoicedomain.ErrBillableNotFound),
		errors.Is(err, invoicedomain.ErrRequestNotFound),
		errors.Is(err, taxdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isTransitionError(err error) bool {
	switch {
	case errors.Is(err, invoicedomain.ErrInvalidTransition),
		errors.Is(err, invoicedomain.ErrNotEditable),
		errors.Is(err, invoicedomain.ErrMaxReminders),
		errors.Is(err, invoicedomain.ErrRequestProcessed):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, tenantdomain.ErrSlugTaken),
		errors.Is(err, clubdomain.ErrPlanSlugTaken),
		errors.Is(err, voucherdomain.ErrCodeTaken),
		errors.Is(err, invoicedomain.ErrRequestPending):
		return true
	default:
		return false
	}
}
