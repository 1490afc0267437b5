package domain

import "errors"

// ValidationCode names why a voucher cannot be used. Checks run in declaration order.
type ValidationCode string

const (
	CodeNotFound        ValidationCode = "not_found"
	CodeWrongTenant     ValidationCode = "wrong_tenant"
	CodeInactive        ValidationCode = "inactive"
	CodeNotYetValid     ValidationCode = "not_yet_valid"
	CodeExpired         ValidationCode = "expired"
	CodeExhausted       ValidationCode = "exhausted"
	CodeAlreadyRedeemed ValidationCode = "already_redeemed"
	CodeWrongPlan       ValidationCode = "wrong_plan"
)

// ValidationError is returned when a voucher cannot be applied to a club.
type ValidationError struct {
	Code    ValidationCode `json:"code"`
	Message string         `json:"message"`
}

func (e *ValidationError) Error() string {
	return "invalid_voucher: " + string(e.Code)
}

// MessageKey is the i18n catalog key of the code.
func (c ValidationCode) MessageKey() string {
	return "voucher." + string(c)
}

// AsValidationError unwraps err into a *ValidationError.
func AsValidationError(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}

var (
	ErrNotFound              = errors.New("voucher_not_found")
	ErrInvalidType           = errors.New("invalid_voucher_type")
	ErrInvalidName           = errors.New("invalid_voucher_name")
	ErrInvalidCode           = errors.New("invalid_voucher_code")
	ErrInvalidPercent        = errors.New("invalid_discount_percent")
	ErrInvalidAmount         = errors.New("invalid_discount_amount")
	ErrInvalidTrialDays      = errors.New("invalid_trial_extension_days")
	ErrInvalidDuration       = errors.New("invalid_duration_months")
	ErrInvalidMaxRedemptions = errors.New("invalid_max_redemptions")
	ErrInvalidValidity       = errors.New("invalid_validity_window")
	ErrCodeTaken             = errors.New("voucher_code_taken")
	ErrCodeGeneration        = errors.New("voucher_code_generation_failed")
	ErrInvalidAmountValue    = errors.New("invalid_amount")
	ErrInvalidMonths         = errors.New("invalid_months")
)
