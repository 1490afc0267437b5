package domain

import "errors"

var (
	ErrNotFound              = errors.New("invoice_not_found")
	ErrInvalidTenant         = errors.New("invalid_tenant")
	ErrInvalidBillableType   = errors.New("invalid_billable_type")
	ErrBillableNotFound      = errors.New("billable_not_found")
	ErrInvalidAmount         = errors.New("invalid_net_amount")
	ErrInvalidTaxRate        = errors.New("invalid_tax_rate")
	ErrInvalidDates          = errors.New("invalid_invoice_dates")
	ErrInvalidInterval       = errors.New("invalid_billing_interval")
	ErrNotEditable           = errors.New("invoice_not_editable")
	ErrInvalidTransition     = errors.New("invalid_invoice_transition")
	ErrMaxReminders          = errors.New("max_reminders_reached")
	ErrRequestNotFound       = errors.New("invoice_request_not_found")
	ErrRequestProcessed      = errors.New("invoice_request_already_processed")
	ErrRequestPending        = errors.New("invoice_request_already_pending")
	ErrRejectionReason       = errors.New("rejection_reason_required")
	ErrCancellationReason    = errors.New("cancellation_reason_required")
	ErrNumberGenerationLimit = errors.New("invoice_number_generation_failed")
)
