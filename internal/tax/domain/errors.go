package domain

import "errors"

var (
	ErrInvalidTenant  = errors.New("invalid_tenant")
	ErrInvalidName    = errors.New("invalid_name")
	ErrInvalidID      = errors.New("invalid_id")
	ErrNotFound       = errors.New("tax_rate_not_found")
	ErrInvalidTaxCode = errors.New("invalid_tax_code")
	ErrInvalidTaxRate = errors.New("invalid_tax_rate")
)
