package domain

import "errors"

var (
	ErrVatCodeNotFound = errors.New("vat_code_not_found")
	ErrInvalidVatCode  = errors.New("invalid_vat_code")
	ErrInvalidVatRate  = errors.New("invalid_vat_rate")
)
