package server

import (
	"strconv"
	"strings"
	"time"

	billingcycledomain "github.com/smallbiznis/portbilling/internal/billingcycle/domain"
)

func parseRequiredDate(field, value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, newValidationError(field, "required", field+" is required")
	}
	parsed, err := billingcycledomain.ParseDate(trimmed)
	if err != nil {
		return time.Time{}, newValidationError(field, "invalid_date", "expected YYYY-MM-DD")
	}
	return parsed, nil
}

func parseOptionalDate(field, value string) (*time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	parsed, err := parseRequiredDate(field, value)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

// parseInstant accepts RFC3339 or a bare date, read as midnight UTC.
func parseInstant(field, value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return parsed, nil
	}
	if parsed, err := billingcycledomain.ParseDate(trimmed); err == nil {
		return parsed, nil
	}
	return time.Time{}, newValidationError(field, "invalid_time", "expected RFC3339 or YYYY-MM-DD")
}

func parseOptionalInt(field, value string) (*int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return nil, newValidationError(field, "invalid_"+field, "invalid number")
	}
	return &parsed, nil
}
