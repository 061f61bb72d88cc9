package handlers

import (
	"errors"

	"github.com/ashareinsight/ashareinsight/pkg/apperr"
)

// errorCode maps a taxonomy error onto the short machine-readable "code"
// field of the §7 error envelope. Unrecognized errors map to "internal_error"
// so nothing about their internal shape leaks to the caller.
func errorCode(err error) string {
	switch {
	case errors.Is(err, apperr.ErrCompanyNotFound):
		return "company_not_found"
	case errors.Is(err, apperr.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperr.ErrValidation):
		return "validation_error"
	case errors.Is(err, apperr.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, apperr.ErrRepository):
		return "repository_error"
	default:
		return "internal_error"
	}
}
