package errors

import (
	"fmt"
	"net/http"
)

// Error codes. Messages stay in English; clients translate by code.
const (
	CodeInvalidTransition  = "INVALID_TRANSITION"
	CodePermissionDenied   = "PERMISSION_DENIED"
	CodePreconditionNotMet = "PRECONDITION_NOT_MET"
	CodeStaleState         = "STALE_STATE"
	CodeValidation         = "VALIDATION_ERROR"
	CodeRecordNotFound     = "RECORD_NOT_FOUND"
)

// Auth error codes.
const (
	CodeAuthFailed   = "AUTH_FAILED"
	CodeTokenExpired = "TOKEN_EXPIRED"
	CodeTokenInvalid = "TOKEN_INVALID"
)

// Generic codes.
const (
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeInternal       = "INTERNAL_ERROR"
)

// InvalidTransition reports an operation not allowed from the current status.
func InvalidTransition(op, from string) *AppError {
	return Wrap(ErrInvalidTransition, CodeInvalidTransition,
		fmt.Sprintf("%s is not allowed from status %s", op, from), http.StatusConflict).
		WithParams(map[string]interface{}{"operation": op, "status": from})
}

// PermissionDenied reports an actor lacking the role or identity the operation needs.
func PermissionDenied(op, role string) *AppError {
	return Wrap(ErrPermissionDenied, CodePermissionDenied,
		fmt.Sprintf("role %q may not %s", role, op), http.StatusForbidden).
		WithParams(map[string]interface{}{"operation": op, "role": role})
}

// PreconditionNotMet reports a failed business precondition.
func PreconditionNotMet(message string) *AppError {
	return Wrap(ErrPreconditionNotMet, CodePreconditionNotMet, message, http.StatusUnprocessableEntity)
}

// StaleState reports that the record changed between load and write.
func StaleState(recordID string) *AppError {
	return Wrap(ErrStaleState, CodeStaleState, "record was modified concurrently, reload and retry", http.StatusConflict).
		WithParams(map[string]interface{}{"record_id": recordID})
}

// Validation reports malformed input. Field errors are optional.
func Validation(message string, fields ...FieldError) *AppError {
	return Wrap(ErrValidation, CodeValidation, message, http.StatusBadRequest).WithFieldErrors(fields)
}

// RecordNotFound reports a missing record.
func RecordNotFound(recordID string) *AppError {
	return Wrap(ErrNotFound, CodeRecordNotFound, "record not found", http.StatusNotFound).
		WithParams(map[string]interface{}{"record_id": recordID})
}
