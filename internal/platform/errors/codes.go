// Package errors provides structured error handling shared by the services.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Request errors
	CodeValidationFailed   Code = "VALIDATION_FAILED"
	CodeForbidden          Code = "FORBIDDEN"
	CodeFailedPrecondition Code = "FAILED_PRECONDITION"
	CodeRateLimited        Code = "RATE_LIMITED"

	// Identity errors
	CodeIdentityInvalidRecoveryPhrase Code = "IDENTITY_INVALID_RECOVERY_PHRASE"
	CodeIdentityInvalidSecretFormat   Code = "IDENTITY_INVALID_SECRET_FORMAT"
	CodeIdentityCollision             Code = "IDENTITY_COLLISION"
	CodeIdentityGenerationExhausted   Code = "IDENTITY_GENERATION_EXHAUSTED"

	// Credential errors
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeTokenExpired Code = "TOKEN_EXPIRED"

	// Storage errors
	CodeNotFound         Code = "NOT_FOUND"
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeValidationFailed,
		CodeIdentityInvalidRecoveryPhrase,
		CodeIdentityInvalidSecretFormat:
		return http.StatusBadRequest

	case CodeUnauthorized, CodeTokenExpired:
		return http.StatusUnauthorized

	case CodeForbidden:
		return http.StatusForbidden

	case CodeNotFound:
		return http.StatusNotFound

	case CodeIdentityCollision, CodeFailedPrecondition:
		return http.StatusConflict

	case CodeRateLimited:
		return http.StatusTooManyRequests

	case CodeStoreUnavailable:
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// FrameCode maps domain codes to the code carried by realtime error frames.
func (c Code) FrameCode() string {
	switch c {
	case CodeValidationFailed:
		return "INVALID_ARGUMENT"
	case CodeRateLimited:
		return "RESOURCE_EXHAUSTED"
	case CodeUnknown, "":
		return "INTERNAL"
	default:
		return string(c)
	}
}
