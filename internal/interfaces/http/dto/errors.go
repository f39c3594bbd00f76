package dto

import "net/http"

// Error codes returned in ErrorInfo.Code
const (
	ErrCodeInternal            = "ERR_INTERNAL"
	ErrCodeValidation          = "ERR_VALIDATION"
	ErrCodeBadRequest          = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput        = "ERR_INVALID_INPUT"
	ErrCodeInvalidState        = "ERR_INVALID_STATE"
	ErrCodeNotFound            = "ERR_NOT_FOUND"
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
	ErrCodeUnsupportedMsgType  = "ERR_UNSUPPORTED_MSG_TYPE"
	ErrCodeLockUnavailable     = "ERR_LOCK_UNAVAILABLE"
	ErrCodeRequestTooLarge     = "ERR_REQUEST_TOO_LARGE"
	ErrCodeRateLimited         = "ERR_RATE_LIMITED"
)

var httpStatusByCode = map[string]int{
	ErrCodeInternal:            http.StatusInternalServerError,
	ErrCodeValidation:          http.StatusBadRequest,
	ErrCodeBadRequest:          http.StatusBadRequest,
	ErrCodeInvalidInput:        http.StatusBadRequest,
	ErrCodeInvalidState:        http.StatusUnprocessableEntity,
	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeConcurrencyConflict: http.StatusConflict,
	ErrCodeUnsupportedMsgType:  http.StatusUnprocessableEntity,
	ErrCodeLockUnavailable:     http.StatusServiceUnavailable,
	ErrCodeRequestTooLarge:     http.StatusRequestEntityTooLarge,
	ErrCodeRateLimited:         http.StatusTooManyRequests,
}

// domainCodes maps shared.DomainError codes onto API codes
var domainCodes = map[string]string{
	"NOT_FOUND":                ErrCodeNotFound,
	"INVALID_INPUT":            ErrCodeInvalidInput,
	"CONCURRENCY_CONFLICT":     ErrCodeConcurrencyConflict,
	"UNSUPPORTED_MSG_TYPE":     ErrCodeUnsupportedMsgType,
	"LOCK_UNAVAILABLE":         ErrCodeLockUnavailable,
	"ENTRY_NOT_FOUND":          ErrCodeNotFound,
	"INVALID_STATUS":           ErrCodeInvalidState,
	"INVALID_STATE_TRANSITION": ErrCodeInvalidState,
	"INTERNAL_ERROR":           ErrCodeInternal,
}

// GetHTTPStatus returns the status for an API code, 500 when unknown
func GetHTTPStatus(code string) int {
	if status, ok := httpStatusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// NormalizeErrorCode converts a domain error code to its API code.
// Unknown codes are returned unchanged.
func NormalizeErrorCode(code string) string {
	if apiCode, ok := domainCodes[code]; ok {
		return apiCode
	}
	return code
}
