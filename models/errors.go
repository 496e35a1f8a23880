package models

import (
	"errors"

	mysqlDriver "github.com/go-sql-driver/mysql"
)

// ErrorCode is the stable machine-readable code carried on every failed
// response. Callers branch on these, never on message text.
type ErrorCode string

const (
	// taxonomy codes
	ErrCodeValidation    ErrorCode = "VALIDATION"
	ErrCodeGovernance    ErrorCode = "GOVERNANCE"
	ErrCodeAuthorization ErrorCode = "AUTHORIZATION"
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeConflict      ErrorCode = "CONFLICT"
	ErrCodeBalance       ErrorCode = "BALANCE"
	ErrCodeInternal      ErrorCode = "INTERNAL"

	// operation-level codes
	ErrCodeOrgRequired         ErrorCode = "ORG_REQUIRED"
	ErrCodeEntityNotFound      ErrorCode = "ENTITY_NOT_FOUND"
	ErrCodeTransactionNotFound ErrorCode = "TRANSACTION_NOT_FOUND"
	ErrCodeDuplicateCode       ErrorCode = "DUPLICATE_CODE"
	ErrCodeInvalidSmartCode    ErrorCode = "INVALID_SMART_CODE"
	ErrCodeNotAuthorized       ErrorCode = "NOT_AUTHORIZED"
)

// ApiError is an error with a stable code. All contract failures are returned
// as values of this type; raw storage errors never cross the boundary.
type ApiError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *ApiError) Error() string {
	return string(e.Code) + ": " + e.Message
}

func NewApiError(code ErrorCode, message string) *ApiError {
	return &ApiError{Code: code, Message: message}
}

// AsApiError normalizes any error into an ApiError. Unknown errors become
// INTERNAL; duplicate-key constraint errors become CONFLICT.
func AsApiError(err error) *ApiError {
	if err == nil {
		return nil
	}
	var apiErr *ApiError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if isDuplicateKeyErr(err) {
		return NewApiError(ErrCodeConflict, "duplicate record")
	}
	return NewApiError(ErrCodeInternal, err.Error())
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}
