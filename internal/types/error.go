package types

import (
	"errors"
	"net/http"
)

type ErrorCode string

func (e ErrorCode) String() string {
	return string(e)
}

const (
	InternalServiceError ErrorCode = "INTERNAL_SERVICE_ERROR"
	ValidationError      ErrorCode = "VALIDATION_ERROR"
	NotFound             ErrorCode = "NOT_FOUND"
	BadRequest           ErrorCode = "BAD_REQUEST"
	Forbidden            ErrorCode = "FORBIDDEN"
	Unauthenticated      ErrorCode = "UNAUTHENTICATED"
)

// Ledger error kinds. The values are part of the public API contract and
// must never change once released.
const (
	AlreadyInitialized           ErrorCode = "AlreadyInitialized"
	RegistryNotInitialized       ErrorCode = "RegistryNotInitialized"
	NameTooLong                  ErrorCode = "NameTooLong"
	InvalidArgument              ErrorCode = "InvalidArgument"
	NumberOverflow               ErrorCode = "NumberOverflow"
	MoreThan1000FewerThan10000   ErrorCode = "MoreThan1000FewerThan10000"
	DelegateExceedsMaxStakeLimit ErrorCode = "DelegateExceedsMaxStakeLimit"
	ExceedsMaxStakeLimit         ErrorCode = "ExceedsMaxStakeLimit"
	InfoAlreadyInitialized       ErrorCode = "InfoAlreadyInitialized"
	DelegateAlreadyInitialized   ErrorCode = "DelegateAlreadyInitialized"
	InsufficientFunds            ErrorCode = "InsufficientFunds"
	InsufficientTokenBalance     ErrorCode = "InsufficientTokenBalance"
	NonZeroBalance               ErrorCode = "NonZeroBalance"
	VaultNotEmpty                ErrorCode = "VaultNotEmpty"
	InvalidMint                  ErrorCode = "InvalidMint"
	Unauthorized                 ErrorCode = "Unauthorized"
	StakeAccountNotFound         ErrorCode = "StakeAccountNotFound"
)

type ledgerErrorInfo struct {
	status int
	msg    string
}

var ledgerErrors = map[ErrorCode]ledgerErrorInfo{
	AlreadyInitialized:           {http.StatusConflict, "Already initialized."},
	RegistryNotInitialized:       {http.StatusPreconditionFailed, "Registry has not been initialized."},
	NameTooLong:                  {http.StatusBadRequest, "Name must not exceed 32 characters."},
	InvalidArgument:              {http.StatusBadRequest, "Server key must not exceed 65 bytes."},
	NumberOverflow:               {http.StatusBadRequest, "Number overflow."},
	MoreThan1000FewerThan10000:   {http.StatusUnprocessableEntity, "Create a server with more than 1,000 and fewer than 10,000 tokens."},
	DelegateExceedsMaxStakeLimit: {http.StatusUnprocessableEntity, "Create a delegated account with more than 500 tokens and the total stake cannot exceed 10,000 tokens."},
	ExceedsMaxStakeLimit:         {http.StatusUnprocessableEntity, "The total stake cannot exceed 10,000."},
	InfoAlreadyInitialized:       {http.StatusForbidden, "Server has already been created."},
	DelegateAlreadyInitialized:   {http.StatusForbidden, "Account has already been created."},
	InsufficientFunds:            {http.StatusUnprocessableEntity, "Insufficient funds."},
	InsufficientTokenBalance:     {http.StatusUnprocessableEntity, "Funding account balance is too low."},
	NonZeroBalance:               {http.StatusConflict, "The user stake account has a non-zero balance."},
	VaultNotEmpty:                {http.StatusConflict, "Vault is not empty. Transfer tokens before closing."},
	InvalidMint:                  {http.StatusBadRequest, "The provided mint does not match the specified mint."},
	Unauthorized:                 {http.StatusForbidden, "Only the owner can do this action."},
	StakeAccountNotFound:         {http.StatusNotFound, "The specified stake account was not found."},
}

// Error is an error with a http status code and a stable error code
type Error struct {
	StatusCode int
	ErrorCode  ErrorCode
	Err        error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(statusCode int, errorCode ErrorCode, err error) *Error {
	return &Error{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Err:        err,
	}
}

func NewErrorWithMsg(statusCode int, errorCode ErrorCode, msg string) *Error {
	return &Error{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Err:        errors.New(msg),
	}
}

func NewInternalServiceError(err error) *Error {
	return &Error{
		StatusCode: http.StatusInternalServerError,
		ErrorCode:  InternalServiceError,
		Err:        err,
	}
}

func NewValidationFailedError(err error) *Error {
	return &Error{
		StatusCode: http.StatusBadRequest,
		ErrorCode:  ValidationError,
		Err:        err,
	}
}

// NewLedgerError builds the error for one of the ledger error kinds.
// Unknown codes are reported as internal errors.
func NewLedgerError(code ErrorCode) *Error {
	info, ok := ledgerErrors[code]
	if !ok {
		return NewErrorWithMsg(http.StatusInternalServerError, InternalServiceError, "unknown ledger error "+code.String())
	}
	return NewErrorWithMsg(info.status, code, info.msg)
}

// AsError converts any error into *Error, wrapping foreign errors as internal ones
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return NewInternalServiceError(err)
}

// HasErrorCode reports whether err carries the given error code
func HasErrorCode(err error, code ErrorCode) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.ErrorCode == code
}
