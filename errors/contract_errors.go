package errors

import (
	stderrors "errors"

	"github.com/mezonai/custody/jsonx"
)

// ContractErrorCode represents the standardized failure kinds of a program call
type ContractErrorCode string

const (
	ErrCodeInternal ContractErrorCode = "internal_error"

	// Input and authorization errors
	ErrCodeBadAmount     ContractErrorCode = "bad_amount"
	ErrCodeNotAuthorized ContractErrorCode = "not_authorized"
	ErrCodeBadSignature  ContractErrorCode = "bad_signature"
	ErrCodeBadNonce      ContractErrorCode = "bad_nonce"

	// Balance errors
	ErrCodeInsufficientBalance   ContractErrorCode = "insufficient_balance"
	ErrCodeInsufficientAllowance ContractErrorCode = "insufficient_allowance"
	ErrCodeOverflow              ContractErrorCode = "overflow"

	// Lifecycle and constraint errors
	ErrCodeAlreadyInitialized  ContractErrorCode = "already_initialized"
	ErrCodeNotInitialized      ContractErrorCode = "not_initialized"
	ErrCodeForbiddenTarget     ContractErrorCode = "forbidden_target"
	ErrCodeConstraintViolation ContractErrorCode = "constraint_violation"
	ErrCodeCallDepth           ContractErrorCode = "call_depth_exceeded"
)

const (
	ErrMsgBadAmount             = "Amount must be greater than zero"
	ErrMsgNotAuthorized         = "Caller is not authorized for this operation"
	ErrMsgBadSignature          = "Signature verification failed"
	ErrMsgBadNonce              = "Request nonce is not the caller's next nonce"
	ErrMsgInsufficientBalance   = "Not enough balance"
	ErrMsgInsufficientAllowance = "Not enough allowance"
	ErrMsgOverflow              = "Amount overflows a 64-bit counter"
	ErrMsgAlreadyInitialized    = "Record is already initialized"
	ErrMsgNotInitialized        = "Record is not initialized"
	ErrMsgForbiddenTarget       = "Target operation is not allow-listed"
	ErrMsgConstraintViolation   = "Account constraint violated"
	ErrMsgCallDepth             = "Nested call depth exceeded"
	ErrMsgInternal              = "Internal error"
)

// ContractError is the failure reported by a program call
type ContractError struct {
	Code    ContractErrorCode `json:"code"`
	Message string            `json:"message"`
}

// Error implements the error interface
func (e *ContractError) Error() string {
	b, _ := jsonx.Marshal(ContractError{
		Code:    e.Code,
		Message: e.Message,
	})
	return string(b)
}

// Is matches any ContractError carrying the same code, so wrapped errors with a more
// specific message still satisfy errors.Is against the sentinels below.
func (e *ContractError) Is(target error) bool {
	t, ok := target.(*ContractError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

var (
	ErrBadAmount             = &ContractError{Code: ErrCodeBadAmount, Message: ErrMsgBadAmount}
	ErrNotAuthorized         = &ContractError{Code: ErrCodeNotAuthorized, Message: ErrMsgNotAuthorized}
	ErrBadSignature          = &ContractError{Code: ErrCodeBadSignature, Message: ErrMsgBadSignature}
	ErrBadNonce              = &ContractError{Code: ErrCodeBadNonce, Message: ErrMsgBadNonce}
	ErrInsufficientBalance   = &ContractError{Code: ErrCodeInsufficientBalance, Message: ErrMsgInsufficientBalance}
	ErrInsufficientAllowance = &ContractError{Code: ErrCodeInsufficientAllowance, Message: ErrMsgInsufficientAllowance}
	ErrOverflow              = &ContractError{Code: ErrCodeOverflow, Message: ErrMsgOverflow}
	ErrAlreadyInitialized    = &ContractError{Code: ErrCodeAlreadyInitialized, Message: ErrMsgAlreadyInitialized}
	ErrNotInitialized        = &ContractError{Code: ErrCodeNotInitialized, Message: ErrMsgNotInitialized}
	ErrForbiddenTarget       = &ContractError{Code: ErrCodeForbiddenTarget, Message: ErrMsgForbiddenTarget}
	ErrConstraintViolation   = &ContractError{Code: ErrCodeConstraintViolation, Message: ErrMsgConstraintViolation}
	ErrCallDepth             = &ContractError{Code: ErrCodeCallDepth, Message: ErrMsgCallDepth}
)

// NewError creates a new ContractError and returns it as error interface
func NewError(code ContractErrorCode, message string) error {
	return &ContractError{
		Code:    code,
		Message: message,
	}
}

// CodeOf extracts the contract error code from err, ErrCodeInternal for foreign errors.
func CodeOf(err error) ContractErrorCode {
	if err == nil {
		return ""
	}
	var ce *ContractError
	if stderrors.As(err, &ce) {
		return ce.Code
	}
	return ErrCodeInternal
}
