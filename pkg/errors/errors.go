package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code for stable testing
type ErrorCode string

// Error codes for different error categories
const (
	// General errors
	ErrUnknown       ErrorCode = "UNKNOWN"
	ErrInternal      ErrorCode = "INTERNAL"
	ErrInvalidInput  ErrorCode = "INVALID_INPUT"
	ErrNotFound      ErrorCode = "NOT_FOUND"
	ErrAlreadyExists ErrorCode = "ALREADY_EXISTS"

	// Configuration errors
	ErrConfigLoad  ErrorCode = "CONFIG_LOAD"
	ErrConfigParse ErrorCode = "CONFIG_PARSE"

	// Layer input errors
	ErrLayerParse  ErrorCode = "LAYER_PARSE"
	ErrItemDecode  ErrorCode = "ITEM_DECODE"
	ErrItemInvalid ErrorCode = "ITEM_INVALID"

	// Graph construction errors. These are all detected during the dry
	// validation pass, before any filesystem mutation happens.
	ErrUnsatisfiedRequirement ErrorCode = "UNSATISFIED_REQUIREMENT"
	ErrConflictingProvision   ErrorCode = "CONFLICTING_PROVISION"
	ErrDependencyCycle        ErrorCode = "DEPENDENCY_CYCLE"
	ErrKindMismatch           ErrorCode = "KIND_MISMATCH"
	ErrPhaseOrderViolation    ErrorCode = "PHASE_ORDER_VIOLATION"
	ErrProtectedPath          ErrorCode = "PROTECTED_PATH"

	// Apply-time errors
	ErrItemApply           ErrorCode = "ITEM_APPLY"
	ErrSourceMissing       ErrorCode = "SOURCE_MISSING"
	ErrPathNotFound        ErrorCode = "PATH_NOT_FOUND"
	ErrDestinationConflict ErrorCode = "DESTINATION_CONFLICT"
	ErrTarballMismatch     ErrorCode = "TARBALL_MISMATCH"
	ErrSandbox             ErrorCode = "SANDBOX"
	ErrPackageTransaction  ErrorCode = "PACKAGE_TRANSACTION"
	ErrPackageUnknown      ErrorCode = "PACKAGE_UNKNOWN"

	// Volume errors
	ErrVolumeCreate  ErrorCode = "VOLUME_CREATE"
	ErrVolumeClone   ErrorCode = "VOLUME_CLONE"
	ErrVolumeSealed  ErrorCode = "VOLUME_SEALED"
	ErrVolumeEscape  ErrorCode = "VOLUME_ESCAPE"
	ErrVolumeDiscard ErrorCode = "VOLUME_DISCARD"

	// Manifest errors
	ErrManifestWrite ErrorCode = "MANIFEST_WRITE"
	ErrManifestRead  ErrorCode = "MANIFEST_READ"
)

// StrataError represents a structured error with code and details
type StrataError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error
}

// Error implements the error interface
func (e *StrataError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *StrataError) Unwrap() error {
	return e.Wrapped
}

// Is implements errors.Is interface
func (e *StrataError) Is(target error) bool {
	var targetErr *StrataError
	if errors.As(target, &targetErr) {
		return e.Code == targetErr.Code
	}
	return false
}

// New creates a new StrataError with the given code and message
func New(code ErrorCode, message string) *StrataError {
	return &StrataError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Newf creates a new StrataError with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *StrataError {
	return &StrataError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with a StrataError
func Wrap(err error, code ErrorCode, message string) *StrataError {
	if err == nil {
		return nil
	}
	return &StrataError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *StrataError {
	if err == nil {
		return nil
	}
	return &StrataError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// WithDetail adds a detail to the error
func (e *StrataError) WithDetail(key string, value interface{}) *StrataError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsErrorCode checks if an error has a specific error code
func IsErrorCode(err error, code ErrorCode) bool {
	var strataErr *StrataError
	if errors.As(err, &strataErr) {
		return strataErr.Code == code
	}
	return false
}

// GetErrorCode returns the error code from an error, or ErrUnknown if not a StrataError
func GetErrorCode(err error) ErrorCode {
	var strataErr *StrataError
	if errors.As(err, &strataErr) {
		return strataErr.Code
	}
	return ErrUnknown
}

// GetErrorDetails returns the details from an error, or nil if not a StrataError
func GetErrorDetails(err error) map[string]interface{} {
	var strataErr *StrataError
	if errors.As(err, &strataErr) {
		return strataErr.Details
	}
	return nil
}
