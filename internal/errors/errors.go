package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrTypeIngestion marks malformed or unreadable tape input; fatal,
	// aborts the run before validation.
	ErrTypeIngestion ErrorType = "INGESTION"
	// ErrTypeRuleDefinition marks duplicate or malformed rule registrations;
	// fatal at registry-build time.
	ErrTypeRuleDefinition ErrorType = "RULE_DEFINITION"
	// ErrTypeConfig marks invalid configuration or stratification specs.
	ErrTypeConfig ErrorType = "CONFIG"
	// ErrTypeStorage marks report/output write failures.
	ErrTypeStorage ErrorType = "STORAGE"
	// ErrTypeValidation marks invalid inputs to core operations.
	ErrTypeValidation ErrorType = "VALIDATION"
)

// AppError represents an application-specific error. Rule outcomes on the
// data are never AppErrors: a failed rule is report content, not a process
// failure.
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work with AppError
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// NewIngestionError creates a tape ingestion error
func NewIngestionError(message string, cause error) *AppError {
	return NewAppError(ErrTypeIngestion, message, cause)
}

// NewRuleDefinitionError creates a registry-build error
func NewRuleDefinitionError(message string) *AppError {
	return NewAppError(ErrTypeRuleDefinition, message, nil)
}

// NewConfigError creates a configuration error
func NewConfigError(message string) *AppError {
	return NewAppError(ErrTypeConfig, message, nil)
}

// NewStorageError creates an output write error
func NewStorageError(message string, cause error) *AppError {
	return NewAppError(ErrTypeStorage, message, cause)
}

// NewValidationError creates an invalid-input error
func NewValidationError(message string) *AppError {
	return NewAppError(ErrTypeValidation, message, nil)
}

// IsType reports whether err is (or wraps) an AppError of the given type
func IsType(err error, errType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errType
	}
	return false
}
