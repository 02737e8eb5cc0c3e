package errors

import "fmt"

// AppError represents an engine error with additional context
type AppError struct {
	Code     string      `json:"code"`
	Message  string      `json:"message"`
	Internal error       `json:"-"`
	Details  interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}
	return e.Message
}

// Unwrap returns the internal error for errors.Is and errors.As
func (e *AppError) Unwrap() error {
	return e.Internal
}

// Common error codes
const (
	ErrCodeInternal   = "INTERNAL_ERROR"
	ErrCodeValidation = "VALIDATION_ERROR"
	ErrCodeConfig     = "CONFIG_ERROR"
	ErrCodeStorage    = "STORAGE_ERROR"
	ErrCodeDelivery   = "DELIVERY_ERROR"
)

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with an AppError
func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:     code,
		Message:  message,
		Internal: err,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

// Common error constructors

// Internal creates an internal engine error
func Internal(message string, err error) *AppError {
	return Wrap(err, ErrCodeInternal, message)
}

// ValidationError creates a validation error
func ValidationError(message string, details interface{}) *AppError {
	return New(ErrCodeValidation, message).WithDetails(details)
}

// ConfigError creates a configuration error
func ConfigError(message string, err error) *AppError {
	return Wrap(err, ErrCodeConfig, message)
}

// StorageError creates a storage error
func StorageError(message string, err error) *AppError {
	return Wrap(err, ErrCodeStorage, message)
}

// DeliveryError creates a notification delivery error
func DeliveryError(channel string, err error) *AppError {
	return Wrap(err, ErrCodeDelivery,
		fmt.Sprintf("failed to deliver notification via %s", channel))
}
