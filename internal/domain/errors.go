package domain

import (
	"context"
	"errors"
	"fmt"
)

// Error types for reader-engine errors
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeLoad       ErrorType = "load"
	ErrorTypeRender     ErrorType = "render"
	ErrorTypeCancelled  ErrorType = "cancelled"
	ErrorTypeSelection  ErrorType = "selection"
	ErrorTypeExport     ErrorType = "export"
	ErrorTypeStorage    ErrorType = "storage"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeIO         ErrorType = "io"
)

// DomainError represents a domain-specific error with context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewError creates a new domain error
func NewError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// Common error constructors
func ValidationError(message string, err error) *DomainError {
	return NewError(ErrorTypeValidation, message, err)
}

func LoadError(message string, err error) *DomainError {
	return NewError(ErrorTypeLoad, message, err)
}

func RenderError(message string, err error) *DomainError {
	return NewError(ErrorTypeRender, message, err)
}

func CancelledError(message string, err error) *DomainError {
	return NewError(ErrorTypeCancelled, message, err)
}

func SelectionError(message string, err error) *DomainError {
	return NewError(ErrorTypeSelection, message, err)
}

func ExportError(message string, err error) *DomainError {
	return NewError(ErrorTypeExport, message, err)
}

func StorageError(message string, err error) *DomainError {
	return NewError(ErrorTypeStorage, message, err)
}

func ConfigError(message string, err error) *DomainError {
	return NewError(ErrorTypeConfig, message, err)
}

func IOError(message string, err error) *DomainError {
	return NewError(ErrorTypeIO, message, err)
}

// IsType reports whether err (or anything it wraps) is a DomainError of the given type.
func IsType(err error, errType ErrorType) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Type == errType
	}
	return false
}

// IsCancelled reports whether err describes a superseded or cancelled operation.
// Context cancellation counts as well since renders are cancelled through their context.
func IsCancelled(err error) bool {
	if err == nil {
		return false
	}
	if IsType(err, ErrorTypeCancelled) {
		return true
	}
	return errors.Is(err, context.Canceled)
}
