package messaging

import (
	"errors"
	"fmt"
)

type ErrorType string

const (
	ErrTypeValidation ErrorType = "VALIDATION"
	ErrTypeNotFound   ErrorType = "NOT_FOUND"
	ErrTypeForbidden  ErrorType = "FORBIDDEN"
	ErrTypeOwnership  ErrorType = "OWNERSHIP"
	ErrTypeInternal   ErrorType = "INTERNAL"
)

// MessagingError carries the failure class the HTTP layer maps onto a status and code.
type MessagingError struct {
	Type      ErrorType
	Operation string
	Message   string
	Cause     error
}

func (e *MessagingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("messaging %s error in %s: %s (caused by: %v)", e.Type, e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("messaging %s error in %s: %s", e.Type, e.Operation, e.Message)
}

func (e *MessagingError) Unwrap() error { return e.Cause }

// TypeOf returns the error class, or ErrTypeInternal for foreign errors.
func TypeOf(err error) ErrorType {
	var me *MessagingError
	if errors.As(err, &me) {
		return me.Type
	}
	return ErrTypeInternal
}

func NewValidationError(operation, msg string) *MessagingError {
	return &MessagingError{Type: ErrTypeValidation, Operation: operation, Message: msg}
}

func NewNotFoundError(operation, msg string) *MessagingError {
	return &MessagingError{Type: ErrTypeNotFound, Operation: operation, Message: msg}
}

func NewForbiddenError(operation string) *MessagingError {
	return &MessagingError{Type: ErrTypeForbidden, Operation: operation, Message: "only the author may change this message"}
}

// NewOwnershipError reports an insert whose sender has no profile row yet.
func NewOwnershipError(senderID string, cause error) *MessagingError {
	return &MessagingError{
		Type:      ErrTypeOwnership,
		Operation: "send",
		Message:   fmt.Sprintf("no profile exists for sender %s", senderID),
		Cause:     cause,
	}
}

func NewInternalError(operation string, cause error) *MessagingError {
	return &MessagingError{Type: ErrTypeInternal, Operation: operation, Message: "unexpected storage failure", Cause: cause}
}
