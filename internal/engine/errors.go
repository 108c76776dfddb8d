package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents a collaborator failure while handling a message.
//
// Domain refusals (insufficient balance, contract limits, unknown
// agreements) are not errors; they are answered or logged. A RuntimeError
// means the store or the gateway failed and the command may be incomplete.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// MessageID is the mention being handled.
	MessageID int64

	// Command is the keyword that selected the command, if any.
	Command string

	// Err is the underlying failure.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeStore indicates the store failed.
	ErrCodeStore RuntimeErrorCode = "STORE_FAILURE"

	// ErrCodeGateway indicates a read from the messaging network failed.
	ErrCodeGateway RuntimeErrorCode = "GATEWAY_FAILURE"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Command != "" {
		return fmt.Sprintf("%s: message %d (%s): %v", e.Code, e.MessageID, e.Command, e.Err)
	}
	return fmt.Sprintf("%s: message %d: %v", e.Code, e.MessageID, e.Err)
}

// Unwrap returns the underlying failure.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsStoreError returns true if the error is a store failure.
// Uses errors.As to handle wrapped errors.
func IsStoreError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeStore
	}
	return false
}

// IsGatewayError returns true if the error is a gateway read failure.
// Uses errors.As to handle wrapped errors.
func IsGatewayError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeGateway
	}
	return false
}
