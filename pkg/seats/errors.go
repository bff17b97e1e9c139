package seats

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the seat service and its stores.
var (
	ErrNotFound             = errors.New("not found")
	ErrNoSeatsAvailable     = errors.New("no seats available")
	ErrConflict             = errors.New("seat update conflict")
	ErrStorageUnavailable   = errors.New("storage unavailable")
	ErrInvalidLedgerState   = errors.New("invalid seat ledger state")
	ErrInvalidTrainID       = errors.New("invalid train id")
	ErrInvalidUserID        = errors.New("invalid user id")
	ErrInvalidBookingID     = errors.New("invalid booking id")
	ErrInvalidSeatCount     = errors.New("invalid seat count")
	ErrInvalidRoute         = errors.New("invalid route")
	ErrInvalidTrainName     = errors.New("invalid train name")
	ErrInvalidMetadataJSON  = errors.New("invalid metadata json")
	ErrInvalidServiceConfig = errors.New("invalid service config")
)

// Not-found refinements; both satisfy errors.Is(err, ErrNotFound).
var (
	ErrTrainNotFound   = fmt.Errorf("%w: train", ErrNotFound)
	ErrBookingNotFound = fmt.Errorf("%w: booking", ErrNotFound)
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
