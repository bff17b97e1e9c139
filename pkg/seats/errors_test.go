package seats

import (
	"errors"
	"testing"
)

const (
	operationName    = "store"
	subjectName      = "train"
	codeName         = "lock"
	baseErrorMessage = "base error"
)

func TestOperationErrorFormatting(test *testing.T) {
	test.Parallel()
	baseError := errors.New(baseErrorMessage)
	wrappedError := WrapError(operationName, subjectName, codeName, baseError)
	if wrappedError == nil {
		test.Fatalf("expected wrapped error")
	}
	expected := operationName + "." + subjectName + "." + codeName + ": " + baseErrorMessage
	if wrappedError.Error() != expected {
		test.Fatalf("expected %q, got %q", expected, wrappedError.Error())
	}
	if !errors.Is(wrappedError, baseError) {
		test.Fatalf("expected wrapped error to unwrap to base error")
	}
}

func TestWrapErrorNil(test *testing.T) {
	test.Parallel()
	if WrapError(operationName, subjectName, codeName, nil) != nil {
		test.Fatalf("expected nil wrapped error")
	}
}

func TestNotFoundRefinements(test *testing.T) {
	test.Parallel()
	wrapped := WrapError(operationName, subjectName, codeName, ErrTrainNotFound)
	if !errors.Is(wrapped, ErrNotFound) || !errors.Is(wrapped, ErrTrainNotFound) {
		test.Fatalf("expected train not found to match ErrNotFound, got %v", wrapped)
	}
	if errors.Is(ErrBookingNotFound, ErrTrainNotFound) {
		test.Fatalf("booking and train not found must stay distinct")
	}
}
