package seats

import (
	"context"
	"time"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a seat ledger operation.
type OperationLog struct {
	Operation string
	TrainID   TrainID
	UserID    UserID
	BookingID BookingID
	Metadata  MetadataJSON
	Attempts  int
	Status    string
	Error     error
}

// RetryPolicy bounds how reservations retry after a storage conflict.
// Attempt n waits BaseDelay*n before running again.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultReserveMaxAttempts, BaseDelay: DefaultReserveRetryDelay}
}

func (policy RetryPolicy) delay(attempt int) time.Duration {
	return policy.BaseDelay * time.Duration(attempt)
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithRetryPolicy overrides the reservation conflict retry policy.
func WithRetryPolicy(policy RetryPolicy) ServiceOption {
	return func(service *Service) {
		service.retryPolicy = policy
	}
}

// WithBookingCache enables read-through caching for GetBooking.
func WithBookingCache(cache BookingCache) ServiceOption {
	return func(service *Service) {
		service.bookingCache = cache
	}
}
