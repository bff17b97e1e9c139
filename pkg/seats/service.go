package seats

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Service coordinates seat reservations and queries over a Store.
type Service struct {
	store        Store
	nowFn        func() int64
	logger       OperationLogger
	retryPolicy  RetryPolicy
	bookingCache BookingCache
	waitFn       func(ctx context.Context, delay time.Duration) error
}

// NewService wires a Service.
func NewService(store Store, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{
		store:       store,
		nowFn:       now,
		retryPolicy: DefaultRetryPolicy(),
		waitFn:      waitContext,
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	if service.retryPolicy.MaxAttempts < 1 {
		return nil, fmt.Errorf("%w: reserve max attempts must be at least 1", ErrInvalidServiceConfig)
	}
	if service.retryPolicy.BaseDelay < 0 {
		return nil, fmt.Errorf("%w: reserve retry delay must not be negative", ErrInvalidServiceConfig)
	}
	return service, nil
}

// Reserve books one seat on trainID for userID. The seat check, the decrement and the
// booking insert commit together or not at all. Storage conflicts rerun the whole unit
// under the retry policy.
func (service *Service) Reserve(ctx context.Context, trainID TrainID, userID UserID, metadata MetadataJSON) (BookingID, error) {
	var bookingID BookingID
	attempts, operationError := service.retryOnConflict(ctx, func() error {
		bookingID = BookingID{}
		return service.store.WithTx(ctx, func(ctx context.Context, transactionStore TxStore) error {
			availability, err := transactionStore.LockTrain(ctx, trainID)
			if err != nil {
				return err
			}
			if availability.AvailableSeats <= 0 {
				return ErrNoSeatsAvailable
			}
			if err := transactionStore.DecrementSeat(ctx, trainID); err != nil {
				return err
			}
			bookingInput, err := NewBookingInput(userID, trainID, metadata, service.nowFn())
			if err != nil {
				return err
			}
			createdID, err := transactionStore.CreateBooking(ctx, bookingInput)
			if err != nil {
				return err
			}
			bookingID = createdID
			return nil
		})
	})
	if operationError != nil {
		bookingID = BookingID{}
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationReserve,
		TrainID:   trainID,
		UserID:    userID,
		BookingID: bookingID,
		Metadata:  metadata,
		Attempts:  attempts,
		Error:     operationError,
	})
	return bookingID, operationError
}

// GetAvailability returns the seat ledger row for a train.
func (service *Service) GetAvailability(ctx context.Context, trainID TrainID) (Availability, error) {
	return service.store.GetAvailability(ctx, trainID)
}

func (service *Service) retryOnConflict(ctx context.Context, unit func() error) (int, error) {
	policy := service.retryPolicy
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		lastErr = unit()
		if lastErr == nil || !errors.Is(lastErr, ErrConflict) {
			return attempt, lastErr
		}
		if attempt == policy.MaxAttempts {
			break
		}
		if waitErr := service.waitFn(ctx, policy.delay(attempt)); waitErr != nil {
			return attempt, WrapError(errorOperationService, errorSubjectReservation, errorCodeCanceled, fmt.Errorf("%w: %v", ErrStorageUnavailable, waitErr))
		}
	}
	return policy.MaxAttempts, WrapError(errorOperationService, errorSubjectReservation, errorCodeRetries, fmt.Errorf("%w: %d attempts: %v", ErrStorageUnavailable, policy.MaxAttempts, lastErr))
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

func waitContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
