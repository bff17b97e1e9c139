package seats

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestReserveDecrementsSeatAndRecordsBooking(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	trainID := store.addTrain(test, "Rajdhani", "Mumbai", "Delhi", 10, 10)
	service := mustNewService(test, store)
	userID := mustUserID(test, 7)
	metadata := mustMetadata(test, `{"coach":"A1"}`)

	bookingID, err := service.Reserve(context.Background(), trainID, userID, metadata)
	if err != nil {
		test.Fatalf("reserve: %v", err)
	}
	if bookingID.Int64() != 1 {
		test.Fatalf("expected booking id 1, got %d", bookingID.Int64())
	}
	if got := store.available(trainID); got != 9 {
		test.Fatalf("expected 9 available seats, got %d", got)
	}
	if len(store.bookings) != 1 {
		test.Fatalf("expected 1 booking, got %d", len(store.bookings))
	}
	booking := store.bookings[0]
	if booking.UserID != userID || booking.TrainID != trainID {
		test.Fatalf("unexpected booking: %+v", booking)
	}
	if booking.Metadata.String() != `{"coach":"A1"}` {
		test.Fatalf("unexpected metadata %s", booking.Metadata.String())
	}
	if booking.CreatedUnixUTC != 1700000000 {
		test.Fatalf("expected injected clock timestamp, got %d", booking.CreatedUnixUTC)
	}
}

func TestReserveLastSeatTwoUsers(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	trainID := store.addTrain(test, "Duronto", "Pune", "Nagpur", 1, 1)
	service := mustNewService(test, store)
	metadata := mustMetadata(test, "")

	users := []UserID{mustUserID(test, 1), mustUserID(test, 2)}
	results := make([]error, len(users))
	var waitGroup sync.WaitGroup
	for index := range users {
		waitGroup.Add(1)
		go func(index int) {
			defer waitGroup.Done()
			_, results[index] = service.Reserve(context.Background(), trainID, users[index], metadata)
		}(index)
	}
	waitGroup.Wait()

	successes, soldOut := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrNoSeatsAvailable):
			soldOut++
		default:
			test.Fatalf("unexpected reserve error: %v", err)
		}
	}
	if successes != 1 || soldOut != 1 {
		test.Fatalf("expected one success and one sold out, got %d and %d", successes, soldOut)
	}
	if got := store.available(trainID); got != 0 {
		test.Fatalf("expected 0 available seats, got %d", got)
	}
}

func TestReserveUnknownTrainReturnsNotFound(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)

	_, err := service.Reserve(context.Background(), mustTrainID(test, 999), mustUserID(test, 1), mustMetadata(test, ""))
	if !errors.Is(err, ErrNotFound) {
		test.Fatalf("expected ErrNotFound, got %v", err)
	}
	if !errors.Is(err, ErrTrainNotFound) {
		test.Fatalf("expected ErrTrainNotFound, got %v", err)
	}
	if store.decrementCalls != 0 {
		test.Fatalf("expected no decrement, got %d", store.decrementCalls)
	}
}

func TestReserveSoldOutTrainLeavesLedgerUnchanged(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	trainID := store.addTrain(test, "Shatabdi", "Chennai", "Mysuru", 3, 0)
	service := mustNewService(test, store)

	_, err := service.Reserve(context.Background(), trainID, mustUserID(test, 1), mustMetadata(test, ""))
	if !errors.Is(err, ErrNoSeatsAvailable) {
		test.Fatalf("expected ErrNoSeatsAvailable, got %v", err)
	}
	if len(store.bookings) != 0 || store.available(trainID) != 0 {
		test.Fatalf("expected unchanged ledger, got %d bookings and %d seats", len(store.bookings), store.available(trainID))
	}
}

func TestReserveBookingFailureRollsBackDecrement(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	trainID := store.addTrain(test, "Garib Rath", "Kolkata", "Patna", 5, 5)
	store.createBookingErr = errors.New("disk full")
	service := mustNewService(test, store)

	bookingID, err := service.Reserve(context.Background(), trainID, mustUserID(test, 3), mustMetadata(test, ""))
	if err == nil {
		test.Fatalf("expected booking failure")
	}
	if bookingID != (BookingID{}) {
		test.Fatalf("expected zero booking id, got %s", bookingID)
	}
	if store.decrementCalls != 1 {
		test.Fatalf("expected the decrement to run before the failure, got %d calls", store.decrementCalls)
	}
	if got := store.available(trainID); got != 5 {
		test.Fatalf("expected 5 available seats after rollback, got %d", got)
	}
	if len(store.bookings) != 0 {
		test.Fatalf("expected no bookings, got %d", len(store.bookings))
	}
}

func TestReserveRetriesConflicts(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	trainID := store.addTrain(test, "Vande Bharat", "Delhi", "Varanasi", 2, 2)
	store.conflictsRemaining = 2
	logger := &recorderLogger{}
	service := mustNewService(test, store, WithOperationLogger(logger), WithRetryPolicy(RetryPolicy{MaxAttempts: 3}))

	bookingID, err := service.Reserve(context.Background(), trainID, mustUserID(test, 4), mustMetadata(test, ""))
	if err != nil {
		test.Fatalf("reserve: %v", err)
	}
	if bookingID.Int64() != 1 {
		test.Fatalf("expected booking id 1, got %s", bookingID)
	}
	if got := store.available(trainID); got != 1 {
		test.Fatalf("expected exactly one seat taken, got %d available", got)
	}
	if len(logger.entries) != 1 || logger.entries[0].Attempts != 3 {
		test.Fatalf("expected one log entry with 3 attempts, got %+v", logger.entries)
	}
}

func TestReservePersistentConflictReturnsStorageUnavailable(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	trainID := store.addTrain(test, "Tejas", "Mumbai", "Goa", 2, 2)
	store.conflictsRemaining = 10
	service := mustNewService(test, store, WithRetryPolicy(RetryPolicy{MaxAttempts: 4}))

	_, err := service.Reserve(context.Background(), trainID, mustUserID(test, 4), mustMetadata(test, ""))
	if !errors.Is(err, ErrStorageUnavailable) {
		test.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	var operationError OperationError
	if !errors.As(err, &operationError) || operationError.Code() != errorCodeRetries {
		test.Fatalf("expected retries_exhausted operation error, got %v", err)
	}
	if store.decrementCalls != 4 {
		test.Fatalf("expected 4 attempts, got %d", store.decrementCalls)
	}
	if got := store.available(trainID); got != 2 {
		test.Fatalf("expected untouched seats, got %d", got)
	}
}

func TestReserveCanceledDuringBackoff(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	trainID := store.addTrain(test, "Humsafar", "Surat", "Jaipur", 2, 2)
	store.conflictsRemaining = 10
	service := mustNewService(test, store, WithRetryPolicy(RetryPolicy{MaxAttempts: 5, BaseDelay: time.Hour}))
	ctx, cancel := context.WithCancel(context.Background())
	service.waitFn = func(waitCtx context.Context, delay time.Duration) error {
		if delay != time.Hour {
			test.Errorf("expected first backoff of one hour, got %s", delay)
		}
		cancel()
		return waitContext(waitCtx, delay)
	}

	_, err := service.Reserve(ctx, trainID, mustUserID(test, 4), mustMetadata(test, ""))
	if !errors.Is(err, ErrStorageUnavailable) {
		test.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	if store.decrementCalls != 1 {
		test.Fatalf("expected a single attempt, got %d", store.decrementCalls)
	}
}

func TestReserveManyConcurrentRequestsNeverOversell(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	const seatsOnTrain = 5
	const requests = 20
	trainID := store.addTrain(test, "Jan Shatabdi", "Bhopal", "Indore", seatsOnTrain, seatsOnTrain)
	service := mustNewService(test, store)
	userID := mustUserID(test, 11)
	metadata := mustMetadata(test, "")

	var (
		waitGroup sync.WaitGroup
		mutex     sync.Mutex
		successes int
		soldOut   int
	)
	for index := 0; index < requests; index++ {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			_, err := service.Reserve(context.Background(), trainID, userID, metadata)
			mutex.Lock()
			defer mutex.Unlock()
			if err == nil {
				successes++
			} else if errors.Is(err, ErrNoSeatsAvailable) {
				soldOut++
			}
		}()
	}
	waitGroup.Wait()

	if successes != seatsOnTrain || soldOut != requests-seatsOnTrain {
		test.Fatalf("expected %d successes and %d sold out, got %d and %d", seatsOnTrain, requests-seatsOnTrain, successes, soldOut)
	}
	drifts, err := service.AuditLedger(context.Background())
	if err != nil {
		test.Fatalf("audit: %v", err)
	}
	if len(drifts) != 0 {
		test.Fatalf("expected consistent ledger, got %+v", drifts)
	}
}

func TestGetAvailability(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	trainID := store.addTrain(test, "Rajdhani", "Mumbai", "Delhi", 10, 4)
	service := mustNewService(test, store)

	availability, err := service.GetAvailability(context.Background(), trainID)
	if err != nil {
		test.Fatalf("availability: %v", err)
	}
	if availability.TotalSeats != 10 || availability.AvailableSeats != 4 {
		test.Fatalf("unexpected availability %+v", availability)
	}
	if _, err := service.GetAvailability(context.Background(), mustTrainID(test, 999)); !errors.Is(err, ErrNotFound) {
		test.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNewServiceValidation(test *testing.T) {
	test.Parallel()
	clock := func() int64 { return 1 }
	testCases := []struct {
		name    string
		store   Store
		clock   func() int64
		options []ServiceOption
	}{
		{name: "nil store", store: nil, clock: clock},
		{name: "nil clock", store: newStubStore(test), clock: nil},
		{name: "zero attempts", store: newStubStore(test), clock: clock, options: []ServiceOption{WithRetryPolicy(RetryPolicy{MaxAttempts: 0})}},
		{name: "negative delay", store: newStubStore(test), clock: clock, options: []ServiceOption{WithRetryPolicy(RetryPolicy{MaxAttempts: 1, BaseDelay: -time.Second})}},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			if _, err := NewService(testCase.store, testCase.clock, testCase.options...); !errors.Is(err, ErrInvalidServiceConfig) {
				test.Fatalf("expected ErrInvalidServiceConfig, got %v", err)
			}
		})
	}
}
