// Package memstore keeps the seat ledger in process memory. Each train has its
// own lock, so reservations on different trains never wait on each other.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/MarkoPoloResearchLab/seatledger/internal/auth"
	"github.com/MarkoPoloResearchLab/seatledger/pkg/seats"
)

const (
	errorOperationStore = "store"
	errorSubjectTrain   = "train"
	errorSubjectBooking = "booking"
	errorSubjectUser    = "user"
	errorCodeLock       = "lock"
	errorCodeGet        = "get"
	errorCodeDecrement  = "decrement"
	errorCodeInsert     = "insert"
	errorCodeDuplicate  = "duplicate"
	errorCodeLookup     = "lookup"
	errorCodeCommit     = "commit"
)

// Store implements seats.Store and auth.UserStore in memory.
type Store struct {
	mu            sync.RWMutex
	trains        map[int64]seats.Train
	trainLocks    map[int64]chan struct{}
	bookings      map[int64]seats.Booking
	users         map[string]auth.User
	nextTrainID   int64
	nextBookingID int64
	nextUserID    int64
}

// TxStore stages decrements and bookings until WithTx commits them.
type TxStore struct {
	store      *Store
	held       map[int64]chan struct{}
	decrements map[int64]int64
	bookings   []seats.Booking
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		trains:     make(map[int64]seats.Train),
		trainLocks: make(map[int64]chan struct{}),
		bookings:   make(map[int64]seats.Booking),
		users:      make(map[string]auth.User),
	}
}

// WithTx runs fn and applies its staged changes only if fn succeeds. Train
// locks taken by fn are held until the changes are applied or discarded.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore seats.TxStore) error) error {
	transaction := &TxStore{
		store:      store,
		held:       make(map[int64]chan struct{}),
		decrements: make(map[int64]int64),
	}
	defer transaction.release()
	if err := fn(ctx, transaction); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return wrapStoreError(errorSubjectTrain, errorCodeCommit, fmt.Errorf("%w: %w", seats.ErrStorageUnavailable, err))
	}
	transaction.commit()
	return nil
}

func (store *Store) CreateTrain(_ context.Context, input seats.TrainInput, createdUnixUTC int64) (seats.Train, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.nextTrainID++
	trainID, err := seats.NewTrainID(store.nextTrainID)
	if err != nil {
		return seats.Train{}, err
	}
	train := seats.Train{
		ID:             trainID,
		Name:           input.Name(),
		Route:          input.Route(),
		TotalSeats:     input.TotalSeats(),
		AvailableSeats: input.TotalSeats(),
		CreatedUnixUTC: createdUnixUTC,
	}
	store.trains[trainID.Int64()] = train
	store.trainLocks[trainID.Int64()] = make(chan struct{}, 1)
	return train, nil
}

func (store *Store) GetAvailability(_ context.Context, trainID seats.TrainID) (seats.Availability, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()
	train, ok := store.trains[trainID.Int64()]
	if !ok {
		return seats.Availability{}, wrapStoreError(errorSubjectTrain, errorCodeGet, seats.ErrTrainNotFound)
	}
	return seats.Availability{TrainID: train.ID, TotalSeats: train.TotalSeats, AvailableSeats: train.AvailableSeats}, nil
}

func (store *Store) FindTrains(_ context.Context, route seats.Route) ([]seats.TrainSummary, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()
	summaries := []seats.TrainSummary{}
	for _, train := range store.trains {
		if train.Route == route {
			summaries = append(summaries, seats.TrainSummary{ID: train.ID, Name: train.Name, AvailableSeats: train.AvailableSeats})
		}
	}
	sort.Slice(summaries, func(left, right int) bool {
		return summaries[left].ID.Int64() < summaries[right].ID.Int64()
	})
	return summaries, nil
}

func (store *Store) GetBooking(_ context.Context, bookingID seats.BookingID) (seats.BookingDetail, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()
	booking, ok := store.bookings[bookingID.Int64()]
	if !ok {
		return seats.BookingDetail{}, wrapStoreError(errorSubjectBooking, errorCodeGet, seats.ErrBookingNotFound)
	}
	return seats.BookingDetail{Booking: booking, Train: store.trains[booking.TrainID.Int64()]}, nil
}

func (store *Store) ListSeatDrift(_ context.Context) ([]seats.SeatDrift, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()
	booked := make(map[int64]int64, len(store.trains))
	for _, booking := range store.bookings {
		booked[booking.TrainID.Int64()]++
	}
	drifts := []seats.SeatDrift{}
	for id, train := range store.trains {
		if train.TotalSeats.Int64()-booked[id] != train.AvailableSeats.Int64() {
			drifts = append(drifts, seats.SeatDrift{
				TrainID:        train.ID,
				TotalSeats:     train.TotalSeats,
				AvailableSeats: train.AvailableSeats,
				BookedSeats:    booked[id],
			})
		}
	}
	sort.Slice(drifts, func(left, right int) bool {
		return drifts[left].TrainID.Int64() < drifts[right].TrainID.Int64()
	})
	return drifts, nil
}

// LockTrain waits for the train's lock, giving up when ctx ends.
func (transaction *TxStore) LockTrain(ctx context.Context, trainID seats.TrainID) (seats.Availability, error) {
	if err := transaction.acquire(ctx, trainID); err != nil {
		return seats.Availability{}, err
	}
	availability, err := transaction.store.GetAvailability(ctx, trainID)
	if err != nil {
		return seats.Availability{}, err
	}
	availability.AvailableSeats -= seats.SeatCount(transaction.decrements[trainID.Int64()])
	return availability, nil
}

func (transaction *TxStore) DecrementSeat(ctx context.Context, trainID seats.TrainID) error {
	availability, err := transaction.LockTrain(ctx, trainID)
	if err != nil {
		return err
	}
	if availability.AvailableSeats <= 0 {
		return wrapStoreError(errorSubjectTrain, errorCodeDecrement, seats.ErrConflict)
	}
	transaction.decrements[trainID.Int64()]++
	return nil
}

func (transaction *TxStore) CreateBooking(_ context.Context, input seats.BookingInput) (seats.BookingID, error) {
	store := transaction.store
	store.mu.Lock()
	defer store.mu.Unlock()
	if _, ok := store.trains[input.TrainID().Int64()]; !ok {
		return seats.BookingID{}, wrapStoreError(errorSubjectBooking, errorCodeInsert, seats.ErrTrainNotFound)
	}
	store.nextBookingID++
	bookingID, err := seats.NewBookingID(store.nextBookingID)
	if err != nil {
		return seats.BookingID{}, err
	}
	transaction.bookings = append(transaction.bookings, seats.Booking{
		ID:             bookingID,
		UserID:         input.UserID(),
		TrainID:        input.TrainID(),
		Metadata:       input.Metadata(),
		CreatedUnixUTC: input.CreatedUnixUTC(),
	})
	return bookingID, nil
}

func (transaction *TxStore) acquire(ctx context.Context, trainID seats.TrainID) error {
	if _, ok := transaction.held[trainID.Int64()]; ok {
		return nil
	}
	transaction.store.mu.RLock()
	lock, ok := transaction.store.trainLocks[trainID.Int64()]
	transaction.store.mu.RUnlock()
	if !ok {
		return wrapStoreError(errorSubjectTrain, errorCodeLock, seats.ErrTrainNotFound)
	}
	select {
	case lock <- struct{}{}:
		transaction.held[trainID.Int64()] = lock
		return nil
	case <-ctx.Done():
		return wrapStoreError(errorSubjectTrain, errorCodeLock, fmt.Errorf("%w: %w", seats.ErrStorageUnavailable, ctx.Err()))
	}
}

func (transaction *TxStore) commit() {
	store := transaction.store
	store.mu.Lock()
	defer store.mu.Unlock()
	for id, count := range transaction.decrements {
		train := store.trains[id]
		train.AvailableSeats -= seats.SeatCount(count)
		store.trains[id] = train
	}
	for _, booking := range transaction.bookings {
		store.bookings[booking.ID.Int64()] = booking
	}
}

func (transaction *TxStore) release() {
	for id, lock := range transaction.held {
		<-lock
		delete(transaction.held, id)
	}
}

func wrapStoreError(subject string, code string, err error) error {
	return seats.WrapError(errorOperationStore, subject, code, err)
}
