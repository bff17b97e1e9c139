package seats

import (
	"context"
	"sort"
	"sync"
	"testing"
)

type stubTrain struct {
	train Train
}

type stubStore struct {
	mu                 sync.Mutex
	trains             map[int64]*stubTrain
	bookings           []Booking
	nextTrainID        int64
	nextBookingID      int64
	conflictsRemaining int
	decrementCalls     int
	createBookingErr   error
	findErr            error
	getBookingCalls    int
}

type stubTxStore struct {
	store *stubStore
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{trains: make(map[int64]*stubTrain)}
}

func (store *stubStore) addTrain(test *testing.T, name string, source string, destination string, total int64, available int64) TrainID {
	test.Helper()
	store.nextTrainID++
	trainID := mustTrainID(test, store.nextTrainID)
	store.trains[trainID.Int64()] = &stubTrain{train: Train{
		ID:             trainID,
		Name:           name,
		Route:          mustRoute(test, source, destination),
		TotalSeats:     SeatCount(total),
		AvailableSeats: SeatCount(available),
	}}
	return trainID
}

func (store *stubStore) available(trainID TrainID) SeatCount {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.trains[trainID.Int64()].train.AvailableSeats
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore TxStore) error) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	savedSeats := make(map[int64]SeatCount, len(store.trains))
	for id, record := range store.trains {
		savedSeats[id] = record.train.AvailableSeats
	}
	savedBookings := len(store.bookings)
	if err := fn(ctx, &stubTxStore{store: store}); err != nil {
		for id, seats := range savedSeats {
			store.trains[id].train.AvailableSeats = seats
		}
		store.bookings = store.bookings[:savedBookings]
		return err
	}
	return nil
}

func (store *stubStore) CreateTrain(_ context.Context, input TrainInput, createdUnixUTC int64) (Train, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.nextTrainID++
	trainID, err := NewTrainID(store.nextTrainID)
	if err != nil {
		return Train{}, err
	}
	train := Train{
		ID:             trainID,
		Name:           input.Name(),
		Route:          input.Route(),
		TotalSeats:     input.TotalSeats(),
		AvailableSeats: input.TotalSeats(),
		CreatedUnixUTC: createdUnixUTC,
	}
	store.trains[trainID.Int64()] = &stubTrain{train: train}
	return train, nil
}

func (store *stubStore) GetAvailability(_ context.Context, trainID TrainID) (Availability, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	record, ok := store.trains[trainID.Int64()]
	if !ok {
		return Availability{}, ErrTrainNotFound
	}
	return NewAvailability(trainID, record.train.TotalSeats.Int64(), record.train.AvailableSeats.Int64())
}

func (store *stubStore) FindTrains(_ context.Context, route Route) ([]TrainSummary, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.findErr != nil {
		return nil, store.findErr
	}
	summaries := []TrainSummary{}
	for _, record := range store.trains {
		if record.train.Route == route {
			summaries = append(summaries, TrainSummary{ID: record.train.ID, Name: record.train.Name, AvailableSeats: record.train.AvailableSeats})
		}
	}
	sort.Slice(summaries, func(left, right int) bool {
		return summaries[left].ID.Int64() < summaries[right].ID.Int64()
	})
	return summaries, nil
}

func (store *stubStore) GetBooking(_ context.Context, bookingID BookingID) (BookingDetail, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.getBookingCalls++
	for _, booking := range store.bookings {
		if booking.ID == bookingID {
			return BookingDetail{Booking: booking, Train: store.trains[booking.TrainID.Int64()].train}, nil
		}
	}
	return BookingDetail{}, ErrBookingNotFound
}

func (store *stubStore) ListSeatDrift(context.Context) ([]SeatDrift, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	booked := make(map[int64]int64)
	for _, booking := range store.bookings {
		booked[booking.TrainID.Int64()]++
	}
	drifts := []SeatDrift{}
	for id, record := range store.trains {
		if record.train.TotalSeats.Int64()-booked[id] != record.train.AvailableSeats.Int64() {
			drifts = append(drifts, SeatDrift{
				TrainID:        record.train.ID,
				TotalSeats:     record.train.TotalSeats,
				AvailableSeats: record.train.AvailableSeats,
				BookedSeats:    booked[id],
			})
		}
	}
	return drifts, nil
}

func (txStore *stubTxStore) LockTrain(_ context.Context, trainID TrainID) (Availability, error) {
	record, ok := txStore.store.trains[trainID.Int64()]
	if !ok {
		return Availability{}, ErrTrainNotFound
	}
	return NewAvailability(trainID, record.train.TotalSeats.Int64(), record.train.AvailableSeats.Int64())
}

func (txStore *stubTxStore) DecrementSeat(_ context.Context, trainID TrainID) error {
	txStore.store.decrementCalls++
	if txStore.store.conflictsRemaining > 0 {
		txStore.store.conflictsRemaining--
		return ErrConflict
	}
	record := txStore.store.trains[trainID.Int64()]
	if record.train.AvailableSeats <= 0 {
		return ErrConflict
	}
	record.train.AvailableSeats--
	return nil
}

func (txStore *stubTxStore) CreateBooking(_ context.Context, input BookingInput) (BookingID, error) {
	if txStore.store.createBookingErr != nil {
		return BookingID{}, txStore.store.createBookingErr
	}
	txStore.store.nextBookingID++
	bookingID, err := NewBookingID(txStore.store.nextBookingID)
	if err != nil {
		return BookingID{}, err
	}
	txStore.store.bookings = append(txStore.store.bookings, Booking{
		ID:             bookingID,
		UserID:         input.UserID(),
		TrainID:        input.TrainID(),
		Metadata:       input.Metadata(),
		CreatedUnixUTC: input.CreatedUnixUTC(),
	})
	return bookingID, nil
}

type stubCache struct {
	entries map[int64]BookingDetail
	getErr  error
	putErr  error
	puts    int
}

func newStubCache() *stubCache {
	return &stubCache{entries: make(map[int64]BookingDetail)}
}

func (cache *stubCache) GetBooking(_ context.Context, bookingID BookingID) (BookingDetail, bool, error) {
	if cache.getErr != nil {
		return BookingDetail{}, false, cache.getErr
	}
	detail, ok := cache.entries[bookingID.Int64()]
	return detail, ok, nil
}

func (cache *stubCache) PutBooking(_ context.Context, detail BookingDetail) error {
	cache.puts++
	if cache.putErr != nil {
		return cache.putErr
	}
	cache.entries[detail.Booking.ID.Int64()] = detail
	return nil
}

func mustNewService(test *testing.T, store Store, options ...ServiceOption) *Service {
	test.Helper()
	service, err := NewService(store, func() int64 { return 1700000000 }, options...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustTrainID(test *testing.T, raw int64) TrainID {
	test.Helper()
	trainID, err := NewTrainID(raw)
	if err != nil {
		test.Fatalf("train id: %v", err)
	}
	return trainID
}

func mustUserID(test *testing.T, raw int64) UserID {
	test.Helper()
	userID, err := NewUserID(raw)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	return userID
}

func mustBookingID(test *testing.T, raw int64) BookingID {
	test.Helper()
	bookingID, err := NewBookingID(raw)
	if err != nil {
		test.Fatalf("booking id: %v", err)
	}
	return bookingID
}

func mustRoute(test *testing.T, source string, destination string) Route {
	test.Helper()
	route, err := NewRoute(source, destination)
	if err != nil {
		test.Fatalf("route: %v", err)
	}
	return route
}

func mustMetadata(test *testing.T, raw string) MetadataJSON {
	test.Helper()
	metadata, err := NewMetadataJSON(raw)
	if err != nil {
		test.Fatalf("metadata: %v", err)
	}
	return metadata
}
