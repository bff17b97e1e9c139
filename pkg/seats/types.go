package seats

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// TrainID identifies a train.
type TrainID struct {
	value int64
}

// UserID identifies the passenger a booking belongs to.
type UserID struct {
	value int64
}

// BookingID identifies a booking record.
type BookingID struct {
	value int64
}

// SeatCount is a non-negative number of seats.
type SeatCount int64

// NewTrainID validates a train id.
func NewTrainID(raw int64) (TrainID, error) {
	if raw <= 0 {
		return TrainID{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidTrainID)
	}
	return TrainID{value: raw}, nil
}

// Int64 returns the raw identifier.
func (id TrainID) Int64() int64 {
	return id.value
}

func (id TrainID) String() string {
	return strconv.FormatInt(id.value, 10)
}

// NewUserID validates a user id.
func NewUserID(raw int64) (UserID, error) {
	if raw <= 0 {
		return UserID{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidUserID)
	}
	return UserID{value: raw}, nil
}

// Int64 returns the raw identifier.
func (id UserID) Int64() int64 {
	return id.value
}

func (id UserID) String() string {
	return strconv.FormatInt(id.value, 10)
}

// NewBookingID validates a booking id.
func NewBookingID(raw int64) (BookingID, error) {
	if raw <= 0 {
		return BookingID{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidBookingID)
	}
	return BookingID{value: raw}, nil
}

// Int64 returns the raw identifier.
func (id BookingID) Int64() int64 {
	return id.value
}

func (id BookingID) String() string {
	return strconv.FormatInt(id.value, 10)
}

// NewSeatCount validates a seat count.
func NewSeatCount(raw int64) (SeatCount, error) {
	if raw < 0 {
		return 0, fmt.Errorf("%w: must not be negative", ErrInvalidSeatCount)
	}
	return SeatCount(raw), nil
}

// Int64 exposes the raw count.
func (count SeatCount) Int64() int64 {
	return int64(count)
}

// Route is an exact source/destination pair.
type Route struct {
	source      string
	destination string
}

// NewRoute trims and validates both endpoints.
func NewRoute(source string, destination string) (Route, error) {
	trimmedSource := strings.TrimSpace(source)
	trimmedDestination := strings.TrimSpace(destination)
	if trimmedSource == "" {
		return Route{}, fmt.Errorf("%w: source is required", ErrInvalidRoute)
	}
	if trimmedDestination == "" {
		return Route{}, fmt.Errorf("%w: destination is required", ErrInvalidRoute)
	}
	return Route{source: trimmedSource, destination: trimmedDestination}, nil
}

// Source returns the departure station.
func (route Route) Source() string {
	return route.source
}

// Destination returns the arrival station.
func (route Route) Destination() string {
	return route.destination
}

// MetadataJSON stores arbitrary booking metadata.
type MetadataJSON struct {
	value string
}

// NewMetadataJSON validates metadata string (defaulting to "{}" for empty inputs).
func NewMetadataJSON(raw string) (MetadataJSON, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		normalized = defaultMetadataJSON
	}
	if !json.Valid([]byte(normalized)) {
		return MetadataJSON{}, fmt.Errorf("%w: must be valid json", ErrInvalidMetadataJSON)
	}
	return MetadataJSON{value: normalized}, nil
}

// String returns the normalized JSON blob.
func (metadata MetadataJSON) String() string {
	if metadata.value == "" {
		return defaultMetadataJSON
	}
	return metadata.value
}

// TrainInput is a validated request to register a train.
type TrainInput struct {
	name       string
	route      Route
	totalSeats SeatCount
}

// NewTrainInput validates a new train. Names and stations need at least two characters
// and the train must carry at least one seat.
func NewTrainInput(name string, source string, destination string, totalSeats int64) (TrainInput, error) {
	trimmedName := strings.TrimSpace(name)
	if utf8.RuneCountInString(trimmedName) < minTrainNameLength {
		return TrainInput{}, fmt.Errorf("%w: must contain at least %d characters", ErrInvalidTrainName, minTrainNameLength)
	}
	route, err := NewRoute(source, destination)
	if err != nil {
		return TrainInput{}, err
	}
	if utf8.RuneCountInString(route.source) < minStationLength || utf8.RuneCountInString(route.destination) < minStationLength {
		return TrainInput{}, fmt.Errorf("%w: stations must contain at least %d characters", ErrInvalidRoute, minStationLength)
	}
	if totalSeats <= 0 {
		return TrainInput{}, fmt.Errorf("%w: total seats must be greater than zero", ErrInvalidSeatCount)
	}
	return TrainInput{name: trimmedName, route: route, totalSeats: SeatCount(totalSeats)}, nil
}

// Name returns the train name.
func (input TrainInput) Name() string {
	return input.name
}

// Route returns the train route.
func (input TrainInput) Route() Route {
	return input.route
}

// TotalSeats returns the seat capacity. A new train starts with every seat available.
func (input TrainInput) TotalSeats() SeatCount {
	return input.totalSeats
}

// BookingInput is a validated booking record awaiting insertion.
type BookingInput struct {
	userID         UserID
	trainID        TrainID
	metadata       MetadataJSON
	createdUnixUTC int64
}

// NewBookingInput validates the fields of a booking.
func NewBookingInput(userID UserID, trainID TrainID, metadata MetadataJSON, createdUnixUTC int64) (BookingInput, error) {
	if userID.value <= 0 {
		return BookingInput{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidUserID)
	}
	if trainID.value <= 0 {
		return BookingInput{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidTrainID)
	}
	return BookingInput{userID: userID, trainID: trainID, metadata: metadata, createdUnixUTC: createdUnixUTC}, nil
}

// UserID returns the booking owner.
func (input BookingInput) UserID() UserID {
	return input.userID
}

// TrainID returns the booked train.
func (input BookingInput) TrainID() TrainID {
	return input.trainID
}

// Metadata returns the booking metadata.
func (input BookingInput) Metadata() MetadataJSON {
	return input.metadata
}

// CreatedUnixUTC returns the creation timestamp.
func (input BookingInput) CreatedUnixUTC() int64 {
	return input.createdUnixUTC
}

// Availability is the seat ledger row of one train.
type Availability struct {
	TrainID        TrainID
	TotalSeats     SeatCount
	AvailableSeats SeatCount
}

// NewAvailability validates 0 <= available <= total.
func NewAvailability(trainID TrainID, totalSeats int64, availableSeats int64) (Availability, error) {
	if totalSeats < 0 || availableSeats < 0 || availableSeats > totalSeats {
		return Availability{}, fmt.Errorf("%w: train %s has %d of %d seats", ErrInvalidLedgerState, trainID, availableSeats, totalSeats)
	}
	return Availability{
		TrainID:        trainID,
		TotalSeats:     SeatCount(totalSeats),
		AvailableSeats: SeatCount(availableSeats),
	}, nil
}

// Train is the full read model of a train.
type Train struct {
	ID             TrainID
	Name           string
	Route          Route
	TotalSeats     SeatCount
	AvailableSeats SeatCount
	CreatedUnixUTC int64
}

// TrainSummary is one row of an availability search.
type TrainSummary struct {
	ID             TrainID
	Name           string
	AvailableSeats SeatCount
}

// Booking is an immutable booking record.
type Booking struct {
	ID             BookingID
	UserID         UserID
	TrainID        TrainID
	Metadata       MetadataJSON
	CreatedUnixUTC int64
}

// BookingDetail joins a booking with its train.
type BookingDetail struct {
	Booking Booking
	Train   Train
}

// SeatDrift reports a train whose available seats disagree with its bookings.
type SeatDrift struct {
	TrainID        TrainID
	TotalSeats     SeatCount
	AvailableSeats SeatCount
	BookedSeats    int64
}

// ExpectedAvailable returns total seats minus booked seats.
func (drift SeatDrift) ExpectedAvailable() int64 {
	return drift.TotalSeats.Int64() - drift.BookedSeats
}

// Store is the persistence contract used by Service. Seat decrements are only
// reachable through WithTx.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore TxStore) error) error
	CreateTrain(ctx context.Context, input TrainInput, createdUnixUTC int64) (Train, error)
	GetAvailability(ctx context.Context, trainID TrainID) (Availability, error)
	FindTrains(ctx context.Context, route Route) ([]TrainSummary, error)
	GetBooking(ctx context.Context, bookingID BookingID) (BookingDetail, error)
	ListSeatDrift(ctx context.Context) ([]SeatDrift, error)
}

// TxStore is the transactional view handed to WithTx callbacks.
type TxStore interface {
	// LockTrain reads the seat row and holds the train's exclusive lock until the transaction ends.
	LockTrain(ctx context.Context, trainID TrainID) (Availability, error)
	// DecrementSeat removes one seat only if one remains; otherwise it returns ErrConflict.
	DecrementSeat(ctx context.Context, trainID TrainID) error
	CreateBooking(ctx context.Context, input BookingInput) (BookingID, error)
}

// BookingCache caches immutable booking details.
type BookingCache interface {
	GetBooking(ctx context.Context, bookingID BookingID) (BookingDetail, bool, error)
	PutBooking(ctx context.Context, detail BookingDetail) error
}
