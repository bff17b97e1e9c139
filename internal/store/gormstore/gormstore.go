package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/seatledger/internal/store/storeerr"
	"github.com/MarkoPoloResearchLab/seatledger/pkg/seats"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultMetadataJSON     = "{}"
	errorOperationStore     = "store"
	errorSubjectTrain       = "train"
	errorSubjectBooking     = "booking"
	errorSubjectLedger      = "ledger"
	errorSubjectTransaction = "transaction"
	errorSubjectUser        = "user"
	errorCodeAudit          = "audit"
	errorCodeCommit         = "commit"
	errorCodeCreate         = "create"
	errorCodeDecrement      = "decrement"
	errorCodeDuplicate      = "duplicate"
	errorCodeGet            = "get"
	errorCodeInsert         = "insert"
	errorCodeInvalid        = "invalid"
	errorCodeList           = "list"
	errorCodeLock           = "lock"
	errorCodeLookup         = "lookup"

	sqlListSeatDrift = `
		select t.id as train_id, t.total_seats, t.available_seats, count(b.id) as booked_seats
		from trains t
		left join bookings b on b.train_id = t.id
		group by t.id, t.total_seats, t.available_seats
		having t.available_seats <> t.total_seats - count(b.id)
		order by t.id
	`
)

// Store implements seats.Store using GORM.
type Store struct {
	db *gorm.DB
}

// TxStore implements seats.TxStore inside a GORM transaction.
type TxStore struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx executes fn within a transaction. Commit failures are classified so
// lock contention surfaces as seats.ErrConflict.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore seats.TxStore) error) error {
	callbackFailed := false
	err := store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		if err := fn(ctx, &TxStore{db: transaction}); err != nil {
			callbackFailed = true
			return err
		}
		return nil
	})
	if err == nil || callbackFailed {
		return err
	}
	return wrapStoreError(errorSubjectTransaction, errorCodeCommit, storeerr.Classify(err))
}

func (store *Store) CreateTrain(ctx context.Context, input seats.TrainInput, createdUnixUTC int64) (seats.Train, error) {
	createdAt := unixOrNow(createdUnixUTC)
	model := Train{
		Name:           input.Name(),
		Source:         input.Route().Source(),
		Destination:    input.Route().Destination(),
		TotalSeats:     input.TotalSeats().Int64(),
		AvailableSeats: input.TotalSeats().Int64(),
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return seats.Train{}, wrapStoreError(errorSubjectTrain, errorCodeCreate, storeerr.Classify(err))
	}
	train, err := mapTrain(model)
	if err != nil {
		return seats.Train{}, wrapStoreError(errorSubjectTrain, errorCodeInvalid, err)
	}
	return train, nil
}

func (store *Store) GetAvailability(ctx context.Context, trainID seats.TrainID) (seats.Availability, error) {
	var model Train
	err := store.db.WithContext(ctx).Where("id = ?", trainID.Int64()).Take(&model).Error
	if err != nil {
		return seats.Availability{}, wrapStoreError(errorSubjectTrain, errorCodeGet, notFoundOr(err, seats.ErrTrainNotFound))
	}
	availability, err := seats.NewAvailability(trainID, model.TotalSeats, model.AvailableSeats)
	if err != nil {
		return seats.Availability{}, wrapStoreError(errorSubjectTrain, errorCodeInvalid, err)
	}
	return availability, nil
}

func (store *Store) FindTrains(ctx context.Context, route seats.Route) ([]seats.TrainSummary, error) {
	var rows []Train
	err := store.db.WithContext(ctx).
		Select("id", "name", "total_seats", "available_seats").
		Where("source = ? AND destination = ?", route.Source(), route.Destination()).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectTrain, errorCodeList, storeerr.Classify(err))
	}
	summaries := make([]seats.TrainSummary, 0, len(rows))
	for _, row := range rows {
		trainID, err := seats.NewTrainID(row.ID)
		if err != nil {
			return nil, wrapStoreError(errorSubjectTrain, errorCodeInvalid, err)
		}
		availability, err := seats.NewAvailability(trainID, row.TotalSeats, row.AvailableSeats)
		if err != nil {
			return nil, wrapStoreError(errorSubjectTrain, errorCodeInvalid, err)
		}
		summaries = append(summaries, seats.TrainSummary{ID: trainID, Name: row.Name, AvailableSeats: availability.AvailableSeats})
	}
	return summaries, nil
}

func (store *Store) GetBooking(ctx context.Context, bookingID seats.BookingID) (seats.BookingDetail, error) {
	var model Booking
	err := store.db.WithContext(ctx).
		Joins("Train").
		Where("bookings.id = ?", bookingID.Int64()).
		Take(&model).Error
	if err != nil {
		return seats.BookingDetail{}, wrapStoreError(errorSubjectBooking, errorCodeGet, notFoundOr(err, seats.ErrBookingNotFound))
	}
	detail, err := mapBookingDetail(model)
	if err != nil {
		return seats.BookingDetail{}, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
	}
	return detail, nil
}

func (store *Store) ListSeatDrift(ctx context.Context) ([]seats.SeatDrift, error) {
	var rows []seatDriftRow
	if err := store.db.WithContext(ctx).Raw(sqlListSeatDrift).Scan(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectLedger, errorCodeAudit, storeerr.Classify(err))
	}
	drifts := make([]seats.SeatDrift, 0, len(rows))
	for _, row := range rows {
		trainID, err := seats.NewTrainID(row.TrainID)
		if err != nil {
			return nil, wrapStoreError(errorSubjectLedger, errorCodeInvalid, err)
		}
		drifts = append(drifts, seats.SeatDrift{
			TrainID:        trainID,
			TotalSeats:     seats.SeatCount(row.TotalSeats),
			AvailableSeats: seats.SeatCount(row.AvailableSeats),
			BookedSeats:    row.BookedSeats,
		})
	}
	return drifts, nil
}

// LockTrain reads the train row with SELECT ... FOR UPDATE. SQLite has no row
// locks; Open limits it to one connection so transactions already run one at a time.
func (txStore *TxStore) LockTrain(ctx context.Context, trainID seats.TrainID) (seats.Availability, error) {
	var model Train
	err := txStore.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", trainID.Int64()).
		Take(&model).Error
	if err != nil {
		return seats.Availability{}, wrapStoreError(errorSubjectTrain, errorCodeLock, notFoundOr(err, seats.ErrTrainNotFound))
	}
	availability, err := seats.NewAvailability(trainID, model.TotalSeats, model.AvailableSeats)
	if err != nil {
		return seats.Availability{}, wrapStoreError(errorSubjectTrain, errorCodeInvalid, err)
	}
	return availability, nil
}

func (txStore *TxStore) DecrementSeat(ctx context.Context, trainID seats.TrainID) error {
	result := txStore.db.WithContext(ctx).
		Model(&Train{}).
		Where("id = ? AND available_seats > 0", trainID.Int64()).
		Update("available_seats", gorm.Expr("available_seats - ?", 1))
	if result.Error != nil {
		return wrapStoreError(errorSubjectTrain, errorCodeDecrement, storeerr.Classify(result.Error))
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectTrain, errorCodeDecrement, seats.ErrConflict)
	}
	return nil
}

func (txStore *TxStore) CreateBooking(ctx context.Context, input seats.BookingInput) (seats.BookingID, error) {
	model := Booking{
		UserID:    input.UserID().Int64(),
		TrainID:   input.TrainID().Int64(),
		Metadata:  datatypesJSON(input.Metadata().String()),
		CreatedAt: unixOrNow(input.CreatedUnixUTC()),
	}
	err := txStore.db.WithContext(ctx).Omit(clause.Associations).Create(&model).Error
	if storeerr.IsForeignKeyViolation(err) {
		return seats.BookingID{}, wrapStoreError(errorSubjectBooking, errorCodeInsert, seats.ErrTrainNotFound)
	}
	if err != nil {
		return seats.BookingID{}, wrapStoreError(errorSubjectBooking, errorCodeInsert, storeerr.Classify(err))
	}
	bookingID, err := seats.NewBookingID(model.ID)
	if err != nil {
		return seats.BookingID{}, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
	}
	return bookingID, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return seats.WrapError(errorOperationStore, subject, code, err)
}

func notFoundOr(err error, notFound error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound
	}
	return storeerr.Classify(err)
}

type seatDriftRow struct {
	TrainID        int64
	TotalSeats     int64
	AvailableSeats int64
	BookedSeats    int64
}

func mapTrain(row Train) (seats.Train, error) {
	trainID, err := seats.NewTrainID(row.ID)
	if err != nil {
		return seats.Train{}, err
	}
	route, err := seats.NewRoute(row.Source, row.Destination)
	if err != nil {
		return seats.Train{}, err
	}
	availability, err := seats.NewAvailability(trainID, row.TotalSeats, row.AvailableSeats)
	if err != nil {
		return seats.Train{}, err
	}
	return seats.Train{
		ID:             trainID,
		Name:           row.Name,
		Route:          route,
		TotalSeats:     availability.TotalSeats,
		AvailableSeats: availability.AvailableSeats,
		CreatedUnixUTC: row.CreatedAt.Unix(),
	}, nil
}

func mapBookingDetail(row Booking) (seats.BookingDetail, error) {
	bookingID, err := seats.NewBookingID(row.ID)
	if err != nil {
		return seats.BookingDetail{}, err
	}
	userID, err := seats.NewUserID(row.UserID)
	if err != nil {
		return seats.BookingDetail{}, err
	}
	trainID, err := seats.NewTrainID(row.TrainID)
	if err != nil {
		return seats.BookingDetail{}, err
	}
	metadata, err := seats.NewMetadataJSON(string(row.Metadata))
	if err != nil {
		return seats.BookingDetail{}, err
	}
	train, err := mapTrain(row.Train)
	if err != nil {
		return seats.BookingDetail{}, err
	}
	return seats.BookingDetail{
		Booking: seats.Booking{
			ID:             bookingID,
			UserID:         userID,
			TrainID:        trainID,
			Metadata:       metadata,
			CreatedUnixUTC: row.CreatedAt.Unix(),
		},
		Train: train,
	}, nil
}

func unixOrNow(unixUTC int64) time.Time {
	if unixUTC == 0 {
		return time.Now().UTC()
	}
	return time.Unix(unixUTC, 0).UTC()
}

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON([]byte(raw))
}
