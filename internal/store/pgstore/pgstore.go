package pgstore

import (
	"context"
	_ "embed"
	"errors"

	"github.com/MarkoPoloResearchLab/seatledger/internal/store/storeerr"
	"github.com/MarkoPoloResearchLab/seatledger/pkg/seats"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	errorOperationStore     = "store"
	errorSubjectTrain       = "train"
	errorSubjectBooking     = "booking"
	errorSubjectLedger      = "ledger"
	errorSubjectSchema      = "schema"
	errorSubjectTransaction = "transaction"
	errorSubjectUser        = "user"
	errorCodeApply          = "apply"
	errorCodeAudit          = "audit"
	errorCodeBegin          = "begin"
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

	sqlInsertTrain = `
		insert into trains(name, source, destination, total_seats, available_seats, created_at, updated_at)
		values ($1, $2, $3, $4, $4, to_timestamp($5), to_timestamp($5))
		returning id
	`

	sqlSelectAvailability = `
		select total_seats, available_seats from trains where id = $1
	`

	sqlLockTrain = `
		select total_seats, available_seats from trains where id = $1
		for update
	`

	sqlDecrementSeat = `
		update trains
		set available_seats = available_seats - 1, updated_at = now()
		where id = $1 and available_seats > 0
	`

	sqlInsertBooking = `
		insert into bookings(user_id, train_id, metadata, created_at)
		values ($1, $2, coalesce(nullif($3,''),'{}')::jsonb, to_timestamp($4))
		returning id
	`

	sqlFindTrains = `
		select id, name, total_seats, available_seats
		from trains
		where source = $1 and destination = $2
		order by id asc
	`

	sqlSelectBooking = `
		select
			b.id, b.user_id, b.train_id, coalesce(b.metadata::text,'{}'), extract(epoch from b.created_at)::bigint,
			t.name, t.source, t.destination, t.total_seats, t.available_seats, extract(epoch from t.created_at)::bigint
		from bookings b
		join trains t on t.id = b.train_id
		where b.id = $1
	`

	sqlListSeatDrift = `
		select t.id, t.total_seats, t.available_seats, count(b.id)
		from trains t
		left join bookings b on b.train_id = t.id
		group by t.id, t.total_seats, t.available_seats
		having t.available_seats <> t.total_seats - count(b.id)
		order by t.id
	`
)

//go:embed schema.sql
var schemaSQL string

// Store implements seats.Store using a pgx connection pool (autocommit).
type Store struct {
	pool *pgxpool.Pool
}

// TxStore implements seats.TxStore for an active transaction.
type TxStore struct {
	tx pgx.Tx
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the trains, bookings and users tables when missing.
func (store *Store) EnsureSchema(ctx context.Context) error {
	if _, err := store.pool.Exec(ctx, schemaSQL); err != nil {
		return wrapStoreError(errorSubjectSchema, errorCodeApply, storeerr.Classify(err))
	}
	return nil
}

func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore seats.TxStore) error) error {
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeBegin, storeerr.Classify(err))
	}
	transactionStore := &TxStore{tx: tx}
	if err := fn(ctx, transactionStore); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeCommit, storeerr.Classify(err))
	}
	return nil
}

func (store *Store) CreateTrain(ctx context.Context, input seats.TrainInput, createdUnixUTC int64) (seats.Train, error) {
	var id int64
	err := store.pool.QueryRow(ctx, sqlInsertTrain,
		input.Name(),
		input.Route().Source(),
		input.Route().Destination(),
		input.TotalSeats().Int64(),
		createdUnixUTC,
	).Scan(&id)
	if err != nil {
		return seats.Train{}, wrapStoreError(errorSubjectTrain, errorCodeCreate, storeerr.Classify(err))
	}
	trainID, err := seats.NewTrainID(id)
	if err != nil {
		return seats.Train{}, wrapStoreError(errorSubjectTrain, errorCodeInvalid, err)
	}
	return seats.Train{
		ID:             trainID,
		Name:           input.Name(),
		Route:          input.Route(),
		TotalSeats:     input.TotalSeats(),
		AvailableSeats: input.TotalSeats(),
		CreatedUnixUTC: createdUnixUTC,
	}, nil
}

func (store *Store) GetAvailability(ctx context.Context, trainID seats.TrainID) (seats.Availability, error) {
	return scanAvailability(store.pool.QueryRow(ctx, sqlSelectAvailability, trainID.Int64()), trainID, errorCodeGet)
}

func (store *Store) FindTrains(ctx context.Context, route seats.Route) ([]seats.TrainSummary, error) {
	rows, err := store.pool.Query(ctx, sqlFindTrains, route.Source(), route.Destination())
	if err != nil {
		return nil, wrapStoreError(errorSubjectTrain, errorCodeList, storeerr.Classify(err))
	}
	defer rows.Close()

	summaries := []seats.TrainSummary{}
	for rows.Next() {
		var (
			id             int64
			name           string
			totalSeats     int64
			availableSeats int64
		)
		if err := rows.Scan(&id, &name, &totalSeats, &availableSeats); err != nil {
			return nil, wrapStoreError(errorSubjectTrain, errorCodeList, storeerr.Classify(err))
		}
		trainID, err := seats.NewTrainID(id)
		if err != nil {
			return nil, wrapStoreError(errorSubjectTrain, errorCodeInvalid, err)
		}
		availability, err := seats.NewAvailability(trainID, totalSeats, availableSeats)
		if err != nil {
			return nil, wrapStoreError(errorSubjectTrain, errorCodeInvalid, err)
		}
		summaries = append(summaries, seats.TrainSummary{ID: trainID, Name: name, AvailableSeats: availability.AvailableSeats})
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectTrain, errorCodeList, storeerr.Classify(err))
	}
	return summaries, nil
}

func (store *Store) GetBooking(ctx context.Context, bookingID seats.BookingID) (seats.BookingDetail, error) {
	var row bookingRow
	err := store.pool.QueryRow(ctx, sqlSelectBooking, bookingID.Int64()).Scan(
		&row.id, &row.userID, &row.trainID, &row.metadata, &row.createdUnixUTC,
		&row.trainName, &row.source, &row.destination, &row.totalSeats, &row.availableSeats, &row.trainCreatedUnixUTC,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return seats.BookingDetail{}, wrapStoreError(errorSubjectBooking, errorCodeGet, seats.ErrBookingNotFound)
		}
		return seats.BookingDetail{}, wrapStoreError(errorSubjectBooking, errorCodeGet, storeerr.Classify(err))
	}
	detail, err := row.toDetail()
	if err != nil {
		return seats.BookingDetail{}, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
	}
	return detail, nil
}

func (store *Store) ListSeatDrift(ctx context.Context) ([]seats.SeatDrift, error) {
	rows, err := store.pool.Query(ctx, sqlListSeatDrift)
	if err != nil {
		return nil, wrapStoreError(errorSubjectLedger, errorCodeAudit, storeerr.Classify(err))
	}
	defer rows.Close()

	drifts := []seats.SeatDrift{}
	for rows.Next() {
		var id, totalSeats, availableSeats, bookedSeats int64
		if err := rows.Scan(&id, &totalSeats, &availableSeats, &bookedSeats); err != nil {
			return nil, wrapStoreError(errorSubjectLedger, errorCodeAudit, storeerr.Classify(err))
		}
		trainID, err := seats.NewTrainID(id)
		if err != nil {
			return nil, wrapStoreError(errorSubjectLedger, errorCodeInvalid, err)
		}
		drifts = append(drifts, seats.SeatDrift{
			TrainID:        trainID,
			TotalSeats:     seats.SeatCount(totalSeats),
			AvailableSeats: seats.SeatCount(availableSeats),
			BookedSeats:    bookedSeats,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectLedger, errorCodeAudit, storeerr.Classify(err))
	}
	return drifts, nil
}

func (store *TxStore) LockTrain(ctx context.Context, trainID seats.TrainID) (seats.Availability, error) {
	return scanAvailability(store.tx.QueryRow(ctx, sqlLockTrain, trainID.Int64()), trainID, errorCodeLock)
}

func (store *TxStore) DecrementSeat(ctx context.Context, trainID seats.TrainID) error {
	tag, err := store.tx.Exec(ctx, sqlDecrementSeat, trainID.Int64())
	if err != nil {
		return wrapStoreError(errorSubjectTrain, errorCodeDecrement, storeerr.Classify(err))
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectTrain, errorCodeDecrement, seats.ErrConflict)
	}
	return nil
}

func (store *TxStore) CreateBooking(ctx context.Context, input seats.BookingInput) (seats.BookingID, error) {
	var id int64
	err := store.tx.QueryRow(ctx, sqlInsertBooking,
		input.UserID().Int64(),
		input.TrainID().Int64(),
		input.Metadata().String(),
		input.CreatedUnixUTC(),
	).Scan(&id)
	if storeerr.IsForeignKeyViolation(err) {
		return seats.BookingID{}, wrapStoreError(errorSubjectBooking, errorCodeInsert, seats.ErrTrainNotFound)
	}
	if err != nil {
		return seats.BookingID{}, wrapStoreError(errorSubjectBooking, errorCodeInsert, storeerr.Classify(err))
	}
	bookingID, err := seats.NewBookingID(id)
	if err != nil {
		return seats.BookingID{}, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
	}
	return bookingID, nil
}

func scanAvailability(row pgx.Row, trainID seats.TrainID, code string) (seats.Availability, error) {
	var totalSeats, availableSeats int64
	if err := row.Scan(&totalSeats, &availableSeats); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return seats.Availability{}, wrapStoreError(errorSubjectTrain, code, seats.ErrTrainNotFound)
		}
		return seats.Availability{}, wrapStoreError(errorSubjectTrain, code, storeerr.Classify(err))
	}
	availability, err := seats.NewAvailability(trainID, totalSeats, availableSeats)
	if err != nil {
		return seats.Availability{}, wrapStoreError(errorSubjectTrain, errorCodeInvalid, err)
	}
	return availability, nil
}

type bookingRow struct {
	id                  int64
	userID              int64
	trainID             int64
	metadata            string
	createdUnixUTC      int64
	trainName           string
	source              string
	destination         string
	totalSeats          int64
	availableSeats      int64
	trainCreatedUnixUTC int64
}

func (row bookingRow) toDetail() (seats.BookingDetail, error) {
	bookingID, err := seats.NewBookingID(row.id)
	if err != nil {
		return seats.BookingDetail{}, err
	}
	userID, err := seats.NewUserID(row.userID)
	if err != nil {
		return seats.BookingDetail{}, err
	}
	trainID, err := seats.NewTrainID(row.trainID)
	if err != nil {
		return seats.BookingDetail{}, err
	}
	metadata, err := seats.NewMetadataJSON(row.metadata)
	if err != nil {
		return seats.BookingDetail{}, err
	}
	route, err := seats.NewRoute(row.source, row.destination)
	if err != nil {
		return seats.BookingDetail{}, err
	}
	availability, err := seats.NewAvailability(trainID, row.totalSeats, row.availableSeats)
	if err != nil {
		return seats.BookingDetail{}, err
	}
	return seats.BookingDetail{
		Booking: seats.Booking{
			ID:             bookingID,
			UserID:         userID,
			TrainID:        trainID,
			Metadata:       metadata,
			CreatedUnixUTC: row.createdUnixUTC,
		},
		Train: seats.Train{
			ID:             trainID,
			Name:           row.trainName,
			Route:          route,
			TotalSeats:     availability.TotalSeats,
			AvailableSeats: availability.AvailableSeats,
			CreatedUnixUTC: row.trainCreatedUnixUTC,
		},
	}, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return seats.WrapError(errorOperationStore, subject, code, err)
}
