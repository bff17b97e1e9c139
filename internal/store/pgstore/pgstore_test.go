package pgstore

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"

	"github.com/MarkoPoloResearchLab/seatledger/pkg/seats"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

const postgresURLEnv = "SEATLEDGER_TEST_POSTGRES_URL"

func newIntegrationStore(test *testing.T) *Store {
	test.Helper()
	databaseURL := os.Getenv(postgresURLEnv)
	if databaseURL == "" {
		test.Skipf("%s not set", postgresURLEnv)
	}
	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		test.Fatalf("pool: %v", err)
	}
	test.Cleanup(pool.Close)
	store := New(pool)
	if err := store.EnsureSchema(context.Background()); err != nil {
		test.Fatalf("schema: %v", err)
	}
	return store
}

func TestReserveConcurrentRequestsNeverOversell(test *testing.T) {
	store := newIntegrationStore(test)
	service, err := seats.NewService(store, func() int64 { return 1700000000 })
	if err != nil {
		test.Fatalf("service: %v", err)
	}
	input, err := seats.NewTrainInput("Rajdhani", "Mumbai", "Delhi", 5)
	if err != nil {
		test.Fatalf("train input: %v", err)
	}
	train, err := service.AddTrain(context.Background(), input)
	if err != nil {
		test.Fatalf("add train: %v", err)
	}
	userID, _ := seats.NewUserID(1)
	metadata, _ := seats.NewMetadataJSON("")

	const requests = 25
	var successes, soldOut atomic.Int64
	var group errgroup.Group
	for index := 0; index < requests; index++ {
		group.Go(func() error {
			_, err := service.Reserve(context.Background(), train.ID, userID, metadata)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, seats.ErrNoSeatsAvailable):
				soldOut.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		test.Fatalf("reserve: %v", err)
	}
	if successes.Load() != 5 || soldOut.Load() != requests-5 {
		test.Fatalf("expected 5 successes, got %d (sold out %d)", successes.Load(), soldOut.Load())
	}
	availability, err := service.GetAvailability(context.Background(), train.ID)
	if err != nil {
		test.Fatalf("availability: %v", err)
	}
	if availability.AvailableSeats != 0 {
		test.Fatalf("expected 0 seats, got %d", availability.AvailableSeats)
	}
}

func TestGetBookingNotFound(test *testing.T) {
	store := newIntegrationStore(test)
	missing, _ := seats.NewBookingID(1 << 40)
	if _, err := store.GetBooking(context.Background(), missing); !errors.Is(err, seats.ErrNotFound) {
		test.Fatalf("expected ErrNotFound, got %v", err)
	}
	trainID, _ := seats.NewTrainID(1 << 40)
	if _, err := store.GetAvailability(context.Background(), trainID); !errors.Is(err, seats.ErrTrainNotFound) {
		test.Fatalf("expected ErrTrainNotFound, got %v", err)
	}
}
