package oplog

import (
	"context"
	"errors"
	"testing"

	"github.com/MarkoPoloResearchLab/seatledger/pkg/seats"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogOperationLevelsAndFields(test *testing.T) {
	test.Parallel()
	core, logs := observer.New(zapcore.DebugLevel)
	logger := New(zap.New(core))
	trainID, _ := seats.NewTrainID(3)
	userID, _ := seats.NewUserID(9)
	bookingID, _ := seats.NewBookingID(27)
	ctx := WithRequestID(context.Background(), "req-1")

	logger.LogOperation(ctx, seats.OperationLog{Operation: "reserve", TrainID: trainID, UserID: userID, BookingID: bookingID, Attempts: 1, Status: "ok"})
	logger.LogOperation(ctx, seats.OperationLog{Operation: "reserve", TrainID: trainID, UserID: userID, Attempts: 1, Status: "error", Error: seats.ErrNoSeatsAvailable})
	logger.LogOperation(ctx, seats.OperationLog{Operation: "reserve", TrainID: trainID, UserID: userID, Attempts: 5, Status: "error", Error: errors.New("disk full")})

	entries := logs.All()
	if len(entries) != 3 {
		test.Fatalf("expected 3 entries, got %d", len(entries))
	}
	expectedLevels := []zapcore.Level{zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel}
	for index, entry := range entries {
		if entry.Level != expectedLevels[index] {
			test.Fatalf("entry %d: expected level %s, got %s", index, expectedLevels[index], entry.Level)
		}
		if entry.LoggerName != "seats" {
			test.Fatalf("expected seats logger, got %q", entry.LoggerName)
		}
	}
	fields := entries[0].ContextMap()
	if fields["request_id"] != "req-1" || fields["booking_id"] != int64(27) || fields["train_id"] != int64(3) || fields["user_id"] != int64(9) {
		test.Fatalf("unexpected fields %+v", fields)
	}
	if _, ok := entries[1].ContextMap()["booking_id"]; ok {
		test.Fatalf("failed reservation must not carry a booking id")
	}
}

func TestNewWithNilLogger(test *testing.T) {
	test.Parallel()
	New(nil).LogOperation(context.Background(), seats.OperationLog{Operation: "reserve"})
	if RequestID(context.Background()) != "" {
		test.Fatalf("expected empty request id")
	}
}
