// Package oplog writes seat ledger operations to zap.
package oplog

import (
	"context"
	"errors"

	"github.com/MarkoPoloResearchLab/seatledger/pkg/seats"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type requestIDKey struct{}

// WithRequestID attaches a request id that Logger adds to every entry.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestID returns the request id stored by WithRequestID.
func RequestID(ctx context.Context) string {
	requestID, _ := ctx.Value(requestIDKey{}).(string)
	return requestID
}

// Logger implements seats.OperationLogger.
type Logger struct {
	logger *zap.Logger
}

// New wraps logger; a nil logger discards entries.
func New(logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{logger: logger.Named("seats")}
}

// LogOperation logs successes at info, sold-out and not-found outcomes at warn
// and everything else at error.
func (logger *Logger) LogOperation(ctx context.Context, entry seats.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	}
	if requestID := RequestID(ctx); requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	if entry.TrainID.Int64() != 0 {
		fields = append(fields, zap.Int64("train_id", entry.TrainID.Int64()))
	}
	if entry.UserID.Int64() != 0 {
		fields = append(fields, zap.Int64("user_id", entry.UserID.Int64()))
	}
	if entry.BookingID.Int64() != 0 {
		fields = append(fields, zap.Int64("booking_id", entry.BookingID.Int64()))
	}
	if entry.Attempts > 0 {
		fields = append(fields, zap.Int("attempts", entry.Attempts))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
	}
	logger.logger.Log(levelFor(entry.Error), "seat operation", fields...)
}

func levelFor(err error) zapcore.Level {
	switch {
	case err == nil:
		return zapcore.InfoLevel
	case isExpectedFailure(err):
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

func isExpectedFailure(err error) bool {
	return errors.Is(err, seats.ErrNoSeatsAvailable) || errors.Is(err, seats.ErrNotFound)
}
