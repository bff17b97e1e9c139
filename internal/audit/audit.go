// Package audit periodically checks that every train's available seats equal
// its total seats minus its bookings.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/seatledger/pkg/seats"
	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

const jobName = "seat-ledger-audit"

// LedgerAuditor is satisfied by *seats.Service.
type LedgerAuditor interface {
	AuditLedger(ctx context.Context) ([]seats.SeatDrift, error)
}

// Runner executes audits and logs their findings.
type Runner struct {
	auditor LedgerAuditor
	logger  *zap.Logger
}

// NewRunner wires a Runner.
func NewRunner(auditor LedgerAuditor, logger *zap.Logger) (*Runner, error) {
	if auditor == nil {
		return nil, fmt.Errorf("audit: auditor is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{auditor: auditor, logger: logger.Named("audit")}, nil
}

// RunOnce audits the ledger and logs each drifted train at error level.
func (runner *Runner) RunOnce(ctx context.Context) ([]seats.SeatDrift, error) {
	drifts, err := runner.auditor.AuditLedger(ctx)
	if err != nil {
		runner.logger.Warn("seat ledger audit failed", zap.Error(err))
		return nil, err
	}
	for _, drift := range drifts {
		runner.logger.Error("seat ledger drift",
			zap.Int64("train_id", drift.TrainID.Int64()),
			zap.Int64("total_seats", drift.TotalSeats.Int64()),
			zap.Int64("available_seats", drift.AvailableSeats.Int64()),
			zap.Int64("booked_seats", drift.BookedSeats),
			zap.Int64("expected_available", drift.ExpectedAvailable()),
		)
	}
	if len(drifts) == 0 {
		runner.logger.Debug("seat ledger consistent")
	}
	return drifts, nil
}

// Schedule starts a scheduler that runs the audit every interval. Runs never
// overlap. Callers stop it with Shutdown.
func (runner *Runner) Schedule(interval time.Duration) (gocron.Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("audit: interval must be positive, got %s", interval)
	}
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("audit scheduler: %w", err)
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func(ctx context.Context) {
			_, _ = runner.RunOnce(ctx)
		}),
		gocron.WithName(jobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return nil, fmt.Errorf("audit job: %w", err)
	}
	scheduler.Start()
	return scheduler, nil
}
