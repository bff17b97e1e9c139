// Package storeerr maps driver errors onto the seat ledger error taxonomy.
package storeerr

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/MarkoPoloResearchLab/seatledger/pkg/seats"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgSerializationFailureCode = "40001"
	pgDeadlockDetectedCode     = "40P01"
	pgLockNotAvailableCode     = "55P03"
	pgUniqueViolationCode      = "23505"
	pgForeignKeyViolationCode  = "23503"
	pgConnectionExceptionClass = "08"
	pgAdminShutdownCode        = "57P01"
	pgCannotConnectNowCode     = "57P03"

	sqlitePrimaryCodeMask = 0xFF
	sqliteBusyCode        = 5
	sqliteLockedCode      = 6
	sqliteConstraintCode  = 19
	sqliteForeignKeyCode  = 787
	sqliteUniqueCode      = 2067
	sqlitePrimaryKeyCode  = 1555
)

// Classify tags err with seats.ErrConflict when a retry may succeed against the same data,
// or with seats.ErrStorageUnavailable when the backend could not be reached.
// Other errors are returned unchanged.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, seats.ErrConflict), errors.Is(err, seats.ErrStorageUnavailable):
		return err
	case IsConflict(err):
		return fmt.Errorf("%w: %w", seats.ErrConflict, err)
	case IsUnavailable(err):
		return fmt.Errorf("%w: %w", seats.ErrStorageUnavailable, err)
	default:
		return err
	}
}

// IsConflict reports lock contention and serialization failures.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailureCode, pgDeadlockDetectedCode, pgLockNotAvailableCode:
			return true
		}
		return false
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		primary := sqliteErr.Code() & sqlitePrimaryCodeMask
		return primary == sqliteBusyCode || primary == sqliteLockedCode
	}
	return false
}

// IsUnavailable reports connection loss, timeouts and cancellation.
func IsUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, pgConnectionExceptionClass) || pgErr.Code == pgAdminShutdownCode || pgErr.Code == pgCannotConnectNowCode
	}
	var connectErr *pgconn.ConnectError
	return errors.As(err, &connectErr)
}

// IsUniqueViolation reports duplicate keys.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return isSQLiteConstraint(sqliteErr, sqliteUniqueCode, "UNIQUE") || isSQLiteConstraint(sqliteErr, sqlitePrimaryKeyCode, "PRIMARY KEY")
	}
	return false
}

// IsForeignKeyViolation reports a reference to a missing row.
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgForeignKeyViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return isSQLiteConstraint(sqliteErr, sqliteForeignKeyCode, "FOREIGN KEY")
	}
	return false
}

// Extended result codes are not always enabled, so the primary code plus the
// message identify the constraint.
func isSQLiteConstraint(sqliteErr *gosqlite.Error, extendedCode int, marker string) bool {
	if sqliteErr.Code() == extendedCode {
		return true
	}
	return sqliteErr.Code()&sqlitePrimaryCodeMask == sqliteConstraintCode && strings.Contains(sqliteErr.Error(), marker)
}
