package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ds124wfegd/ems-booking/internal/database"
	"github.com/ds124wfegd/ems-booking/internal/entity"
	"github.com/ds124wfegd/ems-booking/pkg/retry"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

type unitOfWork struct {
	db    *sql.DB
	retry *retry.RetryManager
}

// NewUnitOfWork runs every unit at SERIALIZABLE isolation and replays it on
// serialization failures and deadlocks.
func NewUnitOfWork(db *sql.DB, maxAttempts int, baseDelay time.Duration) database.UnitOfWork {
	return &unitOfWork{
		db:    db,
		retry: retry.NewRetryManager(maxAttempts, baseDelay, IsRetryable),
	}
}

func (u *unitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context, tx database.Tx) error) error {
	err := u.retry.Do(ctx, func(attempt int) error {
		err := u.runOnce(ctx, fn)
		if err != nil && IsRetryable(err) {
			logrus.WithFields(logrus.Fields{
				"attempt": attempt,
				"error":   err.Error(),
			}).Warn("Transaction conflict, retrying")
		}
		return err
	})
	if errors.Is(err, retry.ErrExhausted) {
		return fmt.Errorf("%w: %v", entity.ErrTransactionConflict, err)
	}
	return err
}

func (u *unitOfWork) runOnce(ctx context.Context, fn func(ctx context.Context, tx database.Tx) error) (err error) {
	sqlTx, err := u.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err = fn(ctx, &txRepositories{tx: sqlTx}); err != nil {
		return err
	}

	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// IsRetryable reports whether err is a transient write conflict.
func IsRetryable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqSerializationFailure || pqErr.Code == pqDeadlockDetected
	}
	return false
}

type txRepositories struct {
	tx *sql.Tx
}

func (t *txRepositories) Events() database.EventRepository {
	return &eventRepository{tx: t.tx}
}

func (t *txRepositories) Bookings() database.BookingRepository {
	return &bookingRepository{tx: t.tx}
}

func (t *txRepositories) Payments() database.PaymentRepository {
	return &paymentRepository{tx: t.tx}
}

func (t *txRepositories) Waitlist() database.WaitlistRepository {
	return &waitlistRepository{tx: t.tx}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
