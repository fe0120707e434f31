package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ds124wfegd/ems-booking/internal/entity"
)

type paymentRepository struct {
	tx *sql.Tx
}

const paymentColumns = `order_id, booking_id, transaction_status, payment_type, gross_amount, email_sent, created_at, updated_at`

func scanPayment(row rowScanner) (*entity.Payment, error) {
	var (
		payment     entity.Payment
		paymentType sql.NullString
	)
	err := row.Scan(
		&payment.OrderID,
		&payment.BookingID,
		&payment.TransactionStatus,
		&paymentType,
		&payment.GrossAmount,
		&payment.EmailSent,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	payment.PaymentType = paymentType.String
	return &payment, nil
}

func (r *paymentRepository) Create(ctx context.Context, payment *entity.Payment) error {
	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.tx.ExecContext(ctx, query,
		payment.OrderID,
		payment.BookingID,
		payment.TransactionStatus,
		payment.PaymentType,
		payment.GrossAmount,
		payment.EmailSent,
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (r *paymentRepository) GetByOrderIDForUpdate(ctx context.Context, orderID string) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = $1 FOR UPDATE`

	payment, err := scanPayment(r.tx.QueryRowContext(ctx, query, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return payment, nil
}

func (r *paymentRepository) GetByBookingID(ctx context.Context, bookingID string) (*entity.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE booking_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	payment, err := scanPayment(r.tx.QueryRowContext(ctx, query, bookingID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment by booking: %w", err)
	}
	return payment, nil
}

func (r *paymentRepository) Update(ctx context.Context, payment *entity.Payment) error {
	query := `
		UPDATE payments
		SET transaction_status = $2, payment_type = $3, email_sent = $4, updated_at = $5
		WHERE order_id = $1
	`

	result, err := r.tx.ExecContext(ctx, query,
		payment.OrderID,
		payment.TransactionStatus,
		payment.PaymentType,
		payment.EmailSent,
		payment.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return entity.ErrPaymentNotFound
	}
	return nil
}
