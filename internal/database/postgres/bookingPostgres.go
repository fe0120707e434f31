package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ds124wfegd/ems-booking/internal/entity"

	"github.com/lib/pq"
)

type bookingRepository struct {
	tx *sql.Tx
}

const bookingColumns = `
	id, event_id, user_id, ticket_category_id, quantity, price_per_ticket,
	total_price, discount_applied, promo_code_used, status, payment_status,
	qr_code, selected_seats, checked_in, checked_in_at, expires_at,
	cancellation_reason, created_at, updated_at`

func scanBooking(row rowScanner) (*entity.Booking, error) {
	var (
		booking      entity.Booking
		promoCode    sql.NullString
		checkedInAt  sql.NullTime
		cancelReason sql.NullString
		seats        pq.StringArray
	)

	err := row.Scan(
		&booking.ID,
		&booking.EventID,
		&booking.UserID,
		&booking.TicketCategoryID,
		&booking.Quantity,
		&booking.PricePerTicket,
		&booking.TotalPrice,
		&booking.DiscountApplied,
		&promoCode,
		&booking.Status,
		&booking.PaymentStatus,
		&booking.QRCode,
		&seats,
		&booking.CheckedIn,
		&checkedInAt,
		&booking.ExpiresAt,
		&cancelReason,
		&booking.CreatedAt,
		&booking.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if promoCode.Valid {
		booking.PromoCodeUsed = &promoCode.String
	}
	if checkedInAt.Valid {
		booking.CheckedInAt = &checkedInAt.Time
	}
	if cancelReason.Valid {
		booking.CancellationReason = &cancelReason.String
	}
	booking.SelectedSeats = []string(seats)

	return &booking, nil
}

func (r *bookingRepository) Create(ctx context.Context, booking *entity.Booking) error {
	query := `
		INSERT INTO bookings (` + bookingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`

	_, err := r.tx.ExecContext(ctx, query,
		booking.ID,
		booking.EventID,
		booking.UserID,
		booking.TicketCategoryID,
		booking.Quantity,
		booking.PricePerTicket,
		booking.TotalPrice,
		booking.DiscountApplied,
		booking.PromoCodeUsed,
		booking.Status,
		booking.PaymentStatus,
		booking.QRCode,
		pq.Array(booking.SelectedSeats),
		booking.CheckedIn,
		booking.CheckedInAt,
		booking.ExpiresAt,
		booking.CancellationReason,
		booking.CreatedAt,
		booking.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

func (r *bookingRepository) GetByID(ctx context.Context, id string) (*entity.Booking, error) {
	return r.get(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
}

func (r *bookingRepository) GetForUpdate(ctx context.Context, id string) (*entity.Booking, error) {
	return r.get(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id)
}

func (r *bookingRepository) get(ctx context.Context, query, id string) (*entity.Booking, error) {
	booking, err := scanBooking(r.tx.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return booking, nil
}

func (r *bookingRepository) Update(ctx context.Context, booking *entity.Booking) error {
	query := `
		UPDATE bookings
		SET status = $2,
			payment_status = $3,
			checked_in = $4,
			checked_in_at = $5,
			cancellation_reason = $6,
			qr_code = $7,
			updated_at = $8
		WHERE id = $1
	`

	result, err := r.tx.ExecContext(ctx, query,
		booking.ID,
		booking.Status,
		booking.PaymentStatus,
		booking.CheckedIn,
		booking.CheckedInAt,
		booking.CancellationReason,
		booking.QRCode,
		booking.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return entity.ErrBookingNotFound
	}
	return nil
}

func (r *bookingRepository) GetByUserID(ctx context.Context, userID string) ([]*entity.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE user_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, userID)
}

func (r *bookingRepository) GetStalePending(ctx context.Context, createdBefore time.Time, after *entity.BookingCursor, limit int) ([]*entity.Booking, error) {
	if after == nil {
		query := `
			SELECT ` + bookingColumns + `
			FROM bookings
			WHERE status = $1 AND payment_status = $2 AND created_at < $3
			ORDER BY created_at, id
			LIMIT $4
		`
		return r.list(ctx, query, entity.BookingStatusPending, entity.PaymentStatusPending, createdBefore, limit)
	}

	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status = $1 AND payment_status = $2 AND created_at < $3
			AND (created_at, id) > ($4, $5)
		ORDER BY created_at, id
		LIMIT $6
	`
	return r.list(ctx, query, entity.BookingStatusPending, entity.PaymentStatusPending, createdBefore, after.CreatedAt, after.ID, limit)
}

func (r *bookingRepository) list(ctx context.Context, query string, args ...any) ([]*entity.Booking, error) {
	rows, err := r.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*entity.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bookings: %w", err)
	}
	return bookings, nil
}
