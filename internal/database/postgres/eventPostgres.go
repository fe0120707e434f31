package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ds124wfegd/ems-booking/internal/entity"
)

type eventRepository struct {
	tx *sql.Tx
}

// GetByID retrieves an event together with its categories and promo codes
func (r *eventRepository) GetByID(ctx context.Context, eventID string) (*entity.Event, error) {
	query := `
		SELECT id, title, date, organizer_id, created_at, updated_at
		FROM events
		WHERE id = $1
	`

	var event entity.Event
	err := r.tx.QueryRowContext(ctx, query, eventID).Scan(
		&event.ID,
		&event.Title,
		&event.Date,
		&event.OrganizerID,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	if event.Categories, err = r.getCategories(ctx, eventID); err != nil {
		return nil, err
	}
	if event.PromoCodes, err = r.getPromos(ctx, eventID); err != nil {
		return nil, err
	}

	return &event, nil
}

func (r *eventRepository) getCategories(ctx context.Context, eventID string) ([]entity.TicketCategory, error) {
	query := `
		SELECT id, event_id, name, price, total, sold, version
		FROM ticket_categories
		WHERE event_id = $1
		ORDER BY name
	`

	rows, err := r.tx.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ticket categories: %w", err)
	}
	defer rows.Close()

	var categories []entity.TicketCategory
	for rows.Next() {
		var c entity.TicketCategory
		if err := rows.Scan(&c.ID, &c.EventID, &c.Name, &c.Price, &c.Total, &c.Sold, &c.Version); err != nil {
			return nil, fmt.Errorf("failed to scan ticket category: %w", err)
		}
		categories = append(categories, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ticket categories: %w", err)
	}
	return categories, nil
}

func (r *eventRepository) getPromos(ctx context.Context, eventID string) ([]entity.PromoCode, error) {
	query := `
		SELECT event_id, code, discount_percentage, expiry_date, max_usage, used_count
		FROM promo_codes
		WHERE event_id = $1
	`

	rows, err := r.tx.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to query promo codes: %w", err)
	}
	defer rows.Close()

	var promos []entity.PromoCode
	for rows.Next() {
		var p entity.PromoCode
		if err := rows.Scan(&p.EventID, &p.Code, &p.DiscountPercentage, &p.ExpiryDate, &p.MaxUsage, &p.UsedCount); err != nil {
			return nil, fmt.Errorf("failed to scan promo code: %w", err)
		}
		promos = append(promos, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating promo codes: %w", err)
	}
	return promos, nil
}

func (r *eventRepository) GetCategory(ctx context.Context, eventID, categoryID string) (*entity.TicketCategory, error) {
	query := `
		SELECT id, event_id, name, price, total, sold, version
		FROM ticket_categories
		WHERE event_id = $1 AND id = $2
	`

	var c entity.TicketCategory
	err := r.tx.QueryRowContext(ctx, query, eventID, categoryID).Scan(
		&c.ID, &c.EventID, &c.Name, &c.Price, &c.Total, &c.Sold, &c.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrCategoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket category: %w", err)
	}
	return &c, nil
}

// AdjustSold is a single conditional update, so the category row lock is the
// only lock taken and concurrent reservations on it are linearized.
func (r *eventRepository) AdjustSold(ctx context.Context, eventID, categoryID string, delta int) (int, error) {
	query := `
		UPDATE ticket_categories
		SET sold = sold + $3, version = version + 1
		WHERE event_id = $1 AND id = $2 AND sold + $3 BETWEEN 0 AND total
		RETURNING total - sold
	`

	var remaining int
	err := r.tx.QueryRowContext(ctx, query, eventID, categoryID, delta).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to adjust sold counter: %w", err)
	}

	// Nothing matched: either the category is missing or the bound check failed.
	err = r.tx.QueryRowContext(ctx,
		`SELECT total - sold FROM ticket_categories WHERE event_id = $1 AND id = $2`,
		eventID, categoryID,
	).Scan(&remaining)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, entity.ErrCategoryNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read remaining capacity: %w", err)
	}

	if delta > 0 {
		return remaining, &entity.CapacityError{Requested: delta, Remaining: remaining}
	}
	return remaining, entity.ErrLedgerUnderflow
}

func (r *eventRepository) GetPromo(ctx context.Context, eventID, code string) (*entity.PromoCode, error) {
	query := `
		SELECT event_id, code, discount_percentage, expiry_date, max_usage, used_count
		FROM promo_codes
		WHERE event_id = $1 AND code = $2
	`

	var p entity.PromoCode
	err := r.tx.QueryRowContext(ctx, query, eventID, entity.NormalizePromoCode(code)).Scan(
		&p.EventID, &p.Code, &p.DiscountPercentage, &p.ExpiryDate, &p.MaxUsage, &p.UsedCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrPromoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get promo code: %w", err)
	}
	return &p, nil
}

func (r *eventRepository) IncrementPromoUsage(ctx context.Context, eventID, code string) error {
	query := `
		UPDATE promo_codes
		SET used_count = used_count + 1
		WHERE event_id = $1 AND code = $2 AND used_count < max_usage
	`

	result, err := r.tx.ExecContext(ctx, query, eventID, entity.NormalizePromoCode(code))
	if err != nil {
		return fmt.Errorf("failed to increment promo usage: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return entity.ErrPromoExhausted
	}
	return nil
}
