package service

import (
	"context"

	"github.com/ds124wfegd/ems-booking/internal/database"
	"github.com/ds124wfegd/ems-booking/internal/entity"
)

// Ledger is the only writer of a category's sold counter. Both operations run
// inside the caller's transaction.
type Ledger struct{}

// Reserve takes qty tickets and returns what is left, or a
// *entity.CapacityError carrying the remaining count.
func (l *Ledger) Reserve(ctx context.Context, tx database.Tx, eventID, categoryID string, qty int) (int, error) {
	if qty < 1 {
		return 0, entity.ErrInvalidQuantity
	}
	return tx.Events().AdjustSold(ctx, eventID, categoryID, qty)
}

func (l *Ledger) Release(ctx context.Context, tx database.Tx, eventID, categoryID string, qty int) (int, error) {
	if qty < 1 {
		return 0, entity.ErrInvalidQuantity
	}
	return tx.Events().AdjustSold(ctx, eventID, categoryID, -qty)
}
