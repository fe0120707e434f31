package service

import (
	"context"
	"testing"

	"github.com/ds124wfegd/ems-booking/internal/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAvailability_CachedAndInvalidated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Event.GetAvailability(ctx, eventID, vipID)
	require.NoError(t, err)
	assert.Equal(t, 10, a.Remaining)

	_, err = f.svc.Event.GetAvailability(ctx, eventID, regularID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.cache.hits)

	f.book(t, alice, vipID, 3)

	a, err = f.svc.Event.GetAvailability(ctx, eventID, vipID)
	require.NoError(t, err)
	assert.Equal(t, 7, a.Remaining)
	assert.Equal(t, 3, a.Sold)

	_, err = f.svc.Event.GetAvailability(ctx, eventID, "balcony")
	assert.ErrorIs(t, err, entity.ErrCategoryNotFound)

	_, err = f.svc.Event.GetAvailability(ctx, "nope", vipID)
	assert.ErrorIs(t, err, entity.ErrEventNotFound)
}

func TestValidatePromo(t *testing.T) {
	tests := []struct {
		code         string
		wantValid    bool
		wantDiscount int
	}{
		{code: "early", wantValid: true, wantDiscount: 20},
		{code: "OLD"},
		{code: "GONE"},
		{code: "NOPE"},
	}

	f := newFixture(t)
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			res, err := f.svc.Event.ValidatePromo(context.Background(), eventID, tt.code)
			require.NoError(t, err)
			assert.Equal(t, tt.wantValid, res.Valid)
			assert.Equal(t, tt.wantDiscount, res.DiscountPercentage)
			assert.NotEmpty(t, res.Message)
		})
	}

	assert.Equal(t, 0, f.promo(t, "EARLY").UsedCount)

	_, err := f.svc.Event.ValidatePromo(context.Background(), "nope", "EARLY")
	assert.ErrorIs(t, err, entity.ErrEventNotFound)
}
