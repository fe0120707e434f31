package service

import (
	"context"
	"errors"
	"time"

	"github.com/ds124wfegd/ems-booking/internal/database"
	"github.com/ds124wfegd/ems-booking/internal/entity"
)

type PromoResult struct {
	Valid              bool   `json:"valid"`
	Code               string `json:"code"`
	DiscountPercentage int    `json:"discount_percentage"`
	Message            string `json:"message"`
}

type PromoValidator struct{}

// Validate is a pure check; promo is nil when the code does not exist.
func (v *PromoValidator) Validate(promo *entity.PromoCode, code string, now time.Time) PromoResult {
	result := PromoResult{Code: entity.NormalizePromoCode(code)}

	switch {
	case promo == nil:
		result.Message = "promo code not found"
	case !now.Before(promo.ExpiryDate):
		result.Message = "promo code has expired"
	case promo.UsedCount >= promo.MaxUsage:
		result.Message = "promo code usage limit reached"
	default:
		result.Valid = true
		result.DiscountPercentage = promo.DiscountPercentage
		result.Message = "promo code is valid"
	}
	return result
}

// Apply consumes one use of code and returns the discount to grant. Invalid,
// expired and exhausted codes, including a ceiling reached by a concurrent
// booking, give a zero discount instead of an error.
func (v *PromoValidator) Apply(ctx context.Context, tx database.Tx, eventID, code string, now time.Time) (int, *string, error) {
	if entity.NormalizePromoCode(code) == "" {
		return 0, nil, nil
	}

	promo, err := tx.Events().GetPromo(ctx, eventID, code)
	if errors.Is(err, entity.ErrPromoNotFound) {
		return 0, nil, nil
	}
	if err != nil {
		return 0, nil, err
	}

	if !v.Validate(promo, code, now).Valid {
		return 0, nil, nil
	}

	err = tx.Events().IncrementPromoUsage(ctx, eventID, promo.Code)
	if errors.Is(err, entity.ErrPromoExhausted) {
		return 0, nil, nil
	}
	if err != nil {
		return 0, nil, err
	}

	applied := promo.Code
	return promo.DiscountPercentage, &applied, nil
}
