package transport

import (
	"errors"
	"net/http"

	"github.com/ds124wfegd/ems-booking/internal/entity"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type SuccessResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type ErrorResponse struct {
	Success bool                   `json:"success"`
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func respondOK(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, SuccessResponse{Success: true, Message: message, Data: data})
}

func respondBadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error: err.Error(),
		Code:  "VALIDATION_ERROR",
	})
}

// respondError maps domain errors onto HTTP statuses. Anything unknown is a 500.
func respondError(c *gin.Context, err error) {
	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		logrus.WithError(err).WithField("path", c.Request.URL.Path).Error("Request failed")
	}
	c.JSON(status, body)
}

func errorResponse(err error) (int, ErrorResponse) {
	body := ErrorResponse{Error: err.Error()}

	var capacityErr *entity.CapacityError
	if errors.As(err, &capacityErr) {
		body.Code = "INSUFFICIENT_CAPACITY"
		if errors.Is(err, entity.ErrSoldOut) {
			body.Code = "SOLD_OUT"
		}
		body.Details = map[string]interface{}{"remaining": max(capacityErr.Remaining, 0)}
		return http.StatusConflict, body
	}

	var transitionErr *entity.TransitionError
	if errors.As(err, &transitionErr) {
		body.Details = map[string]interface{}{"currentStatus": transitionErr.Current}
		switch {
		case errors.Is(err, entity.ErrTooLateToCancel):
			body.Code = "TOO_LATE_TO_CANCEL"
			return http.StatusUnprocessableEntity, body
		case errors.Is(err, entity.ErrAlreadyCheckedIn):
			body.Code = "ALREADY_CHECKED_IN"
			body.Details["alreadyCheckedIn"] = true
		case errors.Is(err, entity.ErrWrongStatus):
			body.Code = "WRONG_STATUS"
		default:
			body.Code = "INVALID_TRANSITION"
		}
		return http.StatusConflict, body
	}

	switch {
	case errors.Is(err, entity.ErrEventNotFound),
		errors.Is(err, entity.ErrCategoryNotFound),
		errors.Is(err, entity.ErrBookingNotFound),
		errors.Is(err, entity.ErrPaymentNotFound),
		errors.Is(err, entity.ErrWaitlistEntryNotFound),
		errors.Is(err, entity.ErrPromoNotFound):
		body.Code = "NOT_FOUND"
		return http.StatusNotFound, body
	case errors.Is(err, entity.ErrForbidden):
		body.Code = "FORBIDDEN"
		return http.StatusForbidden, body
	case errors.Is(err, entity.ErrUnauthorized), errors.Is(err, entity.ErrInvalidSignature):
		body.Code = "UNAUTHORIZED"
		return http.StatusUnauthorized, body
	case errors.Is(err, entity.ErrTooLateToCancel):
		body.Code = "TOO_LATE_TO_CANCEL"
		return http.StatusUnprocessableEntity, body
	case errors.Is(err, entity.ErrAlreadyOnWaitlist):
		body.Code = "ALREADY_ON_WAITLIST"
		return http.StatusConflict, body
	case errors.Is(err, entity.ErrTicketsAvailable):
		body.Code = "TICKETS_AVAILABLE"
		return http.StatusConflict, body
	case errors.Is(err, entity.ErrAlreadyCheckedIn):
		body.Code = "ALREADY_CHECKED_IN"
		body.Details = map[string]interface{}{"alreadyCheckedIn": true}
		return http.StatusConflict, body
	case errors.Is(err, entity.ErrWrongStatus), errors.Is(err, entity.ErrInvalidTransition):
		body.Code = "WRONG_STATUS"
		return http.StatusConflict, body
	case errors.Is(err, entity.ErrInvalidQuantity),
		errors.Is(err, entity.ErrInvalidInput),
		errors.Is(err, entity.ErrEventDatePast),
		errors.Is(err, entity.ErrUnknownProviderStatus):
		body.Code = "VALIDATION_ERROR"
		return http.StatusBadRequest, body
	case errors.Is(err, entity.ErrTransactionConflict):
		body.Code = "CONFLICT_RETRY"
		return http.StatusServiceUnavailable, body
	case errors.Is(err, entity.ErrGatewayUnavailable):
		body.Code = "GATEWAY_UNAVAILABLE"
		return http.StatusBadGateway, body
	}

	body.Error = "internal server error"
	body.Code = "INTERNAL_ERROR"
	return http.StatusInternalServerError, body
}
