package transport

import (
	"errors"
	"net/http"

	"github.com/ds124wfegd/ems-booking/internal/entity"
	"github.com/ds124wfegd/ems-booking/internal/service"
	"github.com/ds124wfegd/ems-booking/internal/transport/middleware"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type BookingHandler struct {
	bookingService service.BookingService
	paymentService service.PaymentService
}

func NewBookingHandler(bookingService service.BookingService, paymentService service.PaymentService) *BookingHandler {
	return &BookingHandler{bookingService: bookingService, paymentService: paymentService}
}

type CancelBookingRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

type PaymentInitiatedResponse struct {
	OrderID     string          `json:"orderId"`
	BookingID   string          `json:"bookingId"`
	GrossAmount decimal.Decimal `json:"grossAmount"`
	Status      string          `json:"transactionStatus"`
}

func (h *BookingHandler) CreateBooking(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)

	var req service.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	result, err := h.bookingService.CreateBooking(c.Request.Context(), actor, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, "Booking created", result)
}

func (h *BookingHandler) GetBooking(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)

	booking, err := h.bookingService.GetBooking(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "", booking)
}

func (h *BookingHandler) ListBookings(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)

	bookings, err := h.bookingService.ListUserBookings(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	if bookings == nil {
		bookings = []*entity.Booking{}
	}

	respondOK(c, http.StatusOK, "", bookings)
}

func (h *BookingHandler) CancelBooking(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)

	var req CancelBookingRequest
	// The body is optional.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, err)
			return
		}
	}

	booking, err := h.bookingService.CancelBooking(c.Request.Context(), actor, c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Booking cancelled", booking)
}

func (h *BookingHandler) CheckIn(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)

	booking, err := h.bookingService.CheckIn(c.Request.Context(), actor, c.Param("id"))
	if errors.Is(err, entity.ErrAlreadyCheckedIn) && booking != nil {
		status, body := errorResponse(err)
		body.Details["booking"] = booking
		c.JSON(status, body)
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Checked in", booking)
}

func (h *BookingHandler) InitiatePayment(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)

	payment, err := h.paymentService.InitiatePayment(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, "Payment initiated", PaymentInitiatedResponse{
		OrderID:     payment.OrderID,
		BookingID:   payment.BookingID,
		GrossAmount: payment.GrossAmount,
		Status:      string(payment.TransactionStatus),
	})
}
