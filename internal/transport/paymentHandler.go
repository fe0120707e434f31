package transport

import (
	"errors"
	"net/http"

	"github.com/ds124wfegd/ems-booking/internal/entity"
	"github.com/ds124wfegd/ems-booking/internal/service"
	"github.com/ds124wfegd/ems-booking/pkg/gateway"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type PaymentHandler struct {
	paymentService service.PaymentService
}

func NewPaymentHandler(paymentService service.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

// Webhook acknowledges every notification it cannot act on so the provider
// stops retrying; only infrastructure failures answer 5xx.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	var n gateway.Notification
	if err := c.ShouldBindJSON(&n); err != nil {
		respondBadRequest(c, err)
		return
	}
	if n.OrderID == "" {
		respondBadRequest(c, errors.New("order_id is required"))
		return
	}

	result, err := h.paymentService.HandleNotification(c.Request.Context(), &n)
	switch {
	case err == nil:
		respondOK(c, http.StatusOK, "Notification processed", result)
	case errors.Is(err, entity.ErrInvalidSignature):
		respondError(c, err)
	case errors.Is(err, entity.ErrPaymentNotFound), errors.Is(err, entity.ErrUnknownProviderStatus):
		logrus.WithError(err).WithField("order_id", n.OrderID).Warn("Payment notification not applicable")
		respondOK(c, http.StatusOK, "Notification ignored", gin.H{
			"orderId": n.OrderID,
			"outcome": service.OutcomeIgnored,
			"reason":  err.Error(),
		})
	default:
		logrus.WithError(err).WithField("order_id", n.OrderID).Error("Payment notification failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "notification processing failed",
			Code:  "INTERNAL_ERROR",
		})
	}
}

func (h *PaymentHandler) PollStatus(c *gin.Context) {
	result, err := h.paymentService.PollStatus(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "", result)
}

func (h *PaymentHandler) MockComplete(c *gin.Context) {
	result, err := h.paymentService.MockComplete(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Payment completed", result)
}
