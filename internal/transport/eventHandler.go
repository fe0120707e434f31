package transport

import (
	"net/http"

	"github.com/ds124wfegd/ems-booking/internal/service"

	"github.com/gin-gonic/gin"
)

type EventHandler struct {
	eventService service.EventService
}

func NewEventHandler(eventService service.EventService) *EventHandler {
	return &EventHandler{eventService: eventService}
}

type ValidatePromoRequest struct {
	Code string `json:"code" binding:"required"`
}

func (h *EventHandler) ListAvailability(c *gin.Context) {
	availability, err := h.eventService.ListAvailability(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "", availability)
}

func (h *EventHandler) GetAvailability(c *gin.Context) {
	availability, err := h.eventService.GetAvailability(c.Request.Context(), c.Param("id"), c.Param("categoryId"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "", availability)
}

func (h *EventHandler) ValidatePromo(c *gin.Context) {
	var req ValidatePromoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	result, err := h.eventService.ValidatePromo(c.Request.Context(), c.Param("id"), req.Code)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "", result)
}
