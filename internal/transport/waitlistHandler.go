package transport

import (
	"net/http"

	"github.com/ds124wfegd/ems-booking/internal/service"
	"github.com/ds124wfegd/ems-booking/internal/transport/middleware"

	"github.com/gin-gonic/gin"
)

type WaitlistHandler struct {
	waitlistService service.WaitlistService
}

func NewWaitlistHandler(waitlistService service.WaitlistService) *WaitlistHandler {
	return &WaitlistHandler{waitlistService: waitlistService}
}

func (h *WaitlistHandler) Join(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)

	var req service.JoinWaitlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	result, err := h.waitlistService.Join(c.Request.Context(), actor, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, "Joined waitlist", result)
}

func (h *WaitlistHandler) Leave(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)

	entry, err := h.waitlistService.Leave(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Left waitlist", entry)
}

func (h *WaitlistHandler) Position(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)

	result, err := h.waitlistService.Position(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "", result)
}
