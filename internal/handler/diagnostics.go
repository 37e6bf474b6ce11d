package handler

import (
	"strconv"

	"github.com/abhishek622/evalengine/pkg/response"
	"github.com/gin-gonic/gin"
)

func (h *Handler) Health(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			response.BadRequest(c, "invalid limit")
			return
		}
		limit = n
	}
	report, err := h.Diagnostics.Health(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.OK(c, report)
}

func (h *Handler) InspectApplication(c *gin.Context) {
	id, ok := parseApplicationID(c)
	if !ok {
		return
	}
	report, err := h.Diagnostics.Inspect(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.OK(c, report)
}
