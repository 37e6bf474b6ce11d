package handler

import (
	"github.com/abhishek622/evalengine/pkg/response"
	"github.com/gin-gonic/gin"
)

func (h *Handler) GetSummary(c *gin.Context) {
	id, ok := parseApplicationID(c)
	if !ok {
		return
	}
	summary, err := h.Evaluations.GetSummary(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.OK(c, summary)
}

func (h *Handler) GetDetail(c *gin.Context) {
	id, ok := parseApplicationID(c)
	if !ok {
		return
	}
	rows, err := h.Evaluations.GetDetail(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.OK(c, gin.H{"application_id": id, "questions": rows})
}

func (h *Handler) CanGenerateResults(c *gin.Context) {
	id, ok := parseApplicationID(c)
	if !ok {
		return
	}
	can, err := h.Evaluations.CanGenerateResults(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.OK(c, gin.H{"application_id": id, "can_generate": can})
}

func (h *Handler) QuickStats(c *gin.Context) {
	id, ok := parseApplicationID(c)
	if !ok {
		return
	}
	stats, err := h.Evaluations.QuickStats(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.OK(c, stats)
}
