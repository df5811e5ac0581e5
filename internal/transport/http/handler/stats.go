package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"docuchat/internal/app"
	"docuchat/internal/transport/http/response"
)

type StatsHandler struct {
	ragService *app.RAGService
}

func NewStatsHandler(ragService *app.RAGService) *StatsHandler {
	return &StatsHandler{ragService: ragService}
}

func (h *StatsHandler) Stats(c *gin.Context) {
	stats, err := h.ragService.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "collect stats failed")
		return
	}
	response.OK(c, stats)
}
