package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"docuchat/internal/ai"
	"docuchat/internal/app"
	"docuchat/internal/transport/http/response"
)

type QueryHandler struct {
	ragService *app.RAGService
}

type QueryRequest struct {
	Query       string   `json:"query" binding:"required"`
	TopK        int      `json:"top_k"`
	DocumentIDs []string `json:"document_ids"`
	Stream      bool     `json:"stream"`
}

func NewQueryHandler(ragService *app.RAGService) *QueryHandler {
	return &QueryHandler{ragService: ragService}
}

func (h *QueryHandler) Query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	if req.Stream {
		h.stream(c, req)
		return
	}

	result, err := h.ragService.Query(c.Request.Context(), app.QueryRequest{
		Query:       req.Query,
		TopK:        req.TopK,
		DocumentIDs: req.DocumentIDs,
	})
	if err != nil {
		h.writeQueryError(c, err)
		return
	}
	response.OK(c, result)
}

// stream replies with SSE: one "chunk" event per generation fragment, then a
// terminal "done" event carrying sources and cache status.
func (h *QueryHandler) stream(c *gin.Context, req QueryRequest) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Flush()

	result, err := h.ragService.Query(c.Request.Context(), app.QueryRequest{
		Query:       req.Query,
		TopK:        req.TopK,
		DocumentIDs: req.DocumentIDs,
		OnChunk: func(chunk string) error {
			return writeSSE(c, "chunk", gin.H{"content": chunk})
		},
	})
	if err != nil {
		_ = writeSSE(c, "error", gin.H{"message": err.Error()})
		return
	}

	_ = writeSSE(c, "done", gin.H{
		"sources": result.Sources,
		"cached":  result.Cached,
	})
}

func writeSSE(c *gin.Context, event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := c.Writer.WriteString("event: " + event + "\ndata: " + string(data) + "\n\n"); err != nil {
		return err
	}
	c.Writer.Flush()
	return nil
}

func (h *QueryHandler) writeQueryError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, app.ErrEmptyQuery):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, ai.ErrEmbeddingUnavailable), errors.Is(err, ai.ErrGenerationFailed):
		response.Error(c, http.StatusServiceUnavailable, response.CodeUpstreamUnavailable, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "query failed")
	}
}
