package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"docuchat/internal/app"
	"docuchat/internal/extract"
	"docuchat/internal/model"
	"docuchat/internal/transport/http/response"
)

const maxUploadSize = 20 << 20 // 20 MB

// IngestScheduler hands a pending document to the async worker. When nil,
// the handler processes the document synchronously before replying.
type IngestScheduler interface {
	Publish(ctx context.Context, job model.IngestJob) error
}

type DocumentHandler struct {
	ragService *app.RAGService
	scheduler  IngestScheduler
}

func NewDocumentHandler(ragService *app.RAGService, scheduler IngestScheduler) *DocumentHandler {
	return &DocumentHandler{ragService: ragService, scheduler: scheduler}
}

// Upload accepts a multipart form with "file" and optional "name", records
// the document, and schedules ingestion. The reply carries the document ID
// and its status at reply time.
func (h *DocumentHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}
	if file.Size > maxUploadSize {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "file too large (max 20MB)")
		return
	}
	if !extract.Supported(filepath.Ext(file.Filename)) {
		response.Error(c, http.StatusBadRequest, response.CodeUnsupportedFormat,
			"unsupported file type, expected one of: pdf, docx, md, txt, csv, json, xlsx")
		return
	}

	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}

	filename := strings.TrimSpace(c.PostForm("name"))
	if filename == "" {
		filename = file.Filename
	} else if filepath.Ext(filename) == "" {
		filename += filepath.Ext(file.Filename)
	}

	doc, err := h.ragService.CreateDocument(filename, data)
	if err != nil {
		switch {
		case errors.Is(err, extract.ErrUnsupportedFormat):
			response.Error(c, http.StatusBadRequest, response.CodeUnsupportedFormat, err.Error())
		case errors.Is(err, extract.ErrEmptyDocument):
			response.Error(c, http.StatusBadRequest, response.CodeEmptyDocument, err.Error())
		case errors.Is(err, extract.ErrCorruptDocument):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "create document failed")
		}
		return
	}

	status := doc.Status
	if h.scheduler != nil {
		if err := h.scheduler.Publish(c.Request.Context(), model.IngestJob{DocumentID: doc.ID}); err != nil {
			response.Error(c, http.StatusServiceUnavailable, response.CodeUpstreamUnavailable, "schedule ingestion failed")
			return
		}
	} else {
		if err := h.ragService.ProcessDocument(c.Request.Context(), doc.ID); err != nil {
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "ingest failed: "+err.Error())
			return
		}
		status = model.DocumentStatusProcessed
	}

	response.OK(c, gin.H{
		"document_id": doc.ID,
		"status":      status,
	})
}

func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.ragService.ListDocuments()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list documents failed")
		return
	}
	response.OK(c, docs)
}

func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.ragService.GetDocument(c.Param("id"))
	if err != nil {
		if errors.Is(err, app.ErrDocumentNotFound) {
			response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, err.Error())
		} else {
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "get document failed")
		}
		return
	}
	response.OK(c, doc)
}

func (h *DocumentHandler) Clear(c *gin.Context) {
	if err := h.ragService.ClearDocuments(c.Request.Context()); err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "clear documents failed")
		return
	}
	response.OK(c, gin.H{"message": "all documents deleted"})
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.ragService.DeleteDocument(c.Request.Context(), id); err != nil {
		if errors.Is(err, app.ErrDocumentNotFound) {
			response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, err.Error())
		} else {
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "delete document failed")
		}
		return
	}
	response.OK(c, gin.H{"deleted_document_id": id})
}
