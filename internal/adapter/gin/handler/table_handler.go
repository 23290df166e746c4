package handler

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sync-admin/internal/usecase/table"
	apperrors "sync-admin/pkg/errors"
	"sync-admin/pkg/logger"
)

// Sessions is the session store the handler drives.
type Sessions interface {
	Create(ctx context.Context, name string) (string, table.Session, error)
	Get(id string) (table.Session, error)
	Delete(id string) error
}

// Invalidator drops cached pages of a table.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// TableHandler handles HTTP requests for table sessions
type TableHandler struct {
	sessions     Sessions
	invalidators map[string]Invalidator
	log          *zap.Logger
}

// NewTableHandler creates a new TableHandler instance. invalidators is keyed
// by table name and may be nil.
func NewTableHandler(sessions Sessions, invalidators map[string]Invalidator, log *zap.Logger) *TableHandler {
	return &TableHandler{
		sessions:     sessions,
		invalidators: invalidators,
		log:          log,
	}
}

// SearchRequest represents the HTTP request body for search input
type SearchRequest struct {
	Query string `json:"query" binding:"max=100"`
}

// SortRequest represents the HTTP request body for a header click
type SortRequest struct {
	Key string `json:"key" binding:"required"`
}

// PageRequest represents the HTTP request body for a page change
type PageRequest struct {
	Page int `json:"page" binding:"required,min=1"`
}

// SessionResponse represents the HTTP response for a new session
type SessionResponse struct {
	ID   string     `json:"id"`
	View table.View `json:"view"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// CreateSession handles POST /v1/tables/:table/sessions
func (h *TableHandler) CreateSession(c *gin.Context) {
	name := c.Param("table")

	id, s, err := h.sessions.Create(c.Request.Context(), name)
	if err != nil {
		h.handleError(c, err)
		return
	}

	h.requestLogger(c).Info("table session opened", zap.String("session_id", id), zap.String("table", name))
	c.JSON(http.StatusCreated, SessionResponse{ID: id, View: s.View()})
}

// GetSession handles GET /v1/sessions/:id
func (h *TableHandler) GetSession(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.View())
}

// DeleteSession handles DELETE /v1/sessions/:id
func (h *TableHandler) DeleteSession(c *gin.Context) {
	if err := h.sessions.Delete(c.Param("id")); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Search handles PUT /v1/sessions/:id/search. The fetch happens once input
// settles, so the response is 202 with the view as of now.
func (h *TableHandler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}
	s, ok := h.session(c)
	if !ok {
		return
	}

	s.Search(c.Request.Context(), req.Query)
	c.JSON(http.StatusAccepted, s.View())
}

// Sort handles POST /v1/sessions/:id/sort
func (h *TableHandler) Sort(c *gin.Context) {
	var req SortRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}
	s, ok := h.session(c)
	if !ok {
		return
	}

	v, err := s.RequestSort(c.Request.Context(), req.Key)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// SetPage handles PUT /v1/sessions/:id/page
func (h *TableHandler) SetPage(c *gin.Context) {
	var req PageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.SetPage(c.Request.Context(), req.Page))
}

// Refresh handles POST /v1/sessions/:id/refresh. Cached pages of the table
// are dropped first so the refetch reaches the source.
func (h *TableHandler) Refresh(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	if inv, ok := h.invalidators[s.Table()]; ok && inv != nil {
		if err := inv.Invalidate(c.Request.Context()); err != nil {
			h.requestLogger(c).Warn("failed to invalidate page cache", zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, s.Refresh(c.Request.Context()))
}

// Export handles GET /v1/sessions/:id/export
func (h *TableHandler) Export(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	name, err := s.Export(&buf)
	if err != nil {
		h.handleError(c, apperrors.NewInternalError("export failed", err))
		return
	}

	h.requestLogger(c).Info("table exported", zap.String("file", name), zap.Int("bytes", buf.Len()))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// session resolves :id, writing the error response when it is unknown.
func (h *TableHandler) session(c *gin.Context) (table.Session, bool) {
	id := c.Param("id")
	s, err := h.sessions.Get(id)
	if err != nil {
		h.handleError(c, err)
		return nil, false
	}
	c.Request = c.Request.WithContext(logger.WithSessionID(c.Request.Context(), id))
	return s, true
}

func (h *TableHandler) requestLogger(c *gin.Context) *zap.Logger {
	return logger.WithContext(c.Request.Context(), h.log)
}

func (h *TableHandler) bindError(c *gin.Context, err error) {
	h.requestLogger(c).Warn("invalid request body", zap.Error(err))
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "validation_error",
		Message: err.Error(),
	})
}

// handleError converts usecase errors to appropriate HTTP responses
func (h *TableHandler) handleError(c *gin.Context, err error) {
	status := apperrors.StatusOf(err)

	var code string
	switch status {
	case http.StatusBadRequest:
		code = "validation_error"
	case http.StatusNotFound:
		code = "not_found"
	case http.StatusBadGateway:
		code = "upstream_error"
	default:
		code = "internal_error"
	}

	if status >= http.StatusInternalServerError {
		h.requestLogger(c).Error("request failed", zap.Error(err))
		c.JSON(status, ErrorResponse{Error: code, Message: "An internal error occurred"})
		return
	}
	c.JSON(status, ErrorResponse{Error: code, Message: err.Error()})
}
