package upload

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/abduss/goupload/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RegisterRoutes mounts upload session operations under the provided router group.
func RegisterRoutes(group *gin.RouterGroup, service *Service) {
	handler := &httpHandler{service: service}
	group.POST("/uploads", handler.createSession)
	group.GET("/uploads", handler.listSessions)
	group.GET("/uploads/:uploadID", handler.getSession)
	group.PUT("/uploads/:uploadID/chunks/:index", handler.submitChunk)
	group.GET("/uploads/:uploadID/progress", handler.progress)
	group.POST("/uploads/:uploadID/pause", handler.pauseSession)
	group.POST("/uploads/:uploadID/resume", handler.resumeSession)
	group.DELETE("/uploads/:uploadID", handler.cancelSession)
}

type httpHandler struct {
	service *Service
}

// chunkHashHeader carries the client-declared sha256 of the chunk body.
const chunkHashHeader = "X-Chunk-Sha256"

type createSessionRequest struct {
	FileName       string `json:"file_name" binding:"required,max=1024"`
	TotalSize      int64  `json:"total_size" binding:"required"`
	MimeType       string `json:"mime_type" binding:"omitempty,max=255"`
	ChunkSize      int64  `json:"chunk_size"`
	ExpectedSHA256 string `json:"expected_sha256" binding:"omitempty,len=64"`
	TargetBucket   string `json:"target_bucket" binding:"omitempty,max=63"`
}

func (h *httpHandler) createSession(c *gin.Context) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.service.Create(c.Request.Context(), userID, CreateInput{
		FileName:       req.FileName,
		TotalSize:      req.TotalSize,
		MimeType:       req.MimeType,
		ChunkSize:      req.ChunkSize,
		ExpectedSHA256: req.ExpectedSHA256,
		TargetBucket:   req.TargetBucket,
	})
	if err != nil {
		writeUploadError(c, err)
		return
	}

	c.JSON(http.StatusCreated, session)
}

func (h *httpHandler) listSessions(c *gin.Context) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"uploads": h.service.ListForOwner(userID)})
}

func (h *httpHandler) getSession(c *gin.Context) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	sessionID, err := uuid.Parse(c.Param("uploadID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid upload id"})
		return
	}

	session, err := h.service.Get(c.Request.Context(), userID, sessionID)
	if err != nil {
		writeUploadError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

func (h *httpHandler) submitChunk(c *gin.Context) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	sessionID, err := uuid.Parse(c.Param("uploadID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid upload id"})
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chunk index"})
		return
	}

	limit := h.service.cfg.MaxChunkSize
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, limit+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read chunk body"})
		return
	}
	if int64(len(body)) > limit {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chunk body exceeds maximum chunk size"})
		return
	}

	result, err := h.service.SubmitChunk(c.Request.Context(), userID, sessionID, index, body, c.GetHeader(chunkHashHeader))
	if err != nil {
		writeUploadError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *httpHandler) progress(c *gin.Context) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	sessionID, err := uuid.Parse(c.Param("uploadID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid upload id"})
		return
	}

	snap, err := h.service.Progress(c.Request.Context(), userID, sessionID)
	if err != nil {
		writeUploadError(c, err)
		return
	}

	c.JSON(http.StatusOK, snap)
}

func (h *httpHandler) pauseSession(c *gin.Context) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	sessionID, err := uuid.Parse(c.Param("uploadID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid upload id"})
		return
	}

	session, err := h.service.Pause(c.Request.Context(), userID, sessionID)
	if err != nil {
		writeUploadError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

func (h *httpHandler) resumeSession(c *gin.Context) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	sessionID, err := uuid.Parse(c.Param("uploadID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid upload id"})
		return
	}

	session, err := h.service.Resume(c.Request.Context(), userID, sessionID)
	if err != nil {
		writeUploadError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

func (h *httpHandler) cancelSession(c *gin.Context) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	sessionID, err := uuid.Parse(c.Param("uploadID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid upload id"})
		return
	}

	if err := h.service.Cancel(c.Request.Context(), userID, sessionID); err != nil {
		writeUploadError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// writeUploadError maps service errors to HTTP responses. Retryable rejections
// include the backoff hint so clients know when to resubmit; terminal failures
// use 422 to signal that the session is beyond saving.
func writeUploadError(c *gin.Context, err error) {
	var (
		validationErr *ValidationError
		retryableErr  *RetryableError
		terminalErr   *TerminalError
	)

	switch {
	case errors.As(err, &retryableErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":          retryableErr.Error(),
			"retryable":      true,
			"attempt":        retryableErr.Attempt,
			"retry_after_ms": retryableErr.RetryAfter.Milliseconds(),
		})
	case errors.As(err, &terminalErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":     terminalErr.Error(),
			"retryable": false,
			"stage":     terminalErr.Stage,
		})
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error()})
	case errors.Is(err, ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "upload session not found"})
	case errors.Is(err, ErrSessionExpired):
		c.JSON(http.StatusGone, gin.H{"error": "upload session expired"})
	case errors.Is(err, ErrSessionNotActive):
		c.JSON(http.StatusConflict, gin.H{"error": "upload session is not active"})
	case errors.Is(err, ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "state transition not allowed"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload operation failed"})
	}
}
