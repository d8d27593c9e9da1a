package presigned

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/abduss/goupload/internal/auth"
	"github.com/abduss/goupload/internal/upload"
)

type Handler struct {
	presignedService *Service
	uploads          *upload.Service
}

func NewHandler(ps *Service, uploads *upload.Service) *Handler {
	return &Handler{
		presignedService: ps,
		uploads:          uploads,
	}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/uploads/:uploadID/download-url", h.GenerateDownloadURL)
}

// GenerateDownloadURL issues a presigned GET for a completed upload's object.
func (h *Handler) GenerateDownloadURL(c *gin.Context) {
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

	var ttl time.Duration
	if ttlParam := c.Query("ttl"); ttlParam != "" {
		ttl, err = time.ParseDuration(ttlParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ttl"})
			return
		}
	}

	session, err := h.uploads.Get(c.Request.Context(), userID, sessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "upload session not found"})
		return
	}

	if session.State != upload.StateCompleted || session.Location == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "upload is not completed"})
		return
	}

	url, expires, err := h.presignedService.DownloadURL(c.Request.Context(), session.Location, session.FileName, ttl)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to presign download"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"url":     url,
		"expires": expires,
	})
}
