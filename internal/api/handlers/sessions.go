package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Conceptual-Machines/tension-engine/internal/logger"
	"github.com/Conceptual-Machines/tension-engine/internal/models"
	"github.com/Conceptual-Machines/tension-engine/internal/services"
)

// SessionLister reads the persisted session log
type SessionLister interface {
	ListSessions(ctx context.Context, limit int) ([]models.Session, error)
	ChordsFor(ctx context.Context, sessionID string) ([]models.ChordLog, error)
}

type SessionsHandler struct {
	store SessionLister
}

// NewSessionsHandler accepts a nil store when persistence is disabled
func NewSessionsHandler(store SessionLister) *SessionsHandler {
	return &SessionsHandler{store: store}
}

// ListSessions returns recent sessions, newest first
func (h *SessionsHandler) ListSessions(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Session log not configured"})
		return
	}

	limit := services.DefaultSessionListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = services.ClampLimit(n)
	}

	sessions, err := h.store.ListSessions(c.Request.Context(), limit)
	if err != nil {
		logger.Error("Failed to list sessions", err, logger.WithContext(c))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list sessions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions, "limit": limit})
}

// GetSessionChords returns one session's chord log
func (h *SessionsHandler) GetSessionChords(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Session log not configured"})
		return
	}

	chords, err := h.store.ChordsFor(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chords": chords})
}
