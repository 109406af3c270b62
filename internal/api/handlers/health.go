package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const healthPingTimeout = 2 * time.Second

type HealthHandler struct {
	db     *gorm.DB
	engine Engine
}

// NewHealthHandler accepts a nil db when persistence is disabled
func NewHealthHandler(db *gorm.DB, engine Engine) *HealthHandler {
	return &HealthHandler{db: db, engine: engine}
}

// HealthCheck returns the health status of the engine and its database
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	dbStatus := "disabled"
	healthy := true

	if h.db != nil {
		dbStatus = "ok"
		if err := h.ping(c.Request.Context()); err != nil {
			dbStatus = "unreachable"
			healthy = false
		}
	}

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":   status,
		"engine":   h.engine.Status().State,
		"database": dbStatus,
	})
}

func (h *HealthHandler) ping(ctx context.Context) error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, healthPingTimeout)
	defer cancel()
	return sqlDB.PingContext(ctx)
}
