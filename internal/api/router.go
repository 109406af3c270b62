package api

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/Conceptual-Machines/tension-engine/internal/api/handlers"
	apimiddleware "github.com/Conceptual-Machines/tension-engine/internal/api/middleware"
	"github.com/Conceptual-Machines/tension-engine/internal/bci"
	"github.com/Conceptual-Machines/tension-engine/internal/control"
	"github.com/Conceptual-Machines/tension-engine/internal/metrics"
)

// Deps are the collaborators the HTTP surface reads and drives. DB and Sessions may be nil.
type Deps struct {
	Engine    handlers.Engine
	Router    *control.Router
	BCIState  *bci.State
	Sessions  handlers.SessionLister
	DB        *gorm.DB
	Counters  *metrics.Counters
	JWTSecret string
	Version   string
}

func SetupRouter(d Deps) *gin.Engine {
	router := gin.New()

	// Recovery middleware (must be first)
	router.Use(apimiddleware.RecoverWithSentry())

	// Sentry middleware for error tracking
	router.Use(apimiddleware.SentryMiddleware())

	// Request tracking and structured logging
	var counter apimiddleware.RequestCounter
	if d.Counters != nil {
		counter = d.Counters
	}
	router.Use(apimiddleware.RequestTracking(counter))

	healthHandler := handlers.NewHealthHandler(d.DB, d.Engine)
	router.GET("/health", healthHandler.HealthCheck)

	metricsHandler := handlers.NewMetricsHandler(d.Version, d.Counters)
	router.GET("/api/metrics", metricsHandler.GetMetrics)

	engineHandler := handlers.NewEngineHandler(d.Engine, d.Router, d.BCIState)
	sessionsHandler := handlers.NewSessionsHandler(d.Sessions)

	// Read-only engine views
	v1 := router.Group("/api/v1")
	{
		v1.GET("/state", engineHandler.GetState)
		v1.GET("/library", engineHandler.GetLibrary)
		v1.GET("/control/addresses", engineHandler.Addresses)
		v1.GET("/sessions", sessionsHandler.ListSessions)
		v1.GET("/sessions/:id/chords", sessionsHandler.GetSessionChords)
	}

	// Routes that change engine state
	ctl := router.Group("/api/v1")
	ctl.Use(apimiddleware.ControlAuth(d.JWTSecret))
	{
		ctl.POST("/control", engineHandler.Control)
		ctl.POST("/signal", engineHandler.Signal)
	}

	return router
}
