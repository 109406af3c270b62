package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/Conceptual-Machines/tension-engine/internal/api"
	"github.com/Conceptual-Machines/tension-engine/internal/api/handlers"
	"github.com/Conceptual-Machines/tension-engine/internal/bci"
	"github.com/Conceptual-Machines/tension-engine/internal/config"
	"github.com/Conceptual-Machines/tension-engine/internal/control"
	"github.com/Conceptual-Machines/tension-engine/internal/database"
	"github.com/Conceptual-Machines/tension-engine/internal/harmony"
	"github.com/Conceptual-Machines/tension-engine/internal/logger"
	"github.com/Conceptual-Machines/tension-engine/internal/metrics"
	"github.com/Conceptual-Machines/tension-engine/internal/midi"
	"github.com/Conceptual-Machines/tension-engine/internal/scheduler"
	"github.com/Conceptual-Machines/tension-engine/internal/services"
)

const (
	sentryFlushTimeout = 2 * time.Second
	shutdownTimeout    = 5 * time.Second
)

// releaseVersion is set via ldflags during build
var releaseVersion = "dev"

// GetVersion returns the current release version
func GetVersion() string {
	return releaseVersion
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			Release:          "tension-engine@" + releaseVersion,
			EnableTracing:    true,
			TracesSampleRate: 1.0,
			Debug:            !cfg.IsProduction(),
			BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
				if event.Request != nil {
					event.Request.Headers = filterSensitiveHeaders(event.Request.Headers)
				}
				return event
			},
		}); err != nil {
			log.Printf("Failed to initialize Sentry: %v", err)
		} else {
			log.Printf("Sentry initialized (environment: %s, release: %s)", cfg.Environment, releaseVersion)
			defer sentry.Flush(sentryFlushTimeout)
		}
	} else {
		log.Println("Sentry not configured (SENTRY_DSN not set)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Session persistence is optional
	var (
		db       *gorm.DB
		sessions scheduler.SessionLogger = scheduler.NopSessions{}
		lister   handlers.SessionLister
	)
	if cfg.DatabaseURL != "" {
		var err error
		db, err = database.Connect(cfg.DatabaseURL)
		if err != nil {
			fatal("Failed to connect to database", err)
		}
		if err := database.Migrate(db); err != nil {
			fatal("Failed to run migrations", err)
		}
		store := services.NewSessionStore(db)
		sessions, lister = store, store
		log.Println("Session log enabled")
	}

	params, err := cfg.Parameters()
	if err != nil {
		fatal("Invalid musical defaults", err)
	}
	var catalogOpts []harmony.CatalogOption
	weights, ok, err := cfg.Weights()
	if err != nil {
		fatal("Invalid tension weights", err)
	}
	if ok {
		catalogOpts = append(catalogOpts, harmony.WithWeights(weights))
	}
	catalog := harmony.NewCatalog(cfg.Music.Octave, catalogOpts...)

	confidence := bci.NewConfidence(cfg.Engine.ConfidenceWindow)
	bciState := &bci.State{}

	sinks := []scheduler.Sink{
		scheduler.SessionSink{Logger: sessions},
		control.NewEmitter(cfg.OSCOutHost, cfg.OSCOutPort),
	}
	if cfg.RecordDir != "" {
		rec, err := midi.NewRecorder(cfg.RecordDir)
		if err != nil {
			fatal("Failed to prepare record dir", err)
		}
		sinks = append(sinks, rec)
		log.Printf("Recording sessions to %s", cfg.RecordDir)
	}
	dispatch := scheduler.NewDispatcher(cfg.Engine.DispatchBuffer, sinks...)

	cw, err := metrics.NewClient(ctx, cfg.Environment)
	if err != nil {
		fatal("Failed to create metrics client", err)
	}
	counters := metrics.NewCounters(time.Now())
	sentryMetrics := metrics.NewSentryMetrics()

	schedCfg := cfg.Scheduler()
	if cfg.RNGSeed != 0 {
		schedCfg.RNG = harmony.NewSeededRNG(cfg.RNGSeed)
	}
	engine, err := scheduler.New(
		scheduler.NewStore(params),
		catalog,
		confidence,
		sessions,
		dispatch,
		schedCfg,
		scheduler.WithSessionEndHook(metrics.SessionEndHook(cw, sentryMetrics, counters)),
	)
	if err != nil {
		fatal("Failed to build engine", err)
	}

	router := control.NewRouter(engine, confidence, bciState)
	router.OnHandled(func(address string, err error) {
		counters.RecordControl(err)
		if err != nil {
			sentryMetrics.RecordControlError(address, err)
		}
	})

	oscServer, err := control.NewServer(cfg.OSCListenAddr, router)
	if err != nil {
		fatal("Failed to create OSC server", err)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	httpServer := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: api.SetupRouter(api.Deps{
			Engine:    engine,
			Router:    router,
			BCIState:  bciState,
			Sessions:  lister,
			DB:        db,
			Counters:  counters,
			JWTSecret: cfg.ControlJWTSecret,
			Version:   GetVersion(),
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Engine loop stopped", err, nil)
		}
	}()

	go func() {
		log.Printf("Listening for OSC on %s", cfg.OSCListenAddr)
		if err := oscServer.ListenAndServe(ctx); err != nil {
			logger.Error("OSC server stopped", err, nil)
			stop()
		}
	}()

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server stopped", err, nil)
			stop()
		}
	}()

	if cfg.AutoStart {
		if err := engine.Start(); err != nil {
			logger.Error("Auto start failed", err, nil)
		}
	}

	<-ctx.Done()
	log.Println("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", err, nil)
	}

	// The loop publishes the final session end before the sinks drain
	<-engineDone
	dispatch.Close()
}

func fatal(msg string, err error) {
	sentry.CaptureException(err)
	sentry.Flush(sentryFlushTimeout)
	log.Fatalf("%s: %v", msg, err)
}

func filterSensitiveHeaders(headers map[string]string) map[string]string {
	filtered := make(map[string]string)
	sensitiveKeys := map[string]bool{
		"authorization": true,
		"cookie":        true,
		"x-api-key":     true,
	}

	for k, v := range headers {
		if sensitiveKeys[strings.ToLower(k)] {
			filtered[k] = "[REDACTED]"
		} else {
			filtered[k] = v
		}
	}
	return filtered
}
