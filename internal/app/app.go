package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"weathersync/internal/config"
	"weathersync/internal/geo"
	"weathersync/internal/repository"
	"weathersync/internal/scheduler"
	"weathersync/internal/storage"
	"weathersync/internal/syncer"
	"weathersync/internal/weather"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// jobName identifies the singleton recurring sync job.
const jobName = "weather_sync"

// Application holds all the major components of the service.
type Application struct {
	Config        *config.Config
	Logger        *log.Logger
	Store         *storage.Store
	Locations     *geo.LocationStore
	Engine        *syncer.Engine
	Scheduler     *scheduler.Scheduler
	Repository    *repository.Repository
	HttpServer    *http.Server
	MetricsServer *http.Server
}

// New creates and initializes a new Application instance.
func New(cfg *config.Config) (*Application, error) {
	logger := log.New(os.Stdout, "weathersync: ", log.LstdFlags)

	// Setup: Database
	storeCfg := storage.DefaultConfig()
	storeCfg.Path = cfg.DBPath
	store, err := storage.Open(storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Setup: Weather client
	client := weather.NewClient(cfg.Weather.BaseURL, cfg.Weather.APIKey, cfg.Weather.Units, cfg.Weather.Timeout.Duration)

	// Setup: Sync engine
	locations := geo.NewLocationStore()
	engine := syncer.New(logger, store, client, locations, syncer.Options{
		DefaultCoordinate: geo.Coordinate{
			Lat: cfg.Location.DefaultLatitude,
			Lon: cfg.Location.DefaultLongitude,
		},
		Freshness: cfg.Sync.Freshness.Duration,
		Retention: cfg.Sync.Retention.Duration,
	})

	// Setup: Scheduler
	sched := scheduler.New(context.Background(), logger, engine.Sync, nil)

	// Setup: Repository
	repo := repository.New(logger, store, engine)

	// Setup: HTTP Server for metrics
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: metricsMux,
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		Store:         store,
		Locations:     locations,
		Engine:        engine,
		Scheduler:     sched,
		Repository:    repo,
		MetricsServer: metricsServer,
	}

	// Setup: Main HTTP Server
	app.HttpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: app.routes(),
	}

	return app, nil
}

// routes builds the main HTTP mux.
func (a *Application) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc("GET /api/weather/current", a.handleCurrent)
	mux.HandleFunc("GET /api/weather/week", a.handleWeek)
	mux.HandleFunc("GET /api/weather/stats", a.handleStats)
	mux.HandleFunc("POST /api/sync/refresh", a.handleRefresh)
	mux.HandleFunc("PUT /api/location", a.handleUpdateLocation)
	return a.logRequests(mux)
}

// Start begins the application's services.
func (a *Application) Start(ctx context.Context) error {
	a.Logger.Println("Starting application services...")

	// Start the scheduler and register the recurring sync job
	a.Scheduler.Start()
	err := a.Scheduler.Schedule(scheduler.JobSpec{
		Name:      jobName,
		Latitude:  a.Config.Location.DefaultLatitude,
		Longitude: a.Config.Location.DefaultLongitude,
		Interval:  a.Config.Sync.Interval.Duration,
		Flex:      a.Config.Sync.Flex.Duration,
		Constraints: scheduler.Constraints{
			RequireNetwork: true,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sync job: %w", err)
	}
	a.Logger.Printf("Scheduler started, %q runs every %s.", jobName, a.Config.Sync.Interval)

	// Start the metrics server
	go func() {
		a.Logger.Printf("Starting metrics server on %s", a.MetricsServer.Addr)
		if err := a.MetricsServer.ListenAndServe(); err != http.ErrServerClosed {
			a.Logger.Fatalf("Metrics server ListenAndServe: %v", err)
		}
	}()

	// Start the main HTTP server
	go func() {
		a.Logger.Printf("Starting HTTP server on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != http.ErrServerClosed {
			a.Logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the application's services.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.Println("Stopping application services...")

	// Shutdown servers
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := a.HttpServer.Shutdown(shutdownCtx); err != nil {
		a.Logger.Printf("HTTP server shutdown error: %v", err)
	}

	if err := a.MetricsServer.Shutdown(shutdownCtx); err != nil {
		a.Logger.Printf("Metrics server shutdown error: %v", err)
	}

	// Stop the scheduler and wait for an in-flight sync to finish
	a.Scheduler.Stop()
	a.Logger.Println("Scheduler stopped.")

	// Close the database connection
	if err := a.Store.Close(); err != nil {
		a.Logger.Printf("Error closing database: %v", err)
	}

	a.Logger.Println("Application stopped gracefully.")
	return nil
}
