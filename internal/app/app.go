// Package app wires the services together and runs the HTTP server.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"shelfmark/internal/bookshelf"
	"shelfmark/internal/config"
	"shelfmark/internal/covers"
	"shelfmark/internal/entitlement"
	"shelfmark/internal/exporter"
	"shelfmark/internal/infrastructure"
	"shelfmark/internal/middleware"
	transport "shelfmark/internal/transport/http"
	"shelfmark/internal/websocket"
)

// Application holds every wired service and the HTTP server.
type Application struct {
	Config   *config.Config
	Logger   *slog.Logger
	Verifier *entitlement.Orchestrator
	Store    bookshelf.Store
	Shelf    bookshelf.Service
	Hub      *websocket.Hub
	Registry *prometheus.Registry
	Server   *http.Server
}

// NewApplication builds the full service graph from configuration.
func NewApplication(cfg *config.Config) (*Application, error) {
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	store, err := bookshelf.OpenStore(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	hub := websocket.NewHub(logger)
	shelf := bookshelf.NewService(store, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	provider := entitlement.NewHTTPProvider(cfg.Licensing.AuthorityURL, cfg.Licensing.LicenseFile, logger)
	launcher := NewBrowserLauncher(cfg.Licensing.PurchaseURL, logger)

	verifier := entitlement.New(provider,
		func(s entitlement.State) {
			hub.Broadcast(websocket.TypeLicenseState, s)
		},
		entitlement.WithPolicy(entitlement.Policy{
			MaxRetries: cfg.Licensing.MaxRetries,
			BaseDelay:  cfg.Licensing.RetryDelay,
		}),
		entitlement.WithCallTimeout(cfg.Licensing.CallTimeout),
		entitlement.WithPurchaseLauncher(launcher),
		entitlement.WithLogger(logger),
		entitlement.WithMetrics(entitlement.NewMetrics(registry)),
	)

	a := &Application{
		Config:   cfg,
		Logger:   logger,
		Verifier: verifier,
		Store:    store,
		Shelf:    shelf,
		Hub:      hub,
		Registry: registry,
	}
	a.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      a.router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return a, nil
}

func (a *Application) router() http.Handler {
	cfg := a.Config
	httpClient := &http.Client{Timeout: cfg.Covers.Timeout}

	searcher := covers.NewClient(cfg.Covers.SearchURL, httpClient,
		cfg.Covers.RequestRate, cfg.Covers.Burst, a.Logger)
	downloader := covers.NewDownloader(cfg.Covers.ImageURL, cfg.Covers.CacheDir,
		httpClient, cfg.Covers.RequestRate, cfg.Covers.Burst, a.Logger)
	workbook := exporter.NewWorkbook(cfg.Export.Dir, a.Logger)

	licenseHandler := transport.NewLicenseHandler(a.Verifier, cfg.Licensing.PurchaseURL, a.Logger)
	bookmarksHandler := transport.NewBookmarksHandler(a.Shelf, a.Hub, a.Logger)
	coversHandler := transport.NewCoversHandler(searcher, downloader, a.Logger)
	exportHandler := transport.NewExportHandler(workbook, a.Shelf, a.Hub, a.Logger)
	healthHandler := transport.NewHealthHandler(a.Verifier)

	gate := middleware.NewGate(a.Verifier, a.Logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.StructuredLogger(a.Logger))
	r.Use(middleware.Recoverer(a.Logger))
	r.Use(gate.Handler)

	r.Get("/api/health", healthHandler.HealthCheck)
	r.Get("/api/version", healthHandler.VersionInfo)
	r.Handle("/metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}))
	r.Get("/ws", func(w http.ResponseWriter, req *http.Request) {
		websocket.ServeWS(a.Hub, w, req, a.Logger)
	})

	r.Mount("/api/license", licenseHandler.Routes())
	r.Mount("/api/bookmarks", bookmarksHandler.Routes())
	r.Mount("/api/covers", coversHandler.Routes())
	r.Mount("/api/export", exportHandler.Routes())

	return r
}

// Run starts everything and blocks until a signal or fatal server error.
func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.Hub.Start()
	a.Verifier.Start()

	a.Logger.InfoContext(ctx, "application started",
		slog.String("address", fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)),
		slog.String("database", a.Config.Storage.DatabasePath))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return a.shutdown()
	})

	return g.Wait()
}

func (a *Application) shutdown() error {
	a.Logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()

	var firstErr error
	if err := a.Server.Shutdown(ctx); err != nil {
		firstErr = fmt.Errorf("shutdown server: %w", err)
	}

	a.Verifier.Close()
	a.Hub.Stop()

	if err := a.Store.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close store: %w", err)
	}
	if err := infrastructure.CloseLogFile(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close log file: %w", err)
	}
	return firstErr
}
