// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package registry assembles the Waymark policy registry service.
//
// This package contains the Service type that wires every subsystem
// together: BadgerDB catalog storage, the in-memory revision index, the
// Weaviate-backed chunk index with its degradation handlers, the async
// ingestion pipeline, the temporal search gateway, the consistency
// scheduler, usage analytics, and the Gin HTTP surface.
//
// # Enterprise Integration
//
// The registry supports dependency injection via extensions.ServiceOptions,
// enabling enterprise builds to provide custom implementations of:
//   - AuthProvider: Custom authentication (JWT, API keys)
//   - AuthzProvider: Role-based access control
//   - AuditLogger: Compliance audit logging
//
// # Usage
//
// Open source (uses no-op defaults):
//
//	cfg := registry.Config{Port: 12210, DataDir: "/data/waymark"}
//	svc, err := registry.New(cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
//
// Enterprise (with custom implementations):
//
//	opts := &extensions.ServiceOptions{
//	    AuthProvider: enterpriseAuth,
//	    AuditLogger:  enterpriseAudit,
//	}
//	svc, err := registry.New(cfg, opts)
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/Waymark/pkg/extensions"
	"github.com/AleutianAI/Waymark/services/registry/analytics"
	"github.com/AleutianAI/Waymark/services/registry/catalog"
	"github.com/AleutianAI/Waymark/services/registry/consistency"
	"github.com/AleutianAI/Waymark/services/registry/handlers"
	"github.com/AleutianAI/Waymark/services/registry/ingest"
	"github.com/AleutianAI/Waymark/services/registry/observability"
	"github.com/AleutianAI/Waymark/services/registry/routes"
	"github.com/AleutianAI/Waymark/services/registry/search"
	"github.com/AleutianAI/Waymark/services/registry/storage/badger"
	"github.com/AleutianAI/Waymark/services/registry/storage/blob"
	"github.com/AleutianAI/Waymark/services/registry/telemetry"
	"github.com/AleutianAI/Waymark/services/registry/temporal"
	"github.com/AleutianAI/Waymark/services/registry/weaviate"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the registry service.
//
// # Description
//
// Service abstracts the registry lifecycle, enabling testing and
// alternative implementations. Run() blocks and should only be called
// once per instance.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use after construction.
type Service interface {
	// Run starts the HTTP server and blocks until SIGINT/SIGTERM or a
	// server error.
	//
	// # Description
	//
	// Starts the HTTP server on the configured port. On a shutdown
	// signal the server stops accepting requests, in-flight requests
	// drain, the ingestion pipeline finishes its running jobs, and
	// every subsystem is closed in dependency order before Run returns.
	//
	// # Outputs
	//
	//   - error: Non-nil if the server fails to start or dies on an
	//     error other than a clean shutdown.
	Run() error

	// Router returns the underlying Gin engine for testing.
	//
	// # Description
	//
	// Provides access to the configured router, primarily for
	// integration testing where direct HTTP calls are needed. Callers
	// must not modify the route tree.
	Router() *gin.Engine

	// Close releases every subsystem without serving HTTP.
	//
	// # Description
	//
	// Run performs this shutdown itself; Close exists for embedders and
	// tests that drive Router() directly and never call Run. Held
	// ingestion jobs are given the drain window before they are cut
	// short and left queued in the store. Safe to call more than once.
	//
	// # Outputs
	//
	//   - error: Always nil; the signature satisfies io.Closer.
	Close() error
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds registry configuration options.
//
// All fields are optional; zero values use the defaults applied by New().
// The embedding backend and the InfluxDB analytics sink are configured
// purely from environment variables (EMBEDDING_*, OPENAI_*, INFLUXDB_*)
// because their credentials never belong in a config struct.
type Config struct {
	// Port is the HTTP server port. Default: 12210
	Port int

	// DataDir is the root directory for registry state. The catalog
	// database lives in DataDir/catalog, document blobs in
	// DataDir/blobs, and backups in DataDir/backups.
	// Default: "./data"
	DataDir string

	// WeaviateURL is the vector index URL. The registry always starts,
	// even when the index is unreachable; searches are rejected and
	// queued ingestion holds until the index recovers.
	// Default: "http://localhost:8080"
	WeaviateURL string

	// DropDir is an optional directory watched for dropped revision
	// files named {SOURCE}@{YYYY-MM-DD}.md. Empty disables the watcher.
	DropDir string

	// ConsistencyInterval is how often the catalog/index consistency
	// sweep runs. Default: 1 hour
	ConsistencyInterval time.Duration

	// Telemetry configures tracing and metrics export. The zero value
	// uses telemetry.DefaultConfig(), which honors the standard OTEL_*
	// environment variables. Tests pass exporters set to "none".
	Telemetry telemetry.Config
}

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12210
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}
	if cfg.WeaviateURL == "" {
		cfg.WeaviateURL = "http://localhost:8080"
	}
	if cfg.ConsistencyInterval == 0 {
		cfg.ConsistencyInterval = time.Hour
	}
	if (cfg.Telemetry == telemetry.Config{}) {
		cfg.Telemetry = telemetry.DefaultConfig()
	}
	return cfg
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// All fields are set during New() and read-only afterwards. cleanup()
// releases them in reverse dependency order.
type service struct {
	config Config
	opts   extensions.ServiceOptions
	router *gin.Engine

	db       *badger.DB
	blobs    *blob.Store
	store    *catalog.Store
	catalog  *catalog.Catalog
	resolver *temporal.Resolver

	index     *weaviate.ResilientClient
	chunks    *weaviate.ChunkStore
	searchDeg *weaviate.SearchDegradation
	ingestDeg *weaviate.IngestDegradation

	embedder    ingest.Embedder
	writer      *ingest.Writer
	coordinator *ingest.Coordinator
	gateway     *search.Gateway

	watcher       *ingest.DropWatcher
	watcherCancel context.CancelFunc

	checker   *consistency.Checker
	scheduler *consistency.Scheduler
	recorder  *analytics.Recorder

	telemetryShutdown func(context.Context) error
}

// =============================================================================
// Constructor
// =============================================================================

// New creates a registry Service with the given configuration.
//
// # Description
//
// New initializes every subsystem in dependency order:
//  1. Applies default configuration for missing values
//  2. Initializes OpenTelemetry tracing and Prometheus metrics
//  3. Opens BadgerDB, the blob store, and the catalog store
//  4. Builds the catalog and rebuilds the revision index from disk
//  5. Connects the resilient Weaviate client (degraded start allowed)
//  6. Builds the embedder, vector writer, and ingestion coordinator
//  7. Starts the optional drop-directory watcher
//  8. Starts the consistency scheduler
//  9. Connects usage analytics when InfluxDB is configured
//  10. Sets up HTTP routes with extension options
//
// If opts is nil, extensions.DefaultOptions() is used (no-op
// implementations). On error, anything already started is shut down
// before New returns.
//
// # Inputs
//
//   - cfg: Service configuration. Zero values use defaults.
//   - opts: Extension options for enterprise features. May be nil.
//
// # Outputs
//
//   - Service: Ready-to-run registry service
//   - error: Non-nil if initialization fails
func New(cfg Config, opts *extensions.ServiceOptions) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}

	if opts != nil {
		s.opts = *opts
	} else {
		s.opts = extensions.DefaultOptions()
	}

	if err := s.initTelemetry(); err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	// Repeated construction in one process (tests) must not re-register
	// the collectors; the Prometheus default registry rejects duplicates.
	if observability.DefaultMetrics == nil {
		observability.InitMetrics()
	}

	if err := s.initStorage(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	if err := s.initCatalog(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize catalog: %w", err)
	}

	if err := s.initIndex(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}

	if err := s.initIngest(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize ingestion: %w", err)
	}

	if err := s.initSearch(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize search gateway: %w", err)
	}

	// Optional subsystems degrade to a log line rather than failing the
	// whole service.
	if err := s.initWatcher(); err != nil {
		slog.Warn("drop watcher initialization failed, continuing without it",
			"dir", s.config.DropDir, "error", err)
	}

	if err := s.initConsistency(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to start consistency scheduler: %w", err)
	}

	s.recorder = analytics.NewRecorderFromEnv(slog.Default())

	if err := s.initRouter(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to set up routes: %w", err)
	}

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
func (s *service) Run() error {
	defer s.cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting registry server", "port", s.config.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutdown signal received, draining requests")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("server shutdown incomplete", "error", err)
	}
	return <-errCh
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// Close releases every subsystem without serving HTTP.
func (s *service) Close() error {
	s.cleanup()
	return nil
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// initTelemetry initializes tracing and metric export.
func (s *service) initTelemetry() error {
	shutdown, err := telemetry.Init(context.Background(), s.config.Telemetry)
	if err != nil {
		return err
	}
	s.telemetryShutdown = shutdown
	return nil
}

// initStorage opens BadgerDB, the blob store, and the catalog store.
func (s *service) initStorage() error {
	dbCfg := badger.DefaultConfig()
	dbCfg.Path = filepath.Join(s.config.DataDir, "catalog")
	dbCfg.Logger = slog.Default()

	db, err := badger.OpenDB(dbCfg)
	if err != nil {
		return fmt.Errorf("open catalog database: %w", err)
	}
	s.db = db

	blobs, err := blob.NewStore(filepath.Join(s.config.DataDir, "blobs"))
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}
	s.blobs = blobs

	store, err := catalog.NewStore(db, slog.Default())
	if err != nil {
		return fmt.Errorf("create catalog store: %w", err)
	}
	s.store = store
	return nil
}

// initCatalog builds the catalog and rebuilds the revision index from
// the stored records.
func (s *service) initCatalog() error {
	index := temporal.NewIndex()

	cat, err := catalog.NewCatalog(s.store, s.blobs, index, s.opts.AuditLogger, slog.Default())
	if err != nil {
		return err
	}
	s.catalog = cat
	s.resolver = temporal.NewResolver(index)

	docs, revs, err := cat.Rebuild(context.Background())
	if err != nil {
		return fmt.Errorf("rebuild revision index: %w", err)
	}
	slog.Info("catalog loaded", "documents", docs, "revisions", revs)
	return nil
}

// initIndex connects the resilient Weaviate client and registers the
// search and ingestion degradation handlers.
//
// A malformed URL is a configuration error and fails startup. An
// unreachable index is not; the client starts degraded and the handlers
// gate traffic until it recovers.
func (s *service) initIndex() error {
	weaviateURL := strings.Trim(s.config.WeaviateURL, "\"' ")
	parsed, err := url.Parse(weaviateURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("invalid Weaviate URL: %q", s.config.WeaviateURL)
	}

	clientCfg := weaviate.DefaultClientConfig()
	clientCfg.URL = weaviateURL
	clientCfg.AllowStartDegraded = true
	clientCfg.Logger = slog.Default()

	rc, err := weaviate.NewResilientClient(clientCfg)
	if err != nil {
		return err
	}
	s.index = rc

	s.searchDeg = weaviate.NewSearchDegradation(slog.Default())
	s.ingestDeg = weaviate.NewIngestDegradation(slog.Default())
	rc.RegisterHandler(s.searchDeg)
	rc.RegisterHandler(s.ingestDeg)

	chunks, err := weaviate.NewChunkStore(rc, slog.Default())
	if err != nil {
		return err
	}
	s.chunks = chunks

	schemaCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := chunks.EnsureSchema(schemaCtx); err != nil {
		slog.Warn("chunk schema check failed, continuing while the index recovers",
			"error", err)
	}
	return nil
}

// initIngest builds the embedder, the vector writer, and the ingestion
// coordinator, and starts the worker pool.
func (s *service) initIngest() error {
	embedder, err := ingest.NewEmbedderFromEnv(slog.Default())
	if err != nil {
		return err
	}
	s.embedder = embedder

	icfg := ingest.DefaultConfig()

	writer, err := ingest.NewWriter(s.chunks, icfg.WriteBatchSize, slog.Default())
	if err != nil {
		return err
	}
	s.writer = writer

	coordinator, err := ingest.NewCoordinator(icfg, ingest.Deps{
		Catalog:  s.catalog,
		Store:    s.store,
		Blobs:    s.blobs,
		Embedder: embedder,
		Writer:   writer,
		Hold:     s.ingestDeg,
		Logger:   slog.Default(),
	})
	if err != nil {
		return err
	}
	s.coordinator = coordinator
	coordinator.Start(context.Background())
	return nil
}

// initSearch builds the temporal search gateway.
func (s *service) initSearch() error {
	gateway, err := search.NewGateway(s.resolver, s.embedder, s.chunks, s.searchDeg, slog.Default())
	if err != nil {
		return err
	}
	s.gateway = gateway
	return nil
}

// initWatcher starts the optional drop-directory watcher.
func (s *service) initWatcher() error {
	if s.config.DropDir == "" {
		return nil
	}
	if err := os.MkdirAll(s.config.DropDir, 0750); err != nil {
		return fmt.Errorf("create drop directory: %w", err)
	}

	watcher, err := ingest.NewDropWatcher(s.config.DropDir, s.catalog, s.coordinator, slog.Default())
	if err != nil {
		return err
	}
	s.watcher = watcher

	ctx, cancel := context.WithCancel(context.Background())
	s.watcherCancel = cancel
	go func() {
		if err := watcher.Start(ctx); err != nil {
			slog.Warn("drop watcher stopped", "error", err)
		}
	}()
	return nil
}

// initConsistency builds the checker and starts the periodic scheduler.
func (s *service) initConsistency() error {
	checker, err := consistency.NewChecker(consistency.Config{}, s.store, s.chunks, slog.Default())
	if err != nil {
		return err
	}
	s.checker = checker

	scheduler, err := consistency.NewScheduler(checker, s.config.ConsistencyInterval, slog.Default())
	if err != nil {
		return err
	}
	s.scheduler = scheduler
	return scheduler.Start(context.Background())
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() error {
	h, err := handlers.New(handlers.Deps{
		Catalog:     s.catalog,
		Resolver:    s.resolver,
		Blobs:       s.blobs,
		Gateway:     s.gateway,
		Coordinator: s.coordinator,
		Writer:      s.writer,
		Scheduler:   s.scheduler,
		Recorder:    s.recorder,
		Index:       s.index,
		DB:          s.db,
		BackupDir:   filepath.Join(s.config.DataDir, "backups"),
		Logger:      slog.Default(),
	})
	if err != nil {
		return err
	}

	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("waymark-registry"))

	routes.SetupRoutes(s.router, h, s.opts)
	return nil
}

// =============================================================================
// Cleanup
// =============================================================================

// cleanup releases all resources held by the service, in reverse
// dependency order. Called when Run() exits or on initialization failure.
// Safe to call with partially initialized state.
func (s *service) cleanup() {
	if s.watcher != nil {
		s.watcherCancel()
		if err := s.watcher.Stop(); err != nil {
			slog.Warn("drop watcher stop error", "error", err)
		}
		s.watcher = nil
	}

	if s.coordinator != nil {
		drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := s.coordinator.Shutdown(drainCtx); err != nil {
			slog.Warn("ingestion drain incomplete", "error", err)
		}
		cancel()
		s.coordinator = nil
	}

	if s.scheduler != nil {
		s.scheduler.Stop()
		s.scheduler = nil
	}

	if s.recorder != nil {
		s.recorder.Close()
		s.recorder = nil
	}

	if s.index != nil {
		if err := s.index.Close(); err != nil {
			slog.Warn("vector index client close error", "error", err)
		}
		s.index = nil
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			slog.Warn("catalog database close error", "error", err)
		}
		s.db = nil
	}

	if s.telemetryShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.telemetryShutdown(ctx); err != nil {
			slog.Warn("telemetry shutdown error", "error", err)
		}
		cancel()
		s.telemetryShutdown = nil
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
