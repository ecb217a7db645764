// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator provides the workmate chat service.
//
// This package contains the Service type that coordinates every component:
// HTTP routing, the LLM and embedding clients, the vector index, session
// memory, the points ledger, and observability infrastructure.
//
// # Optional Dependencies
//
// Weaviate, MySQL and OpenTelemetry are optional. Without a Weaviate URL the
// service retrieves from an in-process index; without MySQL every ledger
// route is disabled and /chat answers with no points; without an OTLP
// endpoint spans are not exported.
//
// # Usage
//
//	cfg := orchestrator.DefaultConfig()
//	svc, err := orchestrator.New(cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run(ctx))
package orchestrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/igrowicare/workmate/pkg/extensions"
	"github.com/igrowicare/workmate/services/llm"
	"github.com/igrowicare/workmate/services/orchestrator/conversation"
	"github.com/igrowicare/workmate/services/orchestrator/datatypes"
	"github.com/igrowicare/workmate/services/orchestrator/ledger"
	"github.com/igrowicare/workmate/services/orchestrator/middleware"
	"github.com/igrowicare/workmate/services/orchestrator/observability"
	"github.com/igrowicare/workmate/services/orchestrator/retrieval"
	"github.com/igrowicare/workmate/services/orchestrator/routes"
	"github.com/igrowicare/workmate/services/orchestrator/services"
	"github.com/igrowicare/workmate/services/orchestrator/ttl"
)

// ServiceName identifies this process in traces and logs.
const ServiceName = "workmate-chat"

// StdoutTraceEndpoint selects the stdout span exporter for local debugging.
const StdoutTraceEndpoint = "stdout"

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the chat service.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run blocks and should
// only be called once per instance.
type Service interface {
	// Run starts the HTTP server and the eviction scheduler and blocks until
	// ctx is cancelled or the server fails. Cancellation triggers a graceful
	// shutdown bounded by Config.ShutdownTimeout. Resources are released on
	// return.
	Run(ctx context.Context) error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine

	// Close releases resources without running. Run calls it on return.
	Close()
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds service configuration.
//
// # Description
//
// Config centralizes all configuration for the chat service. The CLI
// populates it from a YAML file and the environment; tests build it
// directly. Zero values are replaced by DefaultConfig's values in New,
// except the optional integrations which stay disabled when empty.
type Config struct {
	// Port is the HTTP server port. Default: 3001
	Port int

	// GinMode sets the Gin framework mode: "debug", "release" or "test".
	// Empty leaves gin's own default.
	GinMode string

	// AllowedOrigins is the CORS and WebSocket origin allow-list.
	// Default: http://localhost:5173
	AllowedOrigins []string

	// JWTSecret signs and verifies the "token" cookie. Default: dev_secret
	JWTSecret string

	// OTelEndpoint is the OTLP gRPC collector. Empty disables export;
	// StdoutTraceEndpoint prints spans to stdout.
	OTelEndpoint string

	// WeaviateURL is the vector database URL. Empty selects the in-process
	// index, which starts empty.
	WeaviateURL string

	// Chat configures the completion model used for rewriting and answering.
	Chat llm.OpenAIConfig

	// Embedder configures the embedding endpoint used for retrieval.
	Embedder llm.EmbedderConfig

	// DatabaseEnabled turns on the MySQL ledger.
	DatabaseEnabled bool
	Database        ledger.DBConfig

	// SessionStorePath persists session history in Badger. Empty keeps
	// history in memory.
	SessionStorePath string

	// SessionTTL is how long an idle session is kept. Default: 2 hours
	SessionTTL time.Duration

	// EvictionInterval is how often idle sessions are swept. Default: 5 minutes
	EvictionInterval time.Duration

	Contextualizer conversation.ContextualizerConfig
	Retriever      retrieval.RetrieverConfig
	Generator      services.GeneratorConfig
	RateLimit      middleware.RateLimitConfig

	// ShutdownTimeout bounds graceful shutdown. Default: 10 seconds
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the configuration the service ships with.
func DefaultConfig() Config {
	return Config{
		Port:             3001,
		AllowedOrigins:   []string{routes.DefaultAllowedOrigin},
		JWTSecret:        middleware.DefaultJWTSecret,
		Chat:             llm.DefaultChatConfig(),
		Embedder:         llm.DefaultEmbedderConfig(),
		Database:         ledger.DefaultDBConfig(),
		SessionTTL:       2 * time.Hour,
		EvictionInterval: 5 * time.Minute,
		Contextualizer:   conversation.DefaultContextualizerConfig(),
		Retriever:        retrieval.DefaultRetrieverConfig(),
		Generator:        services.DefaultGeneratorConfig(),
		RateLimit:        middleware.DefaultRateLimitConfig(),
		ShutdownTimeout:  10 * time.Second,
	}
}

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.Port == 0 {
		cfg.Port = defaults.Port
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = defaults.AllowedOrigins
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = defaults.JWTSecret
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaults.SessionTTL
	}
	if cfg.EvictionInterval <= 0 {
		cfg.EvictionInterval = defaults.EvictionInterval
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if cfg.RateLimit == (middleware.RateLimitConfig{}) {
		cfg.RateLimit = defaults.RateLimit
	}
	return cfg
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// # Fields
//
//   - config: Service configuration with defaults applied
//   - opts: Extension options (auth provider, user directory)
//   - router: Gin HTTP engine
//   - db: MySQL handle (nil when the ledger is disabled)
//   - store: Session memory
//   - scheduler: Idle session eviction
//   - tracerCleanup: Flushes spans on exit (nil when tracing is disabled)
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New returns.
type service struct {
	config        Config
	opts          extensions.ServiceOptions
	router        *gin.Engine
	registry      *prometheus.Registry
	metrics       *observability.PipelineMetrics
	db            *sql.DB
	store         conversation.SessionStore
	badger        *conversation.BadgerStore
	scheduler     *ttl.Scheduler
	pipeline      services.Runner
	ledger        ledger.Ledger
	tracerCleanup func(context.Context)
}

// =============================================================================
// Constructor
// =============================================================================

// New creates a Service with the given configuration.
//
// # Description
//
// New initializes all components in order:
//  1. Applies default configuration for missing values
//  2. Initializes OpenTelemetry tracing (if an endpoint is set)
//  3. Creates a Prometheus registry and the pipeline metrics
//  4. Opens MySQL (if enabled)
//  5. Opens the session store and the eviction scheduler
//  6. Builds the retrieval index (Weaviate or in-process)
//  7. Creates the LLM clients and the pipeline
//  8. Sets up HTTP routes with extension options
//
// If opts is nil, JWT cookie auth with cfg.JWTSecret is used and, when the
// ledger is enabled, users are read from MySQL.
//
// # Outputs
//
//   - Service: Ready-to-run service
//   - error: Non-nil if a required component fails. Resources opened before
//     the failure are released.
func New(cfg Config, opts *extensions.ServiceOptions) (Service, error) {
	s := &service{config: applyConfigDefaults(cfg)}
	if opts != nil {
		s.opts = *opts
	}

	if err := s.init(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *service) init() error {
	if s.config.OTelEndpoint != "" {
		cleanup, err := s.initTracer()
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}
		s.tracerCleanup = cleanup
	}

	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metrics = observability.NewPipelineMetrics(s.registry)

	if err := s.initLedger(); err != nil {
		return err
	}
	if err := s.initSessionStore(); err != nil {
		return err
	}

	index, err := s.initIndex()
	if err != nil {
		return err
	}
	if err := s.initPipeline(index); err != nil {
		return err
	}

	s.initRouter()
	return nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until ctx is done or the server
// fails.
func (s *service) Run(ctx context.Context) error {
	defer s.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	if err := s.scheduler.Start(gctx); err != nil {
		return fmt.Errorf("failed to start eviction scheduler: %w", err)
	}

	g.Go(func() error {
		slog.Info("Starting workmate server", "port", s.config.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down workmate server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// Close stops the scheduler, closes the stores and flushes spans.
func (s *service) Close() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	if s.badger != nil {
		if err := s.badger.Close(); err != nil {
			slog.Warn("Session store close error", "error", err)
		}
		s.badger = nil
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			slog.Warn("MySQL close error", "error", err)
		}
		s.db = nil
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
		s.tracerCleanup = nil
	}
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// initTracer sets up the OTLP trace exporter.
//
// # Limitations
//
//   - Uses an insecure gRPC connection (appropriate for internal networks)
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	var (
		traceExporter sdktrace.SpanExporter
		conn          *grpc.ClientConn
		err           error
	)
	if s.config.OTelEndpoint == StdoutTraceEndpoint {
		traceExporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
	} else {
		conn, err = grpc.NewClient(s.config.OTelEndpoint,
			grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
		}
		traceExporter, err = otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := traceProvider.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown tracer provider", "error", err)
		}
		if conn != nil {
			if err := conn.Close(); err != nil {
				slog.Warn("failed to close OTLP connection", "error", err)
			}
		}
	}, nil
}

// initLedger opens MySQL when enabled. The schema is not created here;
// use `workmate init-db` or POST /admin/init-db.
func (s *service) initLedger() error {
	if !s.config.DatabaseEnabled {
		slog.Info("MySQL not enabled, ledger routes are disabled")
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := ledger.Open(ctx, s.config.Database)
	if err != nil {
		return fmt.Errorf("failed to open MySQL: %w", err)
	}
	s.db = db
	s.ledger = ledger.NewMySQLLedger(db)
	if s.opts.UserDirectory == nil {
		s.opts = s.opts.WithUsers(ledger.NewUserRepository(db))
	}
	slog.Info("MySQL ledger initialized", "host", s.config.Database.Host, "database", s.config.Database.Name)
	return nil
}

// initSessionStore opens Badger when a path is configured, otherwise keeps
// sessions in memory, and prepares the eviction scheduler.
func (s *service) initSessionStore() error {
	var sweeper conversation.Sweeper
	if s.config.SessionStorePath != "" {
		store, err := conversation.OpenBadgerStore(s.config.SessionStorePath, s.config.SessionTTL)
		if err != nil {
			return fmt.Errorf("failed to open session store: %w", err)
		}
		s.badger = store
		s.store = store
		sweeper = store
		slog.Info("Persistent session store opened", "path", s.config.SessionStorePath)
	} else {
		store := conversation.NewMemoryStore(s.config.SessionTTL)
		s.store = store
		sweeper = store
	}

	s.scheduler = ttl.NewScheduler(sweeper, s.metrics, ttl.SchedulerConfig{Interval: s.config.EvictionInterval})
	return nil
}

// initIndex connects to Weaviate, or falls back to the in-process index
// when no URL is configured.
func (s *service) initIndex() (retrieval.VectorIndex, error) {
	if strings.TrimSpace(s.config.WeaviateURL) == "" {
		slog.Warn("Weaviate URL not configured, running in lightweight mode with an empty in-process index")
		return retrieval.NewMemoryIndex(), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := ConnectWeaviate(ctx, s.config.WeaviateURL)
	if err != nil {
		return nil, err
	}
	return retrieval.NewWeaviateIndex(client), nil
}

// initPipeline creates the LLM clients and wires the conversational
// pipeline.
func (s *service) initPipeline(index retrieval.VectorIndex) error {
	chatClient, err := llm.NewOpenAIClient(s.config.Chat)
	if err != nil {
		return fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	embedder, err := llm.NewOpenAIEmbedder(s.config.Embedder)
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}

	chat := conversation.ChatFuncFromClient(chatClient, llm.GenerationParams{})
	s.pipeline = services.NewChatPipeline(
		s.store,
		conversation.NewLLMContextualizer(chat, s.config.Contextualizer),
		retrieval.NewRetriever(embedder, index, s.config.Retriever),
		services.NewResponseGenerator(chat, s.config.Generator),
		s.metrics,
	)
	return nil
}

// initRouter creates the Gin engine, applies middleware and registers all
// routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	if s.opts.AuthProvider == nil {
		s.opts = s.opts.WithAuth(middleware.NewJWTAuthProvider(s.config.JWTSecret))
	}

	s.router = gin.New()
	s.router.Use(gin.Recovery(), middleware.RequestLogger())
	s.router.Use(otelgin.Middleware(ServiceName))

	routes.SetupRoutes(s.router, routes.Dependencies{
		Pipeline:       s.pipeline,
		Ledger:         s.ledger,
		Metrics:        s.metrics,
		Options:        s.opts,
		AllowedOrigins: s.config.AllowedOrigins,
		RateLimit:      s.config.RateLimit,
		MetricsHandler: promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}),
	})
}

// ConnectWeaviate creates a Weaviate client for rawURL and ensures the chunk
// class exists.
func ConnectWeaviate(ctx context.Context, rawURL string) (*weaviate.Client, error) {
	weaviateURL := strings.Trim(rawURL, "\"' ")
	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid Weaviate URL: %s", weaviateURL)
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Weaviate client: %w", err)
	}
	if err := datatypes.EnsureWeaviateSchema(ctx, client); err != nil {
		return nil, fmt.Errorf("failed to ensure Weaviate schema: %w", err)
	}
	slog.Info("Weaviate client initialized", "url", weaviateURL)
	return client, nil
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
