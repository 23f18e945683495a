package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bryanwahyu/automaton-review/internal/application"
	appreview "github.com/bryanwahyu/automaton-review/internal/application/review"
	"github.com/bryanwahyu/automaton-review/internal/config"
	"github.com/bryanwahyu/automaton-review/internal/domain/analysis"
	domain "github.com/bryanwahyu/automaton-review/internal/domain/review"
	"github.com/bryanwahyu/automaton-review/internal/infra/ai/openai"
	"github.com/bryanwahyu/automaton-review/internal/infra/contextdocs"
	mysqlp "github.com/bryanwahyu/automaton-review/internal/infra/db/mysql"
	postgresp "github.com/bryanwahyu/automaton-review/internal/infra/db/postgres"
	"github.com/bryanwahyu/automaton-review/internal/infra/executor/statictool"
	ghub "github.com/bryanwahyu/automaton-review/internal/infra/github"
	"github.com/bryanwahyu/automaton-review/internal/infra/httpserver"
	"github.com/bryanwahyu/automaton-review/internal/infra/publisher"
	minioStore "github.com/bryanwahyu/automaton-review/internal/infra/storage"
	"github.com/bryanwahyu/automaton-review/internal/middleware"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.With().Str("service", "automaton-review").Logger()

	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	ctx := context.Background()

	// connect database
	var (
		db   *sql.DB
		repo domain.Repository
	)
	switch cfg.Database.Driver {
	case "postgres":
		pg, err := postgresp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			log.Fatal().Err(err).Msg("postgres connect error")
		}
		db = pg
		repo = postgresp.NewReviewRepository(pg)
	default:
		my, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			log.Fatal().Err(err).Msg("mysql connect error")
		}
		db = my
		repo = mysqlp.NewReviewRepository(my)
	}
	defer db.Close()

	// init analyzer registry
	registry := analysis.NewRegistry()
	var summarizer appreview.Summarizer
	if cfg.OpenAI.APIKey != "" {
		ai := openai.NewAnalyzer(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
		registry.Register(ai)
		summarizer = ai
	}
	for _, name := range cfg.Engine.StaticTools {
		switch name {
		case "bandit":
			registry.Register(statictool.NewBandit())
		case "semgrep":
			registry.Register(statictool.NewSemgrep())
		case "safety":
			registry.Register(statictool.NewSafety())
		default:
			log.Warn().Str("tool", name).Msg("unknown static tool in config, skipping")
		}
	}
	if registry.Len() == 0 {
		log.Fatal().Msg("no analyzers configured: set openai.apiKey or engine.staticTools")
	}

	// init service
	svc := &appreview.Service{
		Repo:           repo,
		Analyzers:      registry,
		Summarizer:     summarizer,
		Clock:          application.SystemClock{},
		Concurrency:    cfg.Engine.Concurrency,
		UnitTimeout:    cfg.UnitTimeout(),
		SessionTimeout: cfg.SessionTimeout(),
		LineTolerance:  cfg.Engine.LineTolerance,
		StoreRetries:   cfg.Engine.StoreRetries,
		StoreBackoff:   cfg.StoreBackoff(),
	}

	// init minio (optional)
	if cfg.Minio.Endpoint != "" {
		store, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("minio init error")
		}
		svc.Archive = store
	}

	// init github client + publisher (optional)
	var gh *ghub.Client
	if cfg.GitHub.Token != "" {
		gh = ghub.NewClient(cfg.GitHub.Token)
		svc.Publisher = publisher.NewGitHub(cfg.GitHub.Token)
	}

	if cfg.Engine.ContextDocsDir != "" {
		svc.Contexts = contextdocs.New(cfg.Engine.ContextDocsDir)
	}

	// init router
	mux := chi.NewRouter()
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		MaxAge:         300,
	}))
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.MetricsMiddleware)
	if cfg.Security.RateLimitCapacity > 0 {
		mux.Use(middleware.RateLimitMiddleware(cfg.Security.RateLimitCapacity, cfg.Security.RateLimitRefill))
	}
	if len(cfg.Security.APIKeys) > 0 {
		mux.Use(middleware.APIKeyAuth(cfg.Security.APIKeys))
	}

	mux.Get("/healthz", middleware.HealthHandler(map[string]middleware.HealthChecker{
		"database": &middleware.DatabaseHealthChecker{DB: db},
	}))
	mux.Get("/readyz", middleware.ReadinessHandler)
	mux.Get("/livez", middleware.LivenessHandler)
	mux.Get("/metrics", middleware.MetricsHandler())

	mux.Mount("/", httpserver.NewRouter(svc, gh, []byte(cfg.GitHub.WebhookSecret)))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// run server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
}
