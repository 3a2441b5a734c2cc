package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kinetic-field/faultline/internal/config"
	dbRedis "github.com/kinetic-field/faultline/internal/db/redis"
	"github.com/kinetic-field/faultline/internal/gate"
	logpkg "github.com/kinetic-field/faultline/internal/logger"
	"github.com/kinetic-field/faultline/internal/metrics"
	"github.com/kinetic-field/faultline/internal/repository/graphredis"
	"github.com/kinetic-field/faultline/internal/repository/respcache"
	searchrepo "github.com/kinetic-field/faultline/internal/repository/search"
	chiTransport "github.com/kinetic-field/faultline/internal/transport/chi"
	openaiTransport "github.com/kinetic-field/faultline/internal/transport/openai"
	consensusuc "github.com/kinetic-field/faultline/internal/usecase/consensus"
	"github.com/kinetic-field/faultline/internal/usecase/fusion"
	ingestuc "github.com/kinetic-field/faultline/internal/usecase/ingest"
	pipelineuc "github.com/kinetic-field/faultline/internal/usecase/pipeline"
	"github.com/kinetic-field/faultline/internal/usecase/reasoner"
	routeruc "github.com/kinetic-field/faultline/internal/usecase/router"
	"github.com/kinetic-field/faultline/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting faultline API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register pipeline metrics explicitly (no init())
	metrics.RegisterPipelineMetrics()

	generator := buildGenerator(cfg.LLM.Generator, cfg.LLM.Providers, logger)
	classifier := buildGenerator(cfg.LLM.Classifier, cfg.LLM.Providers, logger)

	embRef := cfg.LLM.Embedder
	embProv := cfg.LLM.Providers[embRef.Provider]
	embedder := openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
		APIKey:     embProv.APIKey,
		BaseURL:    embProv.BaseURL,
		Model:      embRef.Model,
		Dimensions: embRef.Dimensions,
		Provider:   embRef.Provider,
		Logger:     logger,
	})
	logger.Info("Collaborators created",
		zap.String("generator_model", cfg.LLM.Generator.Model),
		zap.String("classifier_model", cfg.LLM.Classifier.Model),
		zap.String("embedder_model", embRef.Model),
		zap.Int("dimensions", embRef.Dimensions),
	)

	// Repositories
	searchRepo := searchrepo.New(store, cfg.Search.IndexName, cfg.Database.KeyPrefix, embRef.Dimensions)
	if err := searchRepo.EnsureIndex(ctx); err != nil {
		logger.Fatal("Failed to ensure search index", zap.Error(err))
	}
	graphStore := graphredis.New(store, cfg.Database.KeyPrefix)
	cache := respcache.New(cfg.Cache.Capacity, metrics.ResponseCacheTotal, logger).
		WithRemote(store, cfg.Database.KeyPrefix)

	// Use case services
	requestTimeout := time.Duration(cfg.LLM.RequestTimeoutSec) * time.Second
	routerSvc := routeruc.New(classifier, requestTimeout, logger)
	fusionSvc := fusion.New(cfg.Fusion.RRFK)
	reasonerSvc := reasoner.New(graphStore, logger)
	expertGate := gate.New(cfg.Consensus.GateSize, time.Duration(cfg.Consensus.GateWaitMS)*time.Millisecond)
	consensusSvc := consensusuc.New(
		generator, expertGate, cfg.Consensus.Experts,
		time.Duration(cfg.Consensus.PassTimeoutSec)*time.Second, logger,
	)

	pipelineSvc := pipelineuc.New(pipelineuc.Deps{
		Router:      routerSvc,
		Cache:       cache,
		Lexical:     searchRepo,
		Vector:      searchRepo,
		Embedder:    embedder,
		Fuser:       fusionSvc,
		Faults:      graphStore,
		Reasoner:    reasonerSvc,
		Synthesizer: consensusSvc,
		Generator:   generator,
	}, pipelineuc.Config{
		TopK:         cfg.Search.TopK,
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxLimit:     cfg.Search.MaxLimit,
		CacheTTL:     time.Duration(cfg.Cache.DefaultTTLSec) * time.Second,
		MaxDepth:     cfg.Reasoner.MaxDepth,
	}, logger)

	ingestSvc := ingestuc.New(searchRepo, graphStore, embedder, logger)

	server := chiTransport.NewServer(pipelineSvc, ingestSvc, store, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

func buildGenerator(ref config.ModelRef, providers map[string]config.ProviderConfig, logger *zap.Logger) *openaiTransport.Generator {
	prov := providers[ref.Provider]
	return openaiTransport.NewGenerator(&openaiTransport.GeneratorConfig{
		APIKey:   prov.APIKey,
		BaseURL:  prov.BaseURL,
		Model:    ref.Model,
		Provider: ref.Provider,
		Logger:   logger,
	})
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line, one per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
