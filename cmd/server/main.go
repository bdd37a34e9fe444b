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

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/RMahshie/psychro/internal/api"
	"github.com/RMahshie/psychro/internal/calibration"
	"github.com/RMahshie/psychro/internal/config"
	"github.com/RMahshie/psychro/internal/observability"
	"github.com/RMahshie/psychro/internal/oracle"
	"github.com/RMahshie/psychro/internal/processing"
	"github.com/RMahshie/psychro/internal/repository"
	"github.com/RMahshie/psychro/internal/repository/postgres"
	"github.com/RMahshie/psychro/internal/repository/sqlite"
	"github.com/RMahshie/psychro/internal/session"
	"github.com/RMahshie/psychro/internal/storage"
	"github.com/RMahshie/psychro/pkg/models"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogging(cfg.Server)

	ctx := context.Background()
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	repo, closeRepo, err := openRepository(ctx, cfg.Store, cfg.Calibration.RecordName)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Store.Backend).Msg("Failed to open calibration repository")
	}
	defer closeRepo()

	images, err := openImageStore(ctx, cfg.Images)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Images.Backend).Msg("Failed to open image storage")
	}

	exemplars := calibration.NewStore(repo, images, clock, metrics)
	exemplars.Load(ctx)

	extractor, err := oracle.NewOpenAIExtractor(oracle.OpenAIConfig{
		APIKey:      cfg.OpenAI.APIKey,
		Model:       cfg.OpenAI.Model,
		Temperature: cfg.OpenAI.Temperature,
	}, metrics)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create reading extractor")
	}

	extraction := processing.NewExtractionService(extractor, exemplars, cfg.OpenAI.Timeout, metrics)
	sessions := session.NewManager(exemplars, clock, metrics)

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	go sessions.RunSweeper(sweepCtx, cfg.Server.SessionTTL, time.Minute)

	// Create Chi router
	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(zerologLogger())
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	router.Use(middleware.Compress(5))

	// Create Huma API
	humaConfig := huma.DefaultConfig("Psychro API", version)
	humaConfig.DocsPath = "/api/docs"
	humaAPI := humachi.New(router, humaConfig)

	// Register health endpoint
	huma.Register(humaAPI, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns the health status of the service",
	}, func(ctx context.Context, input *struct{}) (*models.HealthResponse, error) {
		resp := &models.HealthResponse{}
		resp.Body.Status = "healthy"
		resp.Body.Version = version
		resp.Body.Time = clock.Now()
		return resp, nil
	})

	api.RegisterRoutes(humaAPI, sessions, extraction, exemplars, images)
	router.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Info().Str("port", cfg.Server.Port).Str("environment", cfg.Server.Env).Msg("Starting Psychro API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	stopSweeper()
	sessions.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func setupLogging(cfg config.ServerConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Env == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// openRepository connects the calibration record backend
func openRepository(ctx context.Context, cfg config.StoreConfig, recordName string) (repository.CalibrationRepository, func(), error) {
	switch cfg.Backend {
	case "postgres":
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		repo := postgres.NewPostgresCalibrationRepository(db, recordName)
		if err := repo.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		log.Info().Msg("Using PostgreSQL calibration repository")
		return repo, func() { db.Close() }, nil

	default:
		repo, err := sqlite.NewSQLiteCalibrationRepository(cfg.SQLitePath, recordName)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { repo.Close() }, nil
	}
}

// openImageStore connects the exemplar photo backend
func openImageStore(ctx context.Context, cfg config.ImageConfig) (storage.ImageStore, error) {
	s3cfg := storage.S3Config{
		Bucket:    cfg.Bucket,
		Endpoint:  cfg.Endpoint,
		Region:    cfg.Region,
		AccessKey: cfg.AccessKeyID,
		SecretKey: cfg.SecretAccessKey,
		UseSSL:    cfg.UseSSL,
	}
	if cfg.Backend == "minio" {
		log.Info().Str("endpoint", cfg.Endpoint).Msg("Using MinIO image storage")
		return storage.NewMinioStore(ctx, s3cfg)
	}
	log.Info().Str("bucket", cfg.Bucket).Msg("Using S3 image storage")
	return storage.NewS3Store(ctx, s3cfg)
}

// zerologLogger returns a Chi middleware that logs HTTP requests using zerolog
func zerologLogger() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				log.Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("request_id", middleware.GetReqID(r.Context())).
					Int("status", ww.Status()).
					Dur("latency", time.Since(start)).
					Msg("HTTP request")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
