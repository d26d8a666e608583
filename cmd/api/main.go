package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"folio/db"
	"folio/internal/app"
	"folio/internal/auth"
	"folio/internal/config"
	"folio/internal/history"
	"folio/internal/kv"
	"folio/internal/logging"
	"folio/internal/search"
	"folio/internal/store"
	"folio/internal/upload"
)

func main() {
	configPath := os.Getenv("FOLIO_CONFIG")
	if configPath == "" {
		configPath = "folio.yml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx := context.Background()

	repo, closeRepo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("storage connection failed", zap.String("storage", string(cfg.Storage)), zap.Error(err))
	}
	defer closeRepo()

	verifier, err := auth.NewVerifier(cfg.EditorPassword, cfg.EditorPasswordHash)
	if err != nil {
		logger.Fatal("editor credential", zap.Error(err))
	}
	if cfg.EditorPasswordHash == "" && cfg.EditorPassword == config.DefaultPassword {
		logger.Warn("using the default editor password; set EDIT_MODE_PASSWORD or editor_password_hash")
	}

	opts := app.Options{Logger: logger.Named("app")}

	if dir := strings.TrimSpace(cfg.HistoryDir); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Fatal("failed to create history dir", zap.Error(err))
		}
		opts.History = history.New(dir)
	}

	var primary search.Backend
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger.Named("meili"))
		defer meiliClient.Close()
		primary = meiliClient
	}
	searchService := search.NewService(primary, logger.Named("search"))
	defer searchService.Close()
	opts.Search = searchService

	uploads, err := uploadChain(cfg, logger)
	if err != nil {
		logger.Fatal("upload providers", zap.Error(err))
	}
	opts.Uploads = uploads

	service := app.New(repo, verifier, opts)
	if err := service.Bootstrap(ctx); err != nil {
		logger.Warn("bootstrap error (search index starts empty)", zap.Error(err))
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, logger.Named("http"))
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("folio API listening",
			zap.String("addr", cfg.Addr),
			zap.String("storage", string(cfg.Storage)),
			zap.Strings("upload_providers", uploads.Providers()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}

func openRepository(ctx context.Context, cfg config.Config, logger *zap.Logger) (app.Repository, func(), error) {
	switch cfg.Storage {
	case config.StorageRedis:
		redisStore, err := kv.NewRedisStore(cfg.RedisURL, cfg.RedisPrefix)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using Redis for content storage")
		return redisStore, func() { _ = redisStore.Close() }, nil
	case config.StoragePostgres:
		conn, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Migrate {
			migrations, err := db.FS()
			if err == nil {
				err = store.ApplyMigrations(ctx, conn, migrations)
			}
			if err != nil {
				_ = conn.Close()
				return nil, nil, err
			}
		}
		logger.Info("using PostgreSQL for content storage")
		pg := store.NewPostgresStore(conn)
		return pg, func() { _ = pg.Close() }, nil
	default:
		logger.Warn("using in-memory storage; content is lost on restart")
		return app.NewMemoryRepository(), func() {}, nil
	}
}

// uploadChain orders the configured providers: MinIO, then imgbb, then the
// inline data URL fallback.
func uploadChain(cfg config.Config, logger *zap.Logger) (*upload.Chain, error) {
	var strategies []upload.Strategy
	if cfg.MinIOEndpoint != "" {
		minioStrategy, err := upload.NewMinIO(upload.MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
			PublicURL: cfg.MinIOPublicURL,
		})
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, minioStrategy)
	}
	if cfg.ImgbbAPIKey != "" {
		strategies = append(strategies, upload.NewImgbb(cfg.ImgbbAPIKey, nil))
	}
	return upload.NewChain(logger.Named("upload"), strategies...), nil
}
