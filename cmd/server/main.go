package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Brownie44l1/xray-api/internal/config"
	"github.com/Brownie44l1/xray-api/internal/diagnosis"
	"github.com/Brownie44l1/xray-api/internal/handlers"
	"github.com/Brownie44l1/xray-api/internal/history"
	"github.com/Brownie44l1/xray-api/internal/model"
	"github.com/Brownie44l1/xray-api/internal/pipeline"
	"github.com/Brownie44l1/xray-api/internal/service"
	"github.com/Brownie44l1/xray-api/internal/storage"
)

func openHistory(ctx context.Context, cfg *config.Config) (history.Store, func(), error) {
	switch cfg.HistoryBackend {
	case "postgres":
		db, err := history.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		store := history.NewPostgresStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return store, func() { db.Close() }, nil
	case "redis":
		store := history.NewRedisStore(history.RedisOptions{
			Address:  cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := store.Ping(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	default:
		return history.NewMemoryStore(), func() {}, nil
	}
}

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.ConfigureLogging()

	if err := diagnosis.Validate(model.Labels); err != nil {
		return fmt.Errorf("diagnosis table incomplete: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := model.InitRuntime(cfg.OnnxLibPath); err != nil {
		return err
	}
	defer model.DestroyRuntime()

	models := model.NewCache(model.ONNXOpener{IntraOpThreads: cfg.IntraOpThreads}, model.Labels)
	defer models.Close()

	slog.Info("loading model", "path", cfg.ModelPath)
	if _, err := models.Load(cfg.ModelPath); err != nil {
		return fmt.Errorf("failed to load model %s: %w", cfg.ModelPath, err)
	}

	hist, closeHistory, err := openHistory(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open %s history store: %w", cfg.HistoryBackend, err)
	}
	defer closeHistory()

	storeCfg := storage.Config{
		Endpoint:      cfg.S3Endpoint,
		Region:        cfg.S3Region,
		AccessKey:     cfg.S3AccessKey,
		SecretKey:     cfg.S3SecretKey,
		Bucket:        cfg.S3Bucket,
		PublicBaseURL: cfg.S3PublicBaseURL,
		KeyPrefix:     cfg.S3KeyPrefix,
	}
	store, err := storage.NewS3Store(storage.Connect(storeCfg), storeCfg)
	if err != nil {
		return fmt.Errorf("failed to create object store: %w", err)
	}

	svc := service.New(pipeline.New(models), store, hist, service.Options{
		ModelPath:   cfg.ModelPath,
		Location:    cfg.Location,
		Retries:     cfg.Retries,
		HTTPClient:  &http.Client{Timeout: 30 * time.Second},
		MaxDownload: cfg.MaxUploadMB << 20,
	})

	mux := http.NewServeMux()
	handlers.NewHandler(svc, cfg.MaxUploadMB<<20).Routes(mux)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.EnableCORS(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("shutdown", "error", err)
		}
	}()

	slog.Info("server starting",
		"port", cfg.Port,
		"model", cfg.ModelPath,
		"classes", model.Labels,
		"history", cfg.HistoryBackend,
		"bucket", cfg.S3Bucket)
	slog.Info("endpoints",
		"health", "GET /health",
		"predict", "POST /predict/{uid}",
		"predict_url", "POST /predict/url/{uid}",
		"history", "GET /predict/history/{uid}")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}
