package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/abduss/goupload/internal/auth"
	"github.com/abduss/goupload/internal/config"
	"github.com/abduss/goupload/internal/logger"
	"github.com/abduss/goupload/internal/metrics"
	"github.com/abduss/goupload/internal/presigned"
	"github.com/abduss/goupload/internal/server"
	"github.com/abduss/goupload/internal/storage"
	"github.com/abduss/goupload/internal/upload"
	"github.com/joho/godotenv"
	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	logg, err := logger.Init()
	if err != nil {
		panic("init logger: " + err.Error())
	}
	defer logg.Sync()

	cfg, err := config.Load()
	if err != nil {
		logg.Fatal("load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := storage.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logg.Fatal("connect postgres", zap.Error(err))
	}
	defer dbPool.Close()

	// MinIO is optional: an fs chunk store combined with the HTTP backend
	// needs no object store at all.
	var minioClient *minio.Client
	if cfg.Upload.Backend == "minio" || cfg.Upload.ChunkStore == "minio" {
		minioClient, err = storage.NewMinIOClient(cfg.MinIO)
		if err != nil {
			logg.Fatal("connect minio", zap.Error(err))
		}
	}

	chunks, err := buildChunkStore(ctx, cfg, minioClient, logg)
	if err != nil {
		logg.Fatal("init chunk store", zap.Error(err))
	}

	backend, err := buildBackend(ctx, cfg, minioClient, logg)
	if err != nil {
		logg.Fatal("init storage backend", zap.Error(err))
	}

	records := upload.NewRepository(dbPool)
	uploadService := upload.NewService(records, chunks, backend, cfg.Upload, logg)

	metrics.InitMetrics()
	uploadService.Notify(metrics.UploadObserver())

	stored, err := records.LoadActive(ctx)
	if err != nil {
		logg.Warn("load persisted sessions", zap.Error(err))
	} else if n := uploadService.Restore(stored); n > 0 {
		logg.Info("restored upload sessions", zap.Int("count", n))
	}

	sweeper := upload.NewSweeper(uploadService, cfg.Upload.SweepInterval, logg)
	go sweeper.Run(ctx)

	authService := auth.NewService(cfg.Auth)

	var presignedService *presigned.Service
	if cfg.Upload.Backend == "minio" {
		presignedService = presigned.NewService(minioClient, cfg.Upload.DownloadURLTTL)
	}

	router := server.NewRouter(server.Dependencies{
		Config:           cfg,
		DB:               dbPool,
		ObjectStore:      minioClient,
		AuthService:      authService,
		UploadService:    uploadService,
		PresignedService: presignedService,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logg.Info("GoUpload API listening", zap.String("address", cfg.Server.Address()))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logg.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logg.Info("shutting down gracefully")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logg.Error("shutdown error", zap.Error(err))
	}
}

func buildChunkStore(ctx context.Context, cfg config.Config, minioClient *minio.Client, logg *zap.Logger) (upload.ChunkStore, error) {
	switch cfg.Upload.ChunkStore {
	case "minio":
		if err := storage.EnsureBucket(ctx, minioClient, cfg.Upload.TempBucket, cfg.MinIO.Region); err != nil {
			return nil, err
		}
		logg.Info("chunk store: minio", zap.String("bucket", cfg.Upload.TempBucket))
		return upload.NewMinIOChunkStore(minioClient, cfg.Upload.TempBucket), nil
	default:
		logg.Info("chunk store: filesystem", zap.String("dir", cfg.Upload.ChunkDir))
		return upload.NewFSStore(cfg.Upload.ChunkDir)
	}
}

func buildBackend(ctx context.Context, cfg config.Config, minioClient *minio.Client, logg *zap.Logger) (upload.ObjectBackend, error) {
	switch cfg.Upload.Backend {
	case "http":
		logg.Info("storage backend: http", zap.String("endpoint", cfg.Upload.BackendEndpoint))
		return upload.NewHTTPBackend(cfg.Upload.BackendEndpoint, cfg.Upload.BackendToken), nil
	default:
		if err := storage.EnsureBucket(ctx, minioClient, cfg.MinIO.Bucket, cfg.MinIO.Region); err != nil {
			return nil, err
		}
		logg.Info("storage backend: minio", zap.String("bucket", cfg.MinIO.Bucket))
		return upload.NewMinIOBackend(minioClient, cfg.MinIO.Bucket), nil
	}
}
