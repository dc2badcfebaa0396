package main

import (
	"context"
	"fmt"

	"github.com/petmarket/media-service/internal/configuration"
	"github.com/petmarket/media-service/internal/logger"
	"github.com/petmarket/media-service/internal/services"
	"github.com/petmarket/media-service/internal/services/retry"
	"github.com/petmarket/media-service/internal/storage"
)

func newStorage(ctx context.Context, cfg *configuration.Config, log *logger.Logger) (storage.Storage, error) {
	switch cfg.StorageBackend {
	case "local":
		log.Info("Using local metadata store", "path", cfg.LocalStore.MetadataFile)
		return storage.NewLocalStorage(cfg.LocalStore.MetadataFile)
	case "postgres":
		return storage.NewPostgresStorage(ctx, cfg.Database.ConnectionString(), log)
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
}

func newMediaStore(ctx context.Context, cfg *configuration.Config, log *logger.Logger) (services.MediaStore, error) {
	switch cfg.MediaBackend {
	case "cloudinary":
		return services.NewCloudinaryService(cfg.Cloudinary, log), nil
	case "minio":
		return services.NewMinioService(ctx, cfg.MinIO, log)
	}
	return nil, fmt.Errorf("unknown media store backend %q", cfg.MediaBackend)
}

// newScanner returns nil when no clamd address is configured.
func newScanner(cfg *configuration.Config, log *logger.Logger) services.Scanner {
	if cfg.CLAMAVURL == "" {
		return nil
	}
	s := services.NewClamAVScanner(cfg.CLAMAVURL, log)
	if err := s.Ping(); err != nil {
		log.Warn("ClamAV not reachable, uploads will be admitted unscanned until it is", "address", cfg.CLAMAVURL, "error", err)
	}
	return s
}

func retryPolicy(cfg configuration.UploadConfig) retry.Policy {
	p := retry.Default()
	if cfg.MaxAttempts > 0 {
		p.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.RetryDelay > 0 {
		p.Delay = cfg.RetryDelay
	}
	return p
}

// maxRequestBytes bounds a whole multipart request: every file at its limit plus form overhead.
func maxRequestBytes(cfg configuration.UploadConfig) int64 {
	files := int64(cfg.MaxFiles)
	if files <= 0 {
		files = 1
	}
	return files*cfg.MaxFileBytes + 1<<20
}
