package services

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/petmarket/media-service/internal/configuration"
	"github.com/petmarket/media-service/internal/logger"
	"github.com/petmarket/media-service/internal/metrics"
	"github.com/petmarket/media-service/internal/models"
	"github.com/petmarket/media-service/internal/services/retry"
)

// MinioService stores media as plain objects keyed {publicId}{ext}.
type MinioService struct {
	client        *minio.Client
	bucketName    string
	baseURL       string
	timeout       time.Duration
	presignExpiry time.Duration
	log           *logger.Logger
	now           func() time.Time
}

func NewMinioService(ctx context.Context, cfg configuration.MinIOConfig, log *logger.Logger) (*MinioService, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		log.Info("Created bucket", "bucket", cfg.BucketName)
	}

	baseURL := strings.TrimRight(cfg.PublicURL, "/")
	if baseURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		baseURL = scheme + "://" + cfg.Endpoint
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	expiry := cfg.PresignExpiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}

	log.Info("Connected to MinIO successfully", "endpoint", cfg.Endpoint, "bucket", cfg.BucketName)
	return &MinioService{
		client:        client,
		bucketName:    cfg.BucketName,
		baseURL:       baseURL,
		timeout:       timeout,
		presignExpiry: expiry,
		log:           log.With("service", "MinioService"),
		now:           time.Now,
	}, nil
}

func (m *MinioService) Name() string { return "minio" }

// Ping checks that the bucket is reachable.
func (m *MinioService) Ping(ctx context.Context) error {
	_, err := m.client.BucketExists(ctx, m.bucketName)
	return err
}

func objectKey(publicID, path string) string {
	return publicID + strings.ToLower(filepath.Ext(path))
}

func (m *MinioService) objectURL(key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return m.baseURL + "/" + m.bucketName + "/" + strings.Join(segments, "/")
}

func (m *MinioService) Upload(ctx context.Context, path, folder string, resourceType models.ResourceType, publicID string) (*models.RemoteMetadata, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		m.log.Error("Upload source unreadable", "path", path, "error", err)
		return nil, retry.Permanent(fmt.Errorf("open upload source: %w", err))
	}
	if publicID == "" {
		publicID = GeneratePublicID(path, folder, m.now())
	}
	key := objectKey(publicID, path)

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	info, err := m.client.FPutObject(ctx, m.bucketName, key, path, minio.PutObjectOptions{
		ContentType: mtype.String(),
	})
	if err != nil {
		metrics.RecordRemoteOperation(m.Name(), "upload", "error", time.Since(start).Seconds())
		m.log.Warn("Object upload failed", "key", key, "error", err)
		return nil, fmt.Errorf("put object %s: %w", key, err)
	}
	metrics.RecordRemoteOperation(m.Name(), "upload", "ok", time.Since(start).Seconds())

	link := m.objectURL(key)
	meta := &models.RemoteMetadata{
		PublicID:         publicID,
		OriginalFilename: filepath.Base(path),
		URL:              link,
		SecureURL:        link,
		ResourceType:     resourceType,
		Format:           formatFromPath(path),
		Bytes:            info.Size,
		CreatedAt:        m.now().UTC(),
	}
	if resourceType == models.ResourceImage {
		if w, h, err := probeImage(path); err != nil {
			m.log.Debug("Could not read image dimensions", "key", key, "error", err)
		} else {
			meta.Width, meta.Height = &w, &h
		}
	}
	return meta, nil
}

// findKey resolves the stored object of a public id, which carries the source extension.
func (m *MinioService) findKey(ctx context.Context, publicID string) (string, bool, error) {
	for obj := range m.client.ListObjects(ctx, m.bucketName, minio.ListObjectsOptions{
		Prefix:    publicID,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return "", false, obj.Err
		}
		rest := strings.TrimPrefix(obj.Key, publicID)
		if rest == "" || (strings.HasPrefix(rest, ".") && !strings.Contains(rest, "/")) {
			return obj.Key, true, nil
		}
	}
	return "", false, nil
}

func (m *MinioService) Delete(ctx context.Context, publicID string, _ models.ResourceType) bool {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	key, ok, err := m.findKey(ctx, publicID)
	if err != nil {
		metrics.RecordRemoteOperation(m.Name(), "destroy", "error", time.Since(start).Seconds())
		m.log.Warn("Object lookup failed", "public_id", publicID, "error", err)
		return false
	}
	if !ok {
		// already gone
		metrics.RecordRemoteOperation(m.Name(), "destroy", "not_found", time.Since(start).Seconds())
		return true
	}
	if err := m.client.RemoveObject(ctx, m.bucketName, key, minio.RemoveObjectOptions{}); err != nil {
		metrics.RecordRemoteOperation(m.Name(), "destroy", "error", time.Since(start).Seconds())
		m.log.Warn("Failed to delete object", "key", key, "error", err)
		return false
	}
	metrics.RecordRemoteOperation(m.Name(), "destroy", "ok", time.Since(start).Seconds())
	return true
}

// SignedURL presigns a GET for the object. Transformations are not supported by this backend.
func (m *MinioService) SignedURL(ctx context.Context, publicID string, _ URLOptions) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	key, ok, err := m.findKey(ctx, publicID)
	if err != nil {
		return "", fmt.Errorf("lookup object: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("object for %s: %w", publicID, ErrObjectNotFound)
	}
	u, err := m.client.PresignedGetObject(ctx, m.bucketName, key, m.presignExpiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}
