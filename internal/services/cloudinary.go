package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/petmarket/media-service/internal/configuration"
	"github.com/petmarket/media-service/internal/logger"
	"github.com/petmarket/media-service/internal/metrics"
	"github.com/petmarket/media-service/internal/models"
	"github.com/petmarket/media-service/internal/services/retry"
)

const maxResponseBody = 1 << 20

// CloudinaryService speaks the signed upload/destroy protocol of the remote media store.
type CloudinaryService struct {
	cfg    configuration.CloudinaryConfig
	client *http.Client
	log    *logger.Logger
	now    func() time.Time
}

type cloudinaryUploadResponse struct {
	PublicID         string   `json:"public_id"`
	URL              string   `json:"url"`
	SecureURL        string   `json:"secure_url"`
	ResourceType     string   `json:"resource_type"`
	Format           string   `json:"format"`
	Width            *int     `json:"width"`
	Height           *int     `json:"height"`
	Bytes            int64    `json:"bytes"`
	Duration         *float64 `json:"duration"`
	CreatedAt        string   `json:"created_at"`
	OriginalFilename string   `json:"original_filename"`
}

func NewCloudinaryService(cfg configuration.CloudinaryConfig, log *logger.Logger) *CloudinaryService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	serviceLog := log.With("service", "CloudinaryService")
	if cfg.APIKey == "" || cfg.APISecret == "" {
		serviceLog.Warn("Cloudinary credentials missing, signed calls will fail", "cloud_name", cfg.CloudName)
	}
	return &CloudinaryService{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    serviceLog,
		now:    time.Now,
	}
}

func (s *CloudinaryService) Name() string { return "cloudinary" }

// Sign computes the request signature: every parameter except api_key and file, sorted by
// key, joined as key=value with '&', HMAC-SHA-256 with the secret, hex encoded.
func Sign(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "api_key" || k == "file" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.Join(pairs, "&")))
	return hex.EncodeToString(mac.Sum(nil))
}

// GeneratePublicID returns {basename}_{unixMillis}_{uuid}, prefixed by folder/ when set.
func GeneratePublicID(filePath, folder string, now time.Time) string {
	base := filepath.Base(filePath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	id := fmt.Sprintf("%s_%d_%s", base, now.UnixMilli(), uuid.NewString())
	if folder = strings.Trim(folder, "/"); folder != "" {
		return folder + "/" + id
	}
	return id
}

func (s *CloudinaryService) endpoint(resourceType models.ResourceType, action string) string {
	return fmt.Sprintf("%s/%s/%s/%s", strings.TrimRight(s.cfg.APIBaseURL, "/"), s.cfg.CloudName, resourceType, action)
}

func (s *CloudinaryService) signedParams(publicID string) (map[string]string, error) {
	if s.cfg.APIKey == "" || s.cfg.APISecret == "" {
		return nil, ErrNotConfigured
	}
	params := map[string]string{
		"timestamp": strconv.FormatInt(s.now().Unix(), 10),
		"public_id": publicID,
		"api_key":   s.cfg.APIKey,
	}
	return params, nil
}

func (s *CloudinaryService) Upload(ctx context.Context, path, folder string, resourceType models.ResourceType, publicID string) (*models.RemoteMetadata, error) {
	if _, err := os.Stat(path); err != nil {
		s.log.Error("Upload source missing", "path", path, "error", err)
		return nil, retry.Permanent(fmt.Errorf("open upload source: %w", err))
	}
	if publicID == "" {
		publicID = GeneratePublicID(path, folder, s.now())
	}

	params, err := s.signedParams(publicID)
	if err != nil {
		s.log.Error("Cannot sign upload", "public_id", publicID, "error", err)
		return nil, retry.Permanent(err)
	}
	if s.cfg.UploadPreset != "" {
		params["upload_preset"] = s.cfg.UploadPreset
	}
	params["signature"] = Sign(params, s.cfg.APISecret)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	body, contentType := multipartBody(params, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint(resourceType, "upload"), body)
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		metrics.RecordRemoteOperation(s.Name(), "upload", "error", time.Since(start).Seconds())
		s.log.Warn("Upload request failed", "public_id", publicID, "error", err)
		return nil, fmt.Errorf("upload request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		metrics.RecordRemoteOperation(s.Name(), "upload", "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("read upload response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.RecordRemoteOperation(s.Name(), "upload", strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())
		s.log.Warn("Upload rejected by media store",
			"public_id", publicID,
			"status", resp.StatusCode,
			"body", string(raw),
		)
		return nil, fmt.Errorf("media store upload failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out cloudinaryUploadResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		metrics.RecordRemoteOperation(s.Name(), "upload", "bad_response", time.Since(start).Seconds())
		s.log.Warn("Upload response unreadable", "public_id", publicID, "body", string(raw), "error", err)
		return nil, fmt.Errorf("parse upload response: %w", err)
	}
	metrics.RecordRemoteOperation(s.Name(), "upload", "ok", time.Since(start).Seconds())

	return s.toMetadata(out, resourceType, path), nil
}

func (s *CloudinaryService) toMetadata(out cloudinaryUploadResponse, requested models.ResourceType, path string) *models.RemoteMetadata {
	rt := models.ResourceType(out.ResourceType)
	if rt != models.ResourceImage && rt != models.ResourceVideo {
		rt = requested
	}
	createdAt, err := time.Parse(time.RFC3339, out.CreatedAt)
	if err != nil {
		createdAt = s.now().UTC()
	}
	original := out.OriginalFilename
	if original == "" {
		original = filepath.Base(path)
	}
	meta := &models.RemoteMetadata{
		PublicID:         out.PublicID,
		OriginalFilename: original,
		URL:              out.URL,
		SecureURL:        out.SecureURL,
		ResourceType:     rt,
		Format:           out.Format,
		Width:            out.Width,
		Height:           out.Height,
		Bytes:            out.Bytes,
		CreatedAt:        createdAt,
	}
	if rt == models.ResourceVideo {
		meta.Duration = out.Duration
	}
	return meta
}

// multipartBody streams the form fields and the file through a pipe.
func multipartBody(params map[string]string, path string) (io.Reader, string) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := func() error {
			keys := make([]string, 0, len(params))
			for k := range params {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				if err := mw.WriteField(k, params[k]); err != nil {
					return err
				}
			}

			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			part, err := mw.CreateFormFile("file", filepath.Base(path))
			if err != nil {
				return err
			}
			if _, err := io.Copy(part, f); err != nil {
				return err
			}
			return mw.Close()
		}()
		pw.CloseWithError(err)
	}()

	return pr, mw.FormDataContentType()
}

func (s *CloudinaryService) Delete(ctx context.Context, publicID string, resourceType models.ResourceType) bool {
	params, err := s.signedParams(publicID)
	if err != nil {
		s.log.Error("Cannot sign delete", "public_id", publicID, "error", err)
		return false
	}
	params["signature"] = Sign(params, s.cfg.APISecret)

	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint(resourceType, "destroy")+"?"+q.Encode(), nil)
	if err != nil {
		s.log.Error("Failed to build delete request", "public_id", publicID, "error", err)
		return false
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		metrics.RecordRemoteOperation(s.Name(), "destroy", "error", time.Since(start).Seconds())
		s.log.Warn("Delete request failed", "public_id", publicID, "error", err)
		return false
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.RecordRemoteOperation(s.Name(), "destroy", strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())
		s.log.Warn("Delete rejected by media store", "public_id", publicID, "status", resp.StatusCode, "body", string(raw))
		return false
	}

	var out struct {
		Result string `json:"result"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		metrics.RecordRemoteOperation(s.Name(), "destroy", "bad_response", time.Since(start).Seconds())
		s.log.Warn("Delete response unreadable", "public_id", publicID, "body", string(raw), "error", err)
		return false
	}
	metrics.RecordRemoteOperation(s.Name(), "destroy", "ok", time.Since(start).Seconds())
	// an object that is already gone counts as deleted
	return out.Result == "ok" || out.Result == "not found"
}

// SignedURL builds {delivery}/{cloud}/{type}/upload/s--{sig}--/{transformation}/{publicId}
// where sig is the first 8 characters of base64url(HMAC-SHA-256 over "{transformation}/{publicId}").
func (s *CloudinaryService) SignedURL(_ context.Context, publicID string, opts URLOptions) (string, error) {
	if s.cfg.APISecret == "" {
		return "", ErrNotConfigured
	}
	rt := opts.ResourceType
	if rt == "" {
		rt = models.ResourceImage
	}

	toSign := publicID
	if t := strings.Trim(opts.Transformation, "/"); t != "" {
		toSign = t + "/" + publicID
	}
	mac := hmac.New(sha256.New, []byte(s.cfg.APISecret))
	mac.Write([]byte(toSign))
	sig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))[:8]

	return fmt.Sprintf("%s/%s/%s/upload/s--%s--/%s",
		strings.TrimRight(s.cfg.DeliveryURL, "/"), s.cfg.CloudName, rt, sig, toSign), nil
}
