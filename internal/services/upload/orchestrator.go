package upload

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/petmarket/media-service/internal/logger"
	"github.com/petmarket/media-service/internal/metrics"
	"github.com/petmarket/media-service/internal/models"
	"github.com/petmarket/media-service/internal/services"
	"github.com/petmarket/media-service/internal/services/retry"
	"github.com/petmarket/media-service/internal/storage"
)

const bookkeepingTimeout = 15 * time.Second

// UploadedFile is the per-file summary returned to the caller.
type UploadedFile struct {
	ID           int64               `json:"id"`
	PublicID     string              `json:"publicId"`
	OriginalName string              `json:"originalName"`
	URL          string              `json:"url"`
	ResourceType models.ResourceType `json:"resourceType"`
	Format       string              `json:"format"`
	Width        *int                `json:"width"`
	Height       *int                `json:"height"`
	Duration     *float64            `json:"duration"`
	Size         int64               `json:"size"`
}

type FileError struct {
	OriginalName string `json:"originalName"`
	Attempts     int    `json:"attempts"`
	Error        string `json:"error"`
}

type Result struct {
	TotalAttempted int
	Succeeded      int
	Failed         int
	Files          []UploadedFile
	Errors         []FileError
}

// Orchestrator drives staged files through the remote store and into the metadata index.
type Orchestrator struct {
	store      services.MediaStore
	repo       storage.MediaRepository
	events     services.EventPublisher
	policy     retry.Policy
	rootFolder string
	log        *logger.Logger
	now        func() time.Time
}

// NewOrchestrator wires the pipeline. A nil events publisher disables events.
func NewOrchestrator(
	store services.MediaStore,
	repo storage.MediaRepository,
	events services.EventPublisher,
	policy retry.Policy,
	rootFolder string,
	log *logger.Logger,
) *Orchestrator {
	if events == nil {
		events = services.NopPublisher{}
	}
	return &Orchestrator{
		store:      store,
		repo:       repo,
		events:     events,
		policy:     policy,
		rootFolder: strings.Trim(rootFolder, "/"),
		log:        log.With("component", "orchestrator", "backend", store.Name()),
		now:        time.Now,
	}
}

// Folder is the remote folder for an entity type, {root}/{entityType}.
func (o *Orchestrator) Folder(entityType models.EntityType) string {
	if entityType == "" {
		entityType = models.EntityGeneral
	}
	if o.rootFolder == "" {
		return string(entityType)
	}
	return o.rootFolder + "/" + string(entityType)
}

// Process uploads the files one after another in the order given. Per-file failures are
// collected in the result; only an empty batch is an error. Every staged file is removed
// from disk before Process returns.
func (o *Orchestrator) Process(ctx context.Context, staged []models.StagedFile, entity models.EntityContext) (*Result, error) {
	if len(staged) == 0 {
		return nil, ErrNoFiles
	}

	folder := o.Folder(entity.Type)
	res := &Result{
		TotalAttempted: len(staged),
		Files:          make([]UploadedFile, 0, len(staged)),
	}

	for i, sf := range staged {
		if err := ctx.Err(); err != nil {
			for _, rest := range staged[i:] {
				removeStaged(rest, o.log)
				res.Failed++
				res.Errors = append(res.Errors, FileError{OriginalName: rest.OriginalName, Error: "upload cancelled"})
			}
			o.log.Warn("Upload batch cancelled", "remaining", len(staged)-i, "error", err)
			break
		}

		uploaded, attempts, err := o.processOne(ctx, sf, folder, entity)
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, FileError{OriginalName: sf.OriginalName, Attempts: attempts, Error: err.Error()})
			continue
		}
		res.Succeeded++
		res.Files = append(res.Files, *uploaded)
	}

	o.log.Info("Upload batch finished",
		"attempted", res.TotalAttempted,
		"succeeded", res.Succeeded,
		"failed", res.Failed,
		"folder", folder,
	)
	return res, nil
}

func (o *Orchestrator) processOne(ctx context.Context, sf models.StagedFile, folder string, entity models.EntityContext) (*UploadedFile, int, error) {
	defer removeStaged(sf, o.log)

	rt := models.ResourceTypeForMIME(sf.MimeType)
	// one id for every attempt so a retry after a lost response overwrites instead of duplicating
	publicID := services.GeneratePublicID(sf.Path, folder, o.now())
	log := o.log.With("file", sf.OriginalName, "public_id", publicID, "resource_type", rt)

	var meta *models.RemoteMetadata
	attempts, err := o.policy.Do(ctx, func(ctx context.Context) error {
		m, err := o.store.Upload(ctx, sf.Path, folder, rt, publicID)
		if err != nil {
			log.Warn("Upload attempt failed", "error", err)
			return err
		}
		meta = m
		return nil
	})
	if err != nil {
		metrics.RecordUpload(string(rt), "failed", 0, attempts)
		log.Error("Upload failed", "attempts", attempts, "error", err)
		return nil, attempts, fmt.Errorf("upload failed after %d attempt(s): %w", attempts, err)
	}

	// the object exists remotely now; finish bookkeeping even if the caller goes away
	bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer cancel()

	meta.OriginalFilename = sf.OriginalName
	row := models.NewMediaFile(*meta, entity)
	id, err := o.repo.InsertMediaFile(bctx, &row)
	if err != nil {
		rolledBack := o.store.Delete(bctx, meta.PublicID, meta.ResourceType)
		metrics.RecordUpload(string(rt), "unindexed", 0, attempts)
		log.Error("Failed to save media metadata", "rolled_back", rolledBack, "error", err)
		if errors.Is(err, storage.ErrDuplicatePublicID) {
			return nil, attempts, fmt.Errorf("failed to save media metadata: %w", err)
		}
		return nil, attempts, errors.New("failed to save media metadata")
	}
	metrics.RecordUpload(string(rt), "success", meta.Bytes, attempts)

	if err := o.events.Publish(bctx, services.SubjectMediaUploaded, services.MediaUploadedEvent{
		ID:           id,
		PublicID:     row.PublicID,
		ResourceType: string(row.ResourceType),
		EntityType:   string(row.EntityType),
		EntityID:     row.EntityID,
		Bytes:        row.Bytes,
		UploadedAt:   row.CreatedAt,
	}); err != nil {
		log.Warn("Failed to publish media.uploaded", "error", err)
	}

	log.Info("Media uploaded", "id", id, "attempts", attempts, "bytes", row.Bytes)
	return &UploadedFile{
		ID:           id,
		PublicID:     row.PublicID,
		OriginalName: sf.OriginalName,
		URL:          preferredURL(row),
		ResourceType: row.ResourceType,
		Format:       row.Format,
		Width:        row.Width,
		Height:       row.Height,
		Duration:     row.Duration,
		Size:         row.Bytes,
	}, attempts, nil
}

func preferredURL(f models.MediaFile) string {
	if f.SecureURL != "" {
		return f.SecureURL
	}
	return f.URL
}
