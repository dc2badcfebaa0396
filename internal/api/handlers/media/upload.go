package media

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/petmarket/media-service/internal/models"
	"github.com/petmarket/media-service/internal/services/upload"
)

// UploadPetMedia accepts up to five files in the "files" field.
func (h *Handler) UploadPetMedia(c *gin.Context) {
	files, entity, ok := h.readForm(c, "files")
	if !ok {
		return
	}

	res, ok := h.run(c, files, entity)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        res.Succeeded > 0,
		"message":        fmt.Sprintf("%d of %d files uploaded successfully", res.Succeeded, res.TotalAttempted),
		"count":          res.Succeeded,
		"totalAttempted": res.TotalAttempted,
		"failed":         res.Failed,
		"files":          res.Files,
		"errors":         res.Errors,
	})
}

// UploadSingle accepts one file in the "file" field.
func (h *Handler) UploadSingle(c *gin.Context) {
	files, entity, ok := h.readForm(c, "file")
	if !ok {
		return
	}
	if len(files) > 1 {
		files = files[:1]
	}

	res, ok := h.run(c, files, entity)
	if !ok {
		return
	}
	if res.Succeeded == 0 {
		msg := "upload failed"
		if len(res.Errors) > 0 {
			msg = res.Errors[0].Error
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": msg})
		return
	}

	f := res.Files[0]
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"id":           f.ID,
		"publicId":     f.PublicID,
		"url":          f.URL,
		"originalName": f.OriginalName,
		"width":        f.Width,
		"height":       f.Height,
		"duration":     f.Duration,
		"resourceType": f.ResourceType,
		"format":       f.Format,
		"size":         f.Size,
	})
}

func (h *Handler) readForm(c *gin.Context, field string) ([]*multipart.FileHeader, models.EntityContext, bool) {
	if h.maxBodyBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)
	}

	form, err := c.MultipartForm()
	if err != nil {
		var tooBig *http.MaxBytesError
		switch {
		case errors.As(err, &tooBig):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Upload too large"})
		case errors.Is(err, http.ErrNotMultipart), errors.Is(err, http.ErrMissingBoundary):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": upload.ErrNoFiles.Error()})
		default:
			h.log.Warn("Failed to parse multipart form", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "failed to parse multipart form"})
		}
		return nil, models.EntityContext{}, false
	}

	files := form.File[field]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": upload.ErrNoFiles.Error()})
		return nil, models.EntityContext{}, false
	}

	entity, err := entityFromForm(form)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return nil, models.EntityContext{}, false
	}
	return files, entity, true
}

func entityFromForm(form *multipart.Form) (models.EntityContext, error) {
	value := func(key string) string {
		if v := form.Value[key]; len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
		return ""
	}

	et, err := models.ParseEntityType(value("entityType"))
	if err != nil {
		return models.EntityContext{}, err
	}
	entity := models.EntityContext{Type: et}

	if raw := value("entityId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return models.EntityContext{}, fmt.Errorf("invalid entityId %q", raw)
		}
		entity.ID = &id
	}
	return entity, nil
}

func (h *Handler) run(c *gin.Context, files []*multipart.FileHeader, entity models.EntityContext) (*upload.Result, bool) {
	ctx := c.Request.Context()

	staged, err := h.intake.Stage(ctx, files)
	if err != nil {
		var ie *upload.IntakeError
		if errors.As(err, &ie) {
			c.JSON(ie.Status, gin.H{"success": false, "error": ie.Message})
			return nil, false
		}
		h.log.Error("Staging failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to stage upload"})
		return nil, false
	}

	res, err := h.orchestrator.Process(ctx, staged, entity)
	if err != nil {
		upload.Discard(staged, h.log)
		if errors.Is(err, upload.ErrNoFiles) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return nil, false
		}
		h.log.Error("Upload processing failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "upload processing failed"})
		return nil, false
	}
	return res, true
}
