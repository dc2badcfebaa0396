package media

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/petmarket/media-service/internal/models"
	"github.com/petmarket/media-service/internal/services"
	"github.com/petmarket/media-service/internal/storage"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxPage         = 10000
)

// ListMedia pages through media files, optionally narrowed to one entity.
func (h *Handler) ListMedia(c *gin.Context) {
	filter := storage.MediaFilter{}

	if raw := c.Query("entityType"); raw != "" {
		et, err := models.ParseEntityType(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		filter.EntityType = et
	}
	if raw := c.Query("entityId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid entityId"})
			return
		}
		filter.EntityID = &id
	}

	page := queryInt(c, "page", 1)
	pageSize := queryInt(c, "pageSize", defaultPageSize)
	if page < 1 {
		page = 1
	}
	if page > maxPage {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("page must be at most %d", maxPage)})
		return
	}
	if pageSize < 1 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}
	filter.Limit = pageSize
	filter.Offset = (page - 1) * pageSize

	files, err := h.storage.ListMediaFiles(c.Request.Context(), filter)
	if err != nil {
		h.log.Error("Failed to list media", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list media"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"files":    files,
		"page":     page,
		"pageSize": pageSize,
	})
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}

// publicIDParam reads the catch-all path parameter; public ids contain slashes.
func publicIDParam(c *gin.Context) string {
	return strings.Trim(c.Param("publicId"), "/")
}

func (h *Handler) GetMedia(c *gin.Context) {
	publicID := publicIDParam(c)
	if publicID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "publicId is required"})
		return
	}

	file, found, err := h.storage.GetMediaFile(c.Request.Context(), publicID)
	if err != nil {
		h.log.Error("Failed to load media", "public_id", publicID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load media"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "media not found"})
		return
	}
	c.JSON(http.StatusOK, file)
}

// SignedURL returns a signed, optionally transformed retrieval URL.
func (h *Handler) SignedURL(c *gin.Context) {
	publicID := strings.TrimSpace(c.Query("publicId"))
	if publicID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "publicId is required"})
		return
	}

	rt, err := models.ParseResourceType(c.Query("resourceType"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if c.Query("resourceType") == "" {
		if file, found, err := h.storage.GetMediaFile(c.Request.Context(), publicID); err == nil && found {
			rt = file.ResourceType
		}
	}

	url, err := h.store.SignedURL(c.Request.Context(), publicID, services.URLOptions{
		ResourceType:   rt,
		Transformation: c.Query("transformation"),
	})
	if err != nil {
		if errors.Is(err, services.ErrObjectNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "media not found"})
			return
		}
		h.log.Error("Failed to sign url", "public_id", publicID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate signed url"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url, "publicId": publicID})
}

// DeleteMedia removes the remote object first and the metadata row after. A failed remote
// delete keeps the row.
func (h *Handler) DeleteMedia(c *gin.Context) {
	publicID := publicIDParam(c)
	if publicID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "publicId is required"})
		return
	}
	ctx := c.Request.Context()

	file, found, err := h.storage.GetMediaFile(ctx, publicID)
	if err != nil {
		h.log.Error("Failed to load media", "public_id", publicID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load media"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "media not found"})
		return
	}

	if !h.store.Delete(ctx, file.PublicID, file.ResourceType) {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to delete media from store"})
		return
	}
	if _, err := h.storage.DeleteMediaFile(ctx, file.PublicID); err != nil {
		h.log.Error("Remote object deleted but metadata remains", "public_id", publicID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete media metadata"})
		return
	}

	if err := h.events.Publish(ctx, services.SubjectMediaDeleted, services.MediaDeletedEvent{PublicID: publicID}); err != nil {
		h.log.Warn("Failed to publish media.deleted", "public_id", publicID, "error", err)
	}
	h.log.Info("Media deleted", "public_id", publicID, "user_id", c.GetString("user_id"))
	c.JSON(http.StatusOK, gin.H{"message": "media deleted", "publicId": publicID})
}

func (h *Handler) HealthCheck(c *gin.Context) {
	if err := h.storage.Ping(c.Request.Context()); err != nil {
		h.log.Warn("Health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "storage": err.Error()})
		return
	}
	if p, ok := h.store.(pinger); ok {
		if err := p.Ping(c.Request.Context()); err != nil {
			h.log.Warn("Media store unreachable", "store", h.store.Name(), "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "mediaStore": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "mediaStore": h.store.Name()})
}
