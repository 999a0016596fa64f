package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/asteroid-belt/fieldsync/internal/cache"
	"github.com/asteroid-belt/fieldsync/internal/models"
)

// CacheHandler serves the per-device content cache endpoints.
type CacheHandler struct {
	Cache *cache.Service
}

func contentRef(c *gin.Context) models.ContentRef {
	return models.ContentRef{
		ContentType: c.Param("type"),
		ContentID:   c.Param("cid"),
	}
}

type putCacheBody struct {
	Payload          []byte              `json:"payload"` // base64 in JSON
	Version          string              `json:"version"`
	Priority         string              `json:"priority"`
	ServerModifiedAt time.Time           `json:"server_modified_at"`
	ExpiresAt        *time.Time          `json:"expires_at"`
	Extensions       models.ExtensionMap `json:"extensions"`
}

func (h *CacheHandler) Put(c *gin.Context) {
	var body putCacheBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	err := h.Cache.Put(c.Param("id"), contentRef(c), body.Payload, cache.PutInput{
		Version:          body.Version,
		Priority:         models.ParseCachePriority(body.Priority),
		ServerModifiedAt: body.ServerModifiedAt,
		ExpiresAt:        body.ExpiresAt,
		Extensions:       body.Extensions,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *CacheHandler) Get(c *gin.Context) {
	payload, stale, err := h.Cache.Get(c.Param("id"), contentRef(c), c.Query("server_hash"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payload": payload, "stale": stale})
}

func (h *CacheHandler) Invalidate(c *gin.Context) {
	if err := h.Cache.Invalidate(c.Param("id"), contentRef(c)); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *CacheHandler) MarkResync(c *gin.Context) {
	if err := h.Cache.MarkSyncRequired(c.Param("id"), contentRef(c)); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *CacheHandler) List(c *gin.Context) {
	entries, err := h.Cache.List(c.Param("id"), c.Query("content_type"))
	if err != nil {
		fail(c, err)
		return
	}

	resp := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, gin.H{
			"content_type":   e.ContentType,
			"content_id":     e.ContentID,
			"version":        e.Version,
			"hash":           e.Hash,
			"size":           e.Size,
			"priority":       e.Priority.String(),
			"needs_resync":   e.NeedsResync,
			"last_access_at": e.LastAccessAt,
			"expires_at":     e.ExpiresAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"entries": resp})
}

func (h *CacheHandler) Usage(c *gin.Context) {
	used, capacity, err := h.Cache.Usage(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"used": used, "capacity": capacity})
}
