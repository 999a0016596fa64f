package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/asteroid-belt/fieldsync/internal/db"
	"github.com/asteroid-belt/fieldsync/internal/models"
	"github.com/asteroid-belt/fieldsync/internal/registry"
)

// DeviceHandler serves the device registry endpoints.
type DeviceHandler struct {
	Registry *registry.Service
	DB       *db.DB
}

type registerDeviceBody struct {
	ID              string              `json:"id"`
	TenantID        string              `json:"tenant_id"`
	Type            string              `json:"type"`
	StorageCapacity int64               `json:"storage_capacity"`
	MaxSessions     int                 `json:"max_sessions"`
	DeltaSync       bool                `json:"delta_sync"`
	AutoSync        *bool               `json:"auto_sync"`
	WifiOnly        *bool               `json:"wifi_only"`
	SyncInterval    int                 `json:"sync_interval"`
	Extensions      models.ExtensionMap `json:"extensions"`
}

func (h *DeviceHandler) Register(c *gin.Context) {
	var body registerDeviceBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	device, err := h.Registry.Register(registry.RegisterInput{
		DeviceID: body.ID,
		TenantID: body.TenantID,
		Type:     models.DeviceType(body.Type),
		Capabilities: models.DeviceCapabilities{
			StorageCapacity: body.StorageCapacity,
			MaxSessions:     body.MaxSessions,
			DeltaSync:       body.DeltaSync,
		},
		AutoSync:     body.AutoSync,
		WifiOnly:     body.WifiOnly,
		SyncInterval: body.SyncInterval,
		Extensions:   body.Extensions,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"device": device})
}

func (h *DeviceHandler) List(c *gin.Context) {
	activeOnly := c.Query("active") == "true"
	devices, err := h.Registry.List(activeOnly)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"devices": devices})
}

func (h *DeviceHandler) Get(c *gin.Context) {
	device, err := h.Registry.Get(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"device": device})
}

type heartbeatBody struct {
	LinkQuality string `json:"link_quality"`
}

func (h *DeviceHandler) Heartbeat(c *gin.Context) {
	var body heartbeatBody
	_ = c.ShouldBindJSON(&body)

	if err := h.Registry.Heartbeat(c.Param("id"), body.LinkQuality); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *DeviceHandler) Deactivate(c *gin.Context) {
	if err := h.Registry.Deactivate(c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *DeviceHandler) Stats(c *gin.Context) {
	stats, err := h.DB.Stats(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}
