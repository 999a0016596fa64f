package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/asteroid-belt/fieldsync/internal/ledger"
	"github.com/asteroid-belt/fieldsync/internal/models"
	"github.com/asteroid-belt/fieldsync/internal/syncer"
)

// SessionHandler serves the sync session endpoints. Source and Applier are
// the server-side content catalog and progress sink a run executes against;
// either may be nil when the deployment only manages the corresponding
// direction out of band.
type SessionHandler struct {
	Syncer  *syncer.Service
	Source  syncer.ContentSource
	Applier ledger.Applier
}

type openSessionBody struct {
	DeviceID     string     `json:"device_id"`
	Direction    string     `json:"direction"`
	ContentTypes []string   `json:"content_types"`
	Since        *time.Time `json:"since"`
	FullResync   bool       `json:"full_resync"`
	Strategy     string     `json:"strategy"`
}

func (h *SessionHandler) Open(c *gin.Context) {
	var body openSessionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	identity := IdentityFromContext(c)
	deviceID := body.DeviceID
	if deviceID == "" {
		deviceID = identity.DeviceID
	}

	session, err := h.Syncer.Open(syncer.OpenInput{
		DeviceID:     deviceID,
		TenantID:     identity.TenantID,
		UserID:       identity.UserID,
		Direction:    models.SyncDirection(body.Direction),
		ContentTypes: body.ContentTypes,
		Since:        body.Since,
		FullResync:   body.FullResync,
		Strategy:     models.ResolutionStrategy(body.Strategy),
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

func (h *SessionHandler) Run(c *gin.Context) {
	if h.Source == nil && h.Applier == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "No content source configured"})
		return
	}

	session, err := h.Syncer.Run(c.Request.Context(), h.Source, h.Applier, c.Param("id"))
	if err != nil && session == nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

func (h *SessionHandler) Cancel(c *gin.Context) {
	session, err := h.Syncer.Cancel(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

func (h *SessionHandler) Get(c *gin.Context) {
	session, err := h.Syncer.Get(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

func (h *SessionHandler) List(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = v
	}

	sessions, err := h.Syncer.List(c.Query("device_id"), limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}
