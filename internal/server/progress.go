package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/asteroid-belt/fieldsync/internal/ledger"
)

// ProgressHandler serves the offline progress ledger endpoints.
type ProgressHandler struct {
	Ledger *ledger.Service
}

type recordProgressBody struct {
	Key        string    `json:"key"`
	UserID     string    `json:"user_id"`
	Payload    []byte    `json:"payload"` // base64 in JSON
	RecordedAt time.Time `json:"recorded_at"`
}

func (h *ProgressHandler) Record(c *gin.Context) {
	var body recordProgressBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	identity := IdentityFromContext(c)
	userID := body.UserID
	if userID == "" {
		userID = identity.UserID
	}

	entry, err := h.Ledger.Record(ledger.RecordInput{
		Key:        body.Key,
		DeviceID:   c.Param("id"),
		TenantID:   identity.TenantID,
		UserID:     userID,
		Payload:    body.Payload,
		RecordedAt: body.RecordedAt,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entry": entry})
}

func (h *ProgressHandler) Pending(c *gin.Context) {
	entries, err := h.Ledger.Pending(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *ProgressHandler) Failed(c *gin.Context) {
	entries, err := h.Ledger.ListFailed(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *ProgressHandler) Get(c *gin.Context) {
	entry, err := h.Ledger.Get(c.Param("key"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entry": entry})
}
