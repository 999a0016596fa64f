package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/asteroid-belt/fieldsync/internal/conflict"
)

// ConflictHandler serves the conflict review endpoints.
type ConflictHandler struct {
	Conflicts *conflict.Service
}

func (h *ConflictHandler) ListPending(c *gin.Context) {
	conflicts, err := h.Conflicts.ListPending(c.Query("device_id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conflicts": conflicts})
}

func (h *ConflictHandler) Get(c *gin.Context) {
	found, err := h.Conflicts.Get(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conflict": found})
}

type resolveConflictBody struct {
	Value      []byte `json:"value"` // base64 in JSON
	ResolvedBy string `json:"resolved_by"`
}

func (h *ConflictHandler) Resolve(c *gin.Context) {
	var body resolveConflictBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	resolvedBy := body.ResolvedBy
	if resolvedBy == "" {
		resolvedBy = IdentityFromContext(c).UserID
	}

	resolved, err := h.Conflicts.Resolve(c.Param("id"), body.Value, resolvedBy)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conflict": resolved})
}
