package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/asteroid-belt/fieldsync/internal/auth"
)

// TokenHandler mints device tokens. Issuance requires the static operator
// token, so enrolling a device is an operator action.
type TokenHandler struct {
	TokenConfig auth.TokenConfig
	AuthToken   string
}

type issueTokenBody struct {
	DeviceID string `json:"device_id"`
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`
}

func (h *TokenHandler) Issue(c *gin.Context) {
	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if h.AuthToken == "" || len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] != h.AuthToken {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	var body issueTokenBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	token, err := auth.CreateToken(body.DeviceID, body.TenantID, body.UserID, h.TokenConfig)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_in": int64(h.TokenConfig.Expiry.Seconds()),
	})
}
