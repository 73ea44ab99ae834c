package keystore

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler exposes HTTP endpoints for key issuance, rotation, and revocation.
type Handler struct {
	manager *Manager
}

func NewHandler(m *Manager) *Handler {
	return &Handler{manager: m}
}

type issueRequest struct {
	Name string `json:"name"`
}

// Issue creates a new key for the caller's tenant.
func (h *Handler) Issue(c *gin.Context) {
	tenantID := TenantID(c)

	var req issueRequest
	_ = c.ShouldBindJSON(&req)
	if req.Name == "" {
		req.Name = "default"
	}

	raw, key, err := h.manager.Issue(c.Request.Context(), tenantID, req.Name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage", "message": "failed to issue key"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"api_key": raw,
		"key_id":  key.ID,
		"name":    key.Name,
		"warning": "store this key now, it will not be shown again",
	})
}

// Rotate issues a replacement key and starts the grace window on the old one.
func (h *Handler) Rotate(c *gin.Context) {
	keyID := c.Param("keyId")

	raw, newKey, err := h.manager.Rotate(c.Request.Context(), keyID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "key not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"api_key":        raw,
		"key_id":         newKey.ID,
		"rotation_grace": RotationGrace.String(),
		"old_key_id":     keyID,
	})
}

// Revoke immediately invalidates a key.
func (h *Handler) Revoke(c *gin.Context) {
	keyID := c.Param("keyId")

	if err := h.manager.Revoke(c.Request.Context(), keyID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "key not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "key revoked", "key_id": keyID})
}

// List returns key metadata for the caller's tenant (never hashes).
func (h *Handler) List(c *gin.Context) {
	tenantID := TenantID(c)

	keys, err := h.manager.ListKeys(c.Request.Context(), tenantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage", "message": "failed to list keys"})
		return
	}

	out := make([]gin.H, len(keys))
	for i, k := range keys {
		out[i] = gin.H{
			"id":         k.ID,
			"name":       k.Name,
			"status":     k.Status,
			"created_at": k.CreatedAt,
			"expires_at": k.ExpiresAt,
		}
	}
	c.JSON(http.StatusOK, gin.H{"keys": out})
}
