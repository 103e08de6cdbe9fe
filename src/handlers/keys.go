package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AlpinDale/waifu/src/models"
	"github.com/AlpinDale/waifu/src/services"
)

// KeyHandler serves the admin API key management surface.
type KeyHandler struct {
	keys            *services.KeyService
	defaultRPS      int
	defaultMaxBatch int
}

// NewKeyHandler creates a key handler. The defaults are applied to new keys
// when the request does not set limits; zero means no default.
func NewKeyHandler(keys *services.KeyService, defaultRPS, defaultMaxBatch int) *KeyHandler {
	return &KeyHandler{keys: keys, defaultRPS: defaultRPS, defaultMaxBatch: defaultMaxBatch}
}

// HandleCreate provisions a new API key for a username.
func (kh *KeyHandler) HandleCreate(c *gin.Context) {
	var req models.GenerateApiKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, services.Invalid("invalid request body: %v", err))
		return
	}

	rps := req.RequestsPerSecond
	if rps == nil && kh.defaultRPS > 0 {
		v := kh.defaultRPS
		rps = &v
	}
	maxBatch := req.MaxBatchSize
	if maxBatch == nil && kh.defaultMaxBatch > 0 {
		v := kh.defaultMaxBatch
		maxBatch = &v
	}

	rec, err := kh.keys.Create(c.Request.Context(), req.Username, rps, maxBatch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

// HandleList returns every provisioned key.
func (kh *KeyHandler) HandleList(c *gin.Context) {
	keys, err := kh.keys.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"keys": keys, "count": len(keys)})
}

// HandleRemove deletes a username's key.
func (kh *KeyHandler) HandleRemove(c *gin.Context) {
	var req models.RemoveApiKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, services.Invalid("invalid request body: %v", err))
		return
	}
	if err := kh.keys.Remove(c.Request.Context(), req.Username); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// HandleUpdateRateLimit changes a key's requests-per-second budget.
// A null value removes the limit entirely.
func (kh *KeyHandler) HandleUpdateRateLimit(c *gin.Context) {
	var req models.UpdateApiKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, services.Invalid("invalid request body: %v", err))
		return
	}
	rec, err := kh.keys.SetRateLimit(c.Request.Context(), c.Param("username"), req.RequestsPerSecond)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// HandleUpdateStatus suspends or reactivates a key.
func (kh *KeyHandler) HandleUpdateStatus(c *gin.Context) {
	var req models.UpdateApiKeyStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, services.Invalid("invalid request body: %v", err))
		return
	}
	rec, err := kh.keys.SetActive(c.Request.Context(), c.Param("username"), *req.IsActive)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}
