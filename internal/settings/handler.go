package settings

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sg-security/backend/internal/models"
	"github.com/sg-security/backend/pkg/response"
)

// Store is the settings persistence used by Handler.
type Store interface {
	List(ctx context.Context) ([]models.SystemConfig, error)
	Set(ctx context.Context, key, value string) error
}

// Handler exposes system_config to super admins. Recording keys take effect on restart.
type Handler struct {
	store  Store
	logger *zap.Logger
}

// NewHandler creates a settings handler.
func NewHandler(store Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger}
}

// SetRequest is the body of PUT /settings/:key.
type SetRequest struct {
	Value string `json:"value" binding:"required"`
}

// List handles GET /settings.
func (h *Handler) List(c *gin.Context) {
	list, err := h.store.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list settings failed", zap.Error(err))
		response.Internal(c, "failed to list settings")
		return
	}
	if list == nil {
		list = []models.SystemConfig{}
	}
	response.OK(c, list)
}

// Set handles PUT /settings/:key.
func (h *Handler) Set(c *gin.Context) {
	key := c.Param("key")
	var req SetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "value is required")
		return
	}
	if err := h.store.Set(c.Request.Context(), key, req.Value); err != nil {
		h.logger.Error("set setting failed", zap.String("key", key), zap.Error(err))
		response.Internal(c, "failed to save setting")
		return
	}
	h.logger.Info("setting updated", zap.String("key", key))
	response.OKMessage(c, "Setting saved; recording settings apply after restart", models.SystemConfig{Key: key, Value: req.Value})
}
