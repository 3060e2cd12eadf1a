package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db  Pinger
	log *zap.Logger
}

func NewHealthHandler(db Pinger, l *zap.Logger) *HealthHandler {
	if l == nil {
		l = zap.NewNop()
	}
	return &HealthHandler{db: db, log: l}
}

func (h *HealthHandler) Priority() int { return 0 }

func (h *HealthHandler) MountAPI(api *gin.RouterGroup) {
	api.GET("/health", h.health)
}

// health 存储不可达时仍返回 200，由 ok 字段表达
func (h *HealthHandler) health(c *gin.Context) {
	if err := h.db.Ping(c.Request.Context()); err != nil {
		h.log.Warn("health check failed", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"ok": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
