package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/jaennil/guide_helper/backend/tilestream/internal/scene"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/source"
	"github.com/jaennil/guide_helper/backend/tilestream/pkg/config"
	"github.com/jaennil/guide_helper/backend/tilestream/pkg/logger"
)

// SceneService is the part of the scene the debug API drives.
type SceneService interface {
	Snapshot() *scene.Snapshot
	SetView(ctx context.Context, lon, lat, zoom float64) error
	Reload(ctx context.Context) error
}

type Handler struct {
	scene    SceneService
	fetcher  source.Fetcher
	source   config.Source
	validate *validator.Validate
}

func NewHandler(s SceneService, fetcher source.Fetcher, src config.Source, v *validator.Validate) *Handler {
	return &Handler{
		scene:    s,
		fetcher:  fetcher,
		source:   src,
		validate: v,
	}
}

func (h *Handler) Healthz(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

func requestLogger(c *gin.Context) logger.Logger {
	if v, ok := c.Get("logger"); ok {
		if l, ok := v.(logger.Logger); ok {
			return l
		}
	}
	return logger.NewNop()
}

func respondWithError(c *gin.Context, code int, err error) {
	c.JSON(code, gin.H{
		"error": err.Error(),
	})
}
