package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jaennil/guide_helper/backend/tilestream/internal/scene"
)

type setViewRequest struct {
	Lon  *float64 `json:"lon" validate:"required,gte=-180,lte=180"`
	Lat  *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Zoom *float64 `json:"zoom" validate:"required,gte=0,lte=30"`
}

func (h *Handler) SetView(c *gin.Context) {
	l := requestLogger(c)

	var req setViewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn("failed to decode view request", "error", err)
		respondWithError(c, http.StatusBadRequest, ErrFailedToDecodeRequestBody)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		l.Warn("invalid view request", "error", err)
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   ErrInvalidRequest.Error(),
			"details": err.Error(),
		})
		return
	}

	if err := h.scene.SetView(c.Request.Context(), *req.Lon, *req.Lat, *req.Zoom); err != nil {
		h.sceneError(c, err)
		return
	}

	l.Info("view changed", "lon", *req.Lon, "lat", *req.Lat, "zoom", *req.Zoom)
	snap := h.scene.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"generation": snap.Generation,
		"view":       snap.View,
	})
}

func (h *Handler) Reload(c *gin.Context) {
	if err := h.scene.Reload(c.Request.Context()); err != nil {
		h.sceneError(c, err)
		return
	}
	snap := h.scene.Snapshot()
	requestLogger(c).Info("scene reloaded", "generation", snap.Generation)
	c.JSON(http.StatusOK, gin.H{
		"generation": snap.Generation,
	})
}

func (h *Handler) sceneError(c *gin.Context, err error) {
	if errors.Is(err, scene.ErrStopped) {
		respondWithError(c, http.StatusServiceUnavailable, ErrSceneUnavailable)
		return
	}
	requestLogger(c).Error("scene command failed", "path", c.Request.URL.Path, "error", err)
	respondWithError(c, http.StatusInternalServerError, InternalServerError)
}
