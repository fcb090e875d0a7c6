package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) Stats(c *gin.Context) {
	snap := h.scene.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"generation": snap.Generation,
		"view":       snap.View,
		"stats":      snap.Stats,
	})
}
