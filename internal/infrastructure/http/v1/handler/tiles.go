package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jaennil/guide_helper/backend/tilestream/internal/tile"
)

// Tiles lists the live tiles. ?visible=true keeps only visible ones.
func (h *Handler) Tiles(c *gin.Context) {
	snap := h.scene.Snapshot()

	visibleOnly, _ := strconv.ParseBool(c.Query("visible"))
	tiles := make([]tile.Snapshot, 0, len(snap.Tiles))
	for _, t := range snap.Tiles {
		if visibleOnly && !t.Visible {
			continue
		}
		tiles = append(tiles, t)
	}

	c.JSON(http.StatusOK, gin.H{
		"generation": snap.Generation,
		"tiles":      tiles,
	})
}

// Tile returns one tile by its source/style_zoom/x/y/z key.
func (h *Handler) Tile(c *gin.Context) {
	key := c.Param("source") + "/" + c.Param("style") + "/" + c.Param("x") + "/" + c.Param("y") + "/" + c.Param("z")

	t, ok := h.scene.Snapshot().Tile(key)
	if !ok {
		respondWithError(c, http.StatusNotFound, ErrTileNotFound)
		return
	}
	c.JSON(http.StatusOK, t)
}
