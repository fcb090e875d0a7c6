package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jaennil/guide_helper/backend/tilestream/internal/coord"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/usecase"
)

// SourceTile returns the raw payload of a source tile, through the cache.
func (h *Handler) SourceTile(c *gin.Context) {
	l := requestLogger(c)

	strX := c.Param("x")
	strY := c.Param("y")
	strZ := c.Param("z")

	x, err := strconv.Atoi(strX)
	if err != nil {
		l.Warn("invalid x parameter", "x", strX, "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "x should be integer",
		})
		return
	}

	y, err := strconv.Atoi(strY)
	if err != nil {
		l.Warn("invalid y parameter", "y", strY, "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "y should be integer",
		})
		return
	}

	z, err := strconv.Atoi(strZ)
	if err != nil {
		l.Warn("invalid z parameter", "z", strZ, "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "z should be integer",
		})
		return
	}

	tc := coord.New(x, y, z)
	if !tc.Valid() {
		l.Warn("invalid tile coordinate", "tile", tc.Key())
		respondWithError(c, http.StatusBadRequest, ErrInvalidRequest)
		return
	}

	data, err := h.fetcher.Fetch(c.Request.Context(), h.source.Name, h.source.URL, tc)
	if err != nil {
		if errors.Is(err, usecase.ErrUpstreamStatus) {
			l.Warn("upstream rejected source tile", "tile", tc.Key(), "error", err)
			respondWithError(c, http.StatusBadGateway, err)
			return
		}
		l.Error("failed to get source tile", "tile", tc.Key(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to get source tile",
		})
		return
	}

	c.Data(http.StatusOK, "application/geo+json", data)
}
