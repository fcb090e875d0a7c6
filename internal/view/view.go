// Package view is a headless camera: it turns a center, zoom and viewport
// size into the tile coordinates the manager should keep loaded.
package view

import (
	"math"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"github.com/jaennil/guide_helper/backend/tilestream/internal/coord"
	"github.com/jaennil/guide_helper/backend/tilestream/pkg/config"
)

const maxLatitude = 85.0511287798

// Pruner drops tiles the view no longer needs.
type Pruner interface {
	PruneToVisibleTiles()
}

// View is owned by the scene loop and is not safe for concurrent use.
type View struct {
	width, height int
	maxZoom       int

	center        orb.Point
	zoom          float64
	tileZoom      int
	zoomDirection int
	lastZoomTime  time.Time

	pruner Pruner
	now    func() time.Time
}

type Option func(*View)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(v *View) {
		v.now = now
	}
}

func New(cfg config.View, opts ...Option) *View {
	v := &View{
		width:   cfg.Width,
		height:  cfg.Height,
		maxZoom: cfg.MaxZoom,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	v.center = clampPoint(orb.Point{cfg.Lon, cfg.Lat})
	v.zoom = v.clampZoom(cfg.Zoom)
	v.tileZoom = v.tileZoomFor(v.zoom)
	return v
}

func (v *View) SetPruner(p Pruner) {
	v.pruner = p
}

func clampPoint(p orb.Point) orb.Point {
	p[1] = math.Max(-maxLatitude, math.Min(maxLatitude, p[1]))
	return p
}

func (v *View) clampZoom(z float64) float64 {
	return math.Max(0, math.Min(z, float64(v.maxZoom)))
}

func (v *View) tileZoomFor(z float64) int {
	return min(int(math.Floor(z)), v.maxZoom)
}

// SetCenter pans the camera. Longitude is not wrapped so tile x can run past
// the antimeridian.
func (v *View) SetCenter(lon, lat float64) {
	v.center = clampPoint(orb.Point{lon, lat})
}

// SetZoom changes the zoom and records the direction of travel when the
// integer tile zoom changes.
func (v *View) SetZoom(z float64) {
	z = v.clampZoom(z)
	if z == v.zoom {
		return
	}
	tz := v.tileZoomFor(z)
	if tz != v.tileZoom {
		if tz > v.tileZoom {
			v.zoomDirection = 1
		} else {
			v.zoomDirection = -1
		}
	}
	v.zoom = z
	v.tileZoom = tz
	v.lastZoomTime = v.now()
}

func (v *View) Center() orb.Point         { return v.center }
func (v *View) Zoom() float64             { return v.zoom }
func (v *View) TileZoom() int             { return v.tileZoom }
func (v *View) ZoomDirection() int        { return v.zoomDirection }
func (v *View) ClearZoomDirection()       { v.zoomDirection = 0 }
func (v *View) LastZoomTime() time.Time   { return v.lastZoomTime }
func (v *View) Size() (width, height int) { return v.width, v.height }

// StyleZoom is the zoom tiles at data zoom z are styled for.
func (v *View) StyleZoom(z int) int {
	return min(z, v.maxZoom)
}

func (v *View) CenterTile() coord.Coordinate {
	t := maptile.At(v.center, maptile.Zoom(v.tileZoom))
	return coord.New(int(t.X), int(t.Y), int(t.Z))
}

// FindVisibleTileCoordinates lists the tiles covering the viewport at the
// current tile zoom. Rows outside the world are dropped.
func (v *View) FindVisibleTileCoordinates() []coord.Coordinate {
	z := v.tileZoom
	f := maptile.Fraction(v.center, maptile.Zoom(z))
	tilePixels := float64(coord.TileSize) * math.Exp2(v.zoom-float64(z))
	halfW := float64(v.width) / 2 / tilePixels
	halfH := float64(v.height) / 2 / tilePixels

	// a viewport edge exactly on a tile boundary does not pull in the next tile
	minX, maxX := int(math.Floor(f[0]-halfW)), int(math.Ceil(f[0]+halfW))-1
	minY, maxY := int(math.Floor(f[1]-halfH)), int(math.Ceil(f[1]+halfH))-1
	n := 1 << z
	minY = max(minY, 0)
	maxY = min(maxY, n-1)

	out := make([]coord.Coordinate, 0, (maxX-minX+1)*(maxY-minY+1))
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			out = append(out, coord.New(x, y, z))
		}
	}
	return out
}

func (v *View) PruneTilesForView() {
	if v.pruner != nil {
		v.pruner.PruneToVisibleTiles()
	}
}
