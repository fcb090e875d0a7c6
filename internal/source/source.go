// Package source provides the data sources tiles are built from.
package source

import (
	"context"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"

	"github.com/jaennil/guide_helper/backend/tilestream/internal/coord"
)

// DefaultLayer holds the features of a source that has no named layers.
const DefaultLayer = "_default"

type Source interface {
	Name() string
	MaxZoom() int
	BuildsGeometryTiles() bool
	IncludesTile(c coord.Coordinate, styleZoom int) bool
}

// Loader loads the data of one source tile. Implementations must honor ctx
// cancellation.
type Loader interface {
	Load(ctx context.Context, c coord.Coordinate) (*Data, error)
}

// Data is one source tile decoded into named feature collections.
type Data struct {
	Layers map[string]*geojson.FeatureCollection
}

func NewData() *Data {
	return &Data{Layers: make(map[string]*geojson.FeatureCollection)}
}

// Features counts features across all layers.
func (d *Data) Features() int {
	n := 0
	for _, fc := range d.Layers {
		if fc != nil {
			n += len(fc.Features)
		}
	}
	return n
}

// Bounds restricts a source to a display zoom range and a geographic area.
// A negative zoom limit disables it.
type Bounds struct {
	MinDisplayZoom int
	MaxDisplayZoom int
	Area           *orb.Bound
}

// NewArea builds an area from a [west, south, east, north] slice.
func NewArea(wsen []float64) *orb.Bound {
	if len(wsen) != 4 {
		return nil
	}
	return &orb.Bound{
		Min: orb.Point{wsen[0], wsen[1]},
		Max: orb.Point{wsen[2], wsen[3]},
	}
}

func (b Bounds) includes(c coord.Coordinate, styleZoom int) bool {
	if b.MinDisplayZoom >= 0 && c.Z < b.MinDisplayZoom {
		return false
	}
	if b.MaxDisplayZoom >= 0 && styleZoom > b.MaxDisplayZoom {
		return false
	}
	if b.Area != nil && c.Valid() {
		n := 1 << c.Z
		x := ((c.X % n) + n) % n
		tb := maptile.New(uint32(x), uint32(c.Y), maptile.Zoom(c.Z)).Bound()
		if !tb.Intersects(*b.Area) {
			return false
		}
	}
	return true
}
