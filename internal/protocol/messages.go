// Package protocol defines the messages exchanged between the scene loop and
// the per-source workers. Payloads are plain values; nothing is shared.
package protocol

import (
	"time"

	"github.com/jaennil/guide_helper/backend/tilestream/internal/coord"
)

// Message is anything a worker accepts.
type Message interface {
	isMessage()
}

// WorkerHandle is the sending side of a worker's inbox.
type WorkerHandle interface {
	Post(Message)
}

// TileDescriptor is the minimal description of a tile a worker needs to
// build it.
type TileDescriptor struct {
	Key                   string           `json:"key"`
	Source                string           `json:"source"`
	Coords                coord.Coordinate `json:"coords"`
	Min                   coord.Point      `json:"min"`
	Max                   coord.Point      `json:"max"`
	UnitsPerPixel         float64          `json:"units_per_pixel"`
	MetersPerPixel        float64          `json:"meters_per_pixel"`
	MetersPerPixelSq      float64          `json:"meters_per_pixel_sq"`
	UnitsPerMeterOverzoom float64          `json:"units_per_meter_overzoom"`
	StyleZoom             int              `json:"style_zoom"`
	Overzoom              int              `json:"overzoom"`
	Overzoom2             float64          `json:"overzoom2"`
	Generation            int              `json:"generation"`
	Debug                 Debug            `json:"debug"`
}

// BuildRequest asks a worker to (re)build a tile.
type BuildRequest struct {
	Tile TileDescriptor
}

// RemoveTile tells a worker it may drop everything it holds for Key.
type RemoveTile struct {
	Key string
}

// LayerConfig binds a scene layer to a layer of a data source.
type LayerConfig struct {
	Name        string   `json:"name"`
	Source      string   `json:"source"`
	SourceLayer []string `json:"source_layer,omitempty"`
	Styles      []string `json:"styles"`
}

// Configure replaces the layer and style configuration of a worker.
type Configure struct {
	Generation int
	Layers     []LayerConfig
	Styles     []string
}

func (BuildRequest) isMessage() {}
func (RemoveTile) isMessage()   {}
func (Configure) isMessage()    {}

// Debug holds per-tile build counters.
type Debug struct {
	Features   int           `json:"features"`
	Rendering  time.Duration `json:"rendering"`
	Geometries int           `json:"geometries"`
	BufferSize int           `json:"buffer_size"`
	GeomRatio  float64       `json:"geom_ratio"`
}

// Value returns a named counter as a number, for sums across tiles.
func (d Debug) Value(prop string) (float64, bool) {
	switch prop {
	case "features":
		return float64(d.Features), true
	case "rendering":
		return float64(d.Rendering.Milliseconds()), true
	case "geometries":
		return float64(d.Geometries), true
	case "buffer_size":
		return float64(d.BufferSize), true
	case "geom_ratio":
		return d.GeomRatio, true
	}
	return 0, false
}
