package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/paulmach/orb/geojson"
	"github.com/tidwall/gjson"

	"github.com/jaennil/guide_helper/backend/tilestream/internal/coord"
	"github.com/jaennil/guide_helper/backend/tilestream/pkg/config"
	"github.com/jaennil/guide_helper/backend/tilestream/pkg/logger"
)

var ErrInvalidPayload = errors.New("invalid geojson payload")

// Fetcher returns the raw payload of a source tile.
type Fetcher interface {
	Fetch(ctx context.Context, source, urlTemplate string, c coord.Coordinate) ([]byte, error)
}

// GeoJSON is a tiled GeoJSON source served over HTTP. A tile payload is either
// a single FeatureCollection or an object mapping layer names to
// FeatureCollections.
type GeoJSON struct {
	name    string
	url     string
	maxZoom int
	bounds  Bounds
	fetcher Fetcher
	logger  logger.Logger
}

func NewGeoJSON(cfg config.Source, fetcher Fetcher, l logger.Logger) *GeoJSON {
	return &GeoJSON{
		name:    cfg.Name,
		url:     cfg.URL,
		maxZoom: cfg.MaxZoom,
		bounds: Bounds{
			MinDisplayZoom: cfg.MinDisplayZoom,
			MaxDisplayZoom: cfg.MaxDisplayZoom,
			Area:           NewArea(cfg.Bounds),
		},
		fetcher: fetcher,
		logger:  l,
	}
}

var (
	_ Source = (*GeoJSON)(nil)
	_ Loader = (*GeoJSON)(nil)
)

func (s *GeoJSON) Name() string              { return s.name }
func (s *GeoJSON) MaxZoom() int              { return s.maxZoom }
func (s *GeoJSON) BuildsGeometryTiles() bool { return true }

func (s *GeoJSON) IncludesTile(c coord.Coordinate, styleZoom int) bool {
	return s.bounds.includes(c, styleZoom)
}

func (s *GeoJSON) Load(ctx context.Context, c coord.Coordinate) (*Data, error) {
	raw, err := s.fetcher.Fetch(ctx, s.name, s.url, c)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s tile %s: %w", s.name, c.Key(), err)
	}
	data, err := Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s tile %s: %w", s.name, c.Key(), err)
	}
	s.logger.Debug("source tile loaded", "source", s.name, "tile", c.Key(), "layers", len(data.Layers), "features", data.Features())
	return data, nil
}

// Decode parses a tile payload.
func Decode(raw []byte) (*Data, error) {
	if !gjson.ValidBytes(raw) {
		return nil, ErrInvalidPayload
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: not an object", ErrInvalidPayload)
	}

	data := NewData()
	if root.Get("type").String() == "FeatureCollection" || root.Get("features").IsArray() {
		fc, err := geojson.UnmarshalFeatureCollection(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		data.Layers[DefaultLayer] = fc
		return data, nil
	}

	var decodeErr error
	root.ForEach(func(key, value gjson.Result) bool {
		if !value.Get("features").IsArray() {
			return true
		}
		fc, err := geojson.UnmarshalFeatureCollection([]byte(value.Raw))
		if err != nil {
			decodeErr = fmt.Errorf("%w: layer %s: %v", ErrInvalidPayload, key.String(), err)
			return false
		}
		data.Layers[key.String()] = fc
		return true
	})
	if decodeErr != nil {
		return nil, decodeErr
	}
	return data, nil
}
