package source

import (
	"context"
	"sync"

	"github.com/jaennil/guide_helper/backend/tilestream/internal/coord"
)

// Static serves data held in memory, keyed by coordinate. Coordinates with no
// entry load as empty data.
type Static struct {
	name    string
	maxZoom int
	bounds  Bounds

	mu    sync.Mutex
	tiles map[coord.Coordinate]*Data
	hook  func(ctx context.Context, c coord.Coordinate) error
	loads int
}

func NewStatic(name string, maxZoom int) *Static {
	return &Static{
		name:    name,
		maxZoom: maxZoom,
		bounds:  Bounds{MinDisplayZoom: -1, MaxDisplayZoom: -1},
		tiles:   make(map[coord.Coordinate]*Data),
	}
}

var (
	_ Source = (*Static)(nil)
	_ Loader = (*Static)(nil)
)

func (s *Static) Name() string              { return s.name }
func (s *Static) MaxZoom() int              { return s.maxZoom }
func (s *Static) BuildsGeometryTiles() bool { return true }

func (s *Static) IncludesTile(c coord.Coordinate, styleZoom int) bool {
	return s.bounds.includes(c, styleZoom)
}

func (s *Static) SetBounds(b Bounds) {
	s.bounds = b
}

func (s *Static) Put(c coord.Coordinate, d *Data) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tiles[c] = d
}

// SetHook installs a function run at the start of every Load. A non-nil
// error fails the load.
func (s *Static) SetHook(fn func(ctx context.Context, c coord.Coordinate) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = fn
}

// Loads counts Load calls.
func (s *Static) Loads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

func (s *Static) Load(ctx context.Context, c coord.Coordinate) (*Data, error) {
	s.mu.Lock()
	s.loads++
	hook := s.hook
	d, ok := s.tiles[c]
	s.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, c); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ok {
		return NewData(), nil
	}
	return d, nil
}
