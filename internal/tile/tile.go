// Package tile implements the lifecycle of a single quad-tree tile on the
// scene loop: build scheduling, mesh ownership and texture retain/release.
package tile

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/jaennil/guide_helper/backend/tilestream/internal/coord"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/protocol"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/resource"
	"github.com/jaennil/guide_helper/backend/tilestream/pkg/logger"
)

var ErrInvalidCoordinate = errors.New("coordinate outside the tile pyramid")

type State string

const (
	StateUnbuilt State = "unbuilt"
	StateLoading State = "loading"
	StateBuilt   State = "built"
	StateError   State = "error"
)

const (
	ProxiedAsNone   = ""
	ProxiedAsParent = "parent"
	ProxiedAsChild  = "child"
)

// Source is what a tile needs to know about its data source.
type Source interface {
	Name() string
	MaxZoom() int
}

type Params struct {
	Coords     coord.Coordinate
	Source     Source
	StyleZoom  int
	Worker     protocol.WorkerHandle
	Textures   *resource.TextureStore
	ProxyDepth int
	Logger     logger.Logger
}

type BuildOptions struct {
	FadeIn bool
}

func DefaultBuildOptions() BuildOptions {
	return BuildOptions{FadeIn: true}
}

// Tile is owned by the scene loop and is not safe for concurrent use.
type Tile struct {
	key       string
	source    Source
	coords    coord.Coordinate
	styleZoom int
	overzoom  int
	overzoom2 float64

	min, max              coord.Point
	metersPerPixel        float64
	metersPerPixelSq      float64
	unitsPerPixel         float64
	unitsPerMeterOverzoom float64

	worker   protocol.WorkerHandle
	textures *resource.TextureStore
	logger   logger.Logger

	generation int
	visible    bool
	loading    bool
	loaded     bool
	built      bool
	canceled   bool
	fadeIn     bool
	err        string
	debug      protocol.Debug

	proxyFor        []*Tile
	proxyDepth      int
	proxyDepthValue int
	proxiedAs       string
	center          coord.Coordinate
	centerDist      int

	meshes           map[string]resource.Mesh
	ownedTextures    []string
	previousTextures []string
	newMeshStyles    map[string]struct{}
	// trackedGeneration is the generation BuildMeshes last initialized
	// tracking for; -1 when none.
	trackedGeneration int
}

func New(p Params) (*Tile, error) {
	if p.Source == nil {
		return nil, errors.New("tile source is required")
	}
	key, ok := coord.TileKey(p.Coords, p.Source.Name(), p.Source.MaxZoom(), p.StyleZoom)
	if !ok {
		return nil, fmt.Errorf("%v: %w", p.Coords, ErrInvalidCoordinate)
	}
	l := p.Logger
	if l == nil {
		l = logger.NewNop()
	}

	c := coord.WithMaxZoom(p.Coords, p.Source.MaxZoom())
	overzoom := max(p.StyleZoom-c.Z, 0)
	overzoom2 := math.Exp2(float64(overzoom))
	mpp := coord.MetersPerPixel(p.StyleZoom)

	return &Tile{
		key:                   key,
		source:                p.Source,
		coords:                c,
		styleZoom:             p.StyleZoom,
		overzoom:              overzoom,
		overzoom2:             overzoom2,
		min:                   coord.MetersForTile(c),
		max:                   coord.MetersForTile(coord.New(c.X+1, c.Y+1, c.Z)),
		metersPerPixel:        mpp,
		metersPerPixelSq:      mpp * mpp,
		unitsPerPixel:         coord.UnitsPerPixel / overzoom2,
		unitsPerMeterOverzoom: coord.UnitsPerMeter(c.Z) * overzoom2,
		worker:                p.Worker,
		textures:              p.Textures,
		logger:                l,
		generation:            -1,
		fadeIn:                true,
		proxyDepthValue:       p.ProxyDepth,
		meshes:                make(map[string]resource.Mesh),
		newMeshStyles:         make(map[string]struct{}),
		trackedGeneration:     -1,
	}, nil
}

func (t *Tile) Key() string              { return t.key }
func (t *Tile) Coords() coord.Coordinate { return t.coords }
func (t *Tile) StyleZoom() int           { return t.styleZoom }
func (t *Tile) SourceName() string       { return t.source.Name() }
func (t *Tile) SourceMaxZoom() int       { return t.source.MaxZoom() }
func (t *Tile) Overzoom() int            { return t.overzoom }
func (t *Tile) Overzoom2() float64       { return t.overzoom2 }
func (t *Tile) Generation() int          { return t.generation }
func (t *Tile) Visible() bool            { return t.visible }
func (t *Tile) SetVisible(v bool)        { t.visible = v }
func (t *Tile) Loading() bool            { return t.loading }
func (t *Tile) Loaded() bool             { return t.loaded }
func (t *Tile) Built() bool              { return t.built }
func (t *Tile) Canceled() bool           { return t.canceled }
func (t *Tile) Error() string            { return t.err }
func (t *Tile) Debug() protocol.Debug    { return t.debug }
func (t *Tile) CenterDist() int          { return t.centerDist }
func (t *Tile) ProxyDepth() int          { return t.proxyDepth }
func (t *Tile) ProxiedAs() string        { return t.proxiedAs }
func (t *Tile) ProxyFor() []*Tile        { return t.proxyFor }
func (t *Tile) IsProxy() bool            { return len(t.proxyFor) > 0 }
func (t *Tile) Min() coord.Point         { return t.min }
func (t *Tile) Max() coord.Point         { return t.max }

// MarkBuilt flags the tile as built; the manager calls it when a done
// marker for the current generation arrives.
func (t *Tile) MarkBuilt() { t.built = true }

func (t *Tile) State() State {
	switch {
	case t.err != "":
		return StateError
	case t.built:
		return StateBuilt
	case t.loading:
		return StateLoading
	default:
		return StateUnbuilt
	}
}

// FadeIn reports whether labels should fade in. A tile standing in for a
// child does not fade, to avoid labels flickering away and back.
func (t *Tile) FadeIn() bool {
	return t.fadeIn && t.proxiedAs != ProxiedAsChild
}

func (t *Tile) Mesh(style string) (resource.Mesh, bool) {
	m, ok := t.meshes[style]
	return m, ok
}

// MeshStyles returns the names of the styles the tile has meshes for, sorted.
func (t *Tile) MeshStyles() []string {
	out := make([]string, 0, len(t.meshes))
	for name := range t.meshes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Textures returns a copy of the textures the tile holds a reference on.
func (t *Tile) Textures() []string {
	return append([]string(nil), t.ownedTextures...)
}

func (t *Tile) PreviousTextures() []string {
	return append([]string(nil), t.previousTextures...)
}

// Descriptor is what gets sent to the worker.
func (t *Tile) Descriptor() protocol.TileDescriptor {
	return protocol.TileDescriptor{
		Key:                   t.key,
		Source:                t.source.Name(),
		Coords:                t.coords,
		Min:                   t.min,
		Max:                   t.max,
		UnitsPerPixel:         t.unitsPerPixel,
		MetersPerPixel:        t.metersPerPixel,
		MetersPerPixelSq:      t.metersPerPixelSq,
		UnitsPerMeterOverzoom: t.unitsPerMeterOverzoom,
		StyleZoom:             t.styleZoom,
		Overzoom:              t.overzoom,
		Overzoom2:             t.overzoom2,
		Generation:            t.generation,
		Debug:                 t.debug,
	}
}

func (t *Tile) MarkForBuild(generation int, opts BuildOptions) {
	t.generation = generation
	t.fadeIn = opts.FadeIn
	if !t.loaded {
		t.loading = true
		t.built = false
	}
}

// BuildOnWorker posts the build request unless the tile was canceled or
// detached from its worker.
func (t *Tile) BuildOnWorker() bool {
	if t.canceled || t.worker == nil {
		return false
	}
	t.worker.Post(protocol.BuildRequest{Tile: t.Descriptor()})
	return true
}

// Apply merges the worker-owned part of a response into the tile. Mesh
// counters are kept: they are accumulated on this side.
func (t *Tile) Apply(u protocol.TileUpdate) {
	t.loading = u.Loading
	t.loaded = u.Loaded
	t.err = u.Error
	t.debug.Features = u.Debug.Features
	t.debug.Rendering = u.Debug.Rendering
}

// Update recomputes the distance to the view's center tile.
func (t *Tile) Update(center coord.Coordinate) {
	t.center = center
	t.centerDist = coord.Distance(t.coords, center)
}

// SetProxyFor makes t stand in for other while other builds.
func (t *Tile) SetProxyFor(other *Tile) {
	if other == nil {
		t.ClearProxy()
		return
	}
	t.visible = true
	t.proxyFor = append(t.proxyFor, other)
	t.proxyDepth = t.proxyDepthValue
	if other.styleZoom > t.styleZoom {
		other.proxiedAs = ProxiedAsChild
	} else {
		other.proxiedAs = ProxiedAsParent
	}
	t.Update(t.center)
}

func (t *Tile) ClearProxy() {
	t.proxyFor = nil
	t.proxyDepth = 0
	t.proxiedAs = ProxiedAsNone
}

// ShouldProxyForStyle reports whether a proxy still has to draw style: true
// until every tile it stands in for has its own mesh for that style.
func (t *Tile) ShouldProxyForStyle(style string) bool {
	if len(t.proxyFor) == 0 {
		return true
	}
	for _, p := range t.proxyFor {
		if _, ok := p.meshes[style]; !ok {
			return true
		}
	}
	return false
}

// Cancel marks the tile canceled and tells the worker to drop it, which
// cancels any source fetch and aborts partial data on that side.
func (t *Tile) Cancel() {
	t.canceled = true
	if t.worker != nil {
		t.worker.Post(protocol.RemoveTile{Key: t.key})
	}
}

// FreeResources destroys every mesh and releases every texture reference.
func (t *Tile) FreeResources() {
	for name, m := range t.meshes {
		m.Destroy()
		delete(t.meshes, name)
	}
	t.release(t.ownedTextures)
	t.ownedTextures = nil
	t.release(t.previousTextures)
	t.previousTextures = nil
}

func (t *Tile) Destroy() {
	t.Cancel()
	t.FreeResources()
	t.proxyFor = nil
	t.worker = nil
}

func (t *Tile) release(textures []string) {
	if t.textures == nil {
		return
	}
	for _, name := range textures {
		if err := t.textures.Release(name); err != nil {
			t.logger.Warn("failed to release tile texture", "tile", t.key, "texture", name, "error", err)
		}
	}
}

// AbortBuild releases the textures referenced by a build result that will
// never be attached to a tile. Textures the store no longer knows are
// skipped.
func AbortBuild(textures *resource.TextureStore, slice protocol.TileSlice) {
	if textures == nil {
		return
	}
	for _, name := range slice.Textures() {
		if textures.Has(name) {
			_ = textures.Release(name)
		}
	}
}

// Sort orders tiles nearest the view center first.
func Sort(tiles []*Tile) []*Tile {
	sort.SliceStable(tiles, func(i, j int) bool {
		return tiles[i].centerDist < tiles[j].centerDist
	})
	return tiles
}
