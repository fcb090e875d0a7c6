// Package manager decides which tiles exist for the current view, dispatches
// their builds to workers and reconciles worker responses on the scene loop.
package manager

import (
	"sort"
	"time"

	"github.com/jaennil/guide_helper/backend/tilestream/internal/coord"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/protocol"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/pyramid"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/resource"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/source"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/style"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/tile"
	"github.com/jaennil/guide_helper/backend/tilestream/pkg/config"
	"github.com/jaennil/guide_helper/backend/tilestream/pkg/logger"
	"github.com/jaennil/guide_helper/backend/tilestream/pkg/metrics"
)

// View is the camera the manager loads tiles for.
type View interface {
	FindVisibleTileCoordinates() []coord.Coordinate
	CenterTile() coord.Coordinate
	ZoomDirection() int
	ClearZoomDirection()
	TileZoom() int
	StyleZoom(z int) int
	PruneTilesForView()
	LastZoomTime() time.Time
}

// Scene owns the configuration and the workers.
type Scene interface {
	Generation() int
	Sources() map[string]source.Source
	Styles() map[string]style.Style
	WorkerForDataSource(src source.Source) protocol.WorkerHandle
	RequestRedraw()
	TileManagerBuildDone()
}

// Manager is owned by the scene loop and is not safe for concurrent use.
type Manager struct {
	scene    Scene
	view     View
	cfg      config.Manager
	textures *resource.TextureStore
	logger   logger.Logger

	tiles   map[string]*tile.Tile
	pyramid *pyramid.Pyramid[*tile.Tile]

	visibleCoords map[string]coord.Coordinate
	queuedCoords  []coord.Coordinate
	queuedTiles   []*tile.Tile
	queuedKeys    map[string]struct{}
	lastBuildTime time.Time

	// nil between build passes
	buildingTiles map[string]inFlightBuild

	renderableTiles []*tile.Tile
	activeStyles    []string
}

type Params struct {
	Scene    Scene
	View     View
	Config   config.Manager
	Textures *resource.TextureStore
	Logger   logger.Logger
}

func New(p Params) *Manager {
	l := p.Logger
	if l == nil {
		l = logger.NewNop()
	}
	children := coord.NewChildrenCache(p.Config.ChildrenCacheSize)
	return &Manager{
		scene:    p.Scene,
		view:     p.View,
		cfg:      p.Config,
		textures: p.Textures,
		logger:   l,
		tiles:    make(map[string]*tile.Tile),
		pyramid: pyramid.New(children,
			pyramid.WithMaxAncestorDepth[*tile.Tile](p.Config.MaxProxyAncestorDepth),
			pyramid.WithMaxDescendantDepth[*tile.Tile](p.Config.MaxProxyDescendantDepth),
		),
		visibleCoords: make(map[string]coord.Coordinate),
		queuedKeys:    make(map[string]struct{}),
	}
}

func (m *Manager) Destroy() {
	for _, t := range m.tiles {
		t.Destroy()
		m.pyramid.RemoveTile(t)
	}
	m.tiles = make(map[string]*tile.Tile)
	m.visibleCoords = make(map[string]coord.Coordinate)
	m.queuedCoords = nil
	m.ClearQueuedTiles()
	m.buildingTiles = nil
	m.renderableTiles = nil
	m.activeStyles = nil
	metrics.TilesLive.Set(0)
	metrics.TilesRenderable.Set(0)
	metrics.TileBuildsInFlight.Set(0)
}

func (m *Manager) keepTile(t *tile.Tile) {
	m.tiles[t.Key()] = t
	m.pyramid.AddTile(t)
	metrics.TilesLive.Set(float64(len(m.tiles)))
}

func (m *Manager) HasTile(key string) bool {
	_, ok := m.tiles[key]
	return ok
}

func (m *Manager) Tile(key string) (*tile.Tile, bool) {
	t, ok := m.tiles[key]
	return t, ok
}

func (m *Manager) forgetTile(key string) {
	if t, ok := m.tiles[key]; ok {
		m.pyramid.RemoveTile(t)
	}
	delete(m.tiles, key)
	m.dequeue(key)
	metrics.TilesLive.Set(float64(len(m.tiles)))
	m.tileBuildStop(key, false)
}

func (m *Manager) dequeue(key string) {
	if _, ok := m.queuedKeys[key]; !ok {
		return
	}
	delete(m.queuedKeys, key)
	kept := m.queuedTiles[:0]
	for _, t := range m.queuedTiles {
		if t.Key() != key {
			kept = append(kept, t)
		}
	}
	m.queuedTiles = kept
}

// RemoveTile destroys a tile and everything it owns.
func (m *Manager) RemoveTile(key string) {
	t, ok := m.tiles[key]
	if !ok {
		return
	}
	m.logger.Debug("tile unload", "tile", key)
	t.Destroy()
	m.forgetTile(key)
	m.scene.RequestRedraw()
}

// ForEachTile visits tiles in key order.
func (m *Manager) ForEachTile(fn func(*tile.Tile)) {
	for _, t := range m.Tiles() {
		fn(t)
	}
}

// Tiles returns the live tiles sorted by key.
func (m *Manager) Tiles() []*tile.Tile {
	out := make([]*tile.Tile, 0, len(m.tiles))
	for _, t := range m.tiles {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

func (m *Manager) RemoveTiles(filter func(*tile.Tile) bool) {
	var remove []string
	for key, t := range m.tiles {
		if filter(t) {
			remove = append(remove, key)
		}
	}
	sort.Strings(remove)
	for _, key := range remove {
		m.RemoveTile(key)
	}
}

// PruneToVisibleTiles removes every tile that is neither visible nor acting
// as a proxy.
func (m *Manager) PruneToVisibleTiles() {
	m.RemoveTiles(func(t *tile.Tile) bool { return !t.Visible() })
}

// UpdateTilesForView runs one update cycle for the current view.
func (m *Manager) UpdateTilesForView() {
	m.visibleCoords = make(map[string]coord.Coordinate)
	for _, c := range m.view.FindVisibleTileCoordinates() {
		m.queueCoordinate(c)
		m.visibleCoords[c.Key()] = c
	}
	m.UpdateTileStates()
}

func (m *Manager) UpdateTileStates() {
	center := m.view.CenterTile()
	for _, t := range m.tiles {
		m.updateVisibility(t)
		t.Update(center)
	}

	m.LoadQueuedCoordinates()
	m.updateProxyTiles()
	m.view.PruneTilesForView()
	m.updateRenderableTiles()
	m.updateActiveStyles()
}

// updateVisibility: a tile is visible when it is styled for the current tile
// zoom and its coordinate is visible or has a visible descendant.
func (m *Manager) updateVisibility(t *tile.Tile) {
	t.SetVisible(false)
	if t.StyleZoom() != m.view.TileZoom() {
		return
	}
	if _, ok := m.visibleCoords[t.Coords().Key()]; ok {
		t.SetVisible(true)
		return
	}
	for _, c := range m.visibleCoords {
		if coord.IsDescendant(t.Coords(), c) {
			t.SetVisible(true)
			return
		}
	}
}

func (m *Manager) updateProxyTiles() {
	dir := m.view.ZoomDirection()
	if dir == 0 {
		return
	}

	tiles := m.Tiles()
	for _, t := range tiles {
		t.ClearProxy()
	}

	proxy := false
	for _, t := range tiles {
		if !t.Visible() || t.Built() {
			continue
		}
		switch dir {
		case 1:
			if t.Coords().Z > 0 || t.Overzoom() > 0 {
				if parent, ok := m.pyramid.GetAncestor(t); ok {
					parent.SetProxyFor(t)
					proxy = true
				}
			}
		case -1:
			for _, d := range m.pyramid.GetDescendants(t) {
				d.SetProxyFor(t)
				proxy = true
			}
		}
	}

	if !proxy {
		m.view.ClearZoomDirection()
	}
}

func (m *Manager) updateRenderableTiles() {
	m.renderableTiles = m.renderableTiles[:0]
	for _, t := range m.Tiles() {
		if t.Visible() && t.Loaded() {
			m.renderableTiles = append(m.renderableTiles, t)
		}
	}
	metrics.TilesRenderable.Set(float64(len(m.renderableTiles)))
}

func (m *Manager) RenderableTiles() []*tile.Tile {
	return m.renderableTiles
}

func (m *Manager) updateActiveStyles() {
	active := make(map[string]struct{})
	for _, t := range m.renderableTiles {
		for _, s := range t.MeshStyles() {
			active[s] = struct{}{}
		}
	}
	m.activeStyles = make([]string, 0, len(active))
	for s := range active {
		m.activeStyles = append(m.activeStyles, s)
	}
	sort.Strings(m.activeStyles)
}

func (m *Manager) ActiveStyles() []string {
	return m.activeStyles
}

func (m *Manager) IsLoadingVisibleTiles() bool {
	for _, t := range m.tiles {
		if t.Visible() && !t.Built() {
			return true
		}
	}
	return false
}

func (m *Manager) queueCoordinate(c coord.Coordinate) {
	m.queuedCoords = append(m.queuedCoords, c)
}

// LoadQueuedCoordinates creates tiles for queued coordinates, nearest to the
// view center first.
func (m *Manager) LoadQueuedCoordinates() {
	if len(m.queuedCoords) == 0 {
		return
	}
	center := m.view.CenterTile()
	sort.SliceStable(m.queuedCoords, func(i, j int) bool {
		return coord.Distance(m.queuedCoords[i], center) < coord.Distance(m.queuedCoords[j], center)
	})
	queued := m.queuedCoords
	m.queuedCoords = nil
	for _, c := range queued {
		m.loadCoordinate(c, center)
	}
}

func (m *Manager) loadCoordinate(c, center coord.Coordinate) {
	if c.Z != center.Z {
		return
	}

	sources := m.scene.Sources()
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)

	styleZoom := m.view.StyleZoom(c.Z)
	for _, name := range names {
		src := sources[name]
		if !src.BuildsGeometryTiles() || !src.IncludesTile(c, styleZoom) {
			continue
		}
		key, ok := coord.TileKey(c, src.Name(), src.MaxZoom(), styleZoom)
		if !ok || m.HasTile(key) {
			continue
		}
		t, err := tile.New(tile.Params{
			Coords:     c,
			Source:     src,
			StyleZoom:  styleZoom,
			Worker:     m.scene.WorkerForDataSource(src),
			Textures:   m.textures,
			ProxyDepth: m.cfg.ProxyDepth,
			Logger:     m.logger,
		})
		if err != nil {
			m.logger.Warn("failed to create tile", "tile", key, "error", err)
			continue
		}
		m.keepTile(t)
		m.BuildTile(t, tile.DefaultBuildOptions())
	}
}
