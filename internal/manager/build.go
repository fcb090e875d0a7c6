package manager

import (
	"time"

	"github.com/jaennil/guide_helper/backend/tilestream/internal/protocol"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/tile"
	"github.com/jaennil/guide_helper/backend/tilestream/pkg/metrics"
)

type inFlightBuild struct {
	started    time.Time
	generation int
}

// BuildTiles builds tiles nearest the view center first.
func (m *Manager) BuildTiles(tiles []*tile.Tile, opts tile.BuildOptions) {
	for _, t := range tile.Sort(tiles) {
		m.BuildTile(t, opts)
	}
	m.checkBuildQueue()
}

// BuildTile marks a tile for build at the current generation and queues it
// for the next flush. A tile is queued at most once, and not at all while a
// build of the same generation is already on a worker.
func (m *Manager) BuildTile(t *tile.Tile, opts tile.BuildOptions) {
	generation := m.scene.Generation()
	inFlight := m.tileBuildStart(t.Key(), generation)
	m.updateVisibility(t)
	t.Update(m.view.CenterTile())
	t.MarkForBuild(generation, opts)
	if _, ok := m.queuedKeys[t.Key()]; ok {
		return
	}
	if inFlight {
		m.logger.Debug("tile build already in flight", "tile", t.Key(), "generation", generation)
		return
	}
	m.queuedKeys[t.Key()] = struct{}{}
	m.queuedTiles = append(m.queuedTiles, t)
}

// RebuildTiles rebuilds every live tile, after a generation change.
func (m *Manager) RebuildTiles(opts tile.BuildOptions) {
	m.BuildTiles(m.Tiles(), opts)
}

// LoadQueuedTiles flushes queued builds to the workers. While zooming, the
// flush is held back until the zoom settles or the build interval passes.
// It returns the number of builds posted.
func (m *Manager) LoadQueuedTiles(now time.Time) int {
	if now.Sub(m.view.LastZoomTime()) < m.cfg.ZoomSettle &&
		now.Sub(m.lastBuildTime) < m.cfg.BuildInterval {
		return 0
	}
	if len(m.queuedTiles) == 0 {
		return 0
	}

	posted := 0
	for _, t := range m.queuedTiles {
		if t.BuildOnWorker() {
			posted++
		}
	}
	m.ClearQueuedTiles()
	m.lastBuildTime = now
	metrics.TileBuildsDispatched.Add(float64(posted))
	m.logger.Debug("processed tile build queue", "posted", posted)
	return posted
}

func (m *Manager) ClearQueuedTiles() {
	m.queuedTiles = nil
	m.queuedKeys = make(map[string]struct{})
}

// QueuedTiles is the number of builds waiting for a flush.
func (m *Manager) QueuedTiles() int {
	return len(m.queuedTiles)
}

// BuildTileStylesCompleted applies one style group posted by a worker.
// Results for removed tiles or an outdated generation are dropped and their
// textures released.
func (m *Manager) BuildTileStylesCompleted(resp protocol.BuildResponse) {
	if err := resp.Validate(); err != nil {
		m.buildTileInvalid(resp, err)
		return
	}
	if resp.Tile.Error != "" {
		m.BuildTileError(resp.Tile)
		return
	}

	key := resp.Tile.Key
	t, ok := m.tiles[key]
	switch {
	case !ok:
		m.logger.Debug("discarded tile because previously removed", "tile", key)
		tile.AbortBuild(m.textures, resp.Tile)
		metrics.TileBuildsDiscarded.WithLabelValues(metrics.ReasonRemoved).Inc()
		m.UpdateTileStates()
	case resp.Tile.Generation != m.scene.Generation():
		m.logger.Debug("discarded tile because built with outdated scene config",
			"tile", key, "generation", resp.Tile.Generation, "current", m.scene.Generation())
		tile.AbortBuild(m.textures, resp.Tile)
		metrics.TileBuildsDiscarded.WithLabelValues(metrics.ReasonStale).Inc()
		m.UpdateTileStates()
	default:
		t.Apply(resp.Tile.Update())
		if resp.Progress.Done {
			t.MarkBuilt()
		}
		t.BuildMeshes(m.scene.Styles(), resp.Tile.MeshData, resp.Progress)
		m.UpdateTileStates()
		m.scene.RequestRedraw()
	}

	if resp.Progress.Done {
		m.tileBuildDone(key, resp.Tile.Generation)
	}
}

// BuildTileError handles a worker failure: the tile is destroyed and
// forgotten, and any partial textures are released.
func (m *Manager) BuildTileError(slice protocol.TileSlice) {
	m.logger.Error("error building tile", "tile", slice.Key, "error", slice.Error)
	metrics.TileBuildErrors.Inc()
	if t, ok := m.tiles[slice.Key]; ok {
		t.Destroy()
	}
	m.forgetTile(slice.Key)
	tile.AbortBuild(m.textures, slice)
	m.scene.RequestRedraw()
}

// buildTileInvalid drops a malformed response. When it belongs to the build
// in flight, the build counts as failed so the tile is recreated on the next
// view update.
func (m *Manager) buildTileInvalid(resp protocol.BuildResponse, err error) {
	key := resp.Tile.Key
	m.logger.Warn("dropping invalid build response", "tile", key, "error", err)
	t, ok := m.tiles[key]
	if ok && t.Generation() == resp.Tile.Generation && m.Building(key) {
		resp.Tile.Error = err.Error()
		m.BuildTileError(resp.Tile)
		return
	}
	tile.AbortBuild(m.textures, resp.Tile)
}

// tileBuildStart tracks a build of key at generation. It reports whether a
// build of that generation was already tracked.
func (m *Manager) tileBuildStart(key string, generation int) bool {
	if m.buildingTiles == nil {
		m.buildingTiles = make(map[string]inFlightBuild)
	}
	b, ok := m.buildingTiles[key]
	if ok && b.generation == generation {
		return true
	}
	if !ok {
		b.started = time.Now()
	}
	b.generation = generation
	m.buildingTiles[key] = b
	metrics.TileBuildsInFlight.Set(float64(len(m.buildingTiles)))
	m.logger.Debug("tile build start", "tile", key, "generation", generation, "building", len(m.buildingTiles))
	return false
}

// tileBuildDone handles a done marker. Markers from an older generation
// leave the newer build tracked.
func (m *Manager) tileBuildDone(key string, generation int) {
	if b, ok := m.buildingTiles[key]; ok && b.generation != generation {
		return
	}
	m.tileBuildStop(key, true)
}

// tileBuildStop ends tracking for key. completed is false when the tile went
// away before its done marker.
func (m *Manager) tileBuildStop(key string, completed bool) {
	if m.buildingTiles == nil {
		return
	}
	if b, ok := m.buildingTiles[key]; ok {
		delete(m.buildingTiles, key)
		if completed {
			metrics.TileBuildsCompleted.Inc()
			metrics.TileBuildLatency.Observe(time.Since(b.started).Seconds())
		}
	}
	metrics.TileBuildsInFlight.Set(float64(len(m.buildingTiles)))
	m.logger.Debug("tile build stop", "tile", key, "building", len(m.buildingTiles))
	m.checkBuildQueue()
}

// checkBuildQueue tells the scene once the last in-flight build finished.
func (m *Manager) checkBuildQueue() {
	if len(m.buildingTiles) == 0 {
		m.buildingTiles = nil
		m.scene.TileManagerBuildDone()
	}
}

// Building reports whether key has a build in flight.
func (m *Manager) Building(key string) bool {
	_, ok := m.buildingTiles[key]
	return ok
}

func (m *Manager) BuildingCount() int {
	return len(m.buildingTiles)
}

// DebugSum adds up a debug counter over the tiles passing filter.
func (m *Manager) DebugSum(prop string, filter func(*tile.Tile) bool) float64 {
	sum := 0.0
	for _, t := range m.tiles {
		if filter != nil && !filter(t) {
			continue
		}
		if v, ok := t.Debug().Value(prop); ok {
			sum += v
		}
	}
	return sum
}

// DebugAverage divides DebugSum by the number of live tiles.
func (m *Manager) DebugAverage(prop string, filter func(*tile.Tile) bool) float64 {
	if len(m.tiles) == 0 {
		return 0
	}
	return m.DebugSum(prop, filter) / float64(len(m.tiles))
}
