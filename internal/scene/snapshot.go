package scene

import (
	"github.com/jaennil/guide_helper/backend/tilestream/internal/tile"
)

type ViewState struct {
	Lon           float64 `json:"lon"`
	Lat           float64 `json:"lat"`
	Zoom          float64 `json:"zoom"`
	TileZoom      int     `json:"tile_zoom"`
	ZoomDirection int     `json:"zoom_direction"`
}

type Stats struct {
	Tiles         int      `json:"tiles"`
	Renderable    int      `json:"renderable"`
	Building      int      `json:"building"`
	Queued        int      `json:"queued"`
	LoadingTiles  bool     `json:"loading_visible_tiles"`
	ActiveStyles  []string `json:"active_styles"`
	TexturesLive  int      `json:"textures_live"`
	MeshesLive    int      `json:"meshes_live"`
	Redraws       int      `json:"redraws"`
	BuildsDone    int      `json:"builds_done"`
	Features      float64  `json:"features"`
	Geometries    float64  `json:"geometries"`
	BufferSize    float64  `json:"buffer_size"`
	AvgGeomRatio  float64  `json:"avg_geom_ratio"`
	AvgRenderTime float64  `json:"avg_rendering_ms"`
}

// Snapshot is an immutable copy of the loop state, safe to read from any
// goroutine.
type Snapshot struct {
	Generation int             `json:"generation"`
	View       ViewState       `json:"view"`
	Stats      Stats           `json:"stats"`
	Tiles      []tile.Snapshot `json:"tiles"`
}

// Tile finds a tile by key.
func (s *Snapshot) Tile(key string) (tile.Snapshot, bool) {
	for _, t := range s.Tiles {
		if t.Key == key {
			return t, true
		}
	}
	return tile.Snapshot{}, false
}

func (s *Scene) publish() {
	center := s.view.Center()
	snap := &Snapshot{
		Generation: s.generation,
		View: ViewState{
			Lon:           center.Lon(),
			Lat:           center.Lat(),
			Zoom:          s.view.Zoom(),
			TileZoom:      s.view.TileZoom(),
			ZoomDirection: s.view.ZoomDirection(),
		},
		Stats: Stats{
			Renderable:    len(s.manager.RenderableTiles()),
			Building:      s.manager.BuildingCount(),
			Queued:        s.manager.QueuedTiles(),
			LoadingTiles:  s.manager.IsLoadingVisibleTiles(),
			ActiveStyles:  append([]string(nil), s.manager.ActiveStyles()...),
			TexturesLive:  s.textures.Len(),
			MeshesLive:    s.meshes.Live(),
			Redraws:       s.redraws,
			BuildsDone:    s.buildsDone,
			Features:      s.manager.DebugSum("features", nil),
			Geometries:    s.manager.DebugSum("geometries", nil),
			BufferSize:    s.manager.DebugSum("buffer_size", nil),
			AvgGeomRatio:  s.manager.DebugAverage("geom_ratio", nil),
			AvgRenderTime: s.manager.DebugAverage("rendering", nil),
		},
	}
	s.manager.ForEachTile(func(t *tile.Tile) {
		snap.Tiles = append(snap.Tiles, t.Snapshot())
	})
	snap.Stats.Tiles = len(snap.Tiles)
	s.snapshot.Store(snap)
}
