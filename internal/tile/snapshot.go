package tile

import (
	"github.com/jaennil/guide_helper/backend/tilestream/internal/coord"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/protocol"
)

// Snapshot is a read-only copy of a tile's state for reporting.
type Snapshot struct {
	Key        string           `json:"key"`
	Source     string           `json:"source"`
	Coords     coord.Coordinate `json:"coords"`
	StyleZoom  int              `json:"style_zoom"`
	Overzoom   int              `json:"overzoom"`
	Generation int              `json:"generation"`
	State      State            `json:"state"`
	Visible    bool             `json:"visible"`
	Loaded     bool             `json:"loaded"`
	Built      bool             `json:"built"`
	Error      string           `json:"error,omitempty"`
	CenterDist int              `json:"center_dist"`
	ProxyFor   []string         `json:"proxy_for,omitempty"`
	ProxiedAs  string           `json:"proxied_as,omitempty"`
	FadeIn     bool             `json:"fade_in"`
	Meshes     []string         `json:"meshes"`
	Textures   []string         `json:"textures,omitempty"`
	Debug      protocol.Debug   `json:"debug"`
}

func (t *Tile) Snapshot() Snapshot {
	s := Snapshot{
		Key:        t.key,
		Source:     t.source.Name(),
		Coords:     t.coords,
		StyleZoom:  t.styleZoom,
		Overzoom:   t.overzoom,
		Generation: t.generation,
		State:      t.State(),
		Visible:    t.visible,
		Loaded:     t.loaded,
		Built:      t.built,
		Error:      t.err,
		CenterDist: t.centerDist,
		ProxiedAs:  t.proxiedAs,
		FadeIn:     t.FadeIn(),
		Meshes:     t.MeshStyles(),
		Textures:   t.Textures(),
		Debug:      t.debug,
	}
	for _, p := range t.proxyFor {
		s.ProxyFor = append(s.ProxyFor, p.key)
	}
	return s
}
