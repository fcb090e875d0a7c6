package style

import (
	"slices"
	"sort"

	"github.com/jaennil/guide_helper/backend/tilestream/internal/protocol"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/resource"
	"github.com/jaennil/guide_helper/backend/tilestream/pkg/config"
)

// Set is a complete styling configuration: the styles by name and the layers
// that route features to them.
type Set struct {
	Styles map[string]Style
	Layers []Layer
}

// NewSet builds headless styles and one layer per "layer:style" pair for the
// given source.
func NewSet(cfg config.Styles, source string, meshes *resource.MeshPool, textures *resource.TextureStore) *Set {
	set := &Set{Styles: make(map[string]Style)}

	names := make([]string, 0, len(cfg.Layers))
	for layer := range cfg.Layers {
		names = append(names, layer)
	}
	sort.Strings(names)

	for _, layer := range names {
		styleName := cfg.Layers[layer]
		if _, ok := set.Styles[styleName]; !ok {
			set.Styles[styleName] = NewBasic(styleName, meshes, textures, BasicOptions{
				Collision: slices.Contains(cfg.Collision, styleName),
				Texture:   cfg.Textures[styleName],
			})
		}
		set.Layers = append(set.Layers, NewStaticLayer(layer, &DataSource{Source: source},
			DrawGroup{Name: layer, Style: styleName, Visible: true}))
	}
	return set
}

// StyleNames returns the style names in sorted order.
func (s *Set) StyleNames() []string {
	out := make([]string, 0, len(s.Styles))
	for name := range s.Styles {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// LayerConfigs describes the layers for a Configure message.
func (s *Set) LayerConfigs() []protocol.LayerConfig {
	out := make([]protocol.LayerConfig, 0, len(s.Layers))
	for _, l := range s.Layers {
		lc := protocol.LayerConfig{Name: l.Name()}
		if d := l.Data(); d != nil {
			lc.Source = d.Source
			lc.SourceLayer = d.Layer
		}
		if sl, ok := l.(*StaticLayer); ok {
			for _, g := range sl.groups {
				lc.Styles = append(lc.Styles, g.StyleName())
			}
		}
		out = append(out, lc)
	}
	return out
}

// LayersFromConfig rebuilds layers from their Configure description. Each
// layer draws every feature with one visible group per listed style.
func LayersFromConfig(cfgs []protocol.LayerConfig) []Layer {
	out := make([]Layer, 0, len(cfgs))
	for _, lc := range cfgs {
		var data *DataSource
		if lc.Source != "" {
			data = &DataSource{Source: lc.Source, Layer: lc.SourceLayer}
		}
		groups := make([]DrawGroup, 0, len(lc.Styles))
		for _, s := range lc.Styles {
			name := lc.Name
			if len(lc.Styles) > 1 {
				name = lc.Name + ":" + s
			}
			groups = append(groups, DrawGroup{Name: name, Style: s, Visible: true})
		}
		out = append(out, NewStaticLayer(lc.Name, data, groups...))
	}
	return out
}
