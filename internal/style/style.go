// Package style defines how features become per-tile mesh data, and ships a
// headless style good enough to drive the build pipeline without a GPU.
package style

import (
	"context"

	"github.com/paulmach/orb/geojson"

	"github.com/jaennil/guide_helper/backend/tilestream/internal/protocol"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/resource"
)

// DrawGroup is one styling rule matched by a feature.
type DrawGroup struct {
	Name    string
	Style   string
	Visible bool
	Layers  []string
}

// StyleName is the style the group renders with, defaulting to its name.
func (g DrawGroup) StyleName() string {
	if g.Style != "" {
		return g.Style
	}
	return g.Name
}

// FeatureContext describes where a feature came from.
type FeatureContext struct {
	Tile   protocol.TileDescriptor
	Source string
	Layer  string
	Layers []string
}

// Data is what a style produced for one tile.
type Data struct {
	VertexData     []byte
	VertexElements []byte
	Uniforms       map[string]any
	Textures       []string
	GeometryCount  int
}

func (d *Data) MeshData() protocol.MeshData {
	return protocol.MeshData{
		VertexData:     d.VertexData,
		VertexElements: d.VertexElements,
		Uniforms:       d.Uniforms,
		Textures:       d.Textures,
		GeometryCount:  d.GeometryCount,
	}
}

type Style interface {
	Name() string
	Collision() bool
	AddFeature(f *geojson.Feature, group DrawGroup, fc *FeatureContext)
	HasDataForTile(key string) bool
	// EndData hands over and forgets everything accumulated for key. It
	// returns nil data when nothing was added.
	EndData(ctx context.Context, key string) (*Data, error)
	MakeMesh(vertexData, vertexElements []byte, meta protocol.MeshData) (resource.Mesh, error)
}

// DataSource selects the source layers a scene layer draws from. An empty
// Layer means the source's default layer or one named after the scene layer.
type DataSource struct {
	Source string
	Layer  []string
}

type Layer interface {
	Name() string
	Data() *DataSource
	BuildDrawGroups(fc *FeatureContext, f *geojson.Feature) []DrawGroup
}
