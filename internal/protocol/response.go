package protocol

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Field names an optional part of a TileSlice.
type Field string

const FieldMeshData Field = "mesh_data"

// MeshData is the output of one style for one tile.
type MeshData struct {
	VertexData     []byte         `json:"-"`
	VertexElements []byte         `json:"-"`
	Uniforms       map[string]any `json:"uniforms,omitempty"`
	Textures       []string       `json:"textures,omitempty" validate:"dive,required"`
	GeometryCount  int            `json:"geometry_count" validate:"gte=0"`
}

// TileSlice is the subset of worker-side tile state sent back to the scene
// loop. MeshData is only set when asked for.
type TileSlice struct {
	Key        string              `json:"key" validate:"required"`
	Loading    bool                `json:"loading"`
	Loaded     bool                `json:"loaded"`
	Generation int                 `json:"generation" validate:"gte=0"`
	Error      string              `json:"error,omitempty"`
	Debug      Debug               `json:"debug"`
	MeshData   map[string]MeshData `json:"mesh_data,omitempty" validate:"omitempty,dive"`
}

// Textures lists every texture referenced by the slice's mesh data, one entry
// per occurrence.
func (s TileSlice) Textures() []string {
	var out []string
	for _, md := range s.MeshData {
		out = append(out, md.Textures...)
	}
	return out
}

// TileUpdate lists the tile fields a worker response is allowed to set.
type TileUpdate struct {
	Loading bool
	Loaded  bool
	Error   string
	Debug   Debug
}

func (s TileSlice) Update() TileUpdate {
	return TileUpdate{
		Loading: s.Loading,
		Loaded:  s.Loaded,
		Error:   s.Error,
		Debug:   s.Debug,
	}
}

type Progress struct {
	Start bool `json:"start"`
	Done  bool `json:"done"`
}

// BuildResponse carries one finished style group of a tile.
type BuildResponse struct {
	Tile     TileSlice `json:"tile" validate:"required"`
	Progress Progress  `json:"progress"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks a response before it touches any tile.
func (r BuildResponse) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid build response: %w", err)
	}
	return nil
}
