package style

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/jaennil/guide_helper/backend/tilestream/internal/protocol"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/resource"
)

var ErrEmptyMesh = errors.New("mesh has no vertex data")

// Basic packs feature vertices as little endian float32 pairs with a uint32
// element index per vertex. It stands in for the real tessellators.
type Basic struct {
	name      string
	collision bool
	texture   string

	meshes   *resource.MeshPool
	textures *resource.TextureStore

	mu    sync.Mutex
	tiles map[string]*basicTileData
}

type basicTileData struct {
	vertices   []byte
	elements   []byte
	count      uint32
	geometries int
}

type BasicOptions struct {
	Collision bool
	// Texture, when set, is retained once for every tile the style ends
	// data for.
	Texture string
}

func NewBasic(name string, meshes *resource.MeshPool, textures *resource.TextureStore, opts BasicOptions) *Basic {
	return &Basic{
		name:      name,
		collision: opts.Collision,
		texture:   opts.Texture,
		meshes:    meshes,
		textures:  textures,
		tiles:     make(map[string]*basicTileData),
	}
}

var _ Style = (*Basic)(nil)

func (s *Basic) Name() string    { return s.name }
func (s *Basic) Collision() bool { return s.collision }

func (s *Basic) AddFeature(f *geojson.Feature, _ DrawGroup, fc *FeatureContext) {
	if f == nil || f.Geometry == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	td, ok := s.tiles[fc.Tile.Key]
	if !ok {
		td = &basicTileData{}
		s.tiles[fc.Tile.Key] = td
	}
	td.add(f.Geometry)
}

func (td *basicTileData) add(g orb.Geometry) {
	td.geometries++
	var buf [4]byte
	walk(g, func(p orb.Point) {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(float32(p[0])))
		td.vertices = append(td.vertices, buf[:]...)
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(float32(p[1])))
		td.vertices = append(td.vertices, buf[:]...)
		binary.LittleEndian.PutUint32(buf[:], td.count)
		td.elements = append(td.elements, buf[:]...)
		td.count++
	})
}

func walk(g orb.Geometry, fn func(orb.Point)) {
	switch g := g.(type) {
	case orb.Point:
		fn(g)
	case orb.MultiPoint:
		for _, p := range g {
			fn(p)
		}
	case orb.LineString:
		for _, p := range g {
			fn(p)
		}
	case orb.MultiLineString:
		for _, ls := range g {
			walk(ls, fn)
		}
	case orb.Ring:
		for _, p := range g {
			fn(p)
		}
	case orb.Polygon:
		for _, r := range g {
			walk(r, fn)
		}
	case orb.MultiPolygon:
		for _, p := range g {
			walk(p, fn)
		}
	case orb.Collection:
		for _, c := range g {
			walk(c, fn)
		}
	case orb.Bound:
		walk(g.ToPolygon(), fn)
	}
}

func (s *Basic) HasDataForTile(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tiles[key]
	return ok
}

func (s *Basic) EndData(ctx context.Context, key string) (*Data, error) {
	s.mu.Lock()
	td, ok := s.tiles[key]
	delete(s.tiles, key)
	s.mu.Unlock()

	if !ok {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d := &Data{
		VertexData:     td.vertices,
		VertexElements: td.elements,
		GeometryCount:  td.geometries,
		Uniforms:       map[string]any{"u_style": s.name},
	}
	if s.texture != "" && s.textures != nil {
		s.textures.Retain(s.texture)
		d.Textures = []string{s.texture}
		d.Uniforms["u_texture"] = s.texture
	}
	return d, nil
}

func (s *Basic) MakeMesh(vertexData, vertexElements []byte, meta protocol.MeshData) (resource.Mesh, error) {
	if len(vertexData) == 0 {
		return nil, fmt.Errorf("style %s: %w", s.name, ErrEmptyMesh)
	}
	return s.meshes.NewMesh(vertexData, vertexElements, meta.GeometryCount), nil
}
