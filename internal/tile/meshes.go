package tile

import (
	"sort"

	"github.com/dustin/go-humanize"

	"github.com/jaennil/guide_helper/backend/tilestream/internal/protocol"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/resource"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/style"
)

// BuildMeshes turns one style group delivered by the worker into meshes
// owned by the tile. It may be called several times per generation; the done
// marker finalizes the generation.
func (t *Tile) BuildMeshes(styles map[string]style.Style, meshData map[string]protocol.MeshData, progress protocol.Progress) {
	if t.err != "" {
		return
	}

	if progress.Start || t.trackedGeneration != t.generation {
		t.beginGeneration()
	}

	names := make([]string, 0, len(meshData))
	for name := range meshData {
		names = append(names, name)
	}
	sort.Strings(names)

	meshes := make(map[string]resource.Mesh)
	var textures []string
	building := true
	for _, name := range names {
		md := meshData[name]
		if building && len(md.VertexData) > 0 {
			t.debug.BufferSize += len(md.VertexData) + len(md.VertexElements)
			st, ok := styles[name]
			if !ok {
				t.logger.Warn("could not create mesh because style not found, aborting tile", "style", name, "tile", t.key)
				building = false
			} else if m, err := st.MakeMesh(md.VertexData, md.VertexElements, md); err != nil {
				t.logger.Warn("failed to create mesh", "style", name, "tile", t.key, "error", err)
			} else {
				meshes[name] = m
				t.debug.Geometries += m.GeometryCount()
			}
		}
		// one entry per occurrence, so each is matched by one release
		textures = append(textures, md.Textures...)
	}

	for name, m := range meshes {
		if old, ok := t.meshes[name]; ok {
			old.Destroy()
		}
		t.meshes[name] = m
		t.newMeshStyles[name] = struct{}{}
	}
	t.ownedTextures = append(t.ownedTextures, textures...)

	if progress.Done {
		t.finishGeneration()
	}
}

func (t *Tile) beginGeneration() {
	t.trackedGeneration = t.generation
	t.newMeshStyles = make(map[string]struct{})
	t.previousTextures = append(t.previousTextures, t.ownedTextures...)
	t.ownedTextures = nil
	t.debug.Geometries = 0
	t.debug.BufferSize = 0
}

func (t *Tile) finishGeneration() {
	t.built = true
	for name, m := range t.meshes {
		if _, ok := t.newMeshStyles[name]; !ok {
			m.Destroy()
			delete(t.meshes, name)
		}
	}
	t.newMeshStyles = make(map[string]struct{})

	t.release(t.previousTextures)
	t.previousTextures = nil

	if t.debug.Features > 0 {
		t.debug.GeomRatio = float64(int(float64(t.debug.Geometries)/float64(t.debug.Features)*10+0.5)) / 10
	} else {
		t.debug.GeomRatio = 0
	}
	t.logger.Debug("tile built",
		"tile", t.key,
		"features", t.debug.Features,
		"geometries", t.debug.Geometries,
		"buffer_size", humanize.Bytes(uint64(t.debug.BufferSize)),
		"geom_ratio", t.debug.GeomRatio,
		"rendering", t.debug.Rendering,
	)
}
