// Package resource holds the headless stand-ins for GPU meshes and textures
// together with their ownership rules.
package resource

import (
	"sync"
	"sync/atomic"

	"github.com/jaennil/guide_helper/backend/tilestream/pkg/metrics"
)

// Mesh is a drawable buffer owned by exactly one tile.
type Mesh interface {
	GeometryCount() int
	BufferSize() int
	Destroy()
}

// MeshPool creates in-memory meshes and keeps count of the live ones.
type MeshPool struct {
	live        atomic.Int64
	doubleFrees atomic.Int64
	created     atomic.Int64
}

func NewMeshPool() *MeshPool {
	return &MeshPool{}
}

// NewMesh copies nothing: the vertex buffers are handed over to the mesh.
func (p *MeshPool) NewMesh(vertexData, vertexElements []byte, geometryCount int) *MemoryMesh {
	p.live.Add(1)
	p.created.Add(1)
	metrics.MeshesLive.Inc()
	return &MemoryMesh{
		pool:           p,
		vertexData:     vertexData,
		vertexElements: vertexElements,
		geometryCount:  geometryCount,
	}
}

func (p *MeshPool) Live() int {
	return int(p.live.Load())
}

func (p *MeshPool) Created() int {
	return int(p.created.Load())
}

// DoubleFrees counts Destroy calls on already destroyed meshes.
func (p *MeshPool) DoubleFrees() int {
	return int(p.doubleFrees.Load())
}

type MemoryMesh struct {
	pool           *MeshPool
	once           sync.Once
	destroyed      atomic.Bool
	vertexData     []byte
	vertexElements []byte
	geometryCount  int
}

var _ Mesh = (*MemoryMesh)(nil)

func (m *MemoryMesh) GeometryCount() int {
	return m.geometryCount
}

func (m *MemoryMesh) BufferSize() int {
	return len(m.vertexData) + len(m.vertexElements)
}

func (m *MemoryMesh) Destroyed() bool {
	return m.destroyed.Load()
}

func (m *MemoryMesh) Destroy() {
	freed := false
	m.once.Do(func() {
		freed = true
		m.destroyed.Store(true)
		m.vertexData, m.vertexElements = nil, nil
		m.pool.live.Add(-1)
		metrics.MeshesLive.Dec()
	})
	if !freed {
		m.pool.doubleFrees.Add(1)
	}
}
