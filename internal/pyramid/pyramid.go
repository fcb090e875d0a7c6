// Package pyramid indexes live tiles by quad-tree position so the manager can
// find built ancestors and descendants to stand in for tiles still building.
package pyramid

import (
	"github.com/jaennil/guide_helper/backend/tilestream/internal/coord"
)

const (
	DefaultMaxAncestorDepth   = 7
	DefaultMaxDescendantDepth = 6
)

// Entry is what the pyramid needs to know about a tile.
type Entry interface {
	Key() string
	Coords() coord.Coordinate
	StyleZoom() int
	SourceName() string
	SourceMaxZoom() int
}

type node[T Entry] struct {
	tile        T
	present     bool
	descendants int
}

// Pyramid is not safe for concurrent use; only the tile manager mutates it.
type Pyramid[T Entry] struct {
	nodes            map[string]*node[T]
	children         coord.ChildrenCache
	maxAncestorDepth int
	maxDescDepth     int
}

type Option[T Entry] func(*Pyramid[T])

func WithMaxAncestorDepth[T Entry](depth int) Option[T] {
	return func(p *Pyramid[T]) {
		if depth > 0 {
			p.maxAncestorDepth = depth
		}
	}
}

func WithMaxDescendantDepth[T Entry](depth int) Option[T] {
	return func(p *Pyramid[T]) {
		if depth > 0 {
			p.maxDescDepth = depth
		}
	}
}

func New[T Entry](children coord.ChildrenCache, opts ...Option[T]) *Pyramid[T] {
	if children == nil {
		children = coord.NewChildrenCache(0)
	}
	p := &Pyramid[T]{
		nodes:            make(map[string]*node[T]),
		children:         children,
		maxAncestorDepth: DefaultMaxAncestorDepth,
		maxDescDepth:     DefaultMaxDescendantDepth,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// position is a tile's slot in the pyramid, independent of the tile itself.
type position struct {
	source    string
	maxZoom   int
	coords    coord.Coordinate
	styleZoom int
}

func (pos position) key() (string, bool) {
	return coord.TileKey(pos.coords, pos.source, pos.maxZoom, pos.styleZoom)
}

// parent steps one style zoom up. Overzoomed positions keep their
// coordinates until the style zoom reaches the source max zoom.
func (pos position) parent() (position, bool) {
	if pos.styleZoom > pos.maxZoom {
		pos.styleZoom--
		return pos, true
	}
	if pos.coords.Z <= 0 || pos.styleZoom <= 0 {
		return pos, false
	}
	pos.coords = coord.AtZoom(pos.coords, pos.coords.Z-1)
	pos.styleZoom--
	return pos, true
}

func positionOf(t Entry) position {
	return position{
		source:    t.SourceName(),
		maxZoom:   t.SourceMaxZoom(),
		coords:    t.Coords(),
		styleZoom: t.StyleZoom(),
	}
}

func (p *Pyramid[T]) AddTile(t T) {
	key := t.Key()
	n, ok := p.nodes[key]
	if !ok {
		n = &node[T]{}
		p.nodes[key] = n
	}
	if n.present {
		n.tile = t
		return
	}
	n.tile, n.present = t, true

	pos := positionOf(t)
	for {
		var ok bool
		if pos, ok = pos.parent(); !ok {
			return
		}
		pk, valid := pos.key()
		if !valid {
			return
		}
		pn, ok := p.nodes[pk]
		if !ok {
			pn = &node[T]{}
			p.nodes[pk] = pn
		}
		pn.descendants++
	}
}

func (p *Pyramid[T]) RemoveTile(t T) {
	key := t.Key()
	n, ok := p.nodes[key]
	if !ok || !n.present {
		return
	}
	var zero T
	n.tile, n.present = zero, false
	if n.descendants == 0 {
		delete(p.nodes, key)
	}

	pos := positionOf(t)
	for {
		var ok bool
		if pos, ok = pos.parent(); !ok {
			return
		}
		pk, valid := pos.key()
		if !valid {
			return
		}
		pn, ok := p.nodes[pk]
		if !ok {
			continue
		}
		pn.descendants--
		if pn.descendants <= 0 && !pn.present {
			delete(p.nodes, pk)
		}
	}
}

// Len returns the number of tiles in the pyramid.
func (p *Pyramid[T]) Len() int {
	n := 0
	for _, nd := range p.nodes {
		if nd.present {
			n++
		}
	}
	return n
}

func (p *Pyramid[T]) Has(key string) bool {
	n, ok := p.nodes[key]
	return ok && n.present
}

// Descendants returns how many present tiles sit below key.
func (p *Pyramid[T]) Descendants(key string) int {
	if n, ok := p.nodes[key]; ok {
		return n.descendants
	}
	return 0
}

// GetAncestor returns the nearest present tile above t for the same source,
// looking at most the configured number of levels up.
func (p *Pyramid[T]) GetAncestor(t Entry) (T, bool) {
	pos := positionOf(t)
	for level := 1; level <= p.maxAncestorDepth; level++ {
		var ok bool
		if pos, ok = pos.parent(); !ok {
			break
		}
		key, valid := pos.key()
		if !valid {
			break
		}
		if n, ok := p.nodes[key]; ok && n.present {
			return n.tile, true
		}
	}
	var zero T
	return zero, false
}

// GetDescendants returns the present tiles below t for the same source. A
// branch stops at the first present tile, so the result never contains both
// a tile and one of its own descendants.
func (p *Pyramid[T]) GetDescendants(t Entry) []T {
	var out []T
	p.collectDescendants(positionOf(t), 1, &out)
	return out
}

func (p *Pyramid[T]) collectDescendants(pos position, level int, out *[]T) {
	var next []position
	if pos.styleZoom >= pos.maxZoom {
		// overzoomed: the child keeps the same coordinates
		child := pos
		child.styleZoom++
		next = append(next, child)
	} else {
		for _, c := range p.children.Children(pos.coords) {
			child := pos
			child.coords = c
			child.styleZoom++
			next = append(next, child)
		}
	}

	for _, child := range next {
		key, valid := child.key()
		if !valid {
			continue
		}
		n, ok := p.nodes[key]
		if !ok {
			continue
		}
		if n.present {
			*out = append(*out, n.tile)
		} else if n.descendants > 0 && level < p.maxDescDepth {
			p.collectDescendants(child, level+1, out)
		}
	}
}
