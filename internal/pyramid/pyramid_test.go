package pyramid

import (
	"sort"
	"testing"

	"github.com/jaennil/guide_helper/backend/tilestream/internal/coord"
)

type fakeTile struct {
	c         coord.Coordinate
	styleZoom int
	maxZoom   int
}

func (f *fakeTile) Key() string {
	k, _ := coord.TileKey(f.c, "src", f.maxZoom, f.styleZoom)
	return k
}
func (f *fakeTile) Coords() coord.Coordinate { return coord.WithMaxZoom(f.c, f.maxZoom) }
func (f *fakeTile) StyleZoom() int           { return f.styleZoom }
func (f *fakeTile) SourceName() string       { return "src" }
func (f *fakeTile) SourceMaxZoom() int       { return f.maxZoom }

func at(x, y, z int) *fakeTile {
	return &fakeTile{c: coord.New(x, y, z), styleZoom: z, maxZoom: 18}
}

func TestGetAncestor(t *testing.T) {
	p := New[*fakeTile](coord.NewChildrenCache(0))
	root := at(0, 0, 1)
	p.AddTile(root)

	got, ok := p.GetAncestor(at(1, 1, 3))
	if !ok || got != root {
		t.Fatalf("GetAncestor = %v, %v; want root", got, ok)
	}

	nearer := at(0, 0, 2)
	p.AddTile(nearer)
	if got, _ := p.GetAncestor(at(1, 1, 3)); got != nearer {
		t.Fatalf("GetAncestor did not prefer the nearest ancestor")
	}

	if _, ok := p.GetAncestor(at(7, 7, 3)); ok {
		t.Fatal("GetAncestor found an ancestor in another branch")
	}
}

func TestGetAncestorDepthLimit(t *testing.T) {
	p := New[*fakeTile](nil, WithMaxAncestorDepth[*fakeTile](2))
	p.AddTile(at(0, 0, 0))
	if _, ok := p.GetAncestor(at(0, 0, 3)); ok {
		t.Fatal("ancestor found beyond depth limit")
	}
	if _, ok := p.GetAncestor(at(0, 0, 2)); !ok {
		t.Fatal("ancestor within depth limit not found")
	}
}

func TestGetAncestorOverzoomed(t *testing.T) {
	p := New[*fakeTile](nil)
	native := &fakeTile{c: coord.New(1, 1, 2), styleZoom: 2, maxZoom: 2}
	p.AddTile(native)
	over := &fakeTile{c: coord.New(8, 8, 5), styleZoom: 5, maxZoom: 2}
	got, ok := p.GetAncestor(over)
	if !ok || got != native {
		t.Fatalf("overzoomed GetAncestor = %v, %v", got, ok)
	}
}

func TestGetDescendants(t *testing.T) {
	p := New[*fakeTile](coord.NewChildrenCache(16))
	a := at(2, 2, 3)
	b := at(3, 2, 3)
	deep := at(0, 0, 4)
	p.AddTile(a)
	p.AddTile(b)
	p.AddTile(deep)

	got := p.GetDescendants(at(1, 1, 2))
	keys := make([]string, 0, len(got))
	for _, d := range got {
		keys = append(keys, d.Key())
	}
	sort.Strings(keys)
	want := []string{a.Key(), b.Key()}
	if len(keys) != 2 || keys[0] != want[0] || keys[1] != want[1] {
		t.Fatalf("GetDescendants = %v, want %v", keys, want)
	}

	root := p.GetDescendants(at(0, 0, 0))
	if len(root) != 3 {
		t.Fatalf("GetDescendants(root) returned %d tiles, want 3", len(root))
	}
}

func TestRemoveTileUpdatesCounts(t *testing.T) {
	p := New[*fakeTile](nil)
	child := at(4, 4, 3)
	p.AddTile(child)
	parentKey := at(2, 2, 2).Key()
	if p.Descendants(parentKey) != 1 {
		t.Fatalf("Descendants = %d", p.Descendants(parentKey))
	}
	p.AddTile(child)
	if p.Descendants(parentKey) != 1 {
		t.Fatal("re-adding a tile double counted it")
	}
	p.RemoveTile(child)
	if p.Descendants(parentKey) != 0 || p.Len() != 0 || p.Has(child.Key()) {
		t.Fatal("RemoveTile left state behind")
	}
	if len(p.nodes) != 0 {
		t.Fatalf("empty pyramid still holds %d nodes", len(p.nodes))
	}
	if d := p.GetDescendants(at(0, 0, 0)); len(d) != 0 {
		t.Fatalf("GetDescendants after removal = %v", d)
	}
}
