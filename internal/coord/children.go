package coord

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// ChildrenCache memoizes the four children of a coordinate. Children never
// change, so entries are never invalidated, only evicted when bounded.
type ChildrenCache interface {
	Children(c Coordinate) [4]Coordinate
	Len() int
}

// NewChildrenCache returns an unbounded cache for size <= 0 and an LRU
// holding at most size parents otherwise.
func NewChildrenCache(size int) ChildrenCache {
	if size <= 0 {
		return &mapChildren{m: make(map[Coordinate][4]Coordinate)}
	}
	c, err := lru.New[Coordinate, [4]Coordinate](size)
	if err != nil {
		// lru.New only fails for non-positive sizes
		return &mapChildren{m: make(map[Coordinate][4]Coordinate)}
	}
	return &lruChildren{c: c}
}

func childrenOf(c Coordinate) [4]Coordinate {
	x, y, z := c.X*2, c.Y*2, c.Z+1
	return [4]Coordinate{
		{X: x, Y: y, Z: z}, {X: x + 1, Y: y, Z: z},
		{X: x, Y: y + 1, Z: z}, {X: x + 1, Y: y + 1, Z: z},
	}
}

// mapChildren is owned by a single goroutine (the scene loop).
type mapChildren struct {
	m map[Coordinate][4]Coordinate
}

func (mc *mapChildren) Children(c Coordinate) [4]Coordinate {
	if ch, ok := mc.m[c]; ok {
		return ch
	}
	ch := childrenOf(c)
	mc.m[c] = ch
	return ch
}

func (mc *mapChildren) Len() int {
	return len(mc.m)
}

type lruChildren struct {
	c *lru.Cache[Coordinate, [4]Coordinate]
}

func (lc *lruChildren) Children(c Coordinate) [4]Coordinate {
	if ch, ok := lc.c.Get(c); ok {
		return ch
	}
	ch := childrenOf(c)
	lc.c.Add(c, ch)
	return ch
}

func (lc *lruChildren) Len() int {
	return lc.c.Len()
}
