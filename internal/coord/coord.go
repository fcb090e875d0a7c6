// Package coord addresses cells of the tile quad-tree.
package coord

import (
	"strconv"
	"strings"
)

// Coordinate identifies one quad-tree cell. X wraps around the antimeridian,
// Y and Z do not.
type Coordinate struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

func New(x, y, z int) Coordinate {
	return Coordinate{X: x, Y: y, Z: z}
}

// Key returns the canonical "x/y/z" form.
func (c Coordinate) Key() string {
	var b strings.Builder
	b.Grow(16)
	b.WriteString(strconv.Itoa(c.X))
	b.WriteByte('/')
	b.WriteString(strconv.Itoa(c.Y))
	b.WriteByte('/')
	b.WriteString(strconv.Itoa(c.Z))
	return b.String()
}

func (c Coordinate) String() string {
	return c.Key()
}

// Valid reports whether y lies in [0, 2^z) for a non-negative z.
func (c Coordinate) Valid() bool {
	if c.Z < 0 || c.Z > 62 {
		return false
	}
	return c.Y >= 0 && c.Y < 1<<c.Z
}

// AtZoom returns the coordinate covering c at the given zoom. Going up the
// tree divides with rounding toward negative infinity, so wrapped negative
// x values stay in the right column.
func AtZoom(c Coordinate, zoom int) Coordinate {
	switch {
	case c.Z == zoom:
		return c
	case zoom < c.Z:
		shift := uint(c.Z - zoom)
		return Coordinate{X: c.X >> shift, Y: c.Y >> shift, Z: zoom}
	default:
		shift := uint(zoom - c.Z)
		return Coordinate{X: c.X << shift, Y: c.Y << shift, Z: zoom}
	}
}

// WithMaxZoom clamps c down to maxZoom when it is deeper than that.
func WithMaxZoom(c Coordinate, maxZoom int) Coordinate {
	if c.Z > maxZoom {
		return AtZoom(c, maxZoom)
	}
	return c
}

// IsDescendant reports whether candidate lies strictly below parent.
func IsDescendant(parent, candidate Coordinate) bool {
	if candidate.Z <= parent.Z {
		return false
	}
	a := AtZoom(candidate, parent.Z)
	return a.X == parent.X && a.Y == parent.Y
}

// TileKey builds the "source/styleZoom/x/y/z" key of the tile serving c for
// a source limited to maxZoom. ok is false for coordinates outside the
// pyramid, which callers cull rather than treat as errors.
func TileKey(c Coordinate, source string, maxZoom, styleZoom int) (key string, ok bool) {
	c = WithMaxZoom(c, maxZoom)
	if !c.Valid() {
		return "", false
	}
	return source + "/" + strconv.Itoa(styleZoom) + "/" + c.Key(), true
}

// ParseTileKey splits a key produced by TileKey.
func ParseTileKey(key string) (source string, styleZoom int, c Coordinate, ok bool) {
	parts := strings.Split(key, "/")
	if len(parts) < 5 {
		return "", 0, Coordinate{}, false
	}
	n := len(parts)
	nums := make([]int, 4)
	for i, p := range parts[n-4:] {
		v, err := strconv.Atoi(p)
		if err != nil {
			return "", 0, Coordinate{}, false
		}
		nums[i] = v
	}
	source = strings.Join(parts[:n-4], "/")
	return source, nums[0], Coordinate{X: nums[1], Y: nums[2], Z: nums[3]}, true
}

// Distance is the Manhattan distance in tile units between c and center,
// measured at center's zoom.
func Distance(c, center Coordinate) int {
	if c.Z != center.Z {
		c = AtZoom(c, center.Z)
	}
	return abs(center.X-c.X) + abs(center.Y-c.Y)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
