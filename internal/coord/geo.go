package coord

import "math"

const (
	// TileSize is the pixel size of a tile at its native zoom.
	TileSize = 256
	// TileScale is the number of internal units across a tile.
	TileScale = 4096
	// HalfCircumferenceMeters is half the web mercator world width.
	HalfCircumferenceMeters = 20037508.342789244
	// UnitsPerPixel converts pixels to tile units at native zoom.
	UnitsPerPixel = float64(TileScale) / TileSize
)

// Point is a position in web mercator meters.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// MetersForTile returns the north-west corner of c in mercator meters.
// Wrapped x values simply continue past the antimeridian.
func MetersForTile(c Coordinate) Point {
	span := HalfCircumferenceMeters * 2 / math.Exp2(float64(c.Z))
	return Point{
		X: float64(c.X)*span - HalfCircumferenceMeters,
		Y: -(float64(c.Y)*span - HalfCircumferenceMeters),
	}
}

func MetersPerPixel(z int) float64 {
	return HalfCircumferenceMeters * 2 / (TileSize * math.Exp2(float64(z)))
}

func MetersPerTile(z int) float64 {
	return HalfCircumferenceMeters * 2 / math.Exp2(float64(z))
}

func UnitsPerMeter(z int) float64 {
	return TileScale / MetersPerTile(z)
}
