package worldmap

import "math"

// Viewpoint is a named standing position inside a room.
type Viewpoint struct {
	Name string  `json:"name"`
	X    float64 `json:"x"`
	Z    float64 `json:"z"`
}

// Distance is the planar distance between two viewpoints.
func Distance(a, b Viewpoint) float64 {
	dx := a.X - b.X
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dz*dz)
}

// Detection is one entity reported by the feature extractor for a frame.
type Detection struct {
	Label string  `json:"label"`
	Area  float64 `json:"area"`
}
