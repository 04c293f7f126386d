// Package geo provides bounding-box math for area submissions.
package geo

import (
	"math"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/outreach-cli/internal/model"
)

const earthRadiusM = 6371000.0

// Bounds converts an area request into a go-geom bounding box
// (x = longitude, y = latitude).
func Bounds(a model.AreaRequest) *geom.Bounds {
	return geom.NewBounds(geom.XY).Set(a.West, a.South, a.East, a.North)
}

// Center returns the midpoint of the area.
func Center(a model.AreaRequest) model.Coordinates {
	return model.Coordinates{
		Lat: (a.North + a.South) / 2,
		Lng: (a.East + a.West) / 2,
	}
}

// RadiusMeters approximates half the diagonal of the area in meters,
// suitable as a search radius for point-radius provider APIs.
func RadiusMeters(a model.AreaRequest) float64 {
	lat1 := a.South * math.Pi / 180
	lat2 := a.North * math.Pi / 180
	dLat := lat2 - lat1
	dLng := (a.East - a.West) * math.Pi / 180

	dy := earthRadiusM * dLat
	dx := earthRadiusM * math.Cos(lat1) * dLng
	return math.Sqrt(dx*dx+dy*dy) / 2
}

// DistanceMeters approximates the distance between two coordinates
// using an equirectangular projection, accurate at area scale.
func DistanceMeters(a, b model.Coordinates) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dy := earthRadiusM * (lat2 - lat1)
	dx := earthRadiusM * math.Cos((lat1+lat2)/2) * (b.Lng - a.Lng) * math.Pi / 180
	return math.Sqrt(dx*dx + dy*dy)
}

// Contains reports whether the coordinates fall inside the area.
func Contains(a model.AreaRequest, c model.Coordinates) bool {
	return Bounds(a).OverlapsPoint(geom.XY, geom.Coord{c.Lng, c.Lat})
}
