package geo

import "github.com/sells-group/outreach-cli/internal/model"

// Position of coordinates relative to a submitted area.
const (
	PositionCore    = "core"    // inside the area, within half the area radius of its center
	PositionEdge    = "edge"    // inside the area, beyond half the radius
	PositionOutside = "outside" // beyond the area bounds
)

const coreRadiusFraction = 0.5

// Position classifies where coordinates sit relative to an area.
// Discovery drops outside positions: Overpass returns ways that merely
// intersect the bbox, so a centroid can land past the requested bounds.
func Position(a model.AreaRequest, c model.Coordinates) string {
	if !Contains(a, c) {
		return PositionOutside
	}
	if DistanceMeters(Center(a), c) <= coreRadiusFraction*RadiusMeters(a) {
		return PositionCore
	}
	return PositionEdge
}
