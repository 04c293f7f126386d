package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/outreach-cli/internal/model"
)

var classifyArea = model.AreaRequest{North: 40.78, South: 40.77, East: -73.95, West: -73.97}

func TestPosition(t *testing.T) {
	tests := []struct {
		name     string
		coords   model.Coordinates
		expected string
	}{
		{
			name:     "area center is core",
			coords:   model.Coordinates{Lat: 40.775, Lng: -73.96},
			expected: PositionCore,
		},
		{
			name:     "near center is core",
			coords:   model.Coordinates{Lat: 40.7752, Lng: -73.961},
			expected: PositionCore,
		},
		{
			name:     "inside corner is edge",
			coords:   model.Coordinates{Lat: 40.7799, Lng: -73.9501},
			expected: PositionEdge,
		},
		{
			name:     "just past the northern bound is outside",
			coords:   model.Coordinates{Lat: 40.7801, Lng: -73.96},
			expected: PositionOutside,
		},
		{
			name:     "far away is outside",
			coords:   model.Coordinates{Lat: 41.5, Lng: -72.0},
			expected: PositionOutside,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Position(classifyArea, tt.coords))
		})
	}
}

func TestDistanceMeters(t *testing.T) {
	// One degree of latitude is roughly 111km.
	d := DistanceMeters(
		model.Coordinates{Lat: 40.0, Lng: -73.0},
		model.Coordinates{Lat: 41.0, Lng: -73.0},
	)
	assert.InDelta(t, 111000, d, 500)

	assert.Zero(t, DistanceMeters(
		model.Coordinates{Lat: 40.775, Lng: -73.96},
		model.Coordinates{Lat: 40.775, Lng: -73.96},
	))
}
