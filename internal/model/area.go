package model

import (
	"github.com/rotisserie/eris"
)

// ValidationError marks input that was rejected before any state was
// created. It is never retried.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Field + ": " + e.Msg
}

// AreaRequest is an ephemeral bounding box submitted by the user. It is
// validated and handed to discovery, never persisted.
type AreaRequest struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// Validate checks bounds ordering and coordinate ranges.
func (a AreaRequest) Validate() error {
	if a.North <= a.South {
		return &ValidationError{Field: "north", Msg: "must be greater than south"}
	}
	if a.East <= a.West {
		return &ValidationError{Field: "east", Msg: "must be greater than west"}
	}
	if a.North > 90 || a.South < -90 {
		return &ValidationError{Field: "latitude", Msg: "out of range [-90, 90]"}
	}
	if a.East > 180 || a.West < -180 {
		return &ValidationError{Field: "longitude", Msg: "out of range [-180, 180]"}
	}
	return nil
}

// ErrNotFound is returned by stores when a building does not exist.
var ErrNotFound = eris.New("building not found")
