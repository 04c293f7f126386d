package model

import (
	"time"
)

// BuildingState represents where a building sits in the outreach pipeline.
type BuildingState string

const (
	StatePending          BuildingState = "pending"
	StateApproved         BuildingState = "approved"
	StateContactResolving BuildingState = "contact_resolving"
	StateContactFound     BuildingState = "contact_found"
	StateContactFailed    BuildingState = "contact_failed"
	StateEmailSent        BuildingState = "email_sent"
	StateReplyReceived    BuildingState = "reply_received"
	StateErrored          BuildingState = "errored"
)

// stateRank orders the forward progression of states. StateErrored is an
// escape hatch reachable from any in-flight state and is not ranked.
var stateRank = map[BuildingState]int{
	StatePending:          0,
	StateApproved:         1,
	StateContactResolving: 2,
	StateContactFound:     3,
	StateContactFailed:    3,
	StateEmailSent:        4,
	StateReplyReceived:    5,
}

// Terminal reports whether the state ends the pipeline for a building
// absent an external retry.
func (s BuildingState) Terminal() bool {
	switch s {
	case StateContactFailed, StateReplyReceived, StateErrored:
		return true
	}
	return false
}

// CanAdvance reports whether moving from s to next respects the monotonic
// forward ordering. Transitions into StateErrored are always allowed;
// transitions out of StateErrored are handled by the manual retry path.
func (s BuildingState) CanAdvance(next BuildingState) bool {
	if next == StateErrored {
		return true
	}
	from, ok := stateRank[s]
	if !ok {
		return false
	}
	to, ok := stateRank[next]
	if !ok {
		return false
	}
	return to > from || s == next
}

// Contact holds a resolved property-manager contact for a building.
// Confidence is only ever set together with a non-empty Email.
type Contact struct {
	Email             string   `json:"email"`
	Name              string   `json:"name,omitempty"`
	Phone             string   `json:"phone,omitempty"`
	Source            string   `json:"source"`
	Confidence        float64  `json:"confidence"`
	Verified          bool     `json:"verified"`
	VerificationNotes string   `json:"verification_notes,omitempty"`
	VerificationFlags []string `json:"verification_flags,omitempty"`
}

// Coordinates is an optional lat/lng pair for a building.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Building is the central persistent entity of the outreach pipeline.
// Enrichment fields are pointers: nil means "not yet enriched", which is
// distinct from a known empty value.
type Building struct {
	ID                  string        `json:"id"`
	IdentityKey         string        `json:"identity_key"`
	State               BuildingState `json:"state"`
	Address             string        `json:"address"`
	StandardizedAddress string        `json:"standardized_address,omitempty"`
	BuildingType        string        `json:"building_type"`
	Coordinates         *Coordinates  `json:"coordinates,omitempty"`

	// Enrichment metadata, each independently nullable.
	Name              *string  `json:"name,omitempty"`
	PropertyManager   *string  `json:"property_manager,omitempty"`
	ManagementCompany *string  `json:"management_company,omitempty"`
	Units             *int     `json:"units,omitempty"`
	YearBuilt         *int     `json:"year_built,omitempty"`
	SquareFootage     *int     `json:"square_footage,omitempty"`
	Stories           *int     `json:"stories,omitempty"`
	Neighborhood      *string  `json:"neighborhood,omitempty"`
	Amenities         []string `json:"amenities,omitempty"`
	LaundryType       *string  `json:"laundry_type,omitempty"`
	PetPolicy         *string  `json:"pet_policy,omitempty"`
	BuildingStyle     *string  `json:"building_style,omitempty"`
	Recent2BRRent     *int     `json:"recent_2br_rent,omitempty"`
	RentRange2BR      *string  `json:"rent_range_2br,omitempty"`
	RentalNotes       *string  `json:"rental_notes,omitempty"`

	Contact *Contact `json:"contact,omitempty"`

	EmailSent     bool   `json:"email_sent"`
	ReplyReceived bool   `json:"reply_received"`
	LastError     string `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SetState advances the building's state and keeps the derived booleans
// consistent (email_sent ⇔ state is email_sent or reply_received).
func (b *Building) SetState(next BuildingState) {
	b.State = next
	switch next {
	case StateEmailSent:
		b.EmailSent = true
	case StateReplyReceived:
		b.EmailSent = true
		b.ReplyReceived = true
	}
}
