// Package enrich augments buildings with secondary metadata. Enrichment is
// best-effort: a failed or empty result leaves fields nil and never blocks
// the building's progression through the pipeline.
package enrich

import (
	"context"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Partial is the field set one source contributes. Nil means the source
// has nothing to say about that field, which is distinct from a known
// empty value.
type Partial struct {
	Name              *string
	PropertyManager   *string
	ManagementCompany *string
	Units             *int
	YearBuilt         *int
	SquareFootage     *int
	Stories           *int
	Neighborhood      *string
	Amenities         []string
	LaundryType       *string
	PetPolicy         *string
	BuildingStyle     *string
	Recent2BRRent     *int
	RentRange2BR      *string
	RentalNotes       *string

	StandardizedAddress string
	Coordinates         *model.Coordinates
}

// Source produces a partial field set for a building snapshot.
type Source interface {
	Name() string
	Enrich(ctx context.Context, b model.Building) (Partial, error)
}

// Merge applies a partial onto a building. Non-null beats null: a field
// already set on the building is never overwritten and never downgraded
// to nil, so applying the same partial twice is a no-op. Returns whether
// anything changed.
func Merge(b *model.Building, p Partial) bool {
	changed := false

	setStr := func(dst **string, src *string) {
		if *dst == nil && src != nil {
			*dst = src
			changed = true
		}
	}
	setInt := func(dst **int, src *int) {
		if *dst == nil && src != nil {
			*dst = src
			changed = true
		}
	}

	setStr(&b.Name, p.Name)
	setStr(&b.PropertyManager, p.PropertyManager)
	setStr(&b.ManagementCompany, p.ManagementCompany)
	setInt(&b.Units, p.Units)
	setInt(&b.YearBuilt, p.YearBuilt)
	setInt(&b.SquareFootage, p.SquareFootage)
	setInt(&b.Stories, p.Stories)
	setStr(&b.Neighborhood, p.Neighborhood)
	setStr(&b.LaundryType, p.LaundryType)
	setStr(&b.PetPolicy, p.PetPolicy)
	setStr(&b.BuildingStyle, p.BuildingStyle)
	setInt(&b.Recent2BRRent, p.Recent2BRRent)
	setStr(&b.RentRange2BR, p.RentRange2BR)
	setStr(&b.RentalNotes, p.RentalNotes)

	if len(b.Amenities) == 0 && len(p.Amenities) > 0 {
		b.Amenities = p.Amenities
		changed = true
	}
	if b.StandardizedAddress == "" && p.StandardizedAddress != "" {
		b.StandardizedAddress = p.StandardizedAddress
		changed = true
	}
	if b.Coordinates == nil && p.Coordinates != nil {
		b.Coordinates = p.Coordinates
		changed = true
	}

	return changed
}

// StaticSource returns a fixed partial for every building. Used in tests
// and as the offline default.
type StaticSource struct {
	SourceName string
	Result     Partial
	Err        error
}

func (s *StaticSource) Name() string {
	if s.SourceName == "" {
		return "static"
	}
	return s.SourceName
}

func (s *StaticSource) Enrich(ctx context.Context, _ model.Building) (Partial, error) {
	if s.Err != nil {
		return Partial{}, s.Err
	}
	return s.Result, nil
}
