// Package discovery finds candidate residential buildings inside a
// user-submitted bounding box. Sources are capability interfaces with
// swappable variants (mock generator, Overpass API) chosen at startup.
package discovery

import (
	"context"
	"iter"
	"strings"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Candidate is a raw building candidate produced by a source, before
// normalization and deduplication.
type Candidate struct {
	Name        string
	Address     string
	Type        string
	Coordinates *model.Coordinates
	Source      string
}

// Source discovers candidates within an area. Discover returns a lazy,
// finite sequence; the caller may stop consuming at any point. Failures
// are yielded in-stream so one bad page does not hide earlier results.
type Source interface {
	Name() string
	Discover(ctx context.Context, area model.AreaRequest) iter.Seq2[Candidate, error]
}

// residentialTypes are the candidate types the pipeline keeps. Everything
// else (commercial, hotel, unknown) is discarded before persistence.
var residentialTypes = map[string]bool{
	"residential_apartment": true,
	"apartment_complex":     true,
	"apartments":            true,
	"residential":           true,
	"condo":                 true,
	"coop":                  true,
}

// IsResidential reports whether a candidate type is in scope for outreach.
func IsResidential(t string) bool {
	return residentialTypes[strings.ToLower(strings.TrimSpace(t))]
}
