package discovery

import (
	"context"
	"iter"

	"github.com/sells-group/outreach-cli/internal/geo"
	"github.com/sells-group/outreach-cli/internal/model"
)

// MockSource serves a fixed candidate list, filtered to the requested
// area when candidates carry coordinates. Used in tests and offline mode.
type MockSource struct {
	Candidates []Candidate
	Err        error // yielded after any candidates, for failure-path tests
}

func (m *MockSource) Name() string { return "mock" }

func (m *MockSource) Discover(ctx context.Context, area model.AreaRequest) iter.Seq2[Candidate, error] {
	return func(yield func(Candidate, error) bool) {
		for _, c := range m.Candidates {
			if ctx.Err() != nil {
				return
			}
			if c.Coordinates != nil && !geo.Contains(area, *c.Coordinates) {
				continue
			}
			c.Source = m.Name()
			if !yield(c, nil) {
				return
			}
		}
		if m.Err != nil {
			yield(Candidate{}, m.Err)
		}
	}
}
