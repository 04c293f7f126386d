package contact

import (
	"context"

	"github.com/sells-group/outreach-cli/internal/model"
)

// MockSource answers from a fixed map keyed by identity key. Used in
// tests and offline mode.
type MockSource struct {
	SourceName string
	Findings   map[string]*Finding
	Err        error
}

func (m *MockSource) Name() string { return m.SourceName }

func (m *MockSource) Lookup(ctx context.Context, b model.Building) (*Finding, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Findings[b.IdentityKey], nil
}
