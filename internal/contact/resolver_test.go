package contact

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
)

var testBuilding = model.Building{IdentityKey: "123-main-street", Address: "123 Main St"}

func mxOK(ctx context.Context, domain string) ([]*net.MX, error) {
	return []*net.MX{{Host: "mx." + domain}}, nil
}

func mxMissing(ctx context.Context, domain string) ([]*net.MX, error) {
	return nil, errors.New("no such host")
}

func newTestResolver(cfg *Config, sources ...Source) *Resolver {
	return NewResolver(cfg, sources).WithVerifier(NewVerifier().WithLookupMX(mxOK))
}

func TestResolver_HighestTrustWins(t *testing.T) {
	r := newTestResolver(nil,
		&MockSource{SourceName: "pattern", Findings: map[string]*Finding{
			"123-main-street": {Email: "leasing@mainst.example"},
		}},
		&MockSource{SourceName: "registry", Findings: map[string]*Finding{
			"123-main-street": {Email: "jane@acmemgmt.example", Name: "Jane Doe"},
		}},
	)

	c, err := r.Resolve(context.Background(), testBuilding)
	require.NoError(t, err)
	assert.Equal(t, "jane@acmemgmt.example", c.Email)
	assert.Equal(t, "registry", c.Source)
	assert.Equal(t, "Jane Doe", c.Name)
	assert.InDelta(t, 0.9, c.Confidence, 1e-9)
}

func TestResolver_CorroborationRaisesConfidence(t *testing.T) {
	r := newTestResolver(nil,
		&MockSource{SourceName: "registry", Findings: map[string]*Finding{
			"123-main-street": {Email: "Jane@AcmeMgmt.example"},
		}},
		&MockSource{SourceName: "listing", Findings: map[string]*Finding{
			"123-main-street": {Email: "jane@acmemgmt.example"},
		}},
	)

	c, err := r.Resolve(context.Background(), testBuilding)
	require.NoError(t, err)
	assert.Equal(t, "jane@acmemgmt.example", c.Email)
	assert.InDelta(t, 1.0, c.Confidence, 1e-9) // 0.9 + 0.1 bonus, clamped at 1
}

func TestResolver_ConfidenceClamped(t *testing.T) {
	cfg := &Config{
		Sources: []SourceConfig{
			{Name: "a", Trust: 0.95},
			{Name: "b", Trust: 0.5},
			{Name: "c", Trust: 0.5},
		},
		CorroborationBonus: 0.2,
	}
	f := map[string]*Finding{"123-main-street": {Email: "x@y.example"}}
	r := newTestResolver(cfg,
		&MockSource{SourceName: "a", Findings: f},
		&MockSource{SourceName: "b", Findings: f},
		&MockSource{SourceName: "c", Findings: f},
	)

	c, err := r.Resolve(context.Background(), testBuilding)
	require.NoError(t, err)
	assert.LessOrEqual(t, c.Confidence, 1.0)
	assert.Equal(t, 1.0, c.Confidence)
}

func TestResolver_EmptyCascadeIsPermanent(t *testing.T) {
	r := newTestResolver(nil,
		&MockSource{SourceName: "registry"},
		&MockSource{SourceName: "listing"},
	)

	_, err := r.Resolve(context.Background(), testBuilding)
	require.ErrorIs(t, err, ErrNoContact)
	assert.True(t, resilience.IsPermanent(err))
	assert.False(t, resilience.IsTransient(err))
}

func TestResolver_TransientLookupFailureSurfaces(t *testing.T) {
	r := newTestResolver(nil,
		&MockSource{SourceName: "registry",
			Err: resilience.NewTransientError(eris.New("registry timeout"), 504)},
	)

	_, err := r.Resolve(context.Background(), testBuilding)
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestResolver_FailedSourceSkipped(t *testing.T) {
	r := newTestResolver(nil,
		&MockSource{SourceName: "registry", Err: errors.New("scraper broke")},
		&MockSource{SourceName: "listing", Findings: map[string]*Finding{
			"123-main-street": {Email: "office@mainst.example"},
		}},
	)

	c, err := r.Resolve(context.Background(), testBuilding)
	require.NoError(t, err)
	assert.Equal(t, "office@mainst.example", c.Email)
	assert.Equal(t, "listing", c.Source)
}

func TestVerifier_Flags(t *testing.T) {
	tests := []struct {
		email    string
		mx       func(context.Context, string) ([]*net.MX, error)
		flags    []string
		verified bool
	}{
		{"jane@acmemgmt.example", mxOK, nil, true},
		{"info@mainst.example", mxOK, []string{FlagGenericInbox}, false},
		{"jane@gmail.com", mxOK, []string{FlagFreeMailDomain}, false},
		{"jane@dead.example", mxMissing, []string{FlagNoMXRecord}, false},
		{"info@gmail.com", mxMissing,
			[]string{FlagGenericInbox, FlagFreeMailDomain, FlagNoMXRecord}, false},
	}
	for _, tt := range tests {
		c := &model.Contact{Email: tt.email}
		NewVerifier().WithLookupMX(tt.mx).Verify(context.Background(), c)
		assert.Equal(t, tt.flags, c.VerificationFlags, tt.email)
		assert.Equal(t, tt.verified, c.Verified, tt.email)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contact.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
contact:
  corroboration_bonus: 0.05
  sources:
    - name: registry
      trust: 0.85
    - name: pattern
      trust: 0.3
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.05, cfg.CorroborationBonus, 1e-9)
	assert.InDelta(t, 0.85, cfg.Trust("registry"), 1e-9)
	assert.Zero(t, cfg.Trust("unknown"))
}

func TestLoadConfig_EmptyFallsBackToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contact.yaml")
	require.NoError(t, os.WriteFile(path, []byte("contact: {}\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Sources, cfg.Sources)
	assert.InDelta(t, 0.1, cfg.CorroborationBonus, 1e-9)
}
