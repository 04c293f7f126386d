// Package contact resolves an outreach email for an approved building by
// cascading through lookup sources in trust order. The winner is the
// highest-trust email found; agreement from additional sources bumps
// confidence, disagreement does not veto.
package contact

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
)

// ErrNoContact means every source in the cascade came up empty. Retrying
// will not help, so it is classified permanent.
var ErrNoContact = resilience.NewPermanentError(eris.New("contact: no contact found"))

// Finding is one source's answer for a building.
type Finding struct {
	Email string
	Name  string
	Phone string
}

// Source looks up contact details for a building. A nil finding with a
// nil error means the source has no answer; errors are reserved for
// lookup failures.
type Source interface {
	Name() string
	Lookup(ctx context.Context, b model.Building) (*Finding, error)
}

// Resolver runs the cascade.
type Resolver struct {
	cfg      *Config
	sources  []Source
	verifier *Verifier
}

// NewResolver creates a resolver over the given sources. Sources not
// named in the config carry zero trust and only ever corroborate.
func NewResolver(cfg *Config, sources []Source) *Resolver {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Resolver{cfg: cfg, sources: sources, verifier: NewVerifier()}
}

// WithVerifier overrides the deliverability checker (used by tests).
func (r *Resolver) WithVerifier(v *Verifier) *Resolver {
	r.verifier = v
	return r
}

// Resolve queries every source and scores the best email. Source
// failures are logged and skipped; only a fully empty cascade returns
// ErrNoContact. Transient lookup errors surface as-is when no source
// produced anything, so the caller's retry policy can kick in.
func (r *Resolver) Resolve(ctx context.Context, b model.Building) (*model.Contact, error) {
	type attempt struct {
		finding *Finding
		source  string
		trust   float64
	}
	var attempts []attempt
	var lastErr error

	for _, src := range r.sources {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		f, err := src.Lookup(ctx, b)
		if err != nil {
			zap.L().Warn("contact: source lookup failed",
				zap.String("source", src.Name()),
				zap.String("identity_key", b.IdentityKey),
				zap.Error(err),
			)
			lastErr = err
			continue
		}
		if f == nil || f.Email == "" {
			continue
		}
		attempts = append(attempts, attempt{finding: f, source: src.Name(), trust: r.cfg.Trust(src.Name())})
	}

	if len(attempts) == 0 {
		if lastErr != nil && resilience.IsTransient(lastErr) {
			return nil, lastErr
		}
		return nil, ErrNoContact
	}

	best := attempts[0]
	for _, a := range attempts[1:] {
		if a.trust > best.trust {
			best = a
		}
	}

	corroborating := 0
	for _, a := range attempts {
		if a.source != best.source && strings.EqualFold(a.finding.Email, best.finding.Email) {
			corroborating++
		}
	}

	contact := &model.Contact{
		Email:      strings.ToLower(best.finding.Email),
		Name:       best.finding.Name,
		Phone:      best.finding.Phone,
		Source:     best.source,
		Confidence: clamp01(best.trust + float64(corroborating)*r.cfg.CorroborationBonus),
	}
	r.verifier.Verify(ctx, contact)

	zap.L().Info("contact: resolved",
		zap.String("identity_key", b.IdentityKey),
		zap.String("source", contact.Source),
		zap.Float64("confidence", contact.Confidence),
		zap.Strings("flags", contact.VerificationFlags),
	)
	return contact, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
