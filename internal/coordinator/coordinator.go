// Package coordinator drives buildings through the outreach pipeline:
// discovery, approval, contact resolution, email send, and reply
// reconciliation. One live job per identity key; every state change is
// persisted before the next stage starts.
package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/outreach-cli/internal/address"
	"github.com/sells-group/outreach-cli/internal/contact"
	"github.com/sells-group/outreach-cli/internal/discovery"
	"github.com/sells-group/outreach-cli/internal/enrich"
	"github.com/sells-group/outreach-cli/internal/geo"
	"github.com/sells-group/outreach-cli/internal/mail"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/internal/store"
)

// Config tunes the coordinator.
type Config struct {
	// MaxConcurrentBuildings bounds both the discovery fan-out and the
	// outreach worker pool. Default: 5.
	MaxConcurrentBuildings int

	// StageTimeout caps one stage attempt. Default: 2m.
	StageTimeout time.Duration

	// Retry is the per-stage retry policy for transient failures.
	Retry resilience.RetryConfig
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrentBuildings <= 0 {
		c.MaxConcurrentBuildings = 5
	}
	if c.StageTimeout <= 0 {
		c.StageTimeout = 2 * time.Minute
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry = resilience.DefaultRetryConfig()
	}
	return c
}

// Deps are the coordinator's collaborators, all swappable for tests.
type Deps struct {
	Store     store.Store
	Discovery []discovery.Source
	Enrichers []enrich.Source
	Resolver  *contact.Resolver
	Transport mail.Transport
}

// Coordinator is safe for concurrent use.
type Coordinator struct {
	cfg      Config
	store    store.Store
	sources  []discovery.Source
	enrich   []enrich.Source
	resolver *contact.Resolver
	mail     mail.Transport
	breakers *resilience.Breakers

	mu   sync.Mutex
	jobs map[string]*Job
	last map[string]model.BuildingState

	sweepMu sync.Mutex

	sem    chan struct{}
	wg     sync.WaitGroup
	jobCtx context.Context
	cancel context.CancelFunc
}

// New creates a coordinator. Scheduled jobs outlive the request context
// that triggered them and stop on Shutdown.
func New(cfg Config, deps Deps) *Coordinator {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		cfg:      cfg,
		store:    deps.Store,
		sources:  deps.Discovery,
		enrich:   deps.Enrichers,
		resolver: deps.Resolver,
		mail:     deps.Transport,
		breakers: resilience.NewBreakers(resilience.CircuitConfig{ShouldTrip: resilience.IsTransient}),
		jobs:     make(map[string]*Job),
		last:     make(map[string]model.BuildingState),
		sem:      make(chan struct{}, cfg.MaxConcurrentBuildings),
		jobCtx:   ctx,
		cancel:   cancel,
	}
}

// Shutdown waits for in-flight jobs, cancelling them if ctx expires.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		c.cancel()
		return nil
	case <-ctx.Done():
		c.cancel()
		return eris.Wrap(ctx.Err(), "coordinator: shutdown")
	}
}

// ProcessAreas discovers, dedupes, and persists pending buildings for
// every requested area. Invalid areas are rejected up front before any
// state is created; failures inside one area never abort the others.
func (c *Coordinator) ProcessAreas(ctx context.Context, areas []model.AreaRequest) (*BatchResult, error) {
	for i, a := range areas {
		if err := a.Validate(); err != nil {
			return nil, eris.Wrapf(err, "coordinator: area %d", i)
		}
	}

	result := &BatchResult{Areas: len(areas)}
	var resultMu sync.Mutex

	// In-batch dedupe set, shared across areas. The store lookup below
	// handles keys persisted by earlier batches.
	seen := make(map[string]bool)
	var seenMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxConcurrentBuildings)
	for _, area := range areas {
		g.Go(func() error {
			if err := c.processArea(gctx, area, result, &resultMu, seen, &seenMu); err != nil {
				resultMu.Lock()
				result.Errors = append(result.Errors, err)
				resultMu.Unlock()
				zap.L().Error("coordinator: area failed", zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	zap.L().Info("coordinator: batch complete",
		zap.Int("areas", result.Areas),
		zap.Int("discovered", result.Discovered),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("skipped_unparseable", result.SkippedUnparseable),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}

func (c *Coordinator) processArea(ctx context.Context, area model.AreaRequest, result *BatchResult, resultMu *sync.Mutex, seen map[string]bool, seenMu *sync.Mutex) error {
	for _, src := range c.sources {
		for cand, err := range src.Discover(ctx, area) {
			if err != nil {
				return eris.Wrapf(err, "coordinator: %s discovery", src.Name())
			}

			resultMu.Lock()
			result.Discovered++
			resultMu.Unlock()

			outcome, err := c.admitCandidate(ctx, area, cand, seen, seenMu)
			if err != nil {
				return err
			}
			resultMu.Lock()
			switch outcome {
			case admitCreated:
				result.Created++
			case admitUpdated:
				result.Updated++
			case admitUnparseable:
				result.SkippedUnparseable++
			case admitNonResidential:
				result.SkippedNonResidential++
			case admitDuplicate:
				result.SkippedDuplicate++
			}
			resultMu.Unlock()
		}
	}
	return nil
}

type admitOutcome int

const (
	admitCreated admitOutcome = iota
	admitUpdated
	admitUnparseable
	admitNonResidential
	admitDuplicate
)

// admitCandidate normalizes, dedupes, filters, and persists one
// discovery candidate. Unparseable addresses are skipped without
// creating any state.
func (c *Coordinator) admitCandidate(ctx context.Context, area model.AreaRequest, cand discovery.Candidate, seen map[string]bool, seenMu *sync.Mutex) (admitOutcome, error) {
	key, err := address.Normalize(cand.Address)
	if err != nil {
		zap.L().Debug("coordinator: skipping unparseable address",
			zap.String("address", cand.Address), zap.Error(err))
		return admitUnparseable, nil
	}
	if !discovery.IsResidential(cand.Type) {
		return admitNonResidential, nil
	}

	seenMu.Lock()
	if seen[key] {
		seenMu.Unlock()
		return admitDuplicate, nil
	}
	seen[key] = true
	seenMu.Unlock()

	existing, err := c.store.GetBuildingByIdentityKey(ctx, key)
	switch {
	case err == nil:
		// Re-discovery: fill blanks, never regress state.
		if c.mergeCandidate(existing, cand) {
			if err := c.store.UpdateBuilding(ctx, existing); err != nil {
				return 0, eris.Wrapf(err, "coordinator: update %s", key)
			}
		}
		return admitUpdated, nil
	case errors.Is(err, model.ErrNotFound):
		// fall through to create
	default:
		return 0, eris.Wrapf(err, "coordinator: lookup %s", key)
	}

	b := &model.Building{
		ID:           uuid.New().String(),
		IdentityKey:  key,
		State:        model.StatePending,
		Address:      cand.Address,
		BuildingType: cand.Type,
		Coordinates:  cand.Coordinates,
	}
	if cand.Name != "" {
		b.Name = &cand.Name
	}
	if err := c.store.CreateBuilding(ctx, b); err != nil {
		return 0, eris.Wrapf(err, "coordinator: create %s", key)
	}
	c.cacheState(key, model.StatePending)

	fields := []zap.Field{
		zap.String("identity_key", key),
		zap.String("source", cand.Source),
	}
	if b.Coordinates != nil {
		fields = append(fields, zap.String("area_position", geo.Position(area, *b.Coordinates)))
	}
	zap.L().Debug("coordinator: building created", fields...)

	c.enrichBuilding(ctx, b)
	return admitCreated, nil
}

func (c *Coordinator) mergeCandidate(b *model.Building, cand discovery.Candidate) bool {
	p := enrich.Partial{Coordinates: cand.Coordinates}
	if cand.Name != "" {
		p.Name = &cand.Name
	}
	return enrich.Merge(b, p)
}

// enrichBuilding runs every enrichment source inline and persists any
// merged fields. Best-effort: failures leave the building pending with
// fields nil.
func (c *Coordinator) enrichBuilding(ctx context.Context, b *model.Building) {
	changed := false
	for _, src := range c.enrich {
		var p enrich.Partial
		err := c.breakers.Get(src.Name()).Execute(ctx, func(ctx context.Context) error {
			var innerErr error
			p, innerErr = src.Enrich(ctx, *b)
			return innerErr
		})
		if err != nil {
			zap.L().Warn("coordinator: enrichment failed",
				zap.String("source", src.Name()),
				zap.String("identity_key", b.IdentityKey),
				zap.Error(err),
			)
			continue
		}
		if enrich.Merge(b, p) {
			changed = true
		}
	}
	if !changed {
		return
	}
	if err := c.store.UpdateBuilding(ctx, b); err != nil {
		zap.L().Warn("coordinator: persist enrichment failed",
			zap.String("identity_key", b.IdentityKey), zap.Error(err))
	}
}

// Approve moves a pending building to approved and schedules its
// outreach job. Idempotent: approving an approved building only
// re-triggers scheduling, which the single-flight check collapses.
func (c *Coordinator) Approve(ctx context.Context, id string) (*model.Building, error) {
	b, err := c.store.GetBuilding(ctx, id)
	if err != nil {
		return nil, err
	}

	switch b.State {
	case model.StatePending:
		b.SetState(model.StateApproved)
		if err := c.store.UpdateBuilding(ctx, b); err != nil {
			return nil, err
		}
		c.cacheState(b.IdentityKey, b.State)
	case model.StateApproved:
		// already approved; scheduling below is the no-op path
	default:
		return b, nil
	}

	c.scheduleOutreach(b.IdentityKey, StageContactResolution)
	return b, nil
}

// Retry re-enters an errored building at the stage that failed,
// derived from how far the persisted record got.
func (c *Coordinator) Retry(ctx context.Context, id string) (*model.Building, error) {
	b, err := c.store.GetBuilding(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.State != model.StateErrored {
		return nil, &model.ValidationError{Field: "state",
			Msg: "retry requires state errored, have " + string(b.State)}
	}

	stage := StageContactResolution
	if b.Contact != nil && b.Contact.Email != "" {
		stage = StageEmailSend
	}
	c.scheduleOutreach(b.IdentityKey, stage)
	return b, nil
}

// Delete removes a building and abandons any in-flight job. A running
// stage observes the missing row on its next store access and exits.
func (c *Coordinator) Delete(ctx context.Context, id string) error {
	b, err := c.store.GetBuilding(ctx, id)
	if err != nil {
		return err
	}
	if err := c.store.DeleteBuilding(ctx, id); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.jobs, b.IdentityKey)
	delete(c.last, b.IdentityKey)
	c.mu.Unlock()
	return nil
}

// Status reports a building's pipeline position in O(1): the live job
// entry when one exists, otherwise the last state this coordinator
// persisted. It never touches the store.
func (c *Coordinator) Status(identityKey string) (JobStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := JobStatus{IdentityKey: identityKey, State: c.last[identityKey]}
	if job, ok := c.jobs[identityKey]; ok {
		st.Active = true
		st.Stage = job.Stage
		st.Attempt = job.Attempt
		st.LastError = job.LastError
		return st, true
	}
	return st, st.State != ""
}

// BreakerStates exposes circuit state per provider for observability.
func (c *Coordinator) BreakerStates() map[string]resilience.CircuitState {
	return c.breakers.States()
}

// tryStart is the single-flight gate: it registers a job for the key
// unless one is already live.
func (c *Coordinator) tryStart(key string, stage Stage) *Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.jobs[key]; exists {
		return nil
	}
	job := &Job{IdentityKey: key, Stage: stage}
	c.jobs[key] = job
	return job
}

// finish destroys the job entry and records the terminal state.
func (c *Coordinator) finish(key string, state model.BuildingState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.jobs, key)
	if state != "" {
		c.last[key] = state
	}
}

func (c *Coordinator) cacheState(key string, state model.BuildingState) {
	c.mu.Lock()
	c.last[key] = state
	c.mu.Unlock()
}

func (c *Coordinator) scheduleOutreach(key string, stage Stage) {
	job := c.tryStart(key, stage)
	if job == nil {
		zap.L().Debug("coordinator: job already live", zap.String("identity_key", key))
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		select {
		case c.sem <- struct{}{}:
		case <-c.jobCtx.Done():
			c.finish(key, "")
			return
		}
		defer func() { <-c.sem }()

		c.runOutreach(c.jobCtx, job, stage)
	}()
}
