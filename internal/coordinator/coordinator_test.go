package coordinator

import (
	"context"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/contact"
	"github.com/sells-group/outreach-cli/internal/discovery"
	"github.com/sells-group/outreach-cli/internal/enrich"
	"github.com/sells-group/outreach-cli/internal/mail"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
)

var testArea = model.AreaRequest{North: 40.78, South: 40.77, East: -73.95, West: -73.97}

func mxOK(ctx context.Context, domain string) ([]*net.MX, error) {
	return []*net.MX{{Host: "mx." + domain}}, nil
}

type env struct {
	coord     *Coordinator
	store     store.Store
	transport *mail.MockTransport
}

// fastRetry keeps backoff out of test runtime.
func fastRetry() Config {
	cfg := Config{MaxConcurrentBuildings: 4, StageTimeout: 5 * time.Second}
	cfg.Retry.MaxAttempts = 3
	cfg.Retry.InitialBackoff = time.Millisecond
	cfg.Retry.MaxBackoff = 5 * time.Millisecond
	return cfg
}

func newEnv(t *testing.T, contactSources []contact.Source, transport *mail.MockTransport, discoverers ...discovery.Source) *env {
	t.Helper()

	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "outreach.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	resolver := contact.NewResolver(nil, contactSources).
		WithVerifier(contact.NewVerifier().WithLookupMX(mxOK))

	coord := New(fastRetry(), Deps{
		Store:     s,
		Discovery: discoverers,
		Resolver:  resolver,
		Transport: transport,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, coord.Shutdown(ctx))
	})

	return &env{coord: coord, store: s, transport: transport}
}

func registrySource(key, email string) contact.Source {
	return &contact.MockSource{SourceName: "registry", Findings: map[string]*contact.Finding{
		key: {Email: email, Name: "Jane Doe"},
	}}
}

func candidates(addrs ...string) []discovery.Candidate {
	out := make([]discovery.Candidate, len(addrs))
	for i, a := range addrs {
		out[i] = discovery.Candidate{Address: a, Type: "residential_apartment"}
	}
	return out
}

// waitState polls until the building reaches the wanted state.
func (e *env) waitState(t *testing.T, key string, want model.BuildingState) *model.Building {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		b, err := e.store.GetBuildingByIdentityKey(context.Background(), key)
		if err == nil && b.State == want {
			return b
		}
		time.Sleep(5 * time.Millisecond)
	}
	b, err := e.store.GetBuildingByIdentityKey(context.Background(), key)
	require.NoError(t, err)
	require.Equal(t, want, b.State, "timed out waiting for state")
	return b
}

func TestProcessAreas_CreatesPendingBuildings(t *testing.T) {
	e := newEnv(t, nil, &mail.MockTransport{},
		&discovery.MockSource{Candidates: candidates("123 Main St", "45 W 81st Ave")})

	res, err := e.coord.ProcessAreas(context.Background(), []model.AreaRequest{testArea})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Discovered)
	assert.Equal(t, 2, res.Created)
	assert.Empty(t, res.Errors)

	b, err := e.store.GetBuildingByIdentityKey(context.Background(), "123-main-street")
	require.NoError(t, err)
	assert.Equal(t, model.StatePending, b.State)
	assert.False(t, b.EmailSent)
}

func TestProcessAreas_RejectsInvalidAreaUpFront(t *testing.T) {
	src := &discovery.MockSource{Candidates: candidates("123 Main St")}
	e := newEnv(t, nil, &mail.MockTransport{}, src)

	bad := model.AreaRequest{North: 40.0, South: 41.0, East: -73.0, West: -74.0}
	_, err := e.coord.ProcessAreas(context.Background(), []model.AreaRequest{testArea, bad})
	require.Error(t, err)

	var ve *model.ValidationError
	require.ErrorAs(t, err, &ve)

	// Nothing persisted: the valid area must not have run either.
	all, err := e.store.ListBuildings(context.Background(), store.BuildingFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestProcessAreas_DedupAcrossVariantsAndReruns(t *testing.T) {
	src := &discovery.MockSource{Candidates: candidates(
		"123 Main St", "123 Main Street", "123 Main St Apt 4B")}
	e := newEnv(t, nil, &mail.MockTransport{}, src)

	res, err := e.coord.ProcessAreas(context.Background(), []model.AreaRequest{testArea})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 2, res.SkippedDuplicate)

	// Re-running the same area updates rather than duplicates.
	res, err = e.coord.ProcessAreas(context.Background(), []model.AreaRequest{testArea})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 1, res.Updated)

	all, err := e.store.ListBuildings(context.Background(), store.BuildingFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestProcessAreas_SkipsUnparseableAndNonResidential(t *testing.T) {
	src := &discovery.MockSource{Candidates: []discovery.Candidate{
		{Address: "123 Main St", Type: "residential_apartment"},
		{Address: "corner of 5th and Elm", Type: "residential_apartment"},
		{Address: "77 Broad St", Type: "hotel"},
	}}
	e := newEnv(t, nil, &mail.MockTransport{}, src)

	res, err := e.coord.ProcessAreas(context.Background(), []model.AreaRequest{testArea})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.SkippedUnparseable)
	assert.Equal(t, 1, res.SkippedNonResidential)

	all, err := e.store.ListBuildings(context.Background(), store.BuildingFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestProcessAreas_EnrichmentIsBestEffort(t *testing.T) {
	units := 24
	e := newEnv(t, nil, &mail.MockTransport{},
		&discovery.MockSource{Candidates: candidates("123 Main St")})
	e.coord.enrich = []enrich.Source{
		&enrich.StaticSource{SourceName: "broken", Err: assert.AnError},
		&enrich.StaticSource{SourceName: "fixture", Result: enrich.Partial{Units: &units}},
	}

	_, err := e.coord.ProcessAreas(context.Background(), []model.AreaRequest{testArea})
	require.NoError(t, err)

	b, err := e.store.GetBuildingByIdentityKey(context.Background(), "123-main-street")
	require.NoError(t, err)
	assert.Equal(t, model.StatePending, b.State)
	require.NotNil(t, b.Units)
	assert.Equal(t, 24, *b.Units)
}

func TestApprove_HappyPathToEmailSent(t *testing.T) {
	e := newEnv(t,
		[]contact.Source{registrySource("123-main-street", "jane@acmemgmt.example")},
		&mail.MockTransport{},
		&discovery.MockSource{Candidates: candidates("123 Main St")})

	_, err := e.coord.ProcessAreas(context.Background(), []model.AreaRequest{testArea})
	require.NoError(t, err)

	pending, err := e.store.GetBuildingByIdentityKey(context.Background(), "123-main-street")
	require.NoError(t, err)

	approved, err := e.coord.Approve(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateApproved, approved.State)

	b := e.waitState(t, "123-main-street", model.StateEmailSent)
	assert.True(t, b.EmailSent)
	assert.False(t, b.ReplyReceived)
	require.NotNil(t, b.Contact)
	assert.Equal(t, "jane@acmemgmt.example", b.Contact.Email)
	assert.GreaterOrEqual(t, b.Contact.Confidence, 0.0)
	assert.LessOrEqual(t, b.Contact.Confidence, 1.0)

	sent := e.transport.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "jane@acmemgmt.example", sent[0].To)

	logs, err := e.store.ListEmailLogs(context.Background(), "123-main-street")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.DeliverySent, logs[0].DeliveryStatus)
	assert.NotEmpty(t, logs[0].ThreadID)

	// Terminal for now: the job entry is gone, status falls back to state.
	st, ok := e.coord.Status("123-main-street")
	assert.True(t, ok)
	assert.False(t, st.Active)
	assert.Equal(t, model.StateEmailSent, st.State)
}

func TestApprove_ConcurrentDoubleApproveSendsOneEmail(t *testing.T) {
	e := newEnv(t,
		[]contact.Source{registrySource("123-main-street", "jane@acmemgmt.example")},
		&mail.MockTransport{},
		&discovery.MockSource{Candidates: candidates("123 Main St")})

	_, err := e.coord.ProcessAreas(context.Background(), []model.AreaRequest{testArea})
	require.NoError(t, err)
	b, err := e.store.GetBuildingByIdentityKey(context.Background(), "123-main-street")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.coord.Approve(context.Background(), b.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	e.waitState(t, "123-main-street", model.StateEmailSent)
	require.NoError(t, e.coord.Shutdown(context.Background()))

	assert.Len(t, e.transport.Sent(), 1)
	logs, err := e.store.ListEmailLogs(context.Background(), "123-main-street")
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestApprove_NoContactEndsContactFailed(t *testing.T) {
	e := newEnv(t,
		[]contact.Source{&contact.MockSource{SourceName: "registry"}},
		&mail.MockTransport{},
		&discovery.MockSource{Candidates: candidates("123 Main St")})

	_, err := e.coord.ProcessAreas(context.Background(), []model.AreaRequest{testArea})
	require.NoError(t, err)
	pending, err := e.store.GetBuildingByIdentityKey(context.Background(), "123-main-street")
	require.NoError(t, err)

	_, err = e.coord.Approve(context.Background(), pending.ID)
	require.NoError(t, err)

	b := e.waitState(t, "123-main-street", model.StateContactFailed)
	assert.Nil(t, b.Contact)
	assert.False(t, b.EmailSent)
	assert.NotEmpty(t, b.LastError)

	// No email activity at all.
	assert.Empty(t, e.transport.Sent())
	logs, err := e.store.ListEmailLogs(context.Background(), "123-main-street")
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestApprove_TransportExhaustionEndsErrored(t *testing.T) {
	transport := &mail.MockTransport{FailFirst: 99}
	e := newEnv(t,
		[]contact.Source{registrySource("123-main-street", "jane@acmemgmt.example")},
		transport,
		&discovery.MockSource{Candidates: candidates("123 Main St")})

	_, err := e.coord.ProcessAreas(context.Background(), []model.AreaRequest{testArea})
	require.NoError(t, err)
	pending, err := e.store.GetBuildingByIdentityKey(context.Background(), "123-main-street")
	require.NoError(t, err)

	_, err = e.coord.Approve(context.Background(), pending.ID)
	require.NoError(t, err)

	b := e.waitState(t, "123-main-street", model.StateErrored)
	assert.False(t, b.EmailSent)
	assert.NotEmpty(t, b.LastError)
	require.NotNil(t, b.Contact) // contact resolution succeeded and is kept

	logs, err := e.store.ListEmailLogs(context.Background(), "123-main-street")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.DeliveryFailed, logs[0].DeliveryStatus)
}

func TestRetry_ResumesSendStageAfterErrored(t *testing.T) {
	transport := &mail.MockTransport{FailFirst: 99}
	e := newEnv(t,
		[]contact.Source{registrySource("123-main-street", "jane@acmemgmt.example")},
		transport,
		&discovery.MockSource{Candidates: candidates("123 Main St")})

	_, err := e.coord.ProcessAreas(context.Background(), []model.AreaRequest{testArea})
	require.NoError(t, err)
	pending, err := e.store.GetBuildingByIdentityKey(context.Background(), "123-main-street")
	require.NoError(t, err)

	_, err = e.coord.Approve(context.Background(), pending.ID)
	require.NoError(t, err)
	errored := e.waitState(t, "123-main-street", model.StateErrored)

	// Transport recovers; manual retry resumes at the send stage.
	transport.SetFailFirst(0)
	_, err = e.coord.Retry(context.Background(), errored.ID)
	require.NoError(t, err)

	b := e.waitState(t, "123-main-street", model.StateEmailSent)
	assert.True(t, b.EmailSent)
	assert.Empty(t, b.LastError)
	assert.Len(t, e.transport.Sent(), 1)
}

func TestRetry_RequiresErroredState(t *testing.T) {
	e := newEnv(t, nil, &mail.MockTransport{},
		&discovery.MockSource{Candidates: candidates("123 Main St")})

	_, err := e.coord.ProcessAreas(context.Background(), []model.AreaRequest{testArea})
	require.NoError(t, err)
	b, err := e.store.GetBuildingByIdentityKey(context.Background(), "123-main-street")
	require.NoError(t, err)

	_, err = e.coord.Retry(context.Background(), b.ID)
	var ve *model.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestDelete_AbandonsJobSafely(t *testing.T) {
	e := newEnv(t, nil, &mail.MockTransport{},
		&discovery.MockSource{Candidates: candidates("123 Main St")})

	_, err := e.coord.ProcessAreas(context.Background(), []model.AreaRequest{testArea})
	require.NoError(t, err)
	b, err := e.store.GetBuildingByIdentityKey(context.Background(), "123-main-street")
	require.NoError(t, err)

	require.NoError(t, e.coord.Delete(context.Background(), b.ID))

	_, err = e.store.GetBuilding(context.Background(), b.ID)
	require.ErrorIs(t, err, model.ErrNotFound)

	_, ok := e.coord.Status("123-main-street")
	assert.False(t, ok)
}

func TestStatus_UnknownKey(t *testing.T) {
	e := newEnv(t, nil, &mail.MockTransport{})
	st, ok := e.coord.Status("never-seen")
	assert.False(t, ok)
	assert.False(t, st.Active)
}
