// Package monitoring builds point-in-time health snapshots of the
// outreach pipeline and raises webhook alerts on threshold breaches.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
)

// MetricsSnapshot holds a point-in-time view of pipeline health.
type MetricsSnapshot struct {
	BuildingsTotal int `json:"buildings_total"`

	Pending          int `json:"pending"`
	Approved         int `json:"approved"`
	ContactResolving int `json:"contact_resolving"`
	ContactFound     int `json:"contact_found"`
	ContactFailed    int `json:"contact_failed"`
	EmailSent        int `json:"email_sent"`
	ReplyReceived    int `json:"reply_received"`
	Errored          int `json:"errored"`

	AwaitingReply int     `json:"awaiting_reply"`
	ReplyRate     float64 `json:"reply_rate"`
	ErrorRate     float64 `json:"error_rate"`

	CollectedAt time.Time `json:"collected_at"`
}

// Collector gathers metrics from the store.
type Collector struct {
	store store.Store
}

// NewCollector creates a metrics collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot of pipeline state.
func (c *Collector) Collect(ctx context.Context) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{CollectedAt: time.Now().UTC()}

	counts, err := c.store.CountByState(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count by state")
	}
	snap.Pending = counts[model.StatePending]
	snap.Approved = counts[model.StateApproved]
	snap.ContactResolving = counts[model.StateContactResolving]
	snap.ContactFound = counts[model.StateContactFound]
	snap.ContactFailed = counts[model.StateContactFailed]
	snap.EmailSent = counts[model.StateEmailSent]
	snap.ReplyReceived = counts[model.StateReplyReceived]
	snap.Errored = counts[model.StateErrored]
	for _, n := range counts {
		snap.BuildingsTotal += n
	}

	awaiting, err := c.store.ListEmailLogsAwaitingReply(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list awaiting reply")
	}
	snap.AwaitingReply = len(awaiting)

	if emailed := snap.EmailSent + snap.ReplyReceived; emailed > 0 {
		snap.ReplyRate = float64(snap.ReplyReceived) / float64(emailed)
	}
	if snap.BuildingsTotal > 0 {
		snap.ErrorRate = float64(snap.Errored) / float64(snap.BuildingsTotal)
	}

	return snap, nil
}
