package coordinator

import "github.com/sells-group/outreach-cli/internal/model"

// Stage names one step of the outreach job.
type Stage string

const (
	StageContactResolution Stage = "contact_resolution"
	StageEmailSend         Stage = "email_send"
)

// Job is the in-memory record of one in-flight building. At most one
// job exists per identity key; the entry is destroyed when the run ends
// in a terminal state.
type Job struct {
	IdentityKey string
	Stage       Stage
	Attempt     int
	LastError   string
}

// JobStatus answers a status poll without touching the store.
type JobStatus struct {
	IdentityKey string              `json:"identity_key"`
	Active      bool                `json:"active"`
	Stage       Stage               `json:"stage,omitempty"`
	Attempt     int                 `json:"attempt,omitempty"`
	State       model.BuildingState `json:"state,omitempty"`
	LastError   string              `json:"last_error,omitempty"`
}

// BatchResult summarizes one ProcessAreas run.
type BatchResult struct {
	Areas                 int     `json:"areas"`
	Discovered            int     `json:"discovered"`
	Created               int     `json:"created"`
	Updated               int     `json:"updated"`
	SkippedUnparseable    int     `json:"skipped_unparseable"`
	SkippedNonResidential int     `json:"skipped_non_residential"`
	SkippedDuplicate      int     `json:"skipped_duplicate"`
	Errors                []error `json:"-"`
}

// SweepResult summarizes one reconciliation sweep. Skipped means a
// sweep was already running.
type SweepResult struct {
	Skipped        bool `json:"skipped"`
	ThreadsChecked int  `json:"threads_checked"`
	RepliesFound   int  `json:"replies_found"`
	Errors         int  `json:"errors"`
}
