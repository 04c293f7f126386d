// Package mail sends outreach email and polls threads for replies.
// Transports are swappable: a REST relay for production, a mock for
// tests and offline runs.
package mail

import (
	"context"
	"fmt"
	"iter"
	"time"
)

// Message is an outbound outreach email.
type Message struct {
	To      string
	ToName  string
	Subject string
	Body    string
}

// ReplyEvent is an inbound message observed on a tracked thread.
type ReplyEvent struct {
	ThreadID   string
	From       string
	Snippet    string
	ReceivedAt time.Time
}

// Transport delivers messages and reports thread activity. Send returns
// the provider thread id used later to correlate replies. ListReplies
// is lazy and yields failures in-stream so one bad thread does not hide
// the rest of the sweep.
type Transport interface {
	Name() string
	Send(ctx context.Context, msg Message) (threadID string, err error)
	ListReplies(ctx context.Context, threadIDs []string) iter.Seq2[ReplyEvent, error]
}

// TransportError is a delivery failure. Whether it is worth retrying is
// carried by the wrapped error's classification.
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("mail: %s transport: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
