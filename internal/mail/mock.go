package mail

import (
	"context"
	"fmt"
	"iter"
	"sync"
)

// MockTransport records sent messages in memory and serves canned
// replies. Safe for concurrent use.
type MockTransport struct {
	mu      sync.Mutex
	sent    []Message
	threads int

	// SendErr fails every Send when set. FailFirst fails only the first
	// n sends, for retry-path tests.
	SendErr   error
	FailFirst int

	// Replies is keyed by thread id.
	Replies map[string][]ReplyEvent
	// ListErr is yielded after any replies.
	ListErr error
}

func (m *MockTransport) Name() string { return "mock" }

func (m *MockTransport) Send(ctx context.Context, msg Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SendErr != nil {
		return "", m.SendErr
	}
	if m.FailFirst > 0 {
		m.FailFirst--
		return "", &TransportError{Provider: m.Name(), Err: fmt.Errorf("connection reset by peer")}
	}

	m.threads++
	m.sent = append(m.sent, msg)
	return fmt.Sprintf("thread-%d", m.threads), nil
}

func (m *MockTransport) ListReplies(ctx context.Context, threadIDs []string) iter.Seq2[ReplyEvent, error] {
	return func(yield func(ReplyEvent, error) bool) {
		m.mu.Lock()
		replies := m.Replies
		listErr := m.ListErr
		m.mu.Unlock()

		for _, id := range threadIDs {
			for _, ev := range replies[id] {
				if !yield(ev, nil) {
					return
				}
			}
		}
		if listErr != nil {
			yield(ReplyEvent{}, listErr)
		}
	}
}

// SetFailFirst rearms or clears the failure budget.
func (m *MockTransport) SetFailFirst(n int) {
	m.mu.Lock()
	m.FailFirst = n
	m.mu.Unlock()
}

// Sent returns a copy of everything delivered so far.
func (m *MockTransport) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.sent))
	copy(out, m.sent)
	return out
}
