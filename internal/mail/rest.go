package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"iter"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/outreach-cli/internal/resilience"
)

// RESTTransport talks to the mail relay's JSON API. The relay owns the
// actual SMTP/Gmail integration; this client only sends messages and
// reads thread activity.
type RESTTransport struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

// RESTOption configures a RESTTransport.
type RESTOption func(*RESTTransport)

// WithRESTHTTPClient overrides the HTTP client.
func WithRESTHTTPClient(c *http.Client) RESTOption {
	return func(t *RESTTransport) { t.client = c }
}

// NewREST creates a relay-backed transport.
func NewREST(baseURL, apiKey string, opts ...RESTOption) *RESTTransport {
	t := &RESTTransport{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 20 * time.Second},
		limiter: rate.NewLimiter(rate.Every(time.Second), 2),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *RESTTransport) Name() string { return "rest-relay" }

type sendRequest struct {
	To      string `json:"to"`
	ToName  string `json:"to_name,omitempty"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type sendResponse struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id"`
}

// Send posts the message to the relay and returns the thread id the
// relay assigned.
func (t *RESTTransport) Send(ctx context.Context, msg Message) (string, error) {
	payload, err := json.Marshal(sendRequest{To: msg.To, ToName: msg.ToName, Subject: msg.Subject, Body: msg.Body})
	if err != nil {
		return "", eris.Wrap(err, "mail: marshal send request")
	}

	var resp sendResponse
	if err := t.do(ctx, http.MethodPost, "/v1/messages", bytes.NewReader(payload), &resp); err != nil {
		return "", err
	}
	if resp.ThreadID == "" {
		return "", &TransportError{Provider: t.Name(), Err: eris.New("relay returned no thread id")}
	}
	return resp.ThreadID, nil
}

type threadResponse struct {
	Messages []struct {
		From       string    `json:"from"`
		Snippet    string    `json:"snippet"`
		Direction  string    `json:"direction"`
		ReceivedAt time.Time `json:"received_at"`
	} `json:"messages"`
}

// ListReplies fetches each tracked thread and yields its inbound
// messages. The fetches happen lazily as the sequence is pulled.
func (t *RESTTransport) ListReplies(ctx context.Context, threadIDs []string) iter.Seq2[ReplyEvent, error] {
	return func(yield func(ReplyEvent, error) bool) {
		for _, id := range threadIDs {
			if ctx.Err() != nil {
				return
			}

			var resp threadResponse
			if err := t.do(ctx, http.MethodGet, "/v1/threads/"+id, nil, &resp); err != nil {
				if !yield(ReplyEvent{}, err) {
					return
				}
				continue
			}

			for _, m := range resp.Messages {
				if m.Direction != "inbound" {
					continue
				}
				ev := ReplyEvent{ThreadID: id, From: m.From, Snippet: m.Snippet, ReceivedAt: m.ReceivedAt}
				if !yield(ev, nil) {
					return
				}
			}
		}
	}
}

func (t *RESTTransport) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "mail: rate limit wait")
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, body)
	if err != nil {
		return eris.Wrapf(err, "mail: build %s %s", method, path)
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return &TransportError{Provider: t.Name(), Err: resilience.NewTransientError(err, 0)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		inner := eris.Errorf("status %d: %s", resp.StatusCode, string(raw))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return &TransportError{Provider: t.Name(), Err: resilience.NewTransientError(inner, resp.StatusCode)}
		}
		return &TransportError{Provider: t.Name(), Err: inner}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return eris.Wrap(err, "mail: decode response")
	}
	return nil
}
