package resilience

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsTransient_Classification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient wrapper", NewTransientError(errors.New("429"), 429), true},
		{"wrapped transient", fmt.Errorf("call provider: %w", NewTransientError(errors.New("503"), 503)), true},
		{"permanent", NewPermanentError(errors.New("no contact found")), false},
		{"permanent wrapping transient message", NewPermanentError(errors.New("i/o timeout while reading tombstone")), false},
		{"consistency", &ConsistencyError{Op: "start job", Key: "k"}, false},
		{"plain error", errors.New("bad request"), false},
		{"timeout message", errors.New("dial tcp: i/o timeout"), true},
		{"connection reset message", errors.New("read: connection reset by peer"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("expected %d transient", code)
		}
	}
	for _, code := range []int{200, 201, 400, 401, 403, 404, 422} {
		if IsTransientHTTPStatus(code) {
			t.Errorf("expected %d not transient", code)
		}
	}
}
