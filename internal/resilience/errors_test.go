package resilience

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
)

func TestIsTransient_ExplicitTransientError(t *testing.T) {
	err := NewTransientError(errors.New("server overloaded"), 503)
	if !IsTransient(err) {
		t.Error("expected TransientError to be transient")
	}
}

func TestIsTransient_WrappedTransientError(t *testing.T) {
	inner := NewTransientError(errors.New("rate limited"), 429)
	wrapped := fmt.Errorf("api call failed: %w", inner)
	if !IsTransient(wrapped) {
		t.Error("expected wrapped TransientError to be transient")
	}
}

func TestIsTransient_NilAndPlainErrors(t *testing.T) {
	if IsTransient(nil) {
		t.Error("nil error should not be transient")
	}
	if IsTransient(errors.New("invalid input: missing field")) {
		t.Error("regular error should not be transient")
	}
}

func TestIsTransient_SyscallErrors(t *testing.T) {
	for _, errno := range []error{syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ECONNABORTED} {
		if !IsTransient(fmt.Errorf("dial tcp: %w", errno)) {
			t.Errorf("%v should be transient", errno)
		}
	}
}

func TestIsTransient_MessageHeuristics(t *testing.T) {
	if !IsTransient(errors.New("read tcp 10.0.0.1: i/o timeout")) {
		t.Error("i/o timeout should be transient")
	}
}

func TestIsTransient_PersistenceKinds(t *testing.T) {
	cases := map[PersistenceKind]bool{
		PersistenceConflict:    true,
		PersistenceUnavailable: true,
		PersistencePermanent:   false,
	}
	for kind, want := range cases {
		err := &PersistenceError{Kind: kind, Op: "put", Err: errors.New("x")}
		if got := IsTransient(err); got != want {
			t.Errorf("kind %d: expected %v, got %v", kind, want, got)
		}
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504, 520} {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("%d should be transient", code)
		}
	}
	for _, code := range []int{200, 400, 401, 402, 403, 404, 422} {
		if IsTransientHTTPStatus(code) {
			t.Errorf("%d should not be transient", code)
		}
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindNone},
		{"transient", NewTransientError(errors.New("x"), 503), KindFetchTransient},
		{"conflict", &PersistenceError{Kind: PersistenceConflict, Op: "put", Err: errors.New("x")}, KindPersistenceConflict},
		{"unavailable", fmt.Errorf("wrap: %w", &PersistenceError{Kind: PersistenceUnavailable, Op: "get", Err: errors.New("x")}), KindPersistenceUnavailable},
		{"canceled", context.Canceled, KindCanceled},
		{"econnreset", fmt.Errorf("x: %w", syscall.ECONNRESET), KindFetchTransient},
		{"unknown", errors.New("weird"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestErrorKind_JobLevel(t *testing.T) {
	if !KindFetchQuotaExceeded.JobLevel() || !KindPersistenceUnavailable.JobLevel() {
		t.Error("quota and unavailable must be job-level")
	}
	if KindFetchTransient.JobLevel() || KindParseStructural.JobLevel() || KindPersistenceConflict.JobLevel() {
		t.Error("item-level kinds must not escalate")
	}
}
