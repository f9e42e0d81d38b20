package errors_test

import (
	"context"
	stdErrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/netforge/protoperf/pkg/errors"
)

func TestControlErrorWrapping(t *testing.T) {
	cause := fmt.Errorf("netlink: operation not permitted")
	err := errors.ErrControlPlane("apply impairment profile", cause)

	if !stdErrors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
	if !strings.Contains(err.Error(), "CONTROL_PLANE") {
		t.Errorf("Error() = %q, want to contain the code", err.Error())
	}
	if !strings.Contains(err.Error(), cause.Error()) {
		t.Errorf("Error() = %q, want to contain the cause", err.Error())
	}
}

func TestAbortThresholdCarriesCode(t *testing.T) {
	err := errors.ErrAbortThreshold("h3: 6 of 10 requests failed, ratio above 0.50")

	if !strings.Contains(err.Error(), "ABORT_THRESHOLD") {
		t.Errorf("Error() = %q, want to contain the code", err.Error())
	}
	// Not a run-terminating class: the phase degrades instead.
	if errors.IsFatal(err) || errors.IsControlPlane(err) {
		t.Errorf("abort threshold matched a terminating predicate: %v", err)
	}
}

func TestCodePredicates(t *testing.T) {
	tests := []struct {
		name string
		err  error
		pred func(error) bool
		want bool
	}{
		{"configuration", errors.ErrConfiguration("bad profile", nil), errors.IsConfiguration, true},
		{"control plane", errors.ErrControlPlane("apply", nil), errors.IsControlPlane, true},
		{"fatal", errors.ErrFatal("unreachable", nil), errors.IsFatal, true},
		{"wrapped fatal", fmt.Errorf("run: %w", errors.ErrFatal("unreachable", nil)), errors.IsFatal, true},
		{"wrong code", errors.ErrConfiguration("bad profile", nil), errors.IsFatal, false},
		{"plain error", fmt.Errorf("boom"), errors.IsControlPlane, false},
		{"nil", nil, errors.IsFatal, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pred(tt.err); got != tt.want {
				t.Errorf("predicate(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsContextError(t *testing.T) {
	if !errors.IsContextError(context.Canceled) {
		t.Error("IsContextError(context.Canceled) = false")
	}
	if !errors.IsContextError(fmt.Errorf("sample: %w", context.DeadlineExceeded)) {
		t.Error("IsContextError(wrapped deadline) = false")
	}
	if errors.IsContextError(fmt.Errorf("boom")) {
		t.Error("IsContextError(plain error) = true")
	}
}
