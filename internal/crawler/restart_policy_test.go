package crawler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRestartPolicyShouldRestart(t *testing.T) {
	t.Parallel()
	p := RestartPolicy{MaxRestarts: 3, Interval: time.Second}
	boom := errors.New("boom")

	tests := []struct {
		name     string
		err      error
		restarts int
		want     bool
	}{
		{name: "nil error", err: nil, restarts: 1, want: false},
		{name: "first fault", err: boom, restarts: 1, want: true},
		{name: "below budget", err: boom, restarts: 2, want: true},
		{name: "budget reached", err: boom, restarts: 3, want: false},
		{name: "canceled", err: fmt.Errorf("walk: %w", context.Canceled), restarts: 1, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.ShouldRestart(tt.err, tt.restarts))
		})
	}
}

func TestRestartPolicyBackoff(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 2*time.Minute, RestartPolicy{Interval: 2 * time.Minute}.Backoff())
	assert.Zero(t, RestartPolicy{Interval: -time.Second}.Backoff())
	assert.Equal(t, time.Minute, DefaultRestartPolicy().Backoff())
}
