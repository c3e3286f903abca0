package crawler

import (
	"context"
	"errors"
	"time"
)

// ErrRestartBudgetExhausted is returned once a run has faulted as many times
// as the policy allows.
var ErrRestartBudgetExhausted = errors.New("restart budget exhausted")

// RestartPolicy bounds whole-run restarts and spaces them by a fixed interval.
type RestartPolicy struct {
	MaxRestarts int
	Interval    time.Duration
}

// DefaultRestartPolicy matches the configuration defaults.
func DefaultRestartPolicy() RestartPolicy {
	return RestartPolicy{MaxRestarts: 3, Interval: time.Minute}
}

// ShouldRestart reports whether a pass that failed with err gets another
// one. restarts counts the faults so far, this one included.
func (p RestartPolicy) ShouldRestart(err error, restarts int) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	return restarts < p.MaxRestarts
}

// Backoff returns the pause before the next pass.
func (p RestartPolicy) Backoff() time.Duration {
	if p.Interval < 0 {
		return 0
	}
	return p.Interval
}
