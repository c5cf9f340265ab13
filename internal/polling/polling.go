// Package polling implements the shared movement-completion loop used by
// Polling-HTTP family bindings (component C6): issue a "begin move"
// request, then watch position samples until they settle within
// tolerance, stop changing ("stuck"), or are cancelled.
package polling

import (
	"context"
	"time"

	"github.com/virtualbrainlab/ephys-link/internal/coord"
)

// Reason records why a poll loop stopped.
type Reason int

const (
	Reached Reason = iota
	Stuck
	Cancelled
)

// Params configures one run of the loop. PollInterval and UnchangedLimit
// are binding-defined; Tolerance comes from the binding's
// GetMovementTolerance.
type Params struct {
	PollInterval   time.Duration
	UnchangedLimit int
	Tolerance      float64
}

// Sample reads the current value of whatever axis set is being watched.
type Sample func(ctx context.Context) (coord.Vec4, error)

// closeFn reports whether a and b are within tolerance over the axes being
// watched (for example X/Y/Z for a set_position, W only for set_depth).
type closeFn func(a, b coord.Vec4, tol float64) bool

// Run executes the gated polling loop described for the movement engine:
// it polls sample until current is within tolerance of target, until
// unchanged_counter reaches UnchangedLimit, or until ctx is cancelled.
func Run(ctx context.Context, target coord.Vec4, sample Sample, close_ closeFn, p Params) (coord.Vec4, Reason, error) {
	current, err := sample(ctx)
	if err != nil {
		return current, Stuck, err
	}
	prev := current
	unchanged := 0

	for {
		if ctx.Err() != nil {
			return current, Cancelled, nil
		}
		if close_(current, target, p.Tolerance) {
			return current, Reached, nil
		}
		if unchanged >= p.UnchangedLimit {
			return current, Stuck, nil
		}

		select {
		case <-ctx.Done():
			return current, Cancelled, nil
		case <-time.After(p.PollInterval):
		}

		next, err := sample(ctx)
		if err != nil {
			return current, Stuck, err
		}
		if close_(prev, next, p.Tolerance) {
			unchanged++
		} else {
			unchanged = 0
			prev = next
		}
		current = next
	}
}

// CloseAllAxes is a closeFn over all four axes: each must be within
// tolerance.
func CloseAllAxes(a, b coord.Vec4, tol float64) bool {
	return coord.CloseAxes(a, b, tol)
}

// CloseDepthAxis is the Close function for set_depth: only W matters.
func CloseDepthAxis(a, b coord.Vec4, tol float64) bool {
	return coord.CloseAxes(a, b, tol, 3)
}
