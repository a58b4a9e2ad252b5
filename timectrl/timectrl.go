// Package timectrl drives the discrete step loop of a simulation.
package timectrl

import (
	"context"
	"errors"
)

// ErrNoTermination is returned when a loop has neither a time bound nor a
// stopping condition and would therefore never end.
var ErrNoTermination = errors.New("no termination bound: set until time, timeout, or a stopping condition")

// Policy bounds a step loop. A nil UntilTime or Timeout is unset.
//
// UntilTime is a minimum run length: the stopping condition is only
// honoured from step UntilTime on. Without a condition the loop simply ends
// after step UntilTime. Timeout always ends the loop after step Timeout.
type Policy struct {
	UntilTime *int
	Timeout   *int
	Condition func() bool
}

// Bounded reports whether the policy can terminate.
func (p Policy) Bounded() bool {
	return p.UntilTime != nil || p.Timeout != nil || p.Condition != nil
}

// Steps returns a pointer to v, for populating Policy bounds.
func Steps(v int) *int { return &v }

// StepController runs a step function under a Policy and notifies
// listeners after every step.
type StepController struct {
	Policy Policy

	listeners []func(int)
	current   int
}

// NewStepController validates the policy and constructs a controller.
func NewStepController(p Policy) (*StepController, error) {
	if !p.Bounded() {
		return nil, ErrNoTermination
	}
	return &StepController{Policy: p, current: -1}, nil
}

// AddListener registers a callback invoked after each step.
func (sc *StepController) AddListener(fn func(int)) {
	sc.listeners = append(sc.listeners, fn)
}

// Current returns the last step run, or -1 before the first.
func (sc *StepController) Current() int { return sc.current }

// Continue reports whether a step numbered next may run.
func (sc *StepController) Continue(next int) bool {
	p := sc.Policy
	if p.Timeout != nil && next > *p.Timeout {
		return false
	}
	if p.Condition == nil && p.UntilTime != nil && next > *p.UntilTime {
		return false
	}
	return true
}

// Satisfied reports whether the stopping condition ends the loop after
// step t.
func (sc *StepController) Satisfied(t int) bool {
	p := sc.Policy
	if p.Condition == nil {
		return false
	}
	if p.UntilTime != nil && t < *p.UntilTime {
		return false
	}
	return p.Condition()
}

// Run executes step for t = 0, 1, ... until the policy ends the loop, step
// fails, or ctx is cancelled between steps. It returns the last step run.
func (sc *StepController) Run(ctx context.Context, step func(t int) error) (int, error) {
	return sc.RunFrom(ctx, 0, step)
}

// RunFrom is Run resuming at step start, for loops that were stepped by
// hand before.
func (sc *StepController) RunFrom(ctx context.Context, start int, step func(t int) error) (int, error) {
	if start > 0 && !sc.Continue(start) {
		return sc.current, nil
	}
	for t := start; ; t++ {
		if err := ctx.Err(); err != nil {
			return sc.current, err
		}
		if err := step(t); err != nil {
			return sc.current, err
		}
		sc.current = t
		for _, fn := range sc.listeners {
			fn(t)
		}
		if sc.Satisfied(t) || !sc.Continue(t+1) {
			return t, nil
		}
	}
}
