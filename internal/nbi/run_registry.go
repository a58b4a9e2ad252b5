package nbi

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/signalsfoundry/manet-simulator/model"
)

var (
	// ErrRunNotFound is returned when no run has the requested ID.
	ErrRunNotFound = errors.New("run not found")
	// ErrRunExists is returned when a run ID is reused.
	ErrRunExists = errors.New("run already exists")
)

// RunStatus is the lifecycle state of a run held by the service.
type RunStatus string

const (
	RunRunning  RunStatus = "running"
	RunFinished RunStatus = "finished"
	RunFailed   RunStatus = "failed"
)

// RunInfo describes a run held by the service.
type RunInfo struct {
	ID         string
	Status     RunStatus
	Algorithm  string
	Nodes      int
	Delay      int
	Summary    model.RunSummary
	Err        string
	StartedAt  time.Time
	FinishedAt time.Time
}

// RunRegistry tracks runs in start order. It is safe for concurrent use.
type RunRegistry struct {
	mu    sync.RWMutex
	runs  map[string]*RunInfo
	order []string
}

// NewRunRegistry returns an empty registry.
func NewRunRegistry() *RunRegistry {
	return &RunRegistry{runs: make(map[string]*RunInfo)}
}

// Start registers a running run.
func (r *RunRegistry) Start(info RunInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[info.ID]; ok {
		return fmt.Errorf("%w: %s", ErrRunExists, info.ID)
	}
	info.Status = RunRunning
	r.runs[info.ID] = &info
	r.order = append(r.order, info.ID)
	return nil
}

// Finish records the outcome of a run. A non-nil err marks it failed.
func (r *RunRegistry) Finish(id string, sum model.RunSummary, err error, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.runs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	info.Summary = sum
	info.FinishedAt = at
	info.Status = RunFinished
	if err != nil {
		info.Status = RunFailed
		info.Err = err.Error()
	}
	return nil
}

// Get returns a copy of the run with the given ID.
func (r *RunRegistry) Get(id string) (RunInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.runs[id]
	if !ok {
		return RunInfo{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return *info, nil
}

// List returns copies of every run in start order.
func (r *RunRegistry) List() []RunInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RunInfo, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.runs[id])
	}
	return out
}

// Counts returns the number of running and completed runs.
func (r *RunRegistry) Counts() (active, finished int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, info := range r.runs {
		if info.Status == RunRunning {
			active++
		} else {
			finished++
		}
	}
	return active, finished
}
