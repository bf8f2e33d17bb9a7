// Package jobmgr runs named asynchronous jobs with at most one instance per
// name, status callbacks, and in-memory tracking of running jobs.
//
// Typical usage:
//
//	jm := jobmgr.NewManager(ctx, func(msg string) {
//	    log.Println("JOB:", msg)
//	})
//
//	err := jm.StartAsync("timeout:42", func(ctx context.Context) error {
//	    // do work until ctx is cancelled
//	    return nil
//	})
//	if errors.Is(err, jobmgr.ErrRunning) {
//	    // a previous instance is still in flight
//	}
//
//	jm.Wait() // drain on shutdown
//
// The package is intentionally minimal: no retry logic, no workers, no persistence.
// Jobs run in separate goroutines and are automatically removed on completion.
package jobmgr

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

var (
	// ErrRunning is returned by StartAsync when a job with the same name is in flight.
	ErrRunning = errors.New("job already running")
	// ErrNotRunning is returned by Stop for unknown names.
	ErrNotRunning = errors.New("job not running")
)

// Job represents a running unit of work.
// Jobs are added and removed by Manager automatically.
type Job struct {
	Name   string
	Cancel context.CancelFunc
}

// StatusReporter receives lifecycle events for jobs.
// Example messages:
//
//	running:timeout:42
//	error:timeout:42:save session: disk full
//	done:timeout:42
type StatusReporter func(string)

// Manager orchestrates starting, stopping and tracking jobs.
// It is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	jobs     map[string]*Job
	wg       sync.WaitGroup
	base     context.Context
	Reporter StatusReporter
}

// NewManager creates a new Manager whose jobs derive their context from ctx.
// The reporter callback may be nil.
func NewManager(ctx context.Context, reporter StatusReporter) *Manager {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Manager{
		jobs:     make(map[string]*Job),
		base:     ctx,
		Reporter: reporter,
	}
}

// StartAsync runs a job in a separate goroutine and returns immediately.
// If a job with the same name is already running, ErrRunning is returned.
// Jobs are removed automatically after completion (success, failure or panic).
func (m *Manager) StartAsync(name string, runner func(ctx context.Context) error) error {
	m.mu.Lock()
	if _, exists := m.jobs[name]; exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrRunning, name)
	}
	ctx, cancel := context.WithCancel(m.base)
	job := &Job{Name: name, Cancel: cancel}
	m.jobs[name] = job
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		defer func() {
			cancel()
			m.mu.Lock()
			if m.jobs[name] == job {
				delete(m.jobs, name)
			}
			m.mu.Unlock()
		}()

		m.report("running:" + name)
		if err := m.run(ctx, runner); err != nil {
			m.report("error:" + name + ":" + err.Error())
			return
		}
		m.report("done:" + name)
	}()

	return nil
}

func (m *Manager) run(ctx context.Context, runner func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return runner(ctx)
}

// Stop cancels a running job by name.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRunning, name)
	}

	job.Cancel()
	delete(m.jobs, name)
	return nil
}

// Running reports whether a job with the given name is in flight.
func (m *Manager) Running(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.jobs[name]
	return ok
}

// List returns the sorted list of active job names.
func (m *Manager) List() []string {
	m.mu.Lock()
	out := make([]string, 0, len(m.jobs))
	for k := range m.jobs {
		out = append(out, k)
	}
	m.mu.Unlock()
	slices.Sort(out)
	return out
}

// Status returns a human-readable summary of active jobs.
// Example:
//
//	"Running jobs: thought:42, timeout:7"
//
// If none are running: "No jobs are running."
func (m *Manager) Status() string {
	active := m.List()
	if len(active) == 0 {
		return "No jobs are running."
	}
	return fmt.Sprintf("Running jobs: %s", strings.Join(active, ", "))
}

// Wait blocks until every started job has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// report delivers lifecycle messages to the reporter if present.
func (m *Manager) report(s string) {
	if m.Reporter != nil {
		m.Reporter(s)
	}
}
