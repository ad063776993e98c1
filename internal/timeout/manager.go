// Package timeout wraps asynchronous operations with cancellable deadlines.
//
// Operations are registered under a caller-chosen id. Starting a new operation
// with an id that is already in flight cancels the previous one, so a stale
// request can never outlive the request that superseded it.
package timeout

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Deadline tiers. Probes and discovery use the short tier, single-page
// fetches the medium tier, exhaustive aggregate fetches the long tier.
const (
	ProbeDeadline     = 5 * time.Second
	PageDeadline      = 12 * time.Second
	AggregateDeadline = 45 * time.Second
)

// ErrTimedOut marks a deadline expiry. Callers treat it exactly like a
// network failure when recording circuit breaker outcomes.
var ErrTimedOut = errors.New("operation timed out")

// ErrSuperseded is returned to an operation whose id was reused by a newer
// operation before it completed.
var ErrSuperseded = errors.New("operation superseded")

type operation struct {
	cancel context.CancelCauseFunc
	gen    uint64
}

type Manager struct {
	mu  sync.Mutex
	ops map[string]*operation
	gen uint64
}

func NewManager() *Manager {
	return &Manager{ops: make(map[string]*operation)}
}

// Run executes fn under the given deadline, registered as operationID.
// A prior in-flight operation with the same id is cancelled first.
// Returns ErrTimedOut when the deadline fires, ErrSuperseded when a newer
// operation reused the id, and fn's error otherwise.
func (m *Manager) Run(ctx context.Context, operationID string, deadline time.Duration, fn func(context.Context) error) error {
	runCtx, cancel := context.WithCancelCause(ctx)
	timeoutCtx, stopTimer := context.WithTimeoutCause(runCtx, deadline, ErrTimedOut)

	m.mu.Lock()
	if prev, ok := m.ops[operationID]; ok {
		prev.cancel(ErrSuperseded)
	}
	m.gen++
	op := &operation{cancel: cancel, gen: m.gen}
	m.ops[operationID] = op
	m.mu.Unlock()

	err := fn(timeoutCtx)
	cause := context.Cause(timeoutCtx)

	stopTimer()
	cancel(nil)

	m.mu.Lock()
	if current, ok := m.ops[operationID]; ok && current.gen == op.gen {
		delete(m.ops, operationID)
	}
	m.mu.Unlock()

	if err == nil {
		return nil
	}
	if cause != nil && (errors.Is(cause, ErrTimedOut) || errors.Is(cause, ErrSuperseded)) {
		return cause
	}
	return err
}

// Cancel aborts the in-flight operation with the given id, if any.
func (m *Manager) Cancel(operationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if op, ok := m.ops[operationID]; ok {
		op.cancel(ErrSuperseded)
		delete(m.ops, operationID)
	}
}

// CancelAll aborts every outstanding operation. Used on global cache flush.
func (m *Manager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, op := range m.ops {
		op.cancel(ErrSuperseded)
		delete(m.ops, id)
	}
}

// Active reports the number of in-flight operations.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ops)
}

// IsCancellation reports whether err is a supersede or context cancellation,
// which the orchestrator swallows instead of surfacing.
func IsCancellation(err error) bool {
	return errors.Is(err, ErrSuperseded) || errors.Is(err, context.Canceled)
}
