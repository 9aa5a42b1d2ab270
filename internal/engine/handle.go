// Package engine manages the lifecycle of the embedded execution engines.
//
// Each engine sits behind a Handle that bootstraps it lazily on first use.
// Concurrent first uses share a single bootstrap and a failed bootstrap is
// sticky for the lifetime of the handle.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// State is the lifecycle state of a Handle.
type State int32

// Handle lifecycle states.
const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ErrFailed is returned by Acquire once a bootstrap has failed.
var ErrFailed = errors.New("engine failed to initialize")

// BootstrapFunc creates the engine instance.
type BootstrapFunc[T any] func(ctx context.Context) (T, error)

// BootstrapObserver is notified once per bootstrap attempt.
type BootstrapObserver func(name string, elapsed time.Duration, err error)

// Option configures a Handle.
type Option[T any] func(*Handle[T])

// WithLogger sets the logger used for lifecycle events.
func WithLogger[T any](logger *slog.Logger) Option[T] {
	return func(h *Handle[T]) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithObserver registers a bootstrap observer.
func WithObserver[T any](obs BootstrapObserver) Option[T] {
	return func(h *Handle[T]) {
		h.observer = obs
	}
}

// WithCloser sets the function used to release a ready engine on Close.
func WithCloser[T any](closer func(T) error) Option[T] {
	return func(h *Handle[T]) {
		h.closer = closer
	}
}

// Handle lazily bootstraps and owns a single engine instance.
type Handle[T any] struct {
	name      string
	bootstrap BootstrapFunc[T]
	logger    *slog.Logger
	observer  BootstrapObserver
	closer    func(T) error

	group singleflight.Group

	mu      sync.RWMutex
	state   State
	value   T
	err     error
	elapsed time.Duration
}

// NewHandle creates a handle in the uninitialized state. Nothing is started
// until the first Acquire.
func NewHandle[T any](name string, bootstrap BootstrapFunc[T], opts ...Option[T]) *Handle[T] {
	h := &Handle[T]{
		name:      name,
		bootstrap: bootstrap,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Name returns the engine name.
func (h *Handle[T]) Name() string {
	return h.name
}

// State returns the current lifecycle state.
func (h *Handle[T]) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// BootstrapDuration returns how long the bootstrap took. Zero until it finished.
func (h *Handle[T]) BootstrapDuration() time.Duration {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.elapsed
}

// Acquire returns the ready engine, bootstrapping it if needed.
// Callers arriving while a bootstrap is in flight wait for that same attempt.
func (h *Handle[T]) Acquire(ctx context.Context) (T, error) {
	if v, err, done := h.settled(); done {
		return v, err
	}

	ch := h.group.DoChan(h.name, func() (any, error) {
		return h.start(ctx)
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

func (h *Handle[T]) settled() (T, error, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var zero T
	switch h.state {
	case StateReady:
		return h.value, nil, true
	case StateFailed:
		return zero, h.failure(), true
	default:
		return zero, nil, false
	}
}

func (h *Handle[T]) failure() error {
	return fmt.Errorf("%w: %s: %w", ErrFailed, h.name, h.err)
}

func (h *Handle[T]) start(ctx context.Context) (any, error) {
	h.mu.Lock()
	switch h.state {
	case StateReady:
		v := h.value
		h.mu.Unlock()
		return v, nil
	case StateFailed:
		err := h.failure()
		h.mu.Unlock()
		return nil, err
	}
	h.state = StateInitializing
	h.mu.Unlock()

	h.logger.Debug("bootstrapping engine", slog.String("engine", h.name))

	// The bootstrap is shared by every waiter, so one caller giving up
	// must not poison it for the rest.
	start := time.Now()
	v, err := h.bootstrap(context.WithoutCancel(ctx))
	elapsed := time.Since(start)

	h.mu.Lock()
	h.elapsed = elapsed
	if err != nil {
		h.state = StateFailed
		h.err = err
		failure := h.failure()
		h.mu.Unlock()

		h.logger.Error("engine bootstrap failed",
			slog.String("engine", h.name),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()))
		h.notify(elapsed, err)
		return nil, failure
	}
	h.state = StateReady
	h.value = v
	h.mu.Unlock()

	h.logger.Info("engine ready",
		slog.String("engine", h.name),
		slog.Duration("elapsed", elapsed))
	h.notify(elapsed, nil)
	return v, nil
}

func (h *Handle[T]) notify(elapsed time.Duration, err error) {
	if h.observer != nil {
		h.observer(h.name, elapsed, err)
	}
}

// Close releases a ready engine. The handle cannot be reused afterwards.
func (h *Handle[T]) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != StateReady {
		return nil
	}
	h.state = StateFailed
	h.err = errors.New("closed")

	var zero T
	v := h.value
	h.value = zero
	if h.closer != nil {
		return h.closer(v)
	}
	return nil
}
