// Package engine implements the reconciliation loop that drives a local
// filesystem and a remote cozy toward agreement through a durable
// metadata store: reading the change feed, classifying each change,
// applying it through the Side contract, and advancing the cursor only
// once the application (and revision bookkeeping) has succeeded.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cozysync/engine/internal/meta"
	"github.com/cozysync/engine/internal/side"
	"github.com/cozysync/engine/internal/store"
)

// Mode selects which watchers Start brings up.
type Mode int

const (
	ModeFull Mode = iota
	ModePull
	ModePush
)

// Watcher is the lifecycle contract for the external local/remote
// watchers (internal/watch); the engine only needs to start and stop
// them, never to see their events directly — those flow into the store.
type Watcher interface {
	Start(ctx context.Context) error
	Stop() error
}

// IgnoreFunc reports whether a record should never reach a side; a match
// advances the cursor without applying anything.
type IgnoreFunc func(doc *meta.Record) bool

const defaultRemoteHeartbeat = 2 * time.Second

// Engine ties a store and both sides together and runs the
// reconciliation loop described in the package doc.
type Engine struct {
	store  *store.Store
	local  side.Side
	remote side.Side
	ignore IgnoreFunc

	localWatcher  Watcher
	remoteWatcher Watcher

	remoteHeartbeat      time.Duration
	trashingDelay        time.Duration
	offlineProbeInterval time.Duration
	liveWait             bool

	events chan Event
	subMu  sync.Mutex
	subs   []chan Event

	mu      sync.Mutex
	stopped bool
	stopCh  chan struct{}
}

// Option configures optional Engine behavior.
type Option func(*Engine)

// WithWatchers wires the local/remote watchers Start(mode) brings up.
func WithWatchers(local, remote Watcher) Option {
	return func(e *Engine) {
		e.localWatcher = local
		e.remoteWatcher = remote
	}
}

// WithIgnore installs the ignore predicate consulted at the top of apply.
func WithIgnore(fn IgnoreFunc) Option {
	return func(e *Engine) { e.ignore = fn }
}

// WithRemoteHeartbeat overrides the trash-with-parent coalescer's wait
// between recursive parent trashes (default 2s).
func WithRemoteHeartbeat(d time.Duration) Option {
	return func(e *Engine) { e.remoteHeartbeat = d }
}

// WithTrashingDelay overrides the trash-with-parent coalescer's wait for
// a racing parent trash to land before concluding it never will
// (default 1s).
func WithTrashingDelay(d time.Duration) Option {
	return func(e *Engine) { e.trashingDelay = d }
}

// WithOfflineProbeInterval overrides the offline retry loop's probe
// cadence (default 60s).
func WithOfflineProbeInterval(d time.Duration) Option {
	return func(e *Engine) { e.offlineProbeInterval = d }
}

// WithoutLiveWait disables sync()'s "wait for the first live change"
// step, so it returns immediately when the change feed is empty instead
// of blocking. Intended for tests and one-shot invocations.
func WithoutLiveWait() Option {
	return func(e *Engine) { e.liveWait = false }
}

// New constructs an Engine. local and remote must already have had
// SetOpposite called on each other.
func New(st *store.Store, local, remote side.Side, opts ...Option) *Engine {
	e := &Engine{
		store:           st,
		local:           local,
		remote:          remote,
		ignore:          func(*meta.Record) bool { return false },
		remoteHeartbeat:      defaultRemoteHeartbeat,
		trashingDelay:        defaultTrashingDelay,
		offlineProbeInterval: defaultOfflineProbeInterval,
		liveWait:             true,
		events:          make(chan Event, eventBufferSize),
		stopCh:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start brings up the watchers appropriate to mode, returning at once if
// one fails to start, then loops sync() until ctx is done, Stop is called,
// or sync returns an error. A watcher that fails after it has started
// does not end the loop: the Watcher contract has no way to report it.
func (e *Engine) Start(ctx context.Context, mode Mode) error {
	if mode != ModePull && e.localWatcher != nil {
		if err := e.localWatcher.Start(ctx); err != nil {
			return fmt.Errorf("engine: start local watcher: %w", err)
		}
	}
	if mode != ModePush && e.remoteWatcher != nil {
		if err := e.remoteWatcher.Start(ctx); err != nil {
			return fmt.Errorf("engine: start remote watcher: %w", err)
		}
	}
	defer e.stopWatchers()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.stopCh:
			return nil
		default:
		}

		if err := e.sync(ctx); err != nil {
			return err
		}
	}
}

func (e *Engine) stopWatchers() {
	if e.localWatcher != nil {
		if err := e.localWatcher.Stop(); err != nil {
			slog.Warn("engine: stop local watcher", "error", err)
		}
	}
	if e.remoteWatcher != nil {
		if err := e.remoteWatcher.Stop(); err != nil {
			slog.Warn("engine: stop remote watcher", "error", err)
		}
	}
}

// Stop sets the stopped flag, which the sync loop observes between
// iterations. It does not abort an
// in-flight side operation.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return
	}
	e.stopped = true
	close(e.stopCh)
}

func (e *Engine) isStopped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopped
}
