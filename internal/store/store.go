// Package store implements the durable, versioned metadata document store
// described by the synchronization engine's data model: MVCC-style puts
// keyed by id, a monotonic change-feed sequence, historical revisions for
// conflict-free "what changed" lookups, and an exclusive write lock.
//
// Side-revision invariant: a record's Sides.Local and Sides.Remote are
// independent counters, and a side that has fully materialized revision N
// carries a counter of N+1. Equal counters mean both sides agree; the
// side with the lower counter is the one that still has to apply the
// change.
package store

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/jmoiron/sqlx"

	"github.com/cozysync/engine/internal/meta"
)

// designPrefix marks ids reserved for the store's own bookkeeping; the
// byPath change-feed filter excludes them.
const designPrefix = "_design/"

const localSeqKey = "localSeq"

const flockRetryDelay = 50 * time.Millisecond

// Store is the durable metadata document store.
type Store struct {
	db   *sqlx.DB
	path string

	flock *flock.Flock // cross-process guard on the store file
	mu    sync.Mutex    // in-process write lock, returned as a Lock token

	subMu sync.Mutex
	subs  []chan struct{} // notified (non-blocking) after every commit
}

// Open creates or opens a Store backed by a SQLite database at path. Use
// ":memory:" for an ephemeral store (mainly for tests).
func Open(path string) (*Store, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, path: path}
	if path != ":memory:" {
		s.flock = flock.New(path + ".lock")
	}
	return s, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

type docRow struct {
	ID  string `db:"id"`
	Rev string `db:"rev"`
	Doc string `db:"doc"`
}

// Get retrieves the latest metadata record for id.
func (s *Store) Get(id string) (*meta.Record, error) {
	var row docRow
	err := s.db.Get(&row, `SELECT id, rev, doc FROM docs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", id, err)
	}
	return decodeDoc(row.Doc)
}

// GetPreviousRev returns the record as it existed at revNumber, or
// ErrNotFound if that revision has fallen out of the retention window.
func (s *Store) GetPreviousRev(id string, revNumber int) (*meta.Record, error) {
	var raw string
	err := s.db.Get(&raw, `SELECT doc FROM history WHERE id = ? AND rev_n = ?`, id, revNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get previous rev %s@%d: %w", id, revNumber, err)
	}
	return decodeDoc(raw)
}

// Put writes doc, enforcing optimistic concurrency: doc.Rev (possibly
// empty, meaning "create") must match the currently stored rev. On
// success it returns the newly assigned rev and doc.Rev is updated in
// place.
func (s *Store) Put(doc *meta.Record) (string, error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return "", fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	var current docRow
	err = tx.Get(&current, `SELECT id, rev, doc FROM docs WHERE id = ?`, doc.ID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if doc.Rev != "" {
			return "", ErrConflict
		}
	case err != nil:
		return "", fmt.Errorf("store: put %s: %w", doc.ID, err)
	default:
		if current.Rev != doc.Rev {
			return "", ErrConflict
		}
		// preserve the pre-update body under its own revision number for
		// GetPreviousRev before it is overwritten below. current.Rev came
		// straight out of the docs table, so it can only be malformed by
		// store corruption, not caller error.
		prevN := meta.MustExtractRev(current.Rev)
		if _, err := tx.Exec(`INSERT OR REPLACE INTO history (id, rev_n, doc) VALUES (?, ?, ?)`,
			doc.ID, prevN, current.Doc); err != nil {
			return "", fmt.Errorf("store: archive history %s: %w", doc.ID, err)
		}
		if err := pruneHistory(tx, doc.ID, prevN); err != nil {
			return "", err
		}
	}

	// a brand-new document's first assigned rev is "0-hash", not "1-hash":
	// revision 0 has no earlier revision, and the engine's classifyChange
	// only looks up a previous rev when the current one is above 0.
	prevN := -1
	if doc.Rev != "" {
		prevN, _ = meta.ExtractRev(doc.Rev)
	}
	newRev := nextRev(prevN, doc)
	doc.Rev = newRev

	encoded, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("store: encode %s: %w", doc.ID, err)
	}

	if _, err := tx.Exec(`INSERT OR REPLACE INTO docs (id, rev, doc) VALUES (?, ?, ?)`,
		doc.ID, newRev, string(encoded)); err != nil {
		return "", fmt.Errorf("store: upsert %s: %w", doc.ID, err)
	}
	if _, err := tx.Exec(`INSERT INTO changes (id, rev, doc) VALUES (?, ?, ?)`,
		doc.ID, newRev, string(encoded)); err != nil {
		return "", fmt.Errorf("store: append change %s: %w", doc.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("store: commit %s: %w", doc.ID, err)
	}

	s.notify()
	return newRev, nil
}

func pruneHistory(tx *sqlx.Tx, id string, latestN int) error {
	cutoff := latestN - historyRetention
	if cutoff <= 0 {
		return nil
	}
	if _, err := tx.Exec(`DELETE FROM history WHERE id = ? AND rev_n <= ?`, id, cutoff); err != nil {
		return fmt.Errorf("store: prune history %s: %w", id, err)
	}
	return nil
}

// nextRev computes the "N-hash" rev string for the record about to be
// stored, where N = prevN + 1 and hash is derived from the document body
// so identical successive writes still produce distinguishable revs.
func nextRev(prevN int, doc *meta.Record) string {
	body, _ := json.Marshal(doc)
	sum := sha1.Sum(body)
	return fmt.Sprintf("%d-%x", prevN+1, sum[:6])
}

func decodeDoc(raw string) (*meta.Record, error) {
	var rec meta.Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("store: decode: %w", err)
	}
	return &rec, nil
}

// notify wakes any goroutine blocked in WaitForChange.
func (s *Store) notify() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscribe registers a channel that receives a (coalesced) ping after
// every committed Put. Callers must Unsubscribe when done.
func (s *Store) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	s.subMu.Lock()
	s.subs = append(s.subs, ch)
	s.subMu.Unlock()
	return ch
}

// Unsubscribe removes a channel previously returned by Subscribe.
func (s *Store) Unsubscribe(ch <-chan struct{}) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for i, sub := range s.subs {
		if sub == ch {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return
		}
	}
}

// WaitForChange blocks until a change is committed or ctx is done. It is
// used by the reconciliation loop to yield back to the OS when idle.
func (s *Store) WaitForChange(ctx context.Context) error {
	ch := s.Subscribe()
	defer s.Unsubscribe(ch)

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Lock acquires the store's exclusive write lock, both in-process and
// (when backed by a file) across processes sharing the same store file.
// The returned token must be released via Unlock.
func (s *Store) Lock(ctx context.Context) (Unlocker, error) {
	s.mu.Lock()

	if s.flock != nil {
		locked, err := s.flock.TryLockContext(ctx, flockRetryDelay)
		if err != nil {
			s.mu.Unlock()
			return nil, fmt.Errorf("store: cross-process lock: %w", err)
		}
		if !locked {
			s.mu.Unlock()
			return nil, fmt.Errorf("store: cross-process lock: could not acquire")
		}
	}

	return &lockToken{s: s}, nil
}

// Unlocker releases a Store.Lock token exactly once.
type Unlocker interface {
	Unlock()
}

type lockToken struct {
	s    *Store
	done bool
}

func (t *lockToken) Unlock() {
	if t.done {
		return
	}
	t.done = true
	if t.s.flock != nil {
		if err := t.s.flock.Unlock(); err != nil {
			slog.Warn("store: release cross-process lock", "error", err)
		}
	}
	t.s.mu.Unlock()
}

// GetLocalSeq returns the engine's durable cursor into the change feed.
func (s *Store) GetLocalSeq() (int, error) {
	var raw string
	err := s.db.Get(&raw, `SELECT value FROM local_state WHERE key = ?`, localSeqKey)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: get local seq: %w", err)
	}
	var seq int
	if _, err := fmt.Sscanf(raw, "%d", &seq); err != nil {
		return 0, fmt.Errorf("store: decode local seq %q: %w", raw, err)
	}
	return seq, nil
}

// SetLocalSeq durably advances the engine's cursor. Callers must never
// call it with a value smaller than the last one written: it is expected
// to be monotonic non-decreasing.
func (s *Store) SetLocalSeq(seq int) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO local_state (key, value) VALUES (?, ?)`,
		localSeqKey, fmt.Sprintf("%d", seq))
	if err != nil {
		return fmt.Errorf("store: set local seq: %w", err)
	}
	return nil
}
