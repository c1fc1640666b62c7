package watch

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rjeczalik/notify"

	"github.com/cozysync/engine/internal/engine"
	"github.com/cozysync/engine/internal/meta"
	"github.com/cozysync/engine/internal/store"
)

const (
	tmpDirName   = ".cozysync.tmp"
	trashDirName = ".trash"

	rawEventBufferSize     = 64
	defaultDebounceTimeout = 100 * time.Millisecond
)

// LocalWatcher observes a datasite root for filesystem changes and
// upserts a meta.Record into the store for each one it can't rule out as
// a no-op. It never touches the filesystem beyond stat/read/hash — the
// engine is the only thing that ever applies a change to a side.
//
// It does not attempt to correlate a rapid delete+create of identical
// content into a move; a rename therefore round-trips as a trash
// followed by an add rather than a MoveFile/MoveFolder action. Teaching
// the watcher that correlation is a reasonable next step, but it is not
// attempted here.
type LocalWatcher struct {
	root     string
	idMode   meta.IDMode
	platform meta.PlatformFamily
	store    *store.Store
	ignore   *IgnoreList

	rawEvents chan notify.EventInfo

	debounceMu sync.Mutex
	timers     map[string]*time.Timer

	done chan struct{}
	wg   sync.WaitGroup
}

// NewLocalWatcher constructs a LocalWatcher rooted at root. idMode and
// platform select the id-derivation and path-restriction rules applied
// to every observed change (see meta.DeriveID,
// meta.DetectPlatformIncompatibilities).
func NewLocalWatcher(root string, idMode meta.IDMode, platform meta.PlatformFamily, st *store.Store) *LocalWatcher {
	return &LocalWatcher{
		root:      root,
		idMode:    idMode,
		platform:  platform,
		store:     st,
		ignore:    NewIgnoreList(root),
		rawEvents: make(chan notify.EventInfo, rawEventBufferSize),
		timers:    make(map[string]*time.Timer),
		done:      make(chan struct{}),
	}
}

// Start implements engine.Watcher: loads the ignore list and begins
// recursively watching root.
func (w *LocalWatcher) Start(ctx context.Context) error {
	if err := w.ignore.Load(); err != nil {
		return fmt.Errorf("watch: load ignore list: %w", err)
	}

	if err := notify.Watch(filepath.Join(w.root, "..."), w.rawEvents,
		notify.Create, notify.Write, notify.Remove, notify.Rename); err != nil {
		return fmt.Errorf("watch: start local watcher: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.loop(ctx)
	}()
	return nil
}

// Stop implements engine.Watcher: stops the underlying notify watch and
// waits for the event loop to exit. Debounce timers already scheduled are
// not stopped or waited for, so a pending handle call may still run after
// Stop returns.
func (w *LocalWatcher) Stop() error {
	notify.Stop(w.rawEvents)
	close(w.done)
	w.wg.Wait()
	return nil
}

func (w *LocalWatcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev, ok := <-w.rawEvents:
			if !ok {
				return
			}
			w.debounce(ev.Path())
		}
	}
}

// debounce coalesces a burst of events on the same path (editors commonly
// write-then-chmod-then-rename-into-place) into a single handle call.
func (w *LocalWatcher) debounce(path string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(defaultDebounceTimeout, func() {
		w.debounceMu.Lock()
		delete(w.timers, path)
		w.debounceMu.Unlock()
		w.handle(path)
	})
}

func (w *LocalWatcher) handle(abs string) {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		slog.Warn("watch: path outside root", "path", abs)
		return
	}
	rel = filepath.ToSlash(rel)

	if isHousekeepingPath(rel) || w.ignore.ShouldIgnore(rel) {
		return
	}

	info, statErr := os.Stat(abs)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			w.recordRemoval(rel)
			return
		}
		slog.Warn("watch: stat failed", "path", abs, "error", statErr)
		return
	}

	if info.IsDir() {
		w.recordFolder(rel)
		return
	}
	w.recordFile(rel, abs, info)
}

func isHousekeepingPath(rel string) bool {
	return rel == tmpDirName || strings.HasPrefix(rel, tmpDirName+"/") ||
		rel == trashDirName || strings.HasPrefix(rel, trashDirName+"/")
}

func (w *LocalWatcher) recordFile(rel, abs string, info os.FileInfo) {
	sum, err := hashFile(abs)
	if err != nil {
		slog.Warn("watch: hash failed", "path", rel, "error", err)
		return
	}

	doc := &meta.Record{
		ID:         meta.DeriveID(w.idMode, rel),
		Path:       rel,
		DocType:    meta.DocTypeFile,
		MD5Sum:     sum,
		Size:       info.Size(),
		Executable: info.Mode()&0o111 != 0,
		UpdatedAt:  info.ModTime(),
	}
	w.upsert(doc, meta.SameFile)
}

func (w *LocalWatcher) recordFolder(rel string) {
	doc := &meta.Record{
		ID:      meta.DeriveID(w.idMode, rel),
		Path:    rel,
		DocType: meta.DocTypeFolder,
	}
	w.upsert(doc, meta.SameFolder)
}

func (w *LocalWatcher) recordRemoval(rel string) {
	id := meta.DeriveID(w.idMode, rel)
	existing, err := w.store.Get(id)
	if errors.Is(err, store.ErrNotFound) {
		return // never tracked; nothing to mark gone
	}
	if err != nil {
		slog.Warn("watch: get before removal failed", "id", id, "error", err)
		return
	}

	doc := existing.Clone()
	doc.Deleted = true
	doc.Trashed = true
	w.upsert(doc, func(*meta.Record, *meta.Record) bool { return false })
}

// upsert fills in the bookkeeping fields a watcher owns (id already set
// by the caller) and writes doc, skipping it when same reports the
// observed state is unchanged from what the store already holds.
func (w *LocalWatcher) upsert(doc *meta.Record, same func(a, b *meta.Record) bool) {
	existing, err := w.store.Get(doc.ID)
	currentN := -1
	switch {
	case errors.Is(err, store.ErrNotFound):
		// brand new: doc.Rev stays "" so Put treats this as a create.
	case err != nil:
		slog.Warn("watch: get before upsert failed", "id", doc.ID, "error", err)
		return
	default:
		if same(existing, doc) {
			return
		}
		doc.Rev = existing.Rev
		doc.Sides.Remote = existing.Sides.Remote
		currentN, _ = meta.ExtractRev(existing.Rev)
	}

	if meta.InvalidPath(doc) {
		slog.Warn("watch: invalid path, skipping", "path", doc.Path)
		return
	}
	if meta.InvalidChecksum(doc) {
		slog.Warn("watch: invalid checksum, skipping", "path", doc.Path)
		return
	}
	doc.Incompatibilities = meta.DetectPlatformIncompatibilities(doc, w.platform, w.root)

	// the side-revision invariant (store package doc): a side that has
	// fully materialized revision N carries a counter of N+1. Local just
	// materialized the revision this Put is about to assign, N=currentN+1.
	doc.Sides.Local = currentN + 2

	if _, err := w.store.Put(doc); err != nil {
		if errors.Is(err, store.ErrConflict) {
			slog.Warn("watch: put conflict, dropping stale observation", "id", doc.ID)
			return
		}
		slog.Warn("watch: put failed", "id", doc.ID, "error", err)
	}
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}

var _ engine.Watcher = (*LocalWatcher)(nil)
