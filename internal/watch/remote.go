package watch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cozysync/engine/internal/engine"
	"github.com/cozysync/engine/internal/meta"
	"github.com/cozysync/engine/internal/side"
	"github.com/cozysync/engine/internal/store"
)

// defaultPollInterval is the default cadence for a remote listing poll.
const defaultPollInterval = 5 * time.Second

// BlobLister is the narrow capability RemotePoller needs; side.RemoteSide
// satisfies it without the poller depending on the rest of Side.
type BlobLister interface {
	ListBlobs(ctx context.Context) ([]side.BlobInfo, error)
}

// RemotePoller periodically lists the cozy's current blobs and upserts a
// meta.Record into the store for anything new or changed — the remote
// counterpart to LocalWatcher. It never applies anything itself.
type RemotePoller struct {
	lister   BlobLister
	idMode   meta.IDMode
	platform meta.PlatformFamily
	root     string
	store    *store.Store
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
	muPoll sync.Mutex
}

// NewRemotePoller constructs a RemotePoller against lister, deriving ids
// the same way idMode would for a local record of the same path. platform
// and root feed meta.DetectPlatformIncompatibilities, the same
// local-materialization check LocalWatcher applies, since a record
// observed remotely can still be unsafe to write to this machine's
// filesystem.
func NewRemotePoller(lister BlobLister, idMode meta.IDMode, platform meta.PlatformFamily, root string, st *store.Store) *RemotePoller {
	return &RemotePoller{lister: lister, idMode: idMode, platform: platform, root: root, store: st, interval: defaultPollInterval}
}

// WithPollInterval overrides the default 5s poll interval.
func (p *RemotePoller) WithPollInterval(d time.Duration) *RemotePoller {
	p.interval = d
	return p
}

// Start implements engine.Watcher: runs one poll synchronously, then
// keeps polling every interval until Stop or ctx is done.
func (p *RemotePoller) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	if err := p.poll(ctx); err != nil {
		slog.Warn("watch: initial remote poll failed", "error", err)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		// a timer, not a ticker, so a poll slower than interval never
		// queues a second run behind it (teacher's runFullSync timer).
		timer := time.NewTimer(p.interval)
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
				if err := p.poll(ctx); err != nil && !errors.Is(err, context.Canceled) {
					slog.Warn("watch: remote poll failed", "error", err)
				}
				timer.Reset(p.interval)
			}
		}
	}()
	return nil
}

// Stop implements engine.Watcher.
func (p *RemotePoller) Stop() error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	return nil
}

func (p *RemotePoller) poll(ctx context.Context) error {
	if !p.muPoll.TryLock() {
		return nil // previous poll still running
	}
	defer p.muPoll.Unlock()

	entries, err := p.lister.ListBlobs(ctx)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		p.upsert(entry)
	}
	return nil
}

func (p *RemotePoller) upsert(entry side.BlobInfo) {
	id := meta.DeriveID(p.idMode, entry.Path)

	docType := meta.DocTypeFile
	if entry.DocType == string(meta.DocTypeFolder) {
		docType = meta.DocTypeFolder
	}

	doc := &meta.Record{
		ID:         id,
		Path:       entry.Path,
		DocType:    docType,
		MD5Sum:     entry.MD5Sum,
		Size:       entry.Size,
		Executable: entry.Executable,
		Trashed:    entry.Trashed,
		Deleted:    entry.Trashed,
		UpdatedAt:  entry.UpdatedAt,
	}
	if entry.Key != id {
		doc.Remote.ID = entry.Key
	}

	existing, err := p.store.Get(id)
	currentN := -1
	switch {
	case errors.Is(err, store.ErrNotFound):
		// brand new: doc.Rev stays "" so Put treats this as a create.
	case err != nil:
		slog.Warn("watch: get before remote upsert failed", "id", id, "error", err)
		return
	default:
		same := meta.SameFile
		if docType == meta.DocTypeFolder {
			same = meta.SameFolder
		}
		if same(existing, doc) {
			return
		}
		doc.Rev = existing.Rev
		doc.Sides.Local = existing.Sides.Local
		currentN, _ = meta.ExtractRev(existing.Rev)
	}

	doc.Incompatibilities = meta.DetectPlatformIncompatibilities(doc, p.platform, p.root)

	// see the matching comment in LocalWatcher.upsert: remote just
	// materialized the revision this Put is about to assign.
	doc.Sides.Remote = currentN + 2

	if _, err := p.store.Put(doc); err != nil {
		if errors.Is(err, store.ErrConflict) {
			slog.Warn("watch: remote put conflict, dropping stale observation", "id", id)
			return
		}
		slog.Warn("watch: remote put failed", "id", id, "error", err)
	}
}

var _ engine.Watcher = (*RemotePoller)(nil)
