package engine

import (
	"context"
	"errors"
	"path"
	"time"

	"github.com/cozysync/engine/internal/meta"
	"github.com/cozysync/engine/internal/side"
	"github.com/cozysync/engine/internal/store"
)

// defaultTrashingDelay is how long trashWithParent waits for a racing
// parent deletion to land in the store before concluding the parent
// isn't trashed, absent a WithTrashingDelay override.
const defaultTrashingDelay = 1 * time.Second

// rootSentinel is the id whose dirname loop terminates at.
const rootSentinel = "."

// trashWithParent, rather than trashing doc in
// isolation, walks up to the top-most already-trashed ancestor and trashes
// that instead, preserving subtree structure in the remote trash.
// Returns true if it trashed something and the cursor may advance for
// doc; false means the caller must not advance the cursor yet — a later
// change-feed entry will re-drive this doc once the parent settles.
func (e *Engine) trashWithParent(ctx context.Context, remote side.Side, doc *meta.Record) (bool, error) {
	parentID := path.Dir(doc.ID)
	if parentID == rootSentinel {
		return true, remote.Trash(ctx, doc)
	}

	parent, err := e.store.Get(parentID)
	if errors.Is(err, store.ErrNotFound) {
		return true, remote.Trash(ctx, doc)
	}
	if err != nil {
		return false, err
	}

	if !parent.Trashed {
		time.Sleep(e.trashingDelay)
		parent, err = e.store.Get(parentID)
		if errors.Is(err, store.ErrNotFound) {
			return true, remote.Trash(ctx, doc)
		}
		if err != nil {
			return false, err
		}
	}

	// a side that has fully materialized rev N carries a counter of N+1
	// (the side-revision invariant), so "remote hasn't yet applied the
	// parent's own trashing" is sides.remote <= parentRevN, not < it.
	parentRevN, _ := meta.ExtractRev(parent.Rev)
	if parent.Trashed && parent.Sides.Remote <= parentRevN {
		if _, err := e.trashWithParent(ctx, remote, parent); err != nil {
			return false, err
		}
		time.Sleep(e.remoteHeartbeat)
		return false, nil
	}

	return true, remote.Trash(ctx, doc)
}
