package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"

	"github.com/cozysync/engine/internal/meta"
	"github.com/cozysync/engine/internal/side"
	"github.com/cozysync/engine/internal/store"
)

// maxNoProgressIterations is the hard break on top of "log a warning,
// keep going": after this many consecutive iterations with no cursor
// movement, give up on the current sync() pass rather than spin forever.
const maxNoProgressIterations = 1000

// sync drains the change feed past the durable cursor, applying each
// entry in turn. When the engine was constructed without
// WithoutLiveWait, it first waits for a change past the durable cursor
// to appear before doing any work, so an idle engine blocks instead of
// busy-polling.
func (e *Engine) sync(ctx context.Context) error {
	seq, err := e.store.GetLocalSeq()
	if err != nil {
		return fmt.Errorf("engine: read cursor: %w", err)
	}

	if e.liveWait {
		pending, err := e.store.Changes(seq, store.ChangesOptions{Limit: 1, ByPath: true})
		if err != nil {
			return fmt.Errorf("engine: check pending changes: %w", err)
		}
		if len(pending) == 0 {
			if err := e.store.WaitForChange(ctx); err != nil {
				return err
			}
		}
	}

	e.emit(Event{Kind: EventSyncStart})

	tok, err := e.store.Lock(ctx)
	if err != nil {
		return fmt.Errorf("engine: acquire lock: %w", err)
	}
	defer tok.Unlock()

	// drainSeq is the loop's own fetch cursor, distinct from the durable
	// one; it always moves to the latest entry seen, even when that
	// entry deferred (trash-with-parent) and the durable cursor did not
	// move, so the drain loop advances to the next entry instead of
	// refetching the same one forever. The durable cursor (advance,
	// below) only catches up to entries that actually succeeded.
	drainSeq := seq
	lastSeq := -1
	noProgress := 0

	for {
		if drainSeq == lastSeq {
			noProgress++
			slog.Warn("engine: sync loop made no progress", "seq", drainSeq, "iterations", noProgress)
			if noProgress >= maxNoProgressIterations {
				slog.Error("engine: sync loop stuck, aborting pass", "seq", drainSeq)
				break
			}
		} else {
			lastSeq = drainSeq
			noProgress = 0
		}

		entries, err := e.store.Changes(drainSeq, store.ChangesOptions{Limit: 1, IncludeDocs: true, ByPath: true})
		if err != nil {
			return fmt.Errorf("engine: fetch next change: %w", err)
		}
		if len(entries) == 0 {
			break
		}

		entry := entries[0]
		e.emit(Event{Kind: EventSyncCurrent, Seq: entry.Seq})

		if err := e.apply(ctx, entry); err != nil {
			if e.isStopped() {
				break
			}
			return err
		}
		drainSeq = entry.Seq
	}

	e.emit(Event{Kind: EventSyncEnd})
	return nil
}

// apply drives one change-feed entry to whichever side is behind,
// classifying what to do and executing it.
func (e *Engine) apply(ctx context.Context, entry store.ChangeEntry) error {
	doc := entry.Doc

	if e.ignore(doc) {
		return e.advance(entry.Seq)
	}

	applyTo, sideName, upToDate := selectSide(doc, e.local, e.remote)
	if upToDate {
		return e.advance(entry.Seq)
	}

	// a doc that already spent its retry budget stays poisoned until a
	// newer revision supersedes it; recordOrFail's own
	// bookkeeping put would otherwise re-enter the feed with the same
	// unresolved sides and retrigger this same failure forever.
	if doc.Errors >= errorRetryBudget {
		return e.advance(entry.Seq)
	}

	if sideName == meta.SideRemote && doc.Trashed {
		applied, err := e.trashWithParent(ctx, e.remote, doc)
		if err != nil {
			return e.recordOrFail(ctx, entry, doc, err)
		}
		if !applied {
			return nil // cursor stays put; a later change re-drives this doc
		}
		return e.finishApply(doc, entry.Seq, sideName)
	}

	action := e.classifyChange(doc, sideName)

	if err := e.execute(ctx, applyTo, doc, action); err != nil {
		return e.recordOrFail(ctx, entry, doc, err)
	}

	switch action.Kind {
	case ActionFatal:
		return fmt.Errorf("engine: classify %s: %s", doc.ID, action.Reason)
	case ActionWarnSkip:
		slog.Warn("engine: skipping record", "id", doc.ID, "reason", action.Reason)
		return e.advance(entry.Seq)
	}

	return e.finishApply(doc, entry.Seq, sideName)
}

// classifyChange fetches the previous revision (best-effort — a missing
// history entry is treated as "prev unknown") and runs it
// through the pure classifier. It skips the fetch whenever the target
// side has never materialized anything for this doc: classify treats
// that the same regardless of prev, and a doc stuck in the per-doc
// retry loop will have churned its global rev well past 0 without the
// target side ever catching up, so revN alone is not a reliable "is
// there a prior copy" signal.
func (e *Engine) classifyChange(doc *meta.Record, sideName meta.SideName) Action {
	revN, _ := meta.ExtractRev(doc.Rev)

	var prev *meta.Record
	if revN > 0 && sideCounter(doc, sideName) > 0 && doc.MoveFrom == nil && !doc.Deleted {
		p, err := e.store.GetPreviousRev(doc.ID, revN-1)
		if err == nil {
			prev = p
		} else if !errors.Is(err, store.ErrNotFound) {
			slog.Warn("engine: getPreviousRev failed", "id", doc.ID, "error", err)
		}
	}

	return classify(doc, prev, sideName)
}

func (e *Engine) execute(ctx context.Context, applyTo side.Side, doc *meta.Record, action Action) error {
	switch action.Kind {
	case ActionNoOp, ActionWarnSkip, ActionFatal:
		if action.Kind == ActionWarnSkip && action.TrashStale && action.From != nil {
			return e.local.Trash(ctx, action.From)
		}
		return nil
	case ActionAddFile:
		return applyTo.AddFile(ctx, doc)
	case ActionAddFolder:
		return applyTo.AddFolder(ctx, doc)
	case ActionOverwrite:
		return applyTo.OverwriteFile(ctx, doc, action.Prev)
	case ActionUpdateMeta:
		return applyTo.UpdateFileMetadata(ctx, doc, action.Prev)
	case ActionUpdateFolder:
		return applyTo.UpdateFolder(ctx, doc, action.Prev)
	case ActionMoveFile:
		return applyTo.MoveFile(ctx, doc, action.From)
	case ActionMoveFolder:
		return applyTo.MoveFolder(ctx, doc, action.From)
	case ActionTrash:
		return applyTo.Trash(ctx, doc)
	case ActionDeleteFolder:
		return applyTo.DeleteFolder(ctx, doc)
	case ActionAssignRev:
		return applyTo.AssignNewRev(ctx, doc)
	default:
		return fmt.Errorf("engine: unhandled action %s for %s", action.Kind, doc.ID)
	}
}

// finishApply advances the cursor, then (unless the record is now
// deleted) bump both sides' revisions.
// A completed move has now been materialized on both sides' bookkeeping
// (moveFrom drove the just-applied action, moveTo just shadowed its
// source); the record's lifecycle requires both cleared once applied,
// or a later, unrelated side-mismatch would replay the move.
func (e *Engine) finishApply(doc *meta.Record, seq int, sideName meta.SideName) error {
	if err := e.advance(seq); err != nil {
		return err
	}
	if !doc.Deleted {
		doc.MoveFrom = nil
		doc.MoveTo = ""
		updateRevs(e.store, doc, sideName)
	}
	if doc.Size > 0 {
		slog.Debug("engine: applied", "id", doc.ID, "size", humanize.Bytes(uint64(doc.Size)))
	}
	return nil
}

func (e *Engine) advance(seq int) error {
	if err := e.store.SetLocalSeq(seq); err != nil {
		return fmt.Errorf("engine: advance cursor: %w", err)
	}
	return nil
}

// recordOrFail classifies an apply failure and either propagates it as
// fatal or records a per-doc error; the error-count put re-enters the
// change feed, which is how the change gets retried. A failure that first
// blocked in the offline loop is recorded the same way once the remote
// answers again, so an offline stall uses up one attempt of the retry
// budget like any other non-fatal failure. Once the budget is spent it
// advances the cursor past the poisoned document.
func (e *Engine) recordOrFail(ctx context.Context, entry store.ChangeEntry, doc *meta.Record, applyErr error) error {
	if fatal := e.handleApplyError(ctx, applyErr); fatal != nil {
		return fatal
	}

	gaveUp := updateErrors(e.store, doc)
	if gaveUp {
		slog.Warn("engine: retry budget exhausted, advancing past poisoned doc", "id", doc.ID, "error", applyErr)
		return e.advance(entry.Seq)
	}
	return nil
}
