package engine

import (
	"errors"
	"log/slog"

	"github.com/cozysync/engine/internal/meta"
	"github.com/cozysync/engine/internal/side"
	"github.com/cozysync/engine/internal/store"
)

// selectSide compares sides.local and
// sides.remote to pick which side needs to catch up, or report that both
// sides already agree.
func selectSide(doc *meta.Record, local, remote side.Side) (applyTo side.Side, sideName meta.SideName, upToDate bool) {
	switch {
	case doc.Sides.Local > doc.Sides.Remote:
		return remote, meta.SideRemote, false
	case doc.Sides.Remote > doc.Sides.Local:
		return local, meta.SideLocal, false
	default:
		return nil, "", true
	}
}

// updateRevs bumps both sides to
// extractRev(doc.Rev)+1, clears errors, and persists. On a put conflict it
// re-fetches the latest doc and reapplies only the caller's own side
// bump before retrying once; any other failure is logged and swallowed,
// since the next change-feed entry carries the authoritative state.
func updateRevs(s *store.Store, doc *meta.Record, sideName meta.SideName) {
	revN, _ := meta.ExtractRev(doc.Rev)
	next := revN + 1

	updated := doc.Clone()
	updated.Sides.Local = next
	updated.Sides.Remote = next
	updated.Errors = 0

	if _, err := s.Put(updated); err != nil {
		if errors.Is(err, store.ErrConflict) {
			retryUpdateRevs(s, doc.ID, sideName, next)
			return
		}
		slog.Warn("engine: updateRevs put failed, treated as race", "id", doc.ID, "error", err)
	}
}

func retryUpdateRevs(s *store.Store, id string, sideName meta.SideName, next int) {
	latest, err := s.Get(id)
	if err != nil {
		slog.Warn("engine: updateRevs conflict re-fetch failed", "id", id, "error", err)
		return
	}

	switch sideName {
	case meta.SideLocal:
		latest.Sides.Local = next
	case meta.SideRemote:
		latest.Sides.Remote = next
	}
	latest.Errors = 0

	if _, err := s.Put(latest); err != nil {
		slog.Warn("engine: updateRevs retry put failed, treated as race", "id", id, "error", err)
	}
}

// errorRetryBudget caps per-doc apply retries: at 3 it gives up.
// apply() also consults it directly to recognize an already-poisoned
// doc before attempting another side call.
const errorRetryBudget = 3

// updateErrors increments doc.errors, and reports whether the caller should give up
// (errors has reached the budget) and advance the cursor regardless.
func updateErrors(s *store.Store, doc *meta.Record) (gaveUp bool) {
	updated := doc.Clone()
	updated.Errors++
	gaveUp = updated.Errors >= errorRetryBudget

	if _, err := s.Put(updated); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// a newer rev supersedes us; treat like a successful advance.
			return true
		}
		slog.Warn("engine: updateErrors put failed, treated as race", "id", doc.ID, "error", err)
	}
	return gaveUp
}
