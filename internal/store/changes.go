package store

import (
	"strings"

	"github.com/cozysync/engine/internal/meta"
)

// ChangeEntry is one row of the change feed.
type ChangeEntry struct {
	Seq int
	ID  string
	Rev string
	Doc *meta.Record // nil unless IncludeDocs was set
}

// ChangesOptions configures a Changes query.
type ChangesOptions struct {
	Limit       int
	IncludeDocs bool
	ByPath      bool // exclude ids reserved for internal bookkeeping
}

// Changes returns entries committed after since, in commit order, up to
// Limit entries (0 means unbounded). The store does not guarantee that
// exactly Limit rows come back in every call; callers that need "one
// entry per pass" should treat Limit as an upper bound, not an exact
// count (see the reconciliation loop's note on this).
func (s *Store) Changes(since int, opts ChangesOptions) ([]ChangeEntry, error) {
	query := `SELECT seq, id, rev, doc FROM changes WHERE seq > ? ORDER BY seq ASC`
	args := []any{since}
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit*4) // over-fetch to survive filtering below
	}

	var rows []struct {
		Seq int    `db:"seq"`
		ID  string `db:"id"`
		Rev string `db:"rev"`
		Doc string `db:"doc"`
	}
	if err := s.db.Select(&rows, query, args...); err != nil {
		return nil, err
	}

	entries := make([]ChangeEntry, 0, len(rows))
	for _, r := range rows {
		if opts.ByPath && strings.HasPrefix(r.ID, designPrefix) {
			continue
		}
		entry := ChangeEntry{Seq: r.Seq, ID: r.ID, Rev: r.Rev}
		if opts.IncludeDocs {
			doc, err := decodeDoc(r.Doc)
			if err != nil {
				return nil, err
			}
			entry.Doc = doc
		}
		entries = append(entries, entry)
		if opts.Limit > 0 && len(entries) >= opts.Limit {
			break
		}
	}
	return entries, nil
}
