// Package side implements the two endpoints the engine reconciles: the
// local filesystem and the remote cozy. Both satisfy the same Side
// contract so the engine never branches on which concrete side it is
// driving — the classifier picks the method, not the side.
package side

import (
	"context"
	"io"

	"github.com/cozysync/engine/internal/meta"
)

// Side is the capability set every applying endpoint implements. Every
// method is told the target record and, where
// applicable, the prior state, and either completes or returns a
// classified error (see IsDiskFull, HTTPError in errors.go).
type Side interface {
	AddFile(ctx context.Context, doc *meta.Record) error
	AddFolder(ctx context.Context, doc *meta.Record) error

	// OverwriteFile replaces content; oldDoc may be nil if unknown.
	OverwriteFile(ctx context.Context, doc, oldDoc *meta.Record) error
	// UpdateFileMetadata changes only metadata; content is unchanged.
	UpdateFileMetadata(ctx context.Context, doc, oldDoc *meta.Record) error
	UpdateFolder(ctx context.Context, doc, oldDoc *meta.Record) error

	MoveFile(ctx context.Context, doc, from *meta.Record) error
	MoveFolder(ctx context.Context, doc, from *meta.Record) error

	// Trash soft-deletes doc, recoverably.
	Trash(ctx context.Context, doc *meta.Record) error
	// DeleteFolder hard-deletes an already-empty or already-trashed folder.
	DeleteFolder(ctx context.Context, doc *meta.Record) error

	// AssignNewRev is bookkeeping-only: record that this side already
	// observed the change. No I/O.
	AssignNewRev(ctx context.Context, doc *meta.Record) error

	// ReadContent opens doc's content on this side, for the opposite side
	// to copy during AddFile/OverwriteFile. Callers must Close it.
	ReadContent(ctx context.Context, doc *meta.Record) (io.ReadCloser, error)

	// SetOpposite wires the other side's back-reference, which
	// AddFile/OverwriteFile read content from via ReadContent. Called once
	// after both sides are constructed.
	SetOpposite(opposite Side)

	// Name identifies the side as meta.SideLocal or meta.SideRemote.
	Name() meta.SideName
}
