package engine

import "github.com/cozysync/engine/internal/meta"

// classify runs the fixed decision table that turns one document's
// current state into a single Side action, first match wins. It is
// pure: prev, when relevant, has already been fetched
// by the caller via store.GetPreviousRev. sideName tells the table
// which side is being applied to: "incompatibilities" only blocks
// materialization on the local filesystem, and it also picks out which
// of doc.sides is consulted for "never materialized on this side".
func classify(doc *meta.Record, prev *meta.Record, sideName meta.SideName) Action {
	if sideName == meta.SideLocal && len(doc.Incompatibilities) > 0 && doc.MoveFrom == nil {
		trashStale := prev != nil && prev.IsCompatible()
		return Action{Kind: ActionWarnSkip, Reason: "record incompatible with local filesystem", TrashStale: trashStale, Prev: prev, From: prev}
	}

	if doc.DocType != meta.DocTypeFile && doc.DocType != meta.DocTypeFolder {
		return Action{Kind: ActionFatal, Reason: "unknown docType: " + string(doc.DocType)}
	}

	// neverSeen is per-side, not the document's global rev counter: a
	// bookkeeping put (an error-retry bump, say) advances rev without the
	// target side ever having materialized anything, and must not read
	// as "this side already has a previous copy to diff against".
	neverSeen := sideCounter(doc, sideName) == 0

	if doc.Deleted && neverSeen {
		return Action{Kind: ActionNoOp}
	}

	if doc.MoveTo != "" {
		return Action{Kind: ActionNoOp}
	}

	if doc.MoveFrom != nil {
		from := doc.MoveFrom
		switch {
		case len(from.Incompatibilities) > 0:
			if doc.DocType == meta.DocTypeFolder {
				return Action{Kind: ActionAddFolder}
			}
			return Action{Kind: ActionAddFile}
		case from.ChildMove:
			return Action{Kind: ActionAssignRev}
		default:
			if doc.DocType == meta.DocTypeFolder {
				return Action{Kind: ActionMoveFolder, From: from}
			}
			return Action{Kind: ActionMoveFile, From: from}
		}
	}

	if doc.Deleted {
		if doc.DocType == meta.DocTypeFolder {
			return Action{Kind: ActionDeleteFolder}
		}
		return Action{Kind: ActionTrash}
	}

	if neverSeen {
		if doc.DocType == meta.DocTypeFolder {
			return Action{Kind: ActionAddFolder}
		}
		return Action{Kind: ActionAddFile}
	}

	if prev == nil {
		if doc.DocType == meta.DocTypeFolder {
			return Action{Kind: ActionAddFolder}
		}
		return Action{Kind: ActionOverwrite}
	}

	if doc.DocType == meta.DocTypeFolder {
		return Action{Kind: ActionUpdateFolder, Prev: prev}
	}

	if prev.MD5Sum == doc.MD5Sum {
		return Action{Kind: ActionUpdateMeta, Prev: prev}
	}
	return Action{Kind: ActionOverwrite, Prev: prev}
}

func sideCounter(doc *meta.Record, sideName meta.SideName) int {
	if sideName == meta.SideLocal {
		return doc.Sides.Local
	}
	return doc.Sides.Remote
}
