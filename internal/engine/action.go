package engine

import "github.com/cozysync/engine/internal/meta"

// ActionKind is the tagged union the classifier returns; the executor
// switches on it without ever re-inspecting the record's fields.
type ActionKind int

const (
	ActionNoOp ActionKind = iota
	ActionAddFile
	ActionAddFolder
	ActionOverwrite
	ActionUpdateMeta
	ActionUpdateFolder
	ActionMoveFile
	ActionMoveFolder
	ActionTrash
	ActionDeleteFolder
	ActionAssignRev
	ActionWarnSkip
	ActionFatal
)

func (k ActionKind) String() string {
	switch k {
	case ActionNoOp:
		return "no-op"
	case ActionAddFile:
		return "add-file"
	case ActionAddFolder:
		return "add-folder"
	case ActionOverwrite:
		return "overwrite"
	case ActionUpdateMeta:
		return "update-meta"
	case ActionUpdateFolder:
		return "update-folder"
	case ActionMoveFile:
		return "move-file"
	case ActionMoveFolder:
		return "move-folder"
	case ActionTrash:
		return "trash"
	case ActionDeleteFolder:
		return "delete-folder"
	case ActionAssignRev:
		return "assign-rev"
	case ActionWarnSkip:
		return "warn-skip"
	case ActionFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Action is the classifier's verdict for one change: what to do, and
// with what prior state (Prev, From) the executor should call the Side
// method named by Kind.
type Action struct {
	Kind ActionKind

	// Prev is the previous revision of doc, when the table looked it up.
	Prev *meta.Record

	// From is set for move actions and the "trash the stale copy" side
	// effect of ActionWarnSkip.
	From *meta.Record

	// Reason explains ActionWarnSkip/ActionFatal for logging.
	Reason string

	// TrashStale, set alongside ActionWarnSkip, tells the executor to
	// also trash the local copy of the record's pre-rename identity.
	TrashStale bool
}
