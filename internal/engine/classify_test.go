package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cozysync/engine/internal/meta"
)

func TestClassify_IncompatibleLocalNoMove(t *testing.T) {
	doc := &meta.Record{ID: "a", DocType: meta.DocTypeFile, Incompatibilities: []meta.Incompatibility{{Type: "reserved-name"}}}
	prev := &meta.Record{ID: "a", DocType: meta.DocTypeFile}
	action := classify(doc, prev, meta.SideLocal)
	require.Equal(t, ActionWarnSkip, action.Kind)
	require.True(t, action.TrashStale)
}

func TestClassify_UnknownDocType(t *testing.T) {
	doc := &meta.Record{ID: "a", DocType: "symlink"}
	action := classify(doc, nil, meta.SideLocal)
	require.Equal(t, ActionFatal, action.Kind)
}

func TestClassify_DeletedNeverExisted(t *testing.T) {
	doc := &meta.Record{ID: "a", DocType: meta.DocTypeFile, Deleted: true}
	action := classify(doc, nil, meta.SideLocal)
	require.Equal(t, ActionNoOp, action.Kind)
}

func TestClassify_MoveToIsSourceShadow(t *testing.T) {
	doc := &meta.Record{ID: "a", DocType: meta.DocTypeFile, Rev: "2-x", MoveTo: "b"}
	action := classify(doc, nil, meta.SideLocal)
	require.Equal(t, ActionNoOp, action.Kind)
}

func TestClassify_MoveFromIncompatibleSourceTreatedAsAdd(t *testing.T) {
	from := &meta.Record{ID: "a", Incompatibilities: []meta.Incompatibility{{Type: "forbidden-char"}}}
	doc := &meta.Record{ID: "b", DocType: meta.DocTypeFile, Rev: "2-x", MoveFrom: from}
	action := classify(doc, nil, meta.SideLocal)
	require.Equal(t, ActionAddFile, action.Kind)
}

func TestClassify_MoveFromChildMoveAssignsRevOnly(t *testing.T) {
	from := &meta.Record{ID: "a", ChildMove: true}
	doc := &meta.Record{ID: "b", DocType: meta.DocTypeFile, Rev: "2-x", MoveFrom: from}
	action := classify(doc, nil, meta.SideLocal)
	require.Equal(t, ActionAssignRev, action.Kind)
}

func TestClassify_MoveFromElseMovesFile(t *testing.T) {
	from := &meta.Record{ID: "a", Path: "old.txt"}
	doc := &meta.Record{ID: "b", DocType: meta.DocTypeFile, Rev: "2-x", Path: "new.txt", MoveFrom: from}
	action := classify(doc, nil, meta.SideLocal)
	require.Equal(t, ActionMoveFile, action.Kind)
	require.Same(t, from, action.From)
}

func TestClassify_MoveFromElseMovesFolder(t *testing.T) {
	from := &meta.Record{ID: "a", Path: "old"}
	doc := &meta.Record{ID: "b", DocType: meta.DocTypeFolder, Rev: "2-x", Path: "new", MoveFrom: from}
	action := classify(doc, nil, meta.SideLocal)
	require.Equal(t, ActionMoveFolder, action.Kind)
}

func TestClassify_DeletedTrashesFile(t *testing.T) {
	doc := &meta.Record{ID: "a", DocType: meta.DocTypeFile, Rev: "2-x", Deleted: true, Sides: meta.Sides{Local: 2}}
	action := classify(doc, nil, meta.SideLocal)
	require.Equal(t, ActionTrash, action.Kind)
}

func TestClassify_DeletedFolderHardDeletes(t *testing.T) {
	doc := &meta.Record{ID: "a", DocType: meta.DocTypeFolder, Rev: "2-x", Deleted: true, Sides: meta.Sides{Local: 2}}
	action := classify(doc, nil, meta.SideLocal)
	require.Equal(t, ActionDeleteFolder, action.Kind)
}

func TestClassify_NewRevZeroAddsFile(t *testing.T) {
	doc := &meta.Record{ID: "a", DocType: meta.DocTypeFile}
	action := classify(doc, nil, meta.SideLocal)
	require.Equal(t, ActionAddFile, action.Kind)
}

func TestClassify_MissingPrevOverwrites(t *testing.T) {
	doc := &meta.Record{ID: "a", DocType: meta.DocTypeFile, Rev: "3-x", Sides: meta.Sides{Local: 3}}
	action := classify(doc, nil, meta.SideLocal)
	require.Equal(t, ActionOverwrite, action.Kind)
}

func TestClassify_MissingPrevAddsFolder(t *testing.T) {
	doc := &meta.Record{ID: "a", DocType: meta.DocTypeFolder, Rev: "3-x", Sides: meta.Sides{Local: 3}}
	action := classify(doc, nil, meta.SideLocal)
	require.Equal(t, ActionAddFolder, action.Kind)
}

func TestClassify_SameMd5UpdatesMetadataOnly(t *testing.T) {
	prev := &meta.Record{ID: "a", DocType: meta.DocTypeFile, MD5Sum: "abc"}
	doc := &meta.Record{ID: "a", DocType: meta.DocTypeFile, Rev: "3-x", MD5Sum: "abc", Executable: true, Sides: meta.Sides{Local: 3}}
	action := classify(doc, prev, meta.SideLocal)
	require.Equal(t, ActionUpdateMeta, action.Kind)
}

func TestClassify_DifferentMd5Overwrites(t *testing.T) {
	prev := &meta.Record{ID: "a", DocType: meta.DocTypeFile, MD5Sum: "abc"}
	doc := &meta.Record{ID: "a", DocType: meta.DocTypeFile, Rev: "3-x", MD5Sum: "def", Sides: meta.Sides{Local: 3}}
	action := classify(doc, prev, meta.SideLocal)
	require.Equal(t, ActionOverwrite, action.Kind)
}

func TestClassify_FolderWithPrevUpdatesFolder(t *testing.T) {
	prev := &meta.Record{ID: "a", DocType: meta.DocTypeFolder}
	doc := &meta.Record{ID: "a", DocType: meta.DocTypeFolder, Rev: "3-x", Sides: meta.Sides{Local: 3}}
	action := classify(doc, prev, meta.SideLocal)
	require.Equal(t, ActionUpdateFolder, action.Kind)
}
