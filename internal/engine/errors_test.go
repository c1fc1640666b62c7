package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cozysync/engine/internal/meta"
	"github.com/cozysync/engine/internal/side"
	"github.com/cozysync/engine/internal/side/sidetest"
	"github.com/cozysync/engine/internal/store"
)

func TestHandleApplyError_DiskFull(t *testing.T) {
	e, _, _, _ := newTestEngine(t)

	err := e.handleApplyError(context.Background(), fmt.Errorf("write: %w", syscall.ENOSPC))
	require.ErrorIs(t, err, ErrDiskFull)
}

func TestHandleApplyError_QuotaExceeded(t *testing.T) {
	e, _, _, _ := newTestEngine(t)

	err := e.handleApplyError(context.Background(), &side.HTTPError{StatusCode: httpStatusPayloadTooLarge})
	require.ErrorIs(t, err, ErrQuotaExceeded)
}

func TestHandleApplyError_Revoked(t *testing.T) {
	e, _, _, remote := newTestEngine(t)
	remote.SetDiskErr(&side.HTTPError{StatusCode: httpStatusBadRequest})

	err := e.handleApplyError(context.Background(), errors.New("write failed"))
	require.ErrorIs(t, err, ErrRevoked)
}

func TestHandleApplyError_WrongPermissions(t *testing.T) {
	e, _, _, remote := newTestEngine(t)
	remote.SetDiskErr(&side.HTTPError{StatusCode: httpStatusForbidden})

	err := e.handleApplyError(context.Background(), errors.New("write failed"))
	require.ErrorIs(t, err, ErrWrongPermissions)
}

func TestHandleApplyError_NoProberSkipsOffline(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	local := sidetest.New(meta.SideLocal)
	remote := noProberSide{sidetest.New(meta.SideRemote)}
	local.SetOpposite(remote)
	remote.inner.SetOpposite(local)

	e := New(st, local, remote, WithoutLiveWait())

	err = e.handleApplyError(context.Background(), errors.New("write failed"))
	require.NoError(t, err, "no diskUsageProber means the caller just records a per-doc error")
}

// noProberSide forwards to a RecordingSide without promoting its
// DiskUsage method, so the engine's diskUsageProber type-assertion fails
// the way it would against a Side that never implements the probe.
type noProberSide struct {
	inner *sidetest.RecordingSide
}

func (n noProberSide) Name() meta.SideName      { return n.inner.Name() }
func (n noProberSide) SetOpposite(o side.Side)  { n.inner.SetOpposite(o) }
func (n noProberSide) AddFile(ctx context.Context, doc *meta.Record) error {
	return n.inner.AddFile(ctx, doc)
}
func (n noProberSide) AddFolder(ctx context.Context, doc *meta.Record) error {
	return n.inner.AddFolder(ctx, doc)
}
func (n noProberSide) OverwriteFile(ctx context.Context, doc, oldDoc *meta.Record) error {
	return n.inner.OverwriteFile(ctx, doc, oldDoc)
}
func (n noProberSide) UpdateFileMetadata(ctx context.Context, doc, oldDoc *meta.Record) error {
	return n.inner.UpdateFileMetadata(ctx, doc, oldDoc)
}
func (n noProberSide) UpdateFolder(ctx context.Context, doc, oldDoc *meta.Record) error {
	return n.inner.UpdateFolder(ctx, doc, oldDoc)
}
func (n noProberSide) MoveFile(ctx context.Context, doc, from *meta.Record) error {
	return n.inner.MoveFile(ctx, doc, from)
}
func (n noProberSide) MoveFolder(ctx context.Context, doc, from *meta.Record) error {
	return n.inner.MoveFolder(ctx, doc, from)
}
func (n noProberSide) Trash(ctx context.Context, doc *meta.Record) error {
	return n.inner.Trash(ctx, doc)
}
func (n noProberSide) DeleteFolder(ctx context.Context, doc *meta.Record) error {
	return n.inner.DeleteFolder(ctx, doc)
}
func (n noProberSide) AssignNewRev(ctx context.Context, doc *meta.Record) error {
	return n.inner.AssignNewRev(ctx, doc)
}
func (n noProberSide) ReadContent(ctx context.Context, doc *meta.Record) (io.ReadCloser, error) {
	return n.inner.ReadContent(ctx, doc)
}

var _ side.Side = noProberSide{}

func TestOfflineWait_RetriesUntilOnline(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	local := sidetest.New(meta.SideLocal)
	remote := sidetest.New(meta.SideRemote)
	local.SetOpposite(remote)
	remote.SetOpposite(local)

	e := New(st, local, remote, WithoutLiveWait(), WithOfflineProbeInterval(5*time.Millisecond))
	remote.SetDiskErr(errors.New("network unreachable"))

	sub := e.Subscribe()
	defer e.Unsubscribe(sub)

	go func() {
		time.Sleep(12 * time.Millisecond)
		remote.SetDiskErr(nil)
	}()

	err = e.handleApplyError(context.Background(), errors.New("transient failure"))
	require.NoError(t, err)

	require.Equal(t, EventOffline, (<-sub).Kind)
	require.Equal(t, EventOnline, (<-sub).Kind)
}

// Scenario 2: remote delete while offline. A record deleted remotely
// (sides={local:1,remote:2}) needs to trash locally; the first attempt
// fails and the resulting disk-usage probe also fails, driving the
// engine into the offline loop. Once connectivity returns the probe
// succeeds, the retry trashes locally, and the cursor advances.
func TestScenario_RemoteDeleteWhileOffline(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	local := sidetest.New(meta.SideLocal)
	remote := sidetest.New(meta.SideRemote)
	local.SetOpposite(remote)
	remote.SetOpposite(local)

	e := New(st, local, remote, WithoutLiveWait(), WithOfflineProbeInterval(5*time.Millisecond))
	ctx := context.Background()

	_, err = st.Put(&meta.Record{
		ID: "a.txt", Path: "a.txt", DocType: meta.DocTypeFile,
		Sides: meta.Sides{Local: 1, Remote: 1},
	})
	require.NoError(t, err)

	doc, err := st.Get("a.txt")
	require.NoError(t, err)
	doc.Deleted = true
	doc.Trashed = true
	doc.Sides = meta.Sides{Local: 1, Remote: 2}
	_, err = st.Put(doc)
	require.NoError(t, err)

	local.SetFail("Trash", errors.New("connection reset"))
	remote.SetDiskErr(errors.New("network unreachable"))

	go func() {
		time.Sleep(12 * time.Millisecond)
		remote.SetDiskErr(nil)
		local.ClearFail("Trash")
	}()

	require.NoError(t, e.sync(ctx))

	require.True(t, local.HasCall("Trash"))

	seq, err := st.GetLocalSeq()
	require.NoError(t, err)
	require.True(t, seq > 0, "the retry must advance the cursor once it succeeds")
}
