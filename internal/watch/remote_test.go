package watch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cozysync/engine/internal/meta"
	"github.com/cozysync/engine/internal/side"
	"github.com/cozysync/engine/internal/store"
)

type fakeLister struct {
	entries []side.BlobInfo
	err     error
}

func (f *fakeLister) ListBlobs(ctx context.Context) ([]side.BlobInfo, error) {
	return f.entries, f.err
}

func newTestPoller(t *testing.T, entries []side.BlobInfo) (*RemotePoller, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	p := NewRemotePoller(&fakeLister{entries: entries}, meta.IDModeCaseSensitive, meta.PlatformUnix, t.TempDir(), st)
	return p, st
}

func TestRemotePoller_PollAddsNewRecord(t *testing.T) {
	p, st := newTestPoller(t, []side.BlobInfo{
		{Key: "foo.txt", Path: "foo.txt", DocType: "file", MD5Sum: "rL0Y20zC+Fzt72VPzMSk2A==", Size: 5},
	})

	require.NoError(t, p.poll(context.Background()))

	doc, err := st.Get("foo.txt")
	require.NoError(t, err)
	require.Equal(t, 1, doc.Sides.Remote)
	require.Equal(t, int64(5), doc.Size)
}

func TestRemotePoller_PollSkipsUnchangedEntry(t *testing.T) {
	entries := []side.BlobInfo{
		{Key: "foo.txt", Path: "foo.txt", DocType: "file", MD5Sum: "rL0Y20zC+Fzt72VPzMSk2A==", Size: 5},
	}
	p, st := newTestPoller(t, entries)

	require.NoError(t, p.poll(context.Background()))
	first, err := st.Get("foo.txt")
	require.NoError(t, err)

	require.NoError(t, p.poll(context.Background()))
	second, err := st.Get("foo.txt")
	require.NoError(t, err)
	require.Equal(t, first.Rev, second.Rev)
}

func TestRemotePoller_PollTrashedEntry(t *testing.T) {
	p, st := newTestPoller(t, []side.BlobInfo{
		{Key: "gone.txt", Path: "gone.txt", DocType: "file", MD5Sum: "rL0Y20zC+Fzt72VPzMSk2A==", Trashed: true},
	})

	require.NoError(t, p.poll(context.Background()))

	doc, err := st.Get("gone.txt")
	require.NoError(t, err)
	require.True(t, doc.Trashed)
	require.True(t, doc.Deleted)
}

func TestRemotePoller_PollFolder(t *testing.T) {
	p, st := newTestPoller(t, []side.BlobInfo{
		{Key: "sub", Path: "sub", DocType: "folder"},
	})

	require.NoError(t, p.poll(context.Background()))

	doc, err := st.Get("sub")
	require.NoError(t, err)
	require.Equal(t, meta.DocTypeFolder, doc.DocType)
}
