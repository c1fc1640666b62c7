package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cozysync/engine/internal/meta"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openTestStore(t)

	doc := &meta.Record{ID: "foo.txt", DocType: meta.DocTypeFile, Path: "foo.txt"}
	rev, err := s.Put(doc)
	require.NoError(t, err)
	require.NotEmpty(t, rev)

	got, err := s.Get("foo.txt")
	require.NoError(t, err)
	require.Equal(t, rev, got.Rev)
	require.Equal(t, "foo.txt", got.Path)
}

func TestGet_NotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPut_ConflictOnStaleRev(t *testing.T) {
	s := openTestStore(t)

	doc := &meta.Record{ID: "a", DocType: meta.DocTypeFile, Path: "a"}
	_, err := s.Put(doc)
	require.NoError(t, err)

	stale := &meta.Record{ID: "a", DocType: meta.DocTypeFile, Path: "a", Rev: "999-bogus"}
	_, err = s.Put(stale)
	require.ErrorIs(t, err, ErrConflict)
}

func TestPut_CreateConflictsWhenAlreadyExists(t *testing.T) {
	s := openTestStore(t)
	doc := &meta.Record{ID: "a", DocType: meta.DocTypeFile, Path: "a"}
	_, err := s.Put(doc)
	require.NoError(t, err)

	fresh := &meta.Record{ID: "a", DocType: meta.DocTypeFile, Path: "a"} // empty rev
	_, err = s.Put(fresh)
	require.ErrorIs(t, err, ErrConflict)
}

func TestGetPreviousRev(t *testing.T) {
	s := openTestStore(t)

	doc := &meta.Record{ID: "a", DocType: meta.DocTypeFile, Path: "a", Size: 1}
	rev1, err := s.Put(doc)
	require.NoError(t, err)
	n1, _ := meta.ExtractRev(rev1)

	doc.Size = 2
	_, err = s.Put(doc)
	require.NoError(t, err)

	prev, err := s.GetPreviousRev("a", n1)
	require.NoError(t, err)
	require.Equal(t, int64(1), prev.Size)
}

func TestGetPreviousRev_NotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetPreviousRev("nope", 5)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestChanges_OrderedAndByPath(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Put(&meta.Record{ID: "_design/foo", DocType: meta.DocTypeFile, Path: "_design/foo"})
	require.NoError(t, err)
	_, err = s.Put(&meta.Record{ID: "a", DocType: meta.DocTypeFile, Path: "a"})
	require.NoError(t, err)
	_, err = s.Put(&meta.Record{ID: "b", DocType: meta.DocTypeFile, Path: "b"})
	require.NoError(t, err)

	entries, err := s.Changes(0, ChangesOptions{ByPath: true, IncludeDocs: true})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "a", entries[0].ID)
	require.Equal(t, "b", entries[1].ID)
}

func TestChanges_Limit(t *testing.T) {
	s := openTestStore(t)
	for _, id := range []string{"a", "b", "c"} {
		_, err := s.Put(&meta.Record{ID: id, DocType: meta.DocTypeFile, Path: id})
		require.NoError(t, err)
	}

	entries, err := s.Changes(0, ChangesOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "a", entries[0].ID)
}

func TestLocalSeq_Monotonic(t *testing.T) {
	s := openTestStore(t)

	seq, err := s.GetLocalSeq()
	require.NoError(t, err)
	require.Equal(t, 0, seq)

	require.NoError(t, s.SetLocalSeq(5))
	seq, err = s.GetLocalSeq()
	require.NoError(t, err)
	require.Equal(t, 5, seq)
}

func TestLock_ExcludesConcurrentWriters(t *testing.T) {
	s := openTestStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	tok, err := s.Lock(ctx)
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		tok2, err := s.Lock(context.Background())
		require.NoError(t, err)
		tok2.Unlock()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatalf("second lock acquired while first still held")
	case <-time.After(50 * time.Millisecond):
	}

	tok.Unlock()
	<-acquired
}

func TestWaitForChange(t *testing.T) {
	s := openTestStore(t)

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		done <- s.WaitForChange(ctx)
	}()

	time.Sleep(10 * time.Millisecond)
	_, err := s.Put(&meta.Record{ID: "a", DocType: meta.DocTypeFile, Path: "a"})
	require.NoError(t, err)

	require.NoError(t, <-done)
}
