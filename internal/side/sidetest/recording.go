// Package sidetest provides a Side implementation that records every
// call instead of performing I/O, for engine-level scenario tests.
package sidetest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/cozysync/engine/internal/meta"
	"github.com/cozysync/engine/internal/side"
)

// Call records one invocation of a Side method.
type Call struct {
	Method string
	Doc    *meta.Record
	Other  *meta.Record // oldDoc / from, when applicable
}

// RecordingSide implements side.Side, appending every call to Calls and
// serving ReadContent from Contents keyed by record id. Fail, when set,
// is returned by every call whose Method matches, instead of success,
// until it is cleared.
// It also implements DiskUsage, so it satisfies the engine's
// diskUsageProber interface the same way side.RemoteSide does; DiskErr
// controls what that probe returns.
type RecordingSide struct {
	NameVal  meta.SideName
	opposite side.Side

	mu       sync.Mutex
	Calls    []Call
	Contents map[string][]byte
	Fail     map[string]error
	DiskErr  error
}

func New(name meta.SideName) *RecordingSide {
	return &RecordingSide{NameVal: name, Contents: map[string][]byte{}, Fail: map[string]error{}}
}

func (r *RecordingSide) Name() meta.SideName    { return r.NameVal }
func (r *RecordingSide) SetOpposite(o side.Side) { r.opposite = o }

func (r *RecordingSide) record(method string, doc, other *meta.Record) error {
	r.mu.Lock()
	r.Calls = append(r.Calls, Call{Method: method, Doc: doc, Other: other})
	err := r.Fail[method]
	r.mu.Unlock()
	return err
}

func (r *RecordingSide) AddFile(ctx context.Context, doc *meta.Record) error {
	if err := r.record("AddFile", doc, nil); err != nil {
		return err
	}
	content, err := r.opposite.ReadContent(ctx, doc)
	if err != nil {
		return err
	}
	defer content.Close()
	body, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.Contents[doc.ID] = body
	r.mu.Unlock()
	return nil
}

func (r *RecordingSide) AddFolder(ctx context.Context, doc *meta.Record) error {
	return r.record("AddFolder", doc, nil)
}

func (r *RecordingSide) OverwriteFile(ctx context.Context, doc, oldDoc *meta.Record) error {
	if err := r.record("OverwriteFile", doc, oldDoc); err != nil {
		return err
	}
	return r.AddFile(ctx, doc)
}

func (r *RecordingSide) UpdateFileMetadata(ctx context.Context, doc, oldDoc *meta.Record) error {
	return r.record("UpdateFileMetadata", doc, oldDoc)
}

func (r *RecordingSide) UpdateFolder(ctx context.Context, doc, oldDoc *meta.Record) error {
	return r.record("UpdateFolder", doc, oldDoc)
}

func (r *RecordingSide) MoveFile(ctx context.Context, doc, from *meta.Record) error {
	return r.record("MoveFile", doc, from)
}

func (r *RecordingSide) MoveFolder(ctx context.Context, doc, from *meta.Record) error {
	return r.record("MoveFolder", doc, from)
}

func (r *RecordingSide) Trash(ctx context.Context, doc *meta.Record) error {
	return r.record("Trash", doc, nil)
}

func (r *RecordingSide) DeleteFolder(ctx context.Context, doc *meta.Record) error {
	return r.record("DeleteFolder", doc, nil)
}

func (r *RecordingSide) AssignNewRev(ctx context.Context, doc *meta.Record) error {
	return r.record("AssignNewRev", doc, nil)
}

// DiskUsage reports DiskErr, letting tests drive the engine's offline
// probe loop without a real remote.
func (r *RecordingSide) DiskUsage(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.DiskErr
}

// SetDiskErr updates DiskErr under lock, for tests that flip it from a
// goroutine concurrent with the engine's probe loop.
func (r *RecordingSide) SetDiskErr(err error) {
	r.mu.Lock()
	r.DiskErr = err
	r.mu.Unlock()
}

// SetFail installs the error record returns for method, under lock.
func (r *RecordingSide) SetFail(method string, err error) {
	r.mu.Lock()
	r.Fail[method] = err
	r.mu.Unlock()
}

// ClearFail removes a previously installed SetFail for method, under lock.
func (r *RecordingSide) ClearFail(method string) {
	r.mu.Lock()
	delete(r.Fail, method)
	r.mu.Unlock()
}

func (r *RecordingSide) ReadContent(ctx context.Context, doc *meta.Record) (io.ReadCloser, error) {
	r.mu.Lock()
	body, ok := r.Contents[doc.ID]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("sidetest: no content set for %s", doc.ID)
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

// HasCall reports whether method was invoked at least once.
func (r *RecordingSide) HasCall(method string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.Calls {
		if c.Method == method {
			return true
		}
	}
	return false
}

var _ side.Side = (*RecordingSide)(nil)
