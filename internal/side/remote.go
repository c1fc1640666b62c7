package side

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/imroc/req/v3"

	"github.com/cozysync/engine/internal/meta"
)

const (
	pathBlob      = "/api/v1/blob"
	pathBlobTrash = "/api/v1/blob/trash"
	pathBlobMove  = "/api/v1/blob/move"
	pathBlobDir   = "/api/v1/blob/dir"
	pathBlobList  = "/api/v1/blob/list"
	pathDiskUsage = "/api/v1/disk-usage"
)

// BlobInfo is one entry of the cozy's full listing, enough for the
// remote watcher (internal/watch) to build a meta.Record without a
// separate metadata fetch per entry.
type BlobInfo struct {
	Key        string    `json:"key"`
	Path       string    `json:"path"`
	DocType    string    `json:"docType"`
	MD5Sum     string    `json:"md5sum"`
	Size       int64     `json:"size"`
	Executable bool      `json:"executable"`
	Trashed    bool      `json:"trashed"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// RemoteSide applies changes against the cozy's blob API over HTTP.
type RemoteSide struct {
	client   *req.Client
	opposite Side
}

// NewRemoteSide constructs a RemoteSide against baseURL, authenticating
// requests with token.
func NewRemoteSide(baseURL, token string) *RemoteSide {
	client := req.C().
		SetBaseURL(baseURL).
		SetCommonBearerAuthToken(token).
		SetCommonRetryCount(2)
	return &RemoteSide{client: client}
}

func (r *RemoteSide) Name() meta.SideName { return meta.SideRemote }

func (r *RemoteSide) SetOpposite(opposite Side) { r.opposite = opposite }

func (r *RemoteSide) blobKey(doc *meta.Record) string {
	if doc.Remote.ID != "" {
		return doc.Remote.ID
	}
	return doc.ID
}

func (r *RemoteSide) AddFile(ctx context.Context, doc *meta.Record) error {
	return r.upload(ctx, doc)
}

func (r *RemoteSide) AddFolder(ctx context.Context, doc *meta.Record) error {
	resp, err := r.client.R().SetContext(ctx).
		SetBody(map[string]string{"key": r.blobKey(doc)}).
		Post(pathBlobDir)
	return classify(resp, err, "add folder")
}

func (r *RemoteSide) OverwriteFile(ctx context.Context, doc, oldDoc *meta.Record) error {
	return r.upload(ctx, doc)
}

func (r *RemoteSide) UpdateFileMetadata(ctx context.Context, doc, oldDoc *meta.Record) error {
	resp, err := r.client.R().SetContext(ctx).
		SetBody(map[string]any{"key": r.blobKey(doc), "executable": doc.Executable}).
		Patch(pathBlob)
	return classify(resp, err, "update metadata")
}

func (r *RemoteSide) UpdateFolder(ctx context.Context, doc, oldDoc *meta.Record) error {
	return nil // folders carry no metadata of their own remotely
}

func (r *RemoteSide) MoveFile(ctx context.Context, doc, from *meta.Record) error {
	return r.move(ctx, from, doc)
}

func (r *RemoteSide) MoveFolder(ctx context.Context, doc, from *meta.Record) error {
	return r.move(ctx, from, doc)
}

func (r *RemoteSide) move(ctx context.Context, from, to *meta.Record) error {
	resp, err := r.client.R().SetContext(ctx).
		SetBody(map[string]string{"from": r.blobKey(from), "to": r.blobKey(to)}).
		Post(pathBlobMove)
	return classify(resp, err, "move")
}

func (r *RemoteSide) Trash(ctx context.Context, doc *meta.Record) error {
	resp, err := r.client.R().SetContext(ctx).
		SetBody(map[string]string{"key": r.blobKey(doc)}).
		Post(pathBlobTrash)
	return classify(resp, err, "trash")
}

func (r *RemoteSide) DeleteFolder(ctx context.Context, doc *meta.Record) error {
	resp, err := r.client.R().SetContext(ctx).
		SetQueryParam("key", r.blobKey(doc)).
		Delete(pathBlobDir)
	return classify(resp, err, "delete folder")
}

func (r *RemoteSide) AssignNewRev(ctx context.Context, doc *meta.Record) error {
	return nil
}

func (r *RemoteSide) ReadContent(ctx context.Context, doc *meta.Record) (io.ReadCloser, error) {
	resp, err := r.client.R().SetContext(ctx).
		SetQueryParam("key", r.blobKey(doc)).
		Get(pathBlob)
	if err := classify(resp, err, "download"); err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// ListBlobs fetches the cozy's full current listing, used by the remote
// watcher (internal/watch) to drive its polling sync.
func (r *RemoteSide) ListBlobs(ctx context.Context) ([]BlobInfo, error) {
	var entries []BlobInfo
	resp, err := r.client.R().SetContext(ctx).
		SetSuccessResult(&entries).
		Get(pathBlobList)
	if err := classify(resp, err, "list"); err != nil {
		return nil, err
	}
	return entries, nil
}

// DiskUsage probes the cozy's health; the engine's error handler uses
// its classified failure to decide between "revoked", "wrong
// permissions", and "offline".
func (r *RemoteSide) DiskUsage(ctx context.Context) error {
	resp, err := r.client.R().SetContext(ctx).Get(pathDiskUsage)
	return classify(resp, err, "disk usage")
}

func (r *RemoteSide) upload(ctx context.Context, doc *meta.Record) error {
	content, err := r.opposite.ReadContent(ctx, doc)
	if err != nil {
		return fmt.Errorf("side: remote upload %s: %w", doc.Path, err)
	}
	defer content.Close()

	resp, err := r.client.R().SetContext(ctx).
		SetQueryParam("key", r.blobKey(doc)).
		SetBody(content).
		Put(pathBlob)
	return classify(resp, err, "upload")
}

// classify turns a req response/transport error into a Side error the
// engine's error handler can switch on by HTTP status.
func classify(resp *req.Response, requestErr error, op string) error {
	if requestErr != nil {
		return fmt.Errorf("side: remote %s: %w", op, requestErr)
	}
	if resp.IsSuccessState() {
		return nil
	}
	body, _ := resp.ToString()
	return &HTTPError{StatusCode: resp.StatusCode, Op: op, Body: body}
}

var _ Side = (*RemoteSide)(nil)
