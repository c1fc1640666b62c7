package side

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cozysync/engine/internal/meta"
	"github.com/cozysync/engine/internal/pathutil"
)

const tmpDirName = ".cozysync.tmp"
const trashDirName = ".trash"

// LocalSide applies changes to the filesystem rooted at Root.
type LocalSide struct {
	Root     string
	opposite Side
}

// NewLocalSide constructs a LocalSide rooted at root. root must already
// exist.
func NewLocalSide(root string) *LocalSide {
	return &LocalSide{Root: root}
}

func (l *LocalSide) Name() meta.SideName { return meta.SideLocal }

func (l *LocalSide) SetOpposite(opposite Side) { l.opposite = opposite }

func (l *LocalSide) abs(path string) string {
	return filepath.Join(l.Root, filepath.FromSlash(path))
}

func (l *LocalSide) tmpDir() string {
	return filepath.Join(l.Root, tmpDirName)
}

func (l *LocalSide) AddFile(ctx context.Context, doc *meta.Record) error {
	return l.writeFromOpposite(ctx, doc)
}

func (l *LocalSide) AddFolder(ctx context.Context, doc *meta.Record) error {
	return pathutil.EnsureDir(l.abs(doc.Path))
}

func (l *LocalSide) OverwriteFile(ctx context.Context, doc, oldDoc *meta.Record) error {
	return l.writeFromOpposite(ctx, doc)
}

func (l *LocalSide) UpdateFileMetadata(ctx context.Context, doc, oldDoc *meta.Record) error {
	if doc.Executable {
		return os.Chmod(l.abs(doc.Path), 0o755)
	}
	return os.Chmod(l.abs(doc.Path), 0o644)
}

func (l *LocalSide) UpdateFolder(ctx context.Context, doc, oldDoc *meta.Record) error {
	return pathutil.EnsureDir(l.abs(doc.Path))
}

func (l *LocalSide) MoveFile(ctx context.Context, doc, from *meta.Record) error {
	return l.move(from.Path, doc.Path)
}

func (l *LocalSide) MoveFolder(ctx context.Context, doc, from *meta.Record) error {
	return l.move(from.Path, doc.Path)
}

func (l *LocalSide) move(fromPath, toPath string) error {
	src := l.abs(fromPath)
	dst := l.abs(toPath)
	if err := pathutil.EnsureParent(dst); err != nil {
		return fmt.Errorf("side: local move ensure parent: %w", err)
	}
	if !pathutil.FileExists(src) && !pathutil.DirExists(src) {
		return ErrNotExist
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("side: local move %s -> %s: %w", fromPath, toPath, err)
	}
	return nil
}

// Trash renames doc's file or folder into the datasite's .trash directory,
// timestamped so repeated trashes of the same path never collide.
func (l *LocalSide) Trash(ctx context.Context, doc *meta.Record) error {
	src := l.abs(doc.Path)
	if !pathutil.FileExists(src) && !pathutil.DirExists(src) {
		return nil // already gone; trash is idempotent
	}

	dst := filepath.Join(l.Root, trashDirName, fmt.Sprintf("%d-%s", time.Now().UnixNano(), filepath.Base(doc.Path)))
	if err := pathutil.EnsureDir(filepath.Dir(dst)); err != nil {
		return fmt.Errorf("side: local trash ensure dir: %w", err)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("side: local trash %s: %w", doc.Path, err)
	}
	return nil
}

func (l *LocalSide) DeleteFolder(ctx context.Context, doc *meta.Record) error {
	if err := os.Remove(l.abs(doc.Path)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("side: local delete folder %s: %w", doc.Path, err)
	}
	return nil
}

func (l *LocalSide) AssignNewRev(ctx context.Context, doc *meta.Record) error {
	return nil
}

func (l *LocalSide) ReadContent(ctx context.Context, doc *meta.Record) (io.ReadCloser, error) {
	f, err := os.Open(l.abs(doc.Path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("side: local read %s: %w", doc.Path, err)
	}
	return f, nil
}

// writeFromOpposite copies doc's content from the opposite side into an
// atomically-renamed local file, verifying the MD5 checksum before the
// rename commits.
func (l *LocalSide) writeFromOpposite(ctx context.Context, doc *meta.Record) (err error) {
	dst := l.abs(doc.Path)
	if err := pathutil.EnsureParent(dst); err != nil {
		return fmt.Errorf("side: local write ensure parent: %w", err)
	}
	if err := pathutil.EnsureDir(l.tmpDir()); err != nil {
		return fmt.Errorf("side: local write ensure tmp dir: %w", err)
	}

	src, err := l.opposite.ReadContent(ctx, doc)
	if err != nil {
		return fmt.Errorf("side: local write %s: %w", doc.Path, err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(l.tmpDir(), filepath.Base(dst)+".tmp.*")
	if err != nil {
		return fmt.Errorf("side: local write create temp: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	hasher := md5.New()
	if _, err := io.Copy(io.MultiWriter(tmp, hasher), src); err != nil {
		return fmt.Errorf("side: local write copy %s: %w", doc.Path, err)
	}

	if doc.MD5Sum != "" {
		got := base64.StdEncoding.EncodeToString(hasher.Sum(nil))
		if got != doc.MD5Sum {
			return fmt.Errorf("side: local write %s: checksum mismatch: want %s got %s", doc.Path, doc.MD5Sum, got)
		}
	}

	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("side: local write sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("side: local write close: %w", err)
	}

	mode := os.FileMode(0o644)
	if doc.Executable {
		mode = 0o755
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		return fmt.Errorf("side: local write chmod: %w", err)
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		return fmt.Errorf("side: local write rename %s: %w", doc.Path, err)
	}
	success = true
	return nil
}

var _ Side = (*LocalSide)(nil)
