package meta

import (
	"slices"
	"time"
)

// updatedAtTolerance is the slack watchers must apply when comparing
// UpdatedAt: filesystems differ by up to a few seconds on mtime
// resolution, so UpdatedAt never participates in equality directly.
const updatedAtTolerance = 3 * time.Second

// SameFolder reports whether two folder records are equal for the
// purposes of suppressing a no-op watcher event.
func SameFolder(a, b *Record) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID &&
		a.DocType == b.DocType &&
		a.Remote == b.Remote &&
		slices.Equal(a.Tags, b.Tags) &&
		a.Trashed == b.Trashed &&
		a.Ino == b.Ino
}

// SameFile reports whether two file records are equal for the purposes of
// suppressing a no-op watcher event. Executable is coerced to bool since
// some sides represent it as an int/permission bit.
func SameFile(a, b *Record) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID &&
		a.DocType == b.DocType &&
		a.MD5Sum == b.MD5Sum &&
		a.Remote == b.Remote &&
		slices.Equal(a.Tags, b.Tags) &&
		a.Size == b.Size &&
		a.Trashed == b.Trashed &&
		a.Ino == b.Ino &&
		a.Executable == b.Executable
}

// SameBinary reports whether two records refer to the same file content.
func SameBinary(a, b *Record) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.MD5Sum == b.MD5Sum
}
