package meta

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// IDMode selects the platform-specific rule used to derive a document id
// from its path. It is an explicit constructor parameter rather than a
// runtime.GOOS check so every mode stays testable on any host.
type IDMode int

const (
	// IDModeCaseSensitive is used on case-sensitive filesystems (most
	// Linux setups): the id is the path unchanged.
	IDModeCaseSensitive IDMode = iota
	// IDModeHFS matches HFS+-style filesystems: case-preserving,
	// case-insensitive, Unicode-NFD. The id is NFD(path) upper-cased.
	IDModeHFS
	// IDModeNTFS matches NTFS-style filesystems: case-preserving,
	// case-insensitive. The id is path upper-cased.
	IDModeNTFS
)

// DeriveID computes the canonical id for path under mode. Id equality is
// cozysync's "same local entity" test; the remote counterpart is tracked
// separately via Record.Remote.ID.
//
// DeriveID is idempotent: DeriveID(mode, DeriveID(mode, p)) == DeriveID(mode, p).
func DeriveID(mode IDMode, path string) string {
	switch mode {
	case IDModeHFS:
		return strings.ToUpper(norm.NFD.String(path))
	case IDModeNTFS:
		return strings.ToUpper(path)
	default:
		return path
	}
}
