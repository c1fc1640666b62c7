package meta

import "testing"

func TestDeriveID_Unix(t *testing.T) {
	if DeriveID(IDModeCaseSensitive, "a/B") == DeriveID(IDModeCaseSensitive, "A/b") {
		t.Fatalf("unix ids should be case-distinct")
	}
}

func TestDeriveID_NTFS(t *testing.T) {
	if DeriveID(IDModeNTFS, "a/B") != DeriveID(IDModeNTFS, "A/b") {
		t.Fatalf("ntfs ids should collapse case")
	}
}

func TestDeriveID_HFS(t *testing.T) {
	if DeriveID(IDModeHFS, "Café") != DeriveID(IDModeHFS, "CAFÉ") {
		t.Fatalf("hfs ids should collapse case and normalization form")
	}
}

func TestDeriveID_Idempotent(t *testing.T) {
	for _, mode := range []IDMode{IDModeCaseSensitive, IDModeHFS, IDModeNTFS} {
		p := "some/Café/Path.txt"
		once := DeriveID(mode, p)
		twice := DeriveID(mode, once)
		if once != twice {
			t.Fatalf("mode %v: DeriveID not idempotent: %q != %q", mode, once, twice)
		}
	}
}
