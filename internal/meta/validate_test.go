package meta

import "testing"

func TestInvalidPath(t *testing.T) {
	cases := []struct {
		path    string
		invalid bool
	}{
		{"foo/bar.txt", false},
		{"/foo/bar.txt", false}, // leading separator stripped
		{"", true},
		{".", true},
		{"../etc/passwd", true},
		{"foo/../bar", true},
	}
	for _, c := range cases {
		doc := &Record{Path: c.path}
		if got := InvalidPath(doc); got != c.invalid {
			t.Errorf("InvalidPath(%q) = %v, want %v", c.path, got, c.invalid)
		}
	}
}

func TestInvalidChecksum(t *testing.T) {
	valid := "rL0Y20zC+Fzt72VPzMSk2A=="
	doc := &Record{DocType: DocTypeFile, MD5Sum: valid}
	if InvalidChecksum(doc) {
		t.Fatalf("expected valid checksum to pass")
	}

	missing := &Record{DocType: DocTypeFile}
	if !InvalidChecksum(missing) {
		t.Fatalf("missing md5sum on a file must be invalid")
	}

	folder := &Record{DocType: DocTypeFolder}
	if InvalidChecksum(folder) {
		t.Fatalf("folders without md5sum are valid")
	}
}

func TestInvalidChecksum_WrongLength(t *testing.T) {
	// base64 of 15 bytes
	doc := &Record{DocType: DocTypeFile, MD5Sum: "rL0Y20zC+Fzt72VPzMSk"}
	if !InvalidChecksum(doc) {
		t.Fatalf("15-byte decode should be invalid")
	}
}

func TestDetectPlatformIncompatibilities_Windows(t *testing.T) {
	doc := &Record{Path: "CON/file.txt", DocType: DocTypeFile}
	issues := DetectPlatformIncompatibilities(doc, PlatformWindows, "/sync")
	if len(issues) == 0 {
		t.Fatalf("expected reserved-name issue")
	}

	doc2 := &Record{Path: "some file<name>.txt", DocType: DocTypeFile}
	issues2 := DetectPlatformIncompatibilities(doc2, PlatformWindows, "/sync")
	if len(issues2) == 0 {
		t.Fatalf("expected forbidden-char issue")
	}
}

func TestDetectPlatformIncompatibilities_Unix(t *testing.T) {
	doc := &Record{Path: "CON/file<name>.txt", DocType: DocTypeFile}
	issues := DetectPlatformIncompatibilities(doc, PlatformUnix, "/sync")
	if len(issues) != 0 {
		t.Fatalf("unix should not enforce windows restrictions, got %v", issues)
	}
}
