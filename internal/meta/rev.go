package meta

import (
	"fmt"
	"strconv"
	"strings"
)

// ExtractRev parses the integer generation number out of a store rev of
// the form "N-hash". An empty rev extracts to 0 (never persisted).
func ExtractRev(rev string) (int, error) {
	if rev == "" {
		return 0, nil
	}
	n, _, ok := strings.Cut(rev, "-")
	if !ok {
		return 0, fmt.Errorf("meta: malformed rev %q", rev)
	}
	v, err := strconv.Atoi(n)
	if err != nil {
		return 0, fmt.Errorf("meta: malformed rev %q: %w", rev, err)
	}
	return v, nil
}

// MustExtractRev is ExtractRev for call sites that have already validated
// the rev came from the store and cannot be malformed.
func MustExtractRev(rev string) int {
	n, err := ExtractRev(rev)
	if err != nil {
		panic(err)
	}
	return n
}
