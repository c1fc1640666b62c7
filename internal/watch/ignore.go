// Package watch provides the two external watchers that feed the
// reconciliation loop's change feed: a local filesystem watcher and a
// remote polling client. Neither applies anything; they only observe and
// upsert, leaving classification and application to the engine.
package watch

import (
	"bufio"
	"os"
	"path/filepath"

	gitignore "github.com/sabhiram/go-gitignore"
)

// ignoreFileName is the optional per-datasite override, read relative to
// the watched root, same spirit as a .gitignore.
const ignoreFileName = ".cozysyncignore"

var defaultIgnoreLines = []string{
	tmpDirName + "/",
	trashDirName + "/",
	".git/",
	".DS_Store",
	"Thumbs.db",
	"desktop.ini",
	"*.swp",
	"*.tmp",
	"*~",
	"__pycache__/",
	"*.pyc",
	".idea/",
	".vscode/",
}

// IgnoreList matches relative paths against a compiled set of gitignore
// patterns: cozysync's own housekeeping directories plus common editor
// and OS noise, extended by an optional ignore file at the datasite
// root.
type IgnoreList struct {
	baseDir string
	ignore  *gitignore.GitIgnore
}

// NewIgnoreList constructs an IgnoreList for the datasite rooted at
// baseDir. Call Load before the first ShouldIgnore.
func NewIgnoreList(baseDir string) *IgnoreList {
	return &IgnoreList{baseDir: baseDir}
}

// Load compiles the default patterns plus baseDir/.cozysyncignore, if
// present. A missing ignore file is not an error.
func (l *IgnoreList) Load() error {
	lines := append([]string(nil), defaultIgnoreLines...)

	f, err := os.Open(filepath.Join(l.baseDir, ignoreFileName))
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		l.ignore = gitignore.CompileIgnoreLines(lines...)
		return nil
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	l.ignore = gitignore.CompileIgnoreLines(lines...)
	return nil
}

// ShouldIgnore reports whether relPath (slash-separated, relative to the
// datasite root) matches an ignore pattern.
func (l *IgnoreList) ShouldIgnore(relPath string) bool {
	if l.ignore == nil {
		return false
	}
	return l.ignore.MatchesPath(relPath)
}
