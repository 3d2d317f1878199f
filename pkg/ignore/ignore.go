// Package ignore filters asset paths with gitignore-style rules read from a
// .cdnimgignore file at the root of the publish directory.
package ignore

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	gitignore "github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// FileName is the ignore file looked up in the base directory.
const FileName = ".cdnimgignore"

// Matcher provides gitignore-based file filtering relative to a base directory.
type Matcher struct {
	matcher  gitignore.Matcher
	patterns int
}

// NewMatcher loads FileName from baseDir. A missing file yields a matcher
// that only excludes the ignore file itself.
func NewMatcher(baseDir string) (*Matcher, error) {
	return newMatcher(osfs.New(baseDir))
}

func newMatcher(fs billy.Filesystem) (*Matcher, error) {
	all := []gitignore.Pattern{gitignore.ParsePattern("/"+FileName, nil)}

	lines, err := readIgnoreFile(fs, FileName)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", FileName, err)
	}
	for _, line := range lines {
		all = append(all, gitignore.ParsePattern(line, nil))
	}

	return &Matcher{
		matcher:  gitignore.NewMatcher(all),
		patterns: len(lines),
	}, nil
}

// Patterns returns the number of user patterns loaded from the ignore file.
func (m *Matcher) Patterns() int {
	return m.patterns
}

func readIgnoreFile(fs billy.Filesystem, name string) ([]string, error) {
	f, err := fs.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck // read-only handle

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns, scanner.Err()
}

// IsIgnored checks a base-relative, slash-separated file path.
func (m *Matcher) IsIgnored(relPath string) bool {
	parts := splitPath(relPath)
	if len(parts) == 0 {
		return false
	}
	return m.matcher.Match(parts, false)
}

// IsIgnoredDir checks a base-relative directory path.
func (m *Matcher) IsIgnoredDir(relPath string) bool {
	parts := splitPath(relPath)
	if len(parts) == 0 {
		return false
	}
	return m.matcher.Match(parts, true)
}

// splitPath converts a slash-separated path into components for go-git matching
func splitPath(path string) []string {
	if path == "" || path == "." {
		return nil
	}
	path = strings.TrimPrefix(path, "/")

	parts := strings.Split(path, "/")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if part != "" && part != "." {
			result = append(result, part)
		}
	}
	return result
}
