// Package pathfinder resolves user supplied path patterns (literal paths or
// doublestar globs) against a base directory.
package pathfinder

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fulmenhq/cdnimg/pkg/ignore"
)

// ImageExtensions are the file extensions ImagePattern expands a directory to.
var ImageExtensions = []string{
	"avif", "gif", "jpeg", "jpg", "png", "svg", "webp",
	"AVIF", "GIF", "JPEG", "JPG", "PNG", "SVG", "WEBP",
}

// InvalidPathError reports patterns that are neither a string nor a list of
// strings, or that are not valid glob syntax.
type InvalidPathError struct {
	Value  interface{}
	Reason string
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("invalid path pattern %v: %s", e.Value, e.Reason)
}

// Options tune Match.
type Options struct {
	// Ignore filters matches; nil loads ignore.FileName from the base directory.
	Ignore *ignore.Matcher
	// NoIgnore disables ignore-file filtering entirely.
	NoIgnore bool
}

// Normalize turns a config value into an ordered list of patterns.
func Normalize(patterns interface{}) ([]string, error) {
	switch v := patterns.(type) {
	case string:
		return []string{v}, nil
	case []string:
		return append([]string(nil), v...), nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, &InvalidPathError{Value: patterns, Reason: fmt.Sprintf("element %d is %T, not a string", i, item)}
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, &InvalidPathError{Value: patterns, Reason: fmt.Sprintf("expected string or list of strings, got %T", patterns)}
	}
}

// Match returns the files under baseDir matching any of the patterns, joined
// with baseDir, sorted and de-duplicated. No matches is not an error.
func Match(baseDir string, patterns interface{}) ([]string, error) {
	return MatchWithOptions(baseDir, patterns, Options{})
}

// MatchWithOptions is Match with explicit ignore handling.
func MatchWithOptions(baseDir string, patterns interface{}, opts Options) ([]string, error) {
	list, err := Normalize(patterns)
	if err != nil {
		return nil, err
	}

	ig := opts.Ignore
	if ig == nil && !opts.NoIgnore {
		if ig, err = ignore.NewMatcher(baseDir); err != nil {
			return nil, err
		}
	}

	fsys := os.DirFS(baseDir)
	seen := make(map[string]struct{})
	var files []string

	for _, raw := range list {
		pattern := relativePattern(raw)
		if !doublestar.ValidatePattern(pattern) {
			return nil, &InvalidPathError{Value: raw, Reason: doublestar.ErrBadPattern.Error()}
		}

		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			if errors.Is(err, doublestar.ErrBadPattern) {
				return nil, &InvalidPathError{Value: raw, Reason: err.Error()}
			}
			return nil, fmt.Errorf("glob %q in %s: %w", raw, baseDir, err)
		}

		for _, rel := range matches {
			if ig != nil && ig.IsIgnored(rel) {
				continue
			}
			if _, dup := seen[rel]; dup {
				continue
			}
			seen[rel] = struct{}{}
			files = append(files, filepath.Join(baseDir, filepath.FromSlash(rel)))
		}
	}

	sort.Strings(files)
	if files == nil {
		files = []string{}
	}
	return files, nil
}

// relativePattern makes a site-rooted pattern ("/images/*.png") relative to
// the base directory, as io/fs requires.
func relativePattern(p string) string {
	p = filepath.ToSlash(strings.TrimSpace(p))
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return "**"
	}
	p = path.Clean(p)
	if p == "." {
		return "**"
	}
	return p
}

// HasMeta reports whether p contains glob metacharacters.
func HasMeta(p string) bool {
	return strings.ContainsAny(p, "*?[{")
}

// ImagePattern expands a media directory ("/images") into a glob matching the
// image files below it. Patterns that already contain glob syntax are
// returned unchanged.
func ImagePattern(mediaPath string) string {
	if HasMeta(mediaPath) {
		return mediaPath
	}
	dir := strings.TrimRight(filepath.ToSlash(mediaPath), "/")
	return dir + "/**/*.{" + strings.Join(ImageExtensions, ",") + "}"
}

// MediaPrefix returns the literal, slash-rooted directory part of a pattern:
// "/images/**/*.png" -> "/images". It is the path redirects are anchored on.
func MediaPrefix(pattern string) string {
	p := filepath.ToSlash(strings.TrimSpace(pattern))
	if HasMeta(p) {
		base, _ := doublestar.SplitPattern(p)
		p = base
	}
	p = "/" + strings.Trim(p, "/")
	if p == "/." {
		return "/"
	}
	return path.Clean(p)
}

// PublishPath converts a file under outputDir into its site path
// ("/images/a.png").
func PublishPath(outputDir, file string) (string, error) {
	rel, err := filepath.Rel(outputDir, file)
	if err != nil {
		return "", fmt.Errorf("publish path for %s: %w", file, err)
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("publish path for %s: outside %s", file, outputDir)
	}
	return "/" + strings.TrimPrefix(rel, "./"), nil
}
