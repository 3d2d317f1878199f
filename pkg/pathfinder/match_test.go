package pathfinder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fulmenhq/cdnimg/pkg/ignore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, base string, files ...string) {
	t.Helper()
	for _, f := range files {
		full := filepath.Join(base, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(f), 0o644))
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    interface{}
		expected []string
		wantErr  bool
	}{
		{"single string", "/images", []string{"/images"}, false},
		{"string slice", []string{"/a", "/b"}, []string{"/a", "/b"}, false},
		{"interface slice", []interface{}{"/a", "/b"}, []string{"/a", "/b"}, false},
		{"mixed slice", []interface{}{"/a", 3}, nil, true},
		{"number", 42, nil, true},
		{"nil", nil, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.input)
			if tt.wantErr {
				var ipe *InvalidPathError
				require.ErrorAs(t, err, &ipe)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestMatchImages(t *testing.T) {
	base := t.TempDir()
	writeFiles(t, base,
		"images/a.png",
		"images/b.png",
		"images/nested/c.jpg",
		"images/readme.txt",
		"css/site.css",
	)

	files, err := Match(base, ImagePattern("/images"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(base, "images", "a.png"),
		filepath.Join(base, "images", "b.png"),
		filepath.Join(base, "images", "nested", "c.jpg"),
	}, files)
}

func TestMatchNoMatchesIsNotAnError(t *testing.T) {
	base := t.TempDir()
	writeFiles(t, base, "index.html")

	files, err := Match(base, "/images/**/*.png")
	require.NoError(t, err)
	assert.Empty(t, files)
	assert.NotNil(t, files)
}

func TestMatchMissingBaseDir(t *testing.T) {
	files, err := Match(filepath.Join(t.TempDir(), "missing"), "/images/*.png")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestMatchDeduplicatesAcrossPatterns(t *testing.T) {
	base := t.TempDir()
	writeFiles(t, base, "images/a.png", "photos/b.png")

	files, err := Match(base, []string{"/images/*.png", "images/a.png", "/photos/**/*.png"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(base, "images", "a.png"),
		filepath.Join(base, "photos", "b.png"),
	}, files)
}

func TestMatchIsCaseSensitive(t *testing.T) {
	base := t.TempDir()
	writeFiles(t, base, "images/a.PNG")

	files, err := Match(base, "/images/*.png")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestMatchBadPattern(t *testing.T) {
	_, err := Match(t.TempDir(), "/images/[.png")
	var ipe *InvalidPathError
	require.ErrorAs(t, err, &ipe)
}

func TestMatchInvalidType(t *testing.T) {
	_, err := Match(t.TempDir(), map[string]string{"a": "b"})
	var ipe *InvalidPathError
	require.ErrorAs(t, err, &ipe)
}

func TestMatchHonoursIgnoreFile(t *testing.T) {
	base := t.TempDir()
	writeFiles(t, base, "images/a.png", "images/raw/b.png")
	require.NoError(t, os.WriteFile(filepath.Join(base, ignore.FileName), []byte("images/raw/\n"), 0o644))

	files, err := Match(base, ImagePattern("/images"))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(base, "images", "a.png")}, files)

	all, err := MatchWithOptions(base, ImagePattern("/images"), Options{NoIgnore: true})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestImagePattern(t *testing.T) {
	assert.Equal(t, "/images/*.png", ImagePattern("/images/*.png"))
	p := ImagePattern("/images/")
	assert.Contains(t, p, "/images/**/*.{")
	assert.Contains(t, p, "png")
}

func TestMediaPrefix(t *testing.T) {
	tests := map[string]string{
		"/images":          "/images",
		"/images/":         "/images",
		"images":           "/images",
		"/images/**/*.png": "/images",
		"/static/img/*":    "/static/img",
		"*.png":            "/",
	}
	for in, want := range tests {
		assert.Equal(t, want, MediaPrefix(in), in)
	}
}

func TestPublishPath(t *testing.T) {
	base := filepath.Join("dist")
	got, err := PublishPath(base, filepath.Join("dist", "images", "a.png"))
	require.NoError(t, err)
	assert.Equal(t, "/images/a.png", got)

	_, err = PublishPath(base, filepath.Join("other", "a.png"))
	assert.Error(t, err)
}
