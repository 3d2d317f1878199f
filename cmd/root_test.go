package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fulmenhq/cdnimg/internal/build"
	"github.com/fulmenhq/cdnimg/internal/resolve"
	"github.com/fulmenhq/cdnimg/pkg/cdn"
	"github.com/fulmenhq/cdnimg/pkg/exitcode"
	"github.com/fulmenhq/cdnimg/pkg/pathfinder"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeLogger(t *testing.T) {
	for _, level := range []string{"info", "debug", "invalid"} {
		cmd := &cobra.Command{}
		cmd.Flags().String("log-level", level, "")
		cmd.Flags().Bool("json", false, "")
		cmd.Flags().Bool("no-color", true, "")

		// This should not panic
		initializeLogger(cmd)
	}
}

// execute runs a fresh command tree and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--no-color", "--log-level", "error"))
	err := root.Execute()
	return out.String(), err
}

// deployEnv isolates the deploy and provider environment.
func deployEnv(t *testing.T, vars map[string]string) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, key := range []string{
		"CONTEXT", "URL", "DEPLOY_PRIME_URL", "SITE_NAME", "BRANCH", "COMMIT_REF",
		"CLOUDINARY_CLOUD_NAME", "CLOUDINARY_API_KEY", "CLOUDINARY_API_SECRET", "CLOUDINARY_UPLOAD_PRESET",
		"CDNIMG_DELIVERY_TYPE", "CDNIMG_FOLDER", "CDNIMG_CLOUD_NAME",
	} {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
	for k, v := range vars {
		t.Setenv(k, v)
	}
}

func publishDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "images"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "images", "a.png"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte(`<img src="/images/a.png"><img src="https://other.test/x.png">`), 0o644))
	return dir
}

var productionVars = map[string]string{
	"CONTEXT":               "production",
	"URL":                   "https://example-site.netlify.app",
	"SITE_NAME":             "example-site",
	"CLOUDINARY_CLOUD_NAME": "demo",
}

func TestRunFetch(t *testing.T) {
	deployEnv(t, productionVars)
	dir := publishDir(t)
	reportPath := filepath.Join(t.TempDir(), "report.md")

	out, err := execute(t, "run", "--dir", dir, "--report", reportPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Rewrote 1 of 1 documents, 1 image references replaced, 0 errors")

	html, err := os.ReadFile(filepath.Join(dir, "index.html"))
	require.NoError(t, err)
	assert.Equal(t, `<img src="https://res.cloudinary.com/demo/image/fetch/f_auto,q_auto/https://example-site.netlify.app/images/a.png"><img src="https://other.test/x.png">`, string(html))

	rules, err := os.ReadFile(filepath.Join(dir, "_redirects"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(rules), "/cld-assets/images/*  /images/:splat  200!\n"))

	md, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	assert.Contains(t, string(md), "# Image rewrite report")
}

func TestBuildThenPostBuild(t *testing.T) {
	deployEnv(t, productionVars)
	dir := publishDir(t)
	manifest := filepath.Join(t.TempDir(), "assets.yaml")
	netlifyToml := filepath.Join(dir, "netlify.toml")

	_, err := execute(t, "build", "--dir", dir, "--manifest", manifest, "--redirects", netlifyToml, "--folder", "custom")
	require.NoError(t, err)
	require.FileExists(t, manifest)
	require.FileExists(t, netlifyToml)
	assert.NoFileExists(t, filepath.Join(dir, "_redirects"))

	out, err := execute(t, "postbuild", "--dir", dir, "--manifest", manifest, "--folder", "custom")
	require.NoError(t, err)
	assert.Contains(t, out, "1 image references replaced")
}

func TestBuildMissingFolderFails(t *testing.T) {
	vars := map[string]string{}
	for k, v := range productionVars {
		vars[k] = v
	}
	delete(vars, "SITE_NAME")
	deployEnv(t, vars)

	_, err := execute(t, "build", "--dir", publishDir(t))
	var ce *resolve.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "folder", ce.Setting)
	assert.Equal(t, exitcode.ConfigError, exitCodeFor(err))
}

func TestBuildUploadWithoutCredentials(t *testing.T) {
	deployEnv(t, productionVars)
	_, err := execute(t, "build", "--dir", publishDir(t), "--delivery-type", "upload")
	require.Error(t, err)
	assert.Equal(t, exitcode.ConfigError, exitCodeFor(err))
}

func TestBuildRequiresDir(t *testing.T) {
	deployEnv(t, productionVars)
	_, err := execute(t, "build")
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "cdnimg "))

	out, err = execute(t, "version", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"goVersion"`)
}

func TestRootHelpGroupsCommands(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "Build Stages:")
	assert.Contains(t, out, "postbuild")
	assert.Contains(t, out, "Support Commands:")
}

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitcode.Success},
		{"config load", fmt.Errorf("%w: bad yaml", errConfig), exitcode.ConfigError},
		{"missing setting", &resolve.ConfigError{Setting: "folder"}, exitcode.ConfigError},
		{"bad pattern", &pathfinder.InvalidPathError{Value: "[", Reason: "syntax"}, exitcode.ConfigError},
		{"upload", fmt.Errorf("resolve images: %w", &cdn.UploadError{Path: "/a.png", Err: errors.New("401")}), exitcode.ResolutionError},
		{"network", &cdn.UploadError{Path: "/a.png", Err: &net.OpError{Op: "dial", Err: errors.New("refused")}}, exitcode.NetworkError},
		{"redirects", &build.RedirectsError{Target: "_redirects", Err: os.ErrPermission}, exitcode.RedirectError},
		{"manifest", &build.ManifestError{Path: "m.yaml", Err: errors.New("bad")}, exitcode.FileSystemError},
		{"other", errors.New("boom"), exitcode.GeneralError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCodeFor(tt.err))
		})
	}
}
