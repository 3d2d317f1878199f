package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fulmenhq/cdnimg/internal/resolve"
	"github.com/fulmenhq/cdnimg/internal/rewrite"
	"github.com/fulmenhq/cdnimg/pkg/assets"
	"github.com/fulmenhq/cdnimg/pkg/cdn"
	"github.com/fulmenhq/cdnimg/pkg/logger"
	"github.com/fulmenhq/cdnimg/pkg/redirects"
	"github.com/fulmenhq/cdnimg/pkg/safeio"
)

// RedirectsError is a failure to merge rules into the host redirect file.
type RedirectsError struct {
	Target string
	Err    error
}

func (e *RedirectsError) Error() string {
	return fmt.Sprintf("write redirects to %s: %v", e.Target, e.Err)
}

func (e *RedirectsError) Unwrap() error { return e.Err }

// ManifestError is a failure to read or write the asset manifest.
type ManifestError struct {
	Path string
	Err  error
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("asset manifest %s: %v", e.Path, e.Err)
}

func (e *ManifestError) Unwrap() error { return e.Err }

// StageOptions control the build stage outputs.
type StageOptions struct {
	// RedirectsTarget is a _redirects file or a netlify.toml. Empty means
	// <output>/_redirects.
	RedirectsTarget string
	// Manifest, when set, receives the asset cache for a later post-build.
	Manifest string
}

// RunBuildStage resolves assets and writes the redirects and manifest.
func (b *Build) RunBuildStage(ctx context.Context, opts StageOptions) (*resolve.Result, error) {
	res, err := b.Resolve(ctx)
	if err != nil {
		return res, err
	}
	if res.State != resolve.Done {
		return res, nil
	}

	if len(res.Redirects) > 0 {
		target := opts.RedirectsTarget
		if target == "" {
			target = filepath.Join(b.OutputDir, redirects.FileName)
		}
		if err := redirects.WriteTarget(target, res.Redirects); err != nil {
			return res, &RedirectsError{Target: target, Err: err}
		}
		b.log.Info("Wrote redirect rules", logger.String("target", target), logger.Int("rules", len(res.Redirects)))
	}

	if opts.Manifest != "" {
		if err := b.WriteManifest(opts.Manifest); err != nil {
			return res, err
		}
	}
	return res, nil
}

// PostBuildOptions control the post-build stage.
type PostBuildOptions struct {
	// Manifest is read into the cache when the build stage ran in another
	// process. A missing file is not an error.
	Manifest string
}

// RunPostBuildStage rewrites the documents. Rewrite errors are reported on
// the summary, never returned. Fetch delivery without a site host skips the
// stage, as the build stage does.
func (b *Build) RunPostBuildStage(ctx context.Context, opts PostBuildOptions) (*rewrite.Summary, error) {
	if b.settings.Mode == cdn.Fetch && b.settings.Host == "" {
		b.log.Warn("No site URL available for fetch delivery; leaving documents unchanged")
		return &rewrite.Summary{}, nil
	}
	if opts.Manifest != "" && !b.cache.Populated(assets.Images) {
		if err := b.LoadManifest(opts.Manifest); err != nil {
			return nil, err
		}
	}
	return b.Rewrite(ctx)
}

// WriteManifest snapshots the cache to path.
func (b *Build) WriteManifest(path string) error {
	m := b.cache.Snapshot(b.ID, string(b.settings.Mode), b.settings.Folder)
	data, err := m.Encode()
	if err != nil {
		return &ManifestError{Path: path, Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return &ManifestError{Path: path, Err: err}
	}
	if err := safeio.WriteFilePreservePerms(path, data); err != nil {
		return &ManifestError{Path: path, Err: err}
	}
	b.log.Debug("Wrote asset manifest", logger.String("path", path), logger.Int("images", len(m.Images)))
	return nil
}

// LoadManifest fills the cache from a manifest written by the build stage.
// Records made under another delivery type or folder are discarded, since
// their URLs would not match this build's settings.
func (b *Build) LoadManifest(path string) error {
	m, err := assets.ReadManifest(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			b.log.Warn("Asset manifest not found; every image will be resolved on demand", logger.String("path", path))
			return nil
		}
		return &ManifestError{Path: path, Err: err}
	}
	if m.DeliveryType != string(b.settings.Mode) || m.Folder != b.settings.Folder {
		b.log.Warn("Asset manifest was written with different settings; ignoring it",
			logger.String("path", path),
			logger.String("manifest_delivery_type", m.DeliveryType),
			logger.String("manifest_folder", m.Folder))
		return nil
	}
	if err := b.cache.Restore(m); err != nil {
		return &ManifestError{Path: path, Err: err}
	}
	b.log.Info("Loaded asset manifest",
		logger.String("path", path),
		logger.String("manifest_build_id", m.BuildID),
		logger.Int("images", len(m.Images)))
	return nil
}
