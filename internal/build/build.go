// Package build owns one build invocation: its id, its asset cache and its
// memoised resolver. Both the build stage and the post-build stage run
// against the same Build value, which keeps concurrent builds in one
// process from sharing state.
package build

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fulmenhq/cdnimg/internal/deploy"
	"github.com/fulmenhq/cdnimg/internal/resolve"
	"github.com/fulmenhq/cdnimg/internal/rewrite"
	"github.com/fulmenhq/cdnimg/pkg/assets"
	"github.com/fulmenhq/cdnimg/pkg/cdn"
	"github.com/fulmenhq/cdnimg/pkg/config"
	"github.com/fulmenhq/cdnimg/pkg/logger"
	"github.com/fulmenhq/cdnimg/pkg/pathfinder"
	"github.com/google/uuid"
)

// Options describe a build invocation.
type Options struct {
	Config    *config.Config
	Env       deploy.Environment
	OutputDir string
	Logger    *logger.Logger
	// NoIgnore disables .cdnimgignore handling.
	NoIgnore bool
	// UploaderFactory overrides the Cloudinary client, mainly for tests.
	UploaderFactory resolve.UploaderFactory
}

// Build is the state shared by the stages of one build.
type Build struct {
	ID        string
	OutputDir string

	settings resolve.Settings
	env      deploy.Environment
	cache    *assets.Cache
	resolver *cdn.Memo
	log      *logger.Logger
	match    pathfinder.Options
	uploader resolve.UploaderFactory
}

// New prepares a build. The folder defaults to the site name.
func New(opts Options) (*Build, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("build: configuration is required")
	}
	if strings.TrimSpace(opts.OutputDir) == "" {
		return nil, fmt.Errorf("build: output directory is required")
	}
	outputDir, err := filepath.Abs(opts.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("build: resolve output directory: %w", err)
	}
	mode, err := cdn.ParseDeliveryMode(opts.Config.DeliveryType)
	if err != nil {
		return nil, err
	}

	cfg := opts.Config
	folder := strings.TrimSpace(cfg.Folder)
	if folder == "" {
		folder = opts.Env.SiteName
	}

	id := uuid.NewString()
	log := opts.Logger
	if log == nil {
		log = logger.Default()
	}
	log = log.With(logger.String("build_id", id))

	b := &Build{
		ID:        id,
		OutputDir: outputDir,
		settings: resolve.Settings{
			Mode:         mode,
			Folder:       folder,
			CloudName:    cfg.CloudName,
			CName:        cfg.CName,
			PrivateCDN:   cfg.PrivateCDN,
			APIKey:       cfg.APIKey,
			APISecret:    cfg.APISecret,
			UploadPreset: cfg.UploadPreset,
			ImagesPath:   cfg.ImagesPath,
			Host:         opts.Env.Host(),
			Concurrency:  cfg.Concurrency,
		},
		env:      opts.Env,
		cache:    assets.NewCache(),
		log:      log,
		match:    pathfinder.Options{NoIgnore: opts.NoIgnore},
		uploader: opts.UploaderFactory,
	}
	if b.uploader == nil {
		b.uploader = func(cloudName, apiKey, apiSecret string) (cdn.Uploader, error) {
			return cdn.NewCloudinaryUploader(cloudName, apiKey, apiSecret)
		}
	}
	return b, nil
}

// Settings returns the resolved pass settings.
func (b *Build) Settings() resolve.Settings { return b.settings }

// Cache returns the build's asset cache.
func (b *Build) Cache() *assets.Cache { return b.cache }

// Logger returns the build-scoped logger.
func (b *Build) Logger() *logger.Logger { return b.log }

// Resolve runs the resolution pass and keeps its resolver for the rewrite
// pass.
func (b *Build) Resolve(ctx context.Context) (*resolve.Result, error) {
	b.log.Info("Starting resolution pass",
		logger.String("context", string(b.env.Context)),
		logger.String("branch", b.env.Branch),
		logger.String("delivery_type", string(b.settings.Mode)),
		logger.String("folder", b.settings.Folder),
		logger.String("dir", b.OutputDir))

	pass := resolve.New(b.settings, b.cache,
		resolve.WithLogger(b.log),
		resolve.WithUploaderFactory(b.uploader),
		resolve.WithMatchOptions(b.match))
	res, err := pass.Run(ctx, b.OutputDir)
	if res != nil && res.Resolver != nil {
		b.resolver = res.Resolver
	}
	return res, err
}

// Rewrite runs the rewrite pass over every document in the output
// directory.
func (b *Build) Rewrite(ctx context.Context) (*rewrite.Summary, error) {
	r := rewrite.New(rewrite.Options{
		Cache:        b.cache,
		Resolver:     b.fallbackResolver(),
		Mode:         b.settings.Mode,
		Folder:       b.settings.Folder,
		UploadPreset: b.settings.UploadPreset,
		LocalDir:     b.OutputDir,
		Host:         b.settings.Host,
		Concurrency:  b.settings.Concurrency,
		Logger:       b.log,
		Match:        b.match,
	})
	return r.RewriteDir(ctx, b.OutputDir)
}

// fallbackResolver returns the resolver the rewrite pass uses for documents
// referencing images missing from the cache. A post-build stage launched on
// its own builds one from the settings; nil means no fallback is possible.
func (b *Build) fallbackResolver() cdn.AssetResolver {
	if b.resolver != nil {
		return b.resolver
	}

	s := b.settings
	if strings.TrimSpace(s.CloudName) == "" {
		b.log.Warn("No cloud name configured; images missing from the asset cache will not be rewritten")
		return nil
	}
	opts := cdn.Options{CloudName: s.CloudName, CName: s.CName, PrivateCDN: s.PrivateCDN}
	if s.Mode == cdn.Upload {
		up, err := b.uploader(s.CloudName, s.APIKey, s.APISecret)
		if err != nil {
			b.log.Warn("Upload fallback unavailable", logger.Err(err))
			return nil
		}
		opts.Uploader = up
	}
	resolver, err := cdn.NewResolver(opts)
	if err != nil {
		b.log.Warn("Resolver fallback unavailable", logger.Err(err))
		return nil
	}
	b.resolver = cdn.NewMemo(resolver)
	b.resolver.Seed(s.Mode, s.Folder, b.cache.Records(assets.Images))
	return b.resolver
}
