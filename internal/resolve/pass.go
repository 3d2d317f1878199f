// Package resolve implements the resolution pass: it checks the build's CDN
// settings, discovers local images, resolves every one of them to a CDN URL
// and emits the redirect rules that keep both delivery modes working.
package resolve

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/fulmenhq/cdnimg/pkg/assets"
	"github.com/fulmenhq/cdnimg/pkg/cdn"
	"github.com/fulmenhq/cdnimg/pkg/logger"
	"github.com/fulmenhq/cdnimg/pkg/pathfinder"
	"github.com/fulmenhq/cdnimg/pkg/redirects"
	"golang.org/x/sync/errgroup"
)

// Settings are the resolved inputs of one pass.
type Settings struct {
	Mode         cdn.DeliveryMode
	Folder       string
	CloudName    string
	CName        string
	PrivateCDN   bool
	APIKey       string
	APISecret    string
	UploadPreset string
	// ImagesPath is a string or a list of directories/glob patterns below
	// the output directory.
	ImagesPath interface{}
	// Host is the deployed site's public URL. Fetch delivery needs it.
	Host        string
	Concurrency int
}

// UploaderFactory creates the upload client once credentials are known.
type UploaderFactory func(cloudName, apiKey, apiSecret string) (cdn.Uploader, error)

func cloudinaryUploader(cloudName, apiKey, apiSecret string) (cdn.Uploader, error) {
	return cdn.NewCloudinaryUploader(cloudName, apiKey, apiSecret)
}

// Pass runs the resolution state machine once.
type Pass struct {
	settings    Settings
	cache       *assets.Cache
	log         *logger.Logger
	newUploader UploaderFactory
	match       pathfinder.Options
	memo        *cdn.Memo
}

// Option customises a Pass.
type Option func(*Pass)

// WithLogger sets the logger; the package default is used otherwise.
func WithLogger(l *logger.Logger) Option {
	return func(p *Pass) { p.log = l }
}

// WithUploaderFactory replaces the Cloudinary upload client.
func WithUploaderFactory(f UploaderFactory) Option {
	return func(p *Pass) { p.newUploader = f }
}

// WithMatchOptions controls ignore-file handling during discovery.
func WithMatchOptions(o pathfinder.Options) Option {
	return func(p *Pass) { p.match = o }
}

// New prepares a pass writing into cache.
func New(settings Settings, cache *assets.Cache, opts ...Option) *Pass {
	p := &Pass{
		settings:    settings,
		cache:       cache,
		newUploader: cloudinaryUploader,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = logger.Default()
	}
	return p
}

// Result is the outcome of Run. It is returned for every terminal state,
// including Failed, so callers can report how far the pass got.
type Result struct {
	State       State
	Transitions []State
	// MediaPaths are the literal directories the redirects are anchored on.
	MediaPaths []string
	Records    []assets.Record
	Redirects  []redirects.Rule
	Duration   time.Duration
	// Resolver is the build's memoised resolver, nil unless the settings
	// passed the configuration checks. The rewrite pass reuses it.
	Resolver *cdn.Memo
}

func (p *Pass) enter(res *Result, s State) {
	res.State = s
	res.Transitions = append(res.Transitions, s)
	p.log.Debug("Resolution pass transition", logger.String("state", s.String()))
}

// Run executes the pass against the files under outputDir.
func (p *Pass) Run(ctx context.Context, outputDir string) (*Result, error) {
	start := time.Now()
	res := &Result{}
	defer func() { res.Duration = time.Since(start) }()
	p.enter(res, Idle)

	fail := func(err error) (*Result, error) {
		p.enter(res, Failed)
		return res, err
	}

	resolver, err := p.checkConfig()
	if err != nil {
		return fail(err)
	}
	if resolver == nil {
		p.log.Warn("No public site URL for this deploy; skipping fetch delivery",
			logger.String("hint", "URL or DEPLOY_PRIME_URL is set by the host on deployed builds"))
		p.enter(res, Skipped)
		return res, nil
	}
	p.memo = cdn.NewMemo(resolver)
	p.memo.Seed(p.settings.Mode, p.settings.Folder, p.cache.Records(assets.Images))
	res.Resolver = p.memo
	p.enter(res, CredentialsChecked)

	patterns, err := pathfinder.Normalize(p.settings.ImagesPath)
	if err != nil {
		return fail(err)
	}
	globs := make([]string, 0, len(patterns))
	for _, pattern := range patterns {
		globs = append(globs, pathfinder.ImagePattern(pattern))
		res.MediaPaths = appendUnique(res.MediaPaths, pathfinder.MediaPrefix(pattern))
	}
	files, err := pathfinder.MatchWithOptions(outputDir, globs, p.match)
	if err != nil {
		return fail(err)
	}
	if len(files) == 0 {
		p.log.Warn("No images matched the configured paths",
			logger.String("category", assets.Images.String()),
			logger.String("images_path", strings.Join(patterns, ",")))
	}
	p.enter(res, AssetsDiscovered)

	records, err := p.resolveAll(ctx, outputDir, files)
	if err != nil {
		return fail(err)
	}
	if err := p.cache.Set(assets.Images, records); err != nil {
		return fail(err)
	}
	res.Records = records
	p.enter(res, AssetsResolved)

	rules, err := p.emit(ctx, resolver, res.MediaPaths, records)
	if err != nil {
		return fail(err)
	}
	res.Redirects = rules
	p.enter(res, RedirectsEmitted)

	p.log.Info("Resolved images",
		logger.String("delivery_type", string(p.settings.Mode)),
		logger.Int("images", len(records)),
		logger.Int("redirects", len(rules)))
	p.enter(res, Done)
	return res, nil
}

// checkConfig applies the precondition checks in order. A nil resolver with
// a nil error means the pass should be skipped.
func (p *Pass) checkConfig() (*cdn.Resolver, error) {
	s := p.settings
	if strings.TrimSpace(s.Folder) == "" {
		return nil, errMissingFolder
	}
	if s.Mode == cdn.Fetch && strings.TrimSpace(s.Host) == "" {
		return nil, nil
	}
	if strings.TrimSpace(s.CloudName) == "" {
		return nil, errMissingCloudName
	}

	opts := cdn.Options{CloudName: s.CloudName, CName: s.CName, PrivateCDN: s.PrivateCDN}
	switch s.Mode {
	case cdn.Fetch:
	case cdn.Upload:
		if strings.TrimSpace(s.APIKey) == "" || strings.TrimSpace(s.APISecret) == "" {
			return nil, errMissingCredentials
		}
		up, err := p.newUploader(s.CloudName, s.APIKey, s.APISecret)
		if err != nil {
			return nil, fmt.Errorf("create upload client: %w", err)
		}
		opts.Uploader = up
	default:
		return nil, fmt.Errorf("unknown delivery type %q", s.Mode)
	}
	return cdn.NewResolver(opts)
}

func (p *Pass) workers() int {
	if p.settings.Concurrency > 0 {
		return p.settings.Concurrency
	}
	return runtime.NumCPU()
}

// resolveAll resolves every file concurrently. Each task owns one slot of the
// result slice; the first error cancels the rest.
func (p *Pass) resolveAll(ctx context.Context, outputDir string, files []string) ([]assets.Record, error) {
	type job struct {
		file        string
		publishPath string
	}
	jobs := make([]job, 0, len(files))
	seen := make(map[string]struct{}, len(files))
	for _, file := range files {
		publishPath, err := pathfinder.PublishPath(outputDir, file)
		if err != nil {
			return nil, err
		}
		key := assets.Key(publishPath)
		if _, dup := seen[key]; dup {
			p.log.Warn("Skipping image with a duplicate publish path", logger.String("path", file))
			continue
		}
		seen[key] = struct{}{}
		jobs = append(jobs, job{file: file, publishPath: key})
	}

	records := make([]assets.Record, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers())

	for i, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := p.memo.Resolve(gctx, cdn.Request{
				Mode:         p.settings.Mode,
				Folder:       p.settings.Folder,
				PublishPath:  j.publishPath,
				LocalDir:     outputDir,
				UploadPreset: p.settings.UploadPreset,
				RemoteHost:   p.settings.Host,
			})
			if err != nil {
				p.log.Error("Image resolution failed", logger.String("path", j.publishPath), logger.Err(err))
				return err
			}
			if rec.LocalPath == "" {
				rec.LocalPath = j.file
			}
			records[i] = rec
			p.log.Trace("Resolved image", logger.String("path", j.publishPath), logger.String("cdn_url", rec.CDNURL))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("resolve images: %w", err)
	}
	return records, nil
}

func appendUnique(list []string, v string) []string {
	for _, have := range list {
		if have == v {
			return list
		}
	}
	return append(list, v)
}
