// Package cdn turns site asset paths into Cloudinary delivery URLs, either by
// building fetch URLs that point back at the deployed site or by uploading
// the local file.
package cdn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fulmenhq/cdnimg/pkg/assets"
)

// DeliveryMode selects how the CDN obtains asset bytes.
type DeliveryMode string

const (
	// Fetch makes the CDN pull the asset from the live site on demand.
	Fetch DeliveryMode = "fetch"
	// Upload pushes the asset to the CDN ahead of time.
	Upload DeliveryMode = "upload"
)

// ParseDeliveryMode validates a delivery_type value. Empty means Fetch.
func ParseDeliveryMode(s string) (DeliveryMode, error) {
	switch DeliveryMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", Fetch:
		return Fetch, nil
	case Upload:
		return Upload, nil
	default:
		return "", fmt.Errorf("unknown delivery type %q (expected fetch or upload)", s)
	}
}

// DefaultTransformation asks the CDN to pick format and quality.
const DefaultTransformation = "f_auto,q_auto"

var (
	// ErrRemoteHostRequired is returned for fetch requests without a site host.
	ErrRemoteHostRequired = errors.New("fetch delivery requires the deployed site host")
	// ErrCredentialsRequired is returned for upload requests without API credentials.
	ErrCredentialsRequired = errors.New("upload delivery requires CDN API credentials")
	// ErrCloudNameRequired is returned when no CDN account name is configured.
	ErrCloudNameRequired = errors.New("CDN cloud name is required")
)

// UploadError wraps a failed upload of one asset.
type UploadError struct {
	Path string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Path, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// UploadInput is what an Uploader sends to the CDN.
type UploadInput struct {
	PublishPath  string
	Filename     string
	Folder       string
	UploadPreset string
	Body         io.Reader
}

// UploadResult is what the CDN assigned to an uploaded asset.
type UploadResult struct {
	SecureURL string
	PublicID  string
	Width     int
	Height    int
}

// Uploader pushes one asset to the CDN.
type Uploader interface {
	Upload(ctx context.Context, in UploadInput) (UploadResult, error)
}

// Options configure a Resolver.
type Options struct {
	CloudName      string
	CName          string
	PrivateCDN     bool
	Transformation string
	// Uploader is required for upload mode only.
	Uploader Uploader
}

// Request describes one asset to resolve.
type Request struct {
	Mode         DeliveryMode
	Folder       string
	PublishPath  string
	LocalDir     string
	UploadPreset string
	RemoteHost   string
}

func (r Request) key() string {
	return string(r.Mode) + "\x00" + r.Folder + "\x00" + assets.Key(r.PublishPath)
}

// Resolver builds CDN URLs for site assets.
type Resolver struct {
	opts Options
}

// NewResolver validates options and returns a Resolver.
func NewResolver(opts Options) (*Resolver, error) {
	if strings.TrimSpace(opts.CloudName) == "" {
		return nil, ErrCloudNameRequired
	}
	if opts.Transformation == "" {
		opts.Transformation = DefaultTransformation
	}
	return &Resolver{opts: opts}, nil
}

// Resolve produces the record for one asset. Fetch requests are pure string
// construction; upload requests read the file under LocalDir and upload it.
func (r *Resolver) Resolve(ctx context.Context, req Request) (assets.Record, error) {
	publishPath := assets.Key(req.PublishPath)
	if publishPath == "" {
		return assets.Record{}, fmt.Errorf("resolve: empty publish path")
	}
	localPath := ""
	if req.LocalDir != "" {
		localPath = filepath.Join(req.LocalDir, filepath.FromSlash(strings.TrimPrefix(publishPath, "/")))
	}

	switch req.Mode {
	case Fetch:
		if strings.TrimSpace(req.RemoteHost) == "" {
			return assets.Record{}, ErrRemoteHostRequired
		}
		return assets.Record{
			LocalPath:   localPath,
			PublishPath: publishPath,
			CDNURL:      r.FetchURL(JoinHost(req.RemoteHost, publishPath)),
		}, nil

	case Upload:
		if r.opts.Uploader == nil {
			return assets.Record{}, ErrCredentialsRequired
		}
		if localPath == "" {
			return assets.Record{}, &UploadError{Path: publishPath, Err: errors.New("no local directory to read the asset from")}
		}
		res, err := r.upload(ctx, req, publishPath, localPath)
		if err != nil {
			return assets.Record{}, &UploadError{Path: publishPath, Err: err}
		}
		return assets.Record{
			LocalPath:   localPath,
			PublishPath: publishPath,
			CDNURL:      res.SecureURL,
			PublicID:    res.PublicID,
			Width:       res.Width,
			Height:      res.Height,
		}, nil

	default:
		return assets.Record{}, fmt.Errorf("resolve %s: unknown delivery mode %q", publishPath, req.Mode)
	}
}

func (r *Resolver) upload(ctx context.Context, req Request, publishPath, localPath string) (UploadResult, error) {
	f, err := os.Open(localPath) // #nosec G304 -- localPath is publishPath joined under the build output directory
	if err != nil {
		return UploadResult{}, err
	}
	defer f.Close() //nolint:errcheck // read-only handle

	res, err := r.opts.Uploader.Upload(ctx, UploadInput{
		PublishPath:  publishPath,
		Filename:     filepath.Base(localPath),
		Folder:       req.Folder,
		UploadPreset: req.UploadPreset,
		Body:         f,
	})
	if err != nil {
		return UploadResult{}, err
	}
	if res.SecureURL == "" {
		return UploadResult{}, errors.New("CDN returned no secure URL")
	}
	return res, nil
}

// BaseURL is the delivery origin for the configured account.
func (r *Resolver) BaseURL() string {
	switch {
	case r.opts.CName != "":
		return "https://" + strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(r.opts.CName, "https://"), "http://"), "/")
	case r.opts.PrivateCDN:
		return "https://" + r.opts.CloudName + "-res.cloudinary.com"
	default:
		return "https://res.cloudinary.com/" + r.opts.CloudName
	}
}

// FetchURL builds the fetch-delivery URL for a remote source URL. Redirect
// placeholders such as ":splat" survive escaping. There is no folder segment:
// the CDN reads the segment after "fetch/" as a transformation.
func (r *Resolver) FetchURL(source string) string {
	return r.BaseURL() + "/image/" + string(Fetch) + "/" + r.opts.Transformation + "/" + SmartEscape(source)
}

// JoinHost appends a site path to a host URL, adding a scheme when missing.
func JoinHost(host, sitePath string) string {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	if sitePath == "" {
		return host
	}
	if !strings.HasPrefix(sitePath, "/") {
		sitePath = "/" + sitePath
	}
	return host + sitePath
}

const hexDigits = "0123456789ABCDEF"

// SmartEscape percent-encodes every byte outside [A-Za-z0-9_.\-/:], the
// escaping the CDN expects for fetch sources.
func SmartEscape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isSafe(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0f])
	}
	return b.String()
}

func isSafe(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '_', c == '.', c == '-', c == '/', c == ':':
		return true
	}
	return false
}
