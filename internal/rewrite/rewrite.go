// Package rewrite implements the rewrite pass: it substitutes CDN URLs for
// local image references in built HTML documents, changing nothing but the
// affected attribute values.
package rewrite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/fulmenhq/cdnimg/pkg/assets"
	"github.com/fulmenhq/cdnimg/pkg/cdn"
	"github.com/fulmenhq/cdnimg/pkg/logger"
	"github.com/fulmenhq/cdnimg/pkg/pathfinder"
	"golang.org/x/net/html"
)

// Error is one image reference that could not be rewritten. It never stops
// the pass.
type Error struct {
	DocumentPath string `json:"document_path"`
	Reason       string `json:"reason"`
}

func (e Error) Error() string {
	return e.DocumentPath + ": " + e.Reason
}

// Options configure a Rewriter.
type Options struct {
	Cache *assets.Cache
	// Resolver is consulted for references missing from Cache. Nil disables
	// the fallback.
	Resolver     cdn.AssetResolver
	Mode         cdn.DeliveryMode
	Folder       string
	UploadPreset string
	// LocalDir is the build output directory.
	LocalDir string
	// Host is the deployed site's public URL. Absolute references on this
	// host are treated like root-relative ones.
	Host        string
	Concurrency int
	Logger      *logger.Logger
	Match       pathfinder.Options
}

// Rewriter rewrites documents against one build's assets.
type Rewriter struct {
	opts     Options
	hostname string
	log      *logger.Logger
}

// New returns a Rewriter. A nil Cache is treated as empty.
func New(opts Options) *Rewriter {
	if opts.Cache == nil {
		opts.Cache = assets.NewCache()
	}
	r := &Rewriter{opts: opts, log: opts.Logger}
	if r.log == nil {
		r.log = logger.Default()
	}
	if opts.Host != "" {
		if u, err := url.Parse(cdn.JoinHost(opts.Host, "")); err == nil {
			r.hostname = strings.ToLower(u.Hostname())
		}
	}
	return r
}

// Result is the outcome of rewriting one document.
type Result struct {
	HTML     string
	Replaced int
	Errors   []Error
}

func (res *Result) fail(documentPath, format string, args ...interface{}) {
	res.Errors = append(res.Errors, Error{DocumentPath: documentPath, Reason: fmt.Sprintf(format, args...)})
}

// Rewrite returns doc with every resolvable image reference replaced.
// documentPath is the document's site path ("/blog/post.html"); relative
// references are resolved against its directory. Markup the tokenizer cannot
// consume is copied through unchanged and reported as an error.
func (r *Rewriter) Rewrite(ctx context.Context, documentPath, doc string) Result {
	var res Result
	res.HTML = r.rewriteMarkup(ctx, documentPath, doc, &res)
	return res
}

func (r *Rewriter) rewriteMarkup(ctx context.Context, documentPath, doc string, res *Result) string {
	var out strings.Builder
	out.Grow(len(doc))

	z := html.NewTokenizer(strings.NewReader(doc))
	consumed := 0
	noscript := false
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); !errors.Is(err, io.EOF) {
				res.fail(documentPath, "parse: %v", err)
			}
			break
		}

		// TagName and TagAttr lower-case the tokenizer's buffer in place,
		// so keep a copy of the original bytes first.
		raw := append([]byte(nil), z.Raw()...)
		consumed += len(raw)

		// The tokenizer hands back <noscript> content as raw text; it is
		// markup all the same.
		if noscript && tt == html.TextToken {
			noscript = false
			out.WriteString(r.rewriteMarkup(ctx, documentPath, string(raw), res))
			continue
		}
		noscript = false

		if tt == html.StartTagToken || tt == html.SelfClosingTagToken {
			name, hasAttr := z.TagName()
			tag := string(name)
			noscript = tt == html.StartTagToken && tag == "noscript"
			if hasAttr && (tag == "img" || tag == "source") {
				var attrs []html.Attribute
				for more := true; more; {
					var key, val []byte
					key, val, more = z.TagAttr()
					attrs = append(attrs, html.Attribute{Key: string(key), Val: string(val)})
				}
				out.Write(r.rewriteTag(ctx, documentPath, tag, raw, attrs, res))
				continue
			}
		}
		out.Write(raw)
	}

	if consumed < len(doc) {
		rest := doc[consumed:]
		out.WriteString(rest)
		if strings.TrimSpace(rest) != "" {
			res.fail(documentPath, "unterminated markup at offset %d left unchanged", consumed)
		}
	}
	return out.String()
}

type edit struct {
	start, end int
	text       string
}

func (r *Rewriter) rewriteTag(ctx context.Context, documentPath, tag string, raw []byte, attrs []html.Attribute, res *Result) []byte {
	spans, ok := scanAttrs(raw)
	if !ok || len(spans) != len(attrs) {
		res.fail(documentPath, "malformed <%s> tag left unchanged", tag)
		return raw
	}

	seen := make(map[string]bool, len(spans))
	var edits []edit
	for i, sp := range spans {
		if sp.name != attrs[i].Key {
			res.fail(documentPath, "malformed <%s> tag left unchanged", tag)
			return raw
		}
		if seen[sp.name] || sp.valStart < 0 {
			seen[sp.name] = true
			continue
		}
		seen[sp.name] = true

		switch {
		case sp.name == "src" && tag == "img":
			if value, ok := r.rewriteRef(ctx, documentPath, attrs[i].Val, res); ok {
				edits = append(edits, edit{start: sp.valStart, end: sp.valEnd, text: encodeValue(value, sp.quote)})
			}
		case sp.name == "srcset":
			if text, ok := r.rewriteSrcset(ctx, documentPath, string(raw[sp.valStart:sp.valEnd]), sp.quote, res); ok {
				edits = append(edits, edit{start: sp.valStart, end: sp.valEnd, text: text})
			}
		}
	}
	if len(edits) == 0 {
		return raw
	}

	out := make([]byte, 0, len(raw)+128)
	last := 0
	for _, e := range edits {
		out = append(out, raw[last:e.start]...)
		out = append(out, e.text...)
		last = e.end
	}
	return append(out, raw[last:]...)
}

// rewriteSrcset works on the raw, still escaped attribute text so that
// candidates it leaves alone keep their exact bytes. Each candidate URL is
// unescaped only for lookup.
func (r *Rewriter) rewriteSrcset(ctx context.Context, documentPath, value string, quote byte, res *Result) (string, bool) {
	var b strings.Builder
	last := 0
	changed := false
	for _, sp := range srcsetURLs(value) {
		u, ok := r.rewriteRef(ctx, documentPath, html.UnescapeString(value[sp[0]:sp[1]]), res)
		if !ok {
			continue
		}
		b.WriteString(value[last:sp[0]])
		b.WriteString(escapeValue(u, quote))
		last = sp[1]
		changed = true
	}
	if !changed {
		return value, false
	}
	b.WriteString(value[last:])
	return b.String(), true
}

// rewriteRef returns the CDN URL for one reference. ok is false when the
// reference is left alone, either because it is not a local asset or because
// resolving it failed (recorded on res).
func (r *Rewriter) rewriteRef(ctx context.Context, documentPath, ref string, res *Result) (string, bool) {
	publishPath, local, err := r.publishPath(documentPath, ref)
	if err != nil {
		res.fail(documentPath, "%s: %v", ref, err)
		r.log.Warn("Image reference not rewritten", logger.String("document", documentPath), logger.String("src", ref), logger.Err(err))
		return "", false
	}
	if !local {
		return "", false
	}

	rec, ok := r.opts.Cache.Lookup(assets.Images, publishPath)
	if !ok {
		if r.opts.Resolver == nil {
			err = fmt.Errorf("%s is not a resolved asset", publishPath)
		} else {
			rec, err = r.opts.Resolver.Resolve(ctx, cdn.Request{
				Mode:         r.opts.Mode,
				Folder:       r.opts.Folder,
				PublishPath:  publishPath,
				LocalDir:     r.opts.LocalDir,
				UploadPreset: r.opts.UploadPreset,
				RemoteHost:   r.opts.Host,
			})
		}
		if err != nil {
			res.fail(documentPath, "%s: %v", ref, err)
			r.log.Warn("Image reference not rewritten", logger.String("document", documentPath), logger.String("src", ref), logger.Err(err))
			return "", false
		}
		r.log.Debug("Resolved image outside the asset cache", logger.String("path", publishPath))
	}
	res.Replaced++
	return rec.CDNURL, true
}

// publishPath maps a reference onto the site path it names. local is false
// for references that are not site assets: empty values, data and blob URLs,
// fragments, and URLs on other hosts.
func (r *Rewriter) publishPath(documentPath, ref string) (string, bool, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") || strings.HasPrefix(ref, "//") {
		return "", false, nil
	}
	lower := strings.ToLower(ref)
	if strings.HasPrefix(lower, "data:") || strings.HasPrefix(lower, "blob:") {
		return "", false, nil
	}

	u, err := url.Parse(ref)
	if err != nil {
		return "", false, fmt.Errorf("unparseable reference: %w", err)
	}

	var p string
	switch {
	case u.Scheme != "":
		if u.Scheme != "http" && u.Scheme != "https" {
			return "", false, nil
		}
		if r.hostname == "" || !strings.EqualFold(u.Hostname(), r.hostname) {
			return "", false, nil
		}
		if u.Path == "" || u.Path == "/" {
			return "", false, nil
		}
		p = u.Path
	case strings.HasPrefix(u.Path, "/"):
		p = u.Path
	case u.Path == "":
		return "", false, nil
	default:
		p = path.Join(path.Dir(assets.Key(documentPath)), u.Path)
	}
	return assets.Key(p), true, nil
}
