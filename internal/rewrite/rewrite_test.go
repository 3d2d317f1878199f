package rewrite

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/fulmenhq/cdnimg/pkg/assets"
	"github.com/fulmenhq/cdnimg/pkg/cdn"
	"github.com/fulmenhq/cdnimg/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	cdnA = "https://res.cloudinary.com/demo/image/upload/v1/site/images/a"
	cdnB = "https://res.cloudinary.com/demo/image/upload/v1/site/images/b"
)

type stubUploader struct {
	calls atomic.Int32
}

func (u *stubUploader) Upload(ctx context.Context, in cdn.UploadInput) (cdn.UploadResult, error) {
	u.calls.Add(1)
	return cdn.UploadResult{SecureURL: "https://res.cloudinary.com/demo/image/upload/v1/" + in.Folder + "/" + cdn.PublicIDFor(in.PublishPath)}, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: logger.ErrorLevel}, &bytes.Buffer{})
}

func seededCache(t *testing.T) *assets.Cache {
	t.Helper()
	cache := assets.NewCache()
	require.NoError(t, cache.Set(assets.Images, []assets.Record{
		{PublishPath: "/images/a.png", CDNURL: cdnA},
		{PublishPath: "/images/b.png", CDNURL: cdnB},
	}))
	return cache
}

func cacheOnly(t *testing.T) *Rewriter {
	return New(Options{
		Cache:  seededCache(t),
		Mode:   cdn.Upload,
		Folder: "site",
		Host:   "https://example-site.netlify.app",
		Logger: testLogger(),
	})
}

// uploadingRewriter falls back to uploading files from dir.
func uploadingRewriter(t *testing.T, dir string, up cdn.Uploader) *Rewriter {
	t.Helper()
	resolver, err := cdn.NewResolver(cdn.Options{CloudName: "demo", Uploader: up})
	require.NoError(t, err)
	return New(Options{
		Cache:       seededCache(t),
		Resolver:    cdn.NewMemo(resolver),
		Mode:        cdn.Upload,
		Folder:      "site",
		LocalDir:    dir,
		Host:        "https://example-site.netlify.app",
		Concurrency: 4,
		Logger:      testLogger(),
	})
}

func TestRewriteReplacesOnlyValues(t *testing.T) {
	doc := `<!DOCTYPE html>
<html><head><title>t</title></head>
<body>
  <IMG class="hero"  SRC='/images/a.png' alt="A &amp; B" data-x=1>
  <img src=/images/b.png>
  <p>text <b>bold</b></p>
</body></html>
`
	res := cacheOnly(t).Rewrite(context.Background(), "/index.html", doc)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 2, res.Replaced)

	want := strings.Replace(doc, `'/images/a.png'`, `'`+cdnA+`'`, 1)
	want = strings.Replace(want, `src=/images/b.png`, `src=`+cdnB, 1)
	assert.Equal(t, want, res.HTML)
}

func TestRewriteGracefulDegradation(t *testing.T) {
	dir := t.TempDir()
	up := &stubUploader{}
	r := uploadingRewriter(t, dir, up)

	doc := `<p><img src="/images/a.png"><img src="/images/gone.png" width="10"></p>`
	res := r.Rewrite(context.Background(), "/post.html", doc)

	assert.Equal(t, `<p><img src="`+cdnA+`"><img src="/images/gone.png" width="10"></p>`, res.HTML)
	assert.Equal(t, 1, res.Replaced)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "/post.html", res.Errors[0].DocumentPath)
	assert.Contains(t, res.Errors[0].Reason, "/images/gone.png")
}

func TestRewriteFallsBackToResolver(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "images"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "images", "late.png"), []byte("x"), 0o644))
	up := &stubUploader{}
	r := uploadingRewriter(t, dir, up)

	res := r.Rewrite(context.Background(), "/index.html", `<img src="/images/late.png"><img src="images/late.png">`)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 2, res.Replaced)
	assert.Equal(t, int32(1), up.calls.Load(), "the same asset is uploaded once per build")
	assert.Contains(t, res.HTML, "site/images/late")
}

func TestRewriteResolvesRelativeReferences(t *testing.T) {
	r := cacheOnly(t)
	tests := []struct {
		name string
		doc  string
		src  string
	}{
		{"parent directory", "/blog/post.html", "../images/a.png"},
		{"same directory", "/images/gallery.html", "a.png"},
		{"dot segments", "/index.html", "./images/../images/a.png"},
		{"query and fragment", "/index.html", "/images/a.png?v=3#top"},
		{"site host", "/index.html", "https://Example-Site.netlify.app/images/a.png"},
		{"percent encoded", "/index.html", "/images/%61.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Rewrite(context.Background(), tt.doc, `<img src="`+tt.src+`">`)
			assert.Empty(t, res.Errors)
			assert.Equal(t, `<img src="`+cdnA+`">`, res.HTML)
		})
	}
}

func TestRewriteLeavesNonLocalReferences(t *testing.T) {
	r := cacheOnly(t)
	doc := `<img src=""><img src="data:image/png;base64,AAAA"><img src="//cdn.example.com/a.png">` +
		`<img src="https://other.example.com/images/a.png"><img src="blob:https://x/1"><img alt="none">` +
		`<img src="` + cdnA + `">`
	res := r.Rewrite(context.Background(), "/index.html", doc)
	assert.Equal(t, doc, res.HTML)
	assert.Empty(t, res.Errors)
	assert.Zero(t, res.Replaced)
}

func TestRewriteSrcset(t *testing.T) {
	r := cacheOnly(t)
	doc := `<picture><source srcset="/images/a.png 1x,/images/b.png 2x" type="image/png">` +
		`<img src="/images/a.png" srcset="/images/a.png 480w, https://elsewhere.test/x.png 800w"></picture>`

	res := r.Rewrite(context.Background(), "/index.html", doc)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 4, res.Replaced)
	assert.Equal(t, `<picture><source srcset="`+cdnA+` 1x,`+cdnB+` 2x" type="image/png">`+
		`<img src="`+cdnA+`" srcset="`+cdnA+` 480w, https://elsewhere.test/x.png 800w"></picture>`, res.HTML)
}

func TestRewriteSrcsetKeepsUntouchedCandidates(t *testing.T) {
	r := cacheOnly(t)
	doc := `<img srcset="/images/a.png 1x, /images/gone.png?a=1&b=2&#38;c=3 2x, /images/b.png?v=1&amp;w=2 3x">` +
		`<img srcset='/images/gone.png?x&y 1x,/images/a.png 2x'>`

	res := r.Rewrite(context.Background(), "/index.html", doc)
	assert.Equal(t, 3, res.Replaced)
	assert.Len(t, res.Errors, 2)
	assert.Equal(t, `<img srcset="`+cdnA+` 1x, /images/gone.png?a=1&b=2&#38;c=3 2x, `+cdnB+` 3x">`+
		`<img srcset='/images/gone.png?x&y 1x,`+cdnA+` 2x'>`, res.HTML)
}

func TestSrcsetURLs(t *testing.T) {
	s := "https://res.cloudinary.com/d/image/fetch/f_auto,q_auto/x.png 1x, b.png, c.png 2x"
	var urls []string
	for _, sp := range srcsetURLs(s) {
		urls = append(urls, s[sp[0]:sp[1]])
	}
	assert.Equal(t, []string{"https://res.cloudinary.com/d/image/fetch/f_auto,q_auto/x.png", "b.png", "c.png"}, urls)
}

func TestRewriteIgnoresRawText(t *testing.T) {
	r := cacheOnly(t)
	doc := `<script>document.write('<img src="/images/a.png">')</script><!-- <img src="/images/a.png"> --><textarea><img src="/images/a.png"></textarea>`
	res := r.Rewrite(context.Background(), "/index.html", doc)
	assert.Equal(t, doc, res.HTML)
	assert.Zero(t, res.Replaced)
}

func TestRewriteNoscriptFallback(t *testing.T) {
	r := cacheOnly(t)
	doc := `<img class="lazy" data-src="/images/a.png">` +
		`<noscript><img src="/images/a.png" alt="a"><p>no js</p></noscript>` +
		`<NOSCRIPT><picture><source srcset="/images/b.png 2x"></picture></NOSCRIPT>`

	res := r.Rewrite(context.Background(), "/index.html", doc)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 2, res.Replaced)
	assert.Equal(t, `<img class="lazy" data-src="/images/a.png">`+
		`<noscript><img src="`+cdnA+`" alt="a"><p>no js</p></noscript>`+
		`<NOSCRIPT><picture><source srcset="`+cdnB+` 2x"></picture></NOSCRIPT>`, res.HTML)

	res = r.Rewrite(context.Background(), "/index.html", `<noscript></noscript><img src="/images/b.png">`)
	assert.Equal(t, `<noscript></noscript><img src="`+cdnB+`">`, res.HTML)
}

func TestRewriteMalformedMarkup(t *testing.T) {
	r := cacheOnly(t)
	doc := `<div><img src="/images/a.png"></span></p><img src="/images/b.png`

	res := r.Rewrite(context.Background(), "/broken.html", doc)
	assert.Equal(t, `<div><img src="`+cdnA+`"></span></p><img src="/images/b.png`, res.HTML)
	assert.Equal(t, 1, res.Replaced)
	assert.Len(t, res.Errors, 1)
}

func TestEncodeValue(t *testing.T) {
	assert.Equal(t, "a&amp;b", encodeValue("a&b", 0))
	assert.Equal(t, `"a b"`, encodeValue("a b", 0))
	assert.Equal(t, "it&#39;s", encodeValue("it's", '\''))
	assert.Equal(t, "say &#34;hi&#34;", encodeValue(`say "hi"`, '"'))
}

func TestScanAttrs(t *testing.T) {
	raw := []byte(`<img  SRC = "a b" alt='x' hidden data-n=5/>`)
	spans, ok := scanAttrs(raw)
	require.True(t, ok)
	require.Len(t, spans, 4)
	assert.Equal(t, "src", spans[0].name)
	assert.Equal(t, "a b", string(raw[spans[0].valStart:spans[0].valEnd]))
	assert.Equal(t, byte('\''), spans[1].quote)
	assert.Equal(t, -1, spans[2].valStart)
	assert.Equal(t, "5/", string(raw[spans[3].valStart:spans[3].valEnd]))
}
