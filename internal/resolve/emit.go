package resolve

import (
	"context"
	"fmt"
	"strings"

	"github.com/fulmenhq/cdnimg/pkg/assets"
	"github.com/fulmenhq/cdnimg/pkg/cdn"
	"github.com/fulmenhq/cdnimg/pkg/redirects"
	"golang.org/x/sync/errgroup"
)

// AssetMount is the site path the CDN fetches originals through. Requests
// below it are served from the real media directory and never redirected.
const AssetMount = "/cld-assets"

const (
	statusPassThrough = 200
	statusRedirect    = 302
)

// fetchPair is the two rules anchored on one media directory.
type fetchPair struct {
	passThrough redirects.Rule
	public      redirects.Rule
}

// emit builds the redirect rules for the resolved assets.
func (p *Pass) emit(ctx context.Context, resolver *cdn.Resolver, mediaPaths []string, records []assets.Record) ([]redirects.Rule, error) {
	var list redirects.List

	switch p.settings.Mode {
	case cdn.Upload:
		for _, rec := range records {
			list.Unshift(redirects.Rule{
				From:   rec.PublishPath + "*",
				To:     rec.CDNURL,
				Status: statusRedirect,
				Force:  true,
			})
		}

	case cdn.Fetch:
		pairs := make([]fetchPair, len(mediaPaths))
		g, _ := errgroup.WithContext(ctx)
		for i, mediaPath := range mediaPaths {
			g.Go(func() error {
				pair, err := fetchRules(resolver, p.settings.Host, mediaPath)
				if err != nil {
					return err
				}
				pairs[i] = pair
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		// The pass-through rule is unshifted last so it sits ahead of the
		// public redirect for the same directory.
		for _, pair := range pairs {
			list.Unshift(pair.public)
			list.Unshift(pair.passThrough)
		}
	}
	return list.Rules(), nil
}

func fetchRules(resolver *cdn.Resolver, host, mediaPath string) (fetchPair, error) {
	if !strings.HasPrefix(mediaPath, "/") {
		return fetchPair{}, fmt.Errorf("media path %q is not site-rooted", mediaPath)
	}
	dir := strings.TrimSuffix(mediaPath, "/")
	mount := AssetMount + dir

	return fetchPair{
		passThrough: redirects.Rule{
			From:   mount + "/*",
			To:     dir + "/:splat",
			Status: statusPassThrough,
			Force:  true,
		},
		public: redirects.Rule{
			From:   dir + "/*",
			To:     resolver.FetchURL(cdn.JoinHost(host, mount)) + "/:splat",
			Status: statusRedirect,
			Force:  true,
		},
	}, nil
}
