// Package deploy reads the hosting provider's build environment: which
// deploy context is running, the public URL of the deployed site, and the
// site name.
package deploy

import (
	"os"
	"strings"
)

// Context is the deploy context reported by the host.
type Context string

const (
	Production    Context = "production"
	DeployPreview Context = "deploy-preview"
	BranchDeploy  Context = "branch-deploy"
	Dev           Context = "dev"
)

// Environment is a snapshot of the deploy variables.
type Environment struct {
	Context        Context `json:"context"`
	URL            string  `json:"url,omitempty"`
	DeployPrimeURL string  `json:"deploy_prime_url,omitempty"`
	SiteName       string  `json:"site_name,omitempty"`
	Branch         string  `json:"branch,omitempty"`
	CommitSHA      string  `json:"commit_sha,omitempty"`
}

// LookupFunc reads one variable; os.LookupEnv in production.
type LookupFunc func(key string) (string, bool)

// FromEnv reads the process environment. dir is used to detect the git
// branch and commit when the host did not provide them.
func FromEnv(dir string) Environment {
	return Load(os.LookupEnv, dir)
}

// Load reads the deploy variables through lookup.
func Load(lookup LookupFunc, dir string) Environment {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	env := Environment{
		Context:        Context(strings.ToLower(get("CONTEXT"))),
		URL:            get("URL"),
		DeployPrimeURL: get("DEPLOY_PRIME_URL"),
		SiteName:       get("SITE_NAME"),
		Branch:         get("BRANCH"),
		CommitSHA:      get("COMMIT_REF"),
	}
	if env.Context == "" {
		env.Context = Dev
	}

	if (env.Branch == "" || env.CommitSHA == "") && dir != "" {
		if head, ok := DetectHead(dir); ok {
			if env.Branch == "" {
				env.Branch = head.Branch
			}
			if env.CommitSHA == "" {
				env.CommitSHA = head.SHA
			}
		}
	}
	return env
}

// IsProduction reports whether this is the production deploy.
func (e Environment) IsProduction() bool {
	return e.Context == Production
}

// Host is the public origin the CDN fetches from: the production URL for
// production deploys, the deploy's own URL otherwise. Empty when the host
// provided neither.
func (e Environment) Host() string {
	if e.IsProduction() {
		return e.URL
	}
	return e.DeployPrimeURL
}
