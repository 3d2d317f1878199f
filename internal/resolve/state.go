package resolve

import "fmt"

// State is a step of the resolution state machine.
type State int

const (
	Idle State = iota
	CredentialsChecked
	AssetsDiscovered
	AssetsResolved
	RedirectsEmitted
	Done
	// Skipped ends the pass early without an error: fetch delivery with no
	// public host to fetch from.
	Skipped
	// Failed ends the pass on missing configuration or a resolution error.
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case CredentialsChecked:
		return "credentials_checked"
	case AssetsDiscovered:
		return "assets_discovered"
	case AssetsResolved:
		return "assets_resolved"
	case RedirectsEmitted:
		return "redirects_emitted"
	case Done:
		return "done"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	return s == Done || s == Skipped || s == Failed
}

// ConfigError reports a missing mandatory setting. The message is fixed and
// names the setting and where it can be supplied.
type ConfigError struct {
	Setting string
	Hint    string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("missing required setting %s: %s", e.Setting, e.Hint)
}

var (
	errMissingFolder = &ConfigError{
		Setting: "folder",
		Hint:    "set folder in cdnimg.yaml, --folder or the SITE_NAME environment variable",
	}
	errMissingCloudName = &ConfigError{
		Setting: "cloud_name",
		Hint:    "set cloud_name in cdnimg.yaml, --cloud-name or CLOUDINARY_CLOUD_NAME",
	}
	errMissingCredentials = &ConfigError{
		Setting: "api_key/api_secret",
		Hint:    "upload delivery needs CLOUDINARY_API_KEY and CLOUDINARY_API_SECRET",
	}
)
