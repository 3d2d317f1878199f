// Package exitcode provides standardized exit codes for cdnimg
package exitcode

// Exit codes for the cdnimg CLI
const (
	Success         = 0
	GeneralError    = 1
	ConfigError     = 2
	ResolutionError = 3
	FileSystemError = 4
	NetworkError    = 5
	RedirectError   = 6
)

// String returns a human-readable description of the exit code
func String(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case ConfigError:
		return "Configuration error"
	case ResolutionError:
		return "Asset resolution error"
	case FileSystemError:
		return "File system error"
	case NetworkError:
		return "Network error"
	case RedirectError:
		return "Redirect output error"
	default:
		return "Unknown error"
	}
}
