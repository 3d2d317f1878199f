/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package cmd

import (
	"errors"
	"io/fs"
	"net"

	"github.com/fulmenhq/cdnimg/internal/build"
	"github.com/fulmenhq/cdnimg/internal/resolve"
	"github.com/fulmenhq/cdnimg/pkg/cdn"
	"github.com/fulmenhq/cdnimg/pkg/config"
	"github.com/fulmenhq/cdnimg/pkg/exitcode"
	"github.com/fulmenhq/cdnimg/pkg/pathfinder"
)

// errConfig marks configuration loading failures.
var errConfig = errors.New("configuration error")

// exitCodeFor classifies a command error.
func exitCodeFor(err error) int {
	var (
		cfgErr   *resolve.ConfigError
		valErr   *config.ValidationError
		pathErr  *pathfinder.InvalidPathError
		redirErr *build.RedirectsError
		manErr   *build.ManifestError
		upErr    *cdn.UploadError
		netErr   net.Error
	)
	switch {
	case err == nil:
		return exitcode.Success
	case errors.Is(err, errConfig), errors.As(err, &cfgErr), errors.As(err, &valErr), errors.As(err, &pathErr):
		return exitcode.ConfigError
	case errors.As(err, &redirErr):
		return exitcode.RedirectError
	case errors.As(err, &netErr):
		return exitcode.NetworkError
	case errors.As(err, &upErr):
		return exitcode.ResolutionError
	case errors.As(err, &manErr), errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
		return exitcode.FileSystemError
	default:
		return exitcode.GeneralError
	}
}
