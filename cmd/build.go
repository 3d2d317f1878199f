/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package cmd

import (
	"github.com/fulmenhq/cdnimg/internal/build"
	"github.com/spf13/cobra"
)

func newBuildCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Resolve images to CDN URLs and write redirect rules",
		Long: `Discover the images under the publish directory, resolve each one to a
Cloudinary URL (fetch or upload delivery) and merge the redirect rules ahead of
the host's existing rules.

A target ending in .toml is merged into netlify.toml [[redirects]] tables;
anything else is treated as a _redirects file.`,
		Args: cobra.NoArgs,
		RunE: runBuild,
	}
	addStageFlags(cmd)
	cmd.Flags().String("redirects", "", "Redirect file to merge into (default <dir>/_redirects)")
	cmd.Flags().String("manifest", "", "Write the resolved asset manifest here for a later postbuild")
	return cmd
}

func runBuild(cmd *cobra.Command, _ []string) error {
	b, err := newBuild(cmd)
	if err != nil {
		return err
	}
	redirectsTarget, _ := cmd.Flags().GetString("redirects")
	manifest, _ := cmd.Flags().GetString("manifest")

	_, err = b.RunBuildStage(cmd.Context(), build.StageOptions{
		RedirectsTarget: redirectsTarget,
		Manifest:        manifest,
	})
	return err
}
