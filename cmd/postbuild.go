/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package cmd

import (
	"github.com/fulmenhq/cdnimg/internal/build"
	"github.com/spf13/cobra"
)

func newPostBuildCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "postbuild",
		Short: "Rewrite HTML image references to CDN URLs",
		Long: `Rewrite the src and srcset of every image in the HTML documents under the
publish directory. References missing from the asset manifest are resolved on
demand; references that still cannot be resolved are left untouched and listed
in the report. Rewrite errors never fail the command.`,
		Args: cobra.NoArgs,
		RunE: runPostBuild,
	}
	addStageFlags(cmd)
	cmd.Flags().String("manifest", "", "Asset manifest written by the build stage")
	cmd.Flags().String("report", "", "Also write the rewrite report here (.md, .json or text)")
	return cmd
}

func runPostBuild(cmd *cobra.Command, _ []string) error {
	b, err := newBuild(cmd)
	if err != nil {
		return err
	}
	manifest, _ := cmd.Flags().GetString("manifest")

	summary, err := b.RunPostBuildStage(cmd.Context(), build.PostBuildOptions{Manifest: manifest})
	if err != nil {
		return err
	}
	return printRewriteReport(cmd, b, summary)
}
