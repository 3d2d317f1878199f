/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package cmd

import (
	"github.com/fulmenhq/cdnimg/internal/build"
	"github.com/fulmenhq/cdnimg/internal/resolve"
	"github.com/fulmenhq/cdnimg/pkg/logger"
	"github.com/spf13/cobra"
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the build and postbuild stages in one process",
		Long: `Run both stages against one build: the asset cache and uploads made while
resolving are reused when rewriting, so no image is uploaded twice.`,
		Args: cobra.NoArgs,
		RunE: runRun,
	}
	addStageFlags(cmd)
	cmd.Flags().String("redirects", "", "Redirect file to merge into (default <dir>/_redirects)")
	cmd.Flags().String("report", "", "Also write the rewrite report here (.md, .json or text)")
	return cmd
}

func runRun(cmd *cobra.Command, _ []string) error {
	b, err := newBuild(cmd)
	if err != nil {
		return err
	}
	redirectsTarget, _ := cmd.Flags().GetString("redirects")

	res, err := b.RunBuildStage(cmd.Context(), build.StageOptions{RedirectsTarget: redirectsTarget})
	if err != nil {
		return err
	}
	if res.State == resolve.Skipped {
		logger.Info("Resolution skipped; leaving documents unchanged")
		return nil
	}

	summary, err := b.RunPostBuildStage(cmd.Context(), build.PostBuildOptions{})
	if err != nil {
		return err
	}
	return printRewriteReport(cmd, b, summary)
}
