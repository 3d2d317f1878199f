/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package cmd

import (
	"fmt"

	"github.com/fulmenhq/cdnimg/internal/build"
	"github.com/fulmenhq/cdnimg/internal/deploy"
	"github.com/fulmenhq/cdnimg/internal/report"
	"github.com/fulmenhq/cdnimg/internal/rewrite"
	"github.com/fulmenhq/cdnimg/pkg/config"
	"github.com/fulmenhq/cdnimg/pkg/logger"
	"github.com/spf13/cobra"
)

// addStageFlags registers the flags shared by the build stages.
func addStageFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("dir", "d", "", "Publish directory produced by the site build (required)")
	cmd.Flags().Bool("no-ignore", false, "Do not honor .cdnimgignore in the publish directory")
	config.RegisterFlags(cmd.Flags())
	_ = cmd.MarkFlagRequired("dir")
}

// newBuild loads configuration and the deploy environment into a build.
func newBuild(cmd *cobra.Command) (*build.Build, error) {
	dir, _ := cmd.Flags().GetString("dir")
	configFile, _ := cmd.Flags().GetString("config")
	noIgnore, _ := cmd.Flags().GetBool("no-ignore")

	cfg, err := config.LoadConfig(config.LoadOptions{ConfigFile: configFile, Flags: cmd.Flags()})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errConfig, err)
	}
	env := deploy.FromEnv(dir)
	logger.Debug("Loaded configuration",
		logger.String("config", fmt.Sprintf("%+v", cfg.Redacted())),
		logger.String("context", string(env.Context)))

	b, err := build.New(build.Options{
		Config:    cfg,
		Env:       env,
		OutputDir: dir,
		Logger:    logger.Default(),
		NoIgnore:  noIgnore,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errConfig, err)
	}
	return b, nil
}

// printRewriteReport writes the summary to stdout and, when requested, to a
// report file. Rewrite errors never fail the command.
func printRewriteReport(cmd *cobra.Command, b *build.Build, summary *rewrite.Summary) error {
	s := b.Settings()
	rep := report.FromSummary(b.ID, string(s.Mode), s.Folder, summary)

	text, err := rep.Render(report.FormatText)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), text)

	if path, _ := cmd.Flags().GetString("report"); path != "" {
		if err := rep.Write(path); err != nil {
			return err
		}
		b.Logger().Info("Wrote rewrite report", logger.String("path", path))
	}
	return nil
}
