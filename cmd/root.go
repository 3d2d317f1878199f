/*
Copyright © 2025 3 Leaps <info@3leaps.com>
*/
package cmd

import (
	"os"

	"github.com/fulmenhq/cdnimg/internal/ops"
	"github.com/fulmenhq/cdnimg/pkg/buildinfo"
	"github.com/fulmenhq/cdnimg/pkg/logger"
	"github.com/spf13/cobra"
)

// newRootCommand creates a fresh root command instance.
// This factory pattern allows tests to create isolated command trees without shared state.
func newRootCommand() *cobra.Command {
	reg := ops.NewRegistry()
	cmd := &cobra.Command{
		Use:   "cdnimg",
		Short: "Serve a static site's images from Cloudinary",
		Long: `cdnimg moves a statically built site's images onto the Cloudinary CDN.
The build stage resolves every local image to a CDN URL and writes host redirects;
the post-build stage rewrites the HTML documents to reference the CDN directly.

Examples:
   cdnimg build --dir public               # Resolve images, write public/_redirects
   cdnimg postbuild --dir public           # Rewrite HTML image references
   cdnimg run --dir public --report r.md   # Both stages in one process
   cdnimg version                          # Show version`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			initializeLogger(cmd)
		},
	}

	// Add global flags
	cmd.PersistentFlags().String("log-level", "info", "Set log level (trace|debug|info|warn|error)")
	cmd.PersistentFlags().Bool("json", false, "Output logs in JSON format")
	cmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
	cmd.PersistentFlags().String("config", "", "Config file (default: cdnimg.yaml in . or $HOME)")

	// Wire Cobra's built-in --version using the binary version
	cmd.Version = buildinfo.Version()
	cmd.SetVersionTemplate("cdnimg {{.Version}}\n")

	registerSubcommands(cmd, reg)

	// Grouped help by command group (Stage → Support)
	defaultHelp := cmd.HelpFunc()
	cmd.SetHelpFunc(func(c *cobra.Command, args []string) {
		if c != cmd {
			defaultHelp(c, args)
			return
		}
		c.Println(c.Long)
		c.Println()
		c.Println("Build Stages:")
		for _, r := range reg.GetCommandsByGroup(ops.GroupStage) {
			c.Printf("  %-12s %s\n", r.Name, r.Description)
		}
		c.Println()
		c.Println("Support Commands:")
		for _, r := range reg.GetCommandsByGroup(ops.GroupSupport) {
			c.Printf("  %-12s %s\n", r.Name, r.Description)
		}
		c.Println()
		c.Println("Flags:")
		c.Print(c.LocalFlags().FlagUsages())
	})

	return cmd
}

// registerSubcommands adds all subcommands to the root command and classifies them for help output.
func registerSubcommands(cmd *cobra.Command, reg *ops.Registry) {
	for _, sub := range []struct {
		group ops.CommandGroup
		cmd   *cobra.Command
	}{
		{ops.GroupStage, newBuildCommand()},
		{ops.GroupStage, newPostBuildCommand()},
		{ops.GroupStage, newRunCommand()},
		{ops.GroupSupport, newVersionCommand()},
	} {
		cmd.AddCommand(sub.cmd)
		if err := reg.Register(sub.group, sub.cmd); err != nil {
			panic(err)
		}
	}
}

// Execute runs the command tree and exits with the code matching the failure.
// This is called by main.main().
func Execute() {
	if err := newRootCommand().Execute(); err != nil {
		logger.Error("Command execution failed", logger.Err(err))
		os.Exit(exitCodeFor(err))
	}
}

// initializeLogger sets up the logger based on command flags
func initializeLogger(cmd *cobra.Command) {
	logLevelStr, _ := cmd.Flags().GetString("log-level")
	jsonLogs, _ := cmd.Flags().GetBool("json")
	noColor, _ := cmd.Flags().GetBool("no-color")

	config := logger.Config{
		Level:     logger.ParseLevel(logLevelStr),
		UseColor:  !noColor,
		JSON:      jsonLogs,
		Component: "cdnimg",
	}

	if err := logger.Initialize(config); err != nil {
		// Fallback to stderr
		_, _ = os.Stderr.WriteString("Failed to initialize logger: " + err.Error() + "\n")
		os.Exit(exitCodeFor(errConfig))
	}
}
