package main

import (
	"github.com/spf13/cobra"
)

// globalFlags are bound to the root command and read lazily by commandContext.
type globalFlags struct {
	configPath string
	verbose    bool
	logFormat  string
}

const (
	groupWorker = "worker"
	groupData   = "data"
	groupAdmin  = "admin"
)

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	ctx := newCommandContext(flags)

	rootCmd := &cobra.Command{
		Use:           "embedder",
		Short:         "Audio embedding ingestion worker",
		Long:          "Leases clip jobs, extracts and normalizes audio, embeds it through the feature extractor, and appends vectors to the similarity index.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "Override logging.format (console or json)")

	rootCmd.AddGroup(
		&cobra.Group{ID: groupWorker, Title: "Worker:"},
		&cobra.Group{ID: groupData, Title: "Queue and index:"},
		&cobra.Group{ID: groupAdmin, Title: "Administration:"},
	)
	add := func(group string, cmds ...*cobra.Command) {
		for _, c := range cmds {
			c.GroupID = group
			rootCmd.AddCommand(c)
		}
	}
	add(groupWorker, newRunCommand(ctx), newOnceCommand(ctx), newIngestCommand(ctx))
	add(groupData, newSearchCommand(ctx), newQueueCommand(ctx), newIndexCommand(ctx))
	add(groupAdmin, newCheckCommand(ctx), newLogsCommand(ctx), newConfigCommand(ctx))

	return rootCmd
}
