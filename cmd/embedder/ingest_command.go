package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aprskalo1/UMS/internal/workflow"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <dir|file>...",
		Short: "Embed local audio files, keyed by file name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			files, err := workflow.CollectAudioFiles(args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(files) == 0 {
				fmt.Fprintln(out, "No audio files found")
				return nil
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			release, err := acquireWorkerLock(cfg)
			if err != nil {
				return err
			}
			defer release()

			p, err := ctx.buildPipeline(runCtx, false)
			if err != nil {
				return err
			}
			defer p.Close()

			bar := newIngestProgress(out, len(files))
			report, err := p.manager.IngestFiles(runCtx, files, bar.observe)
			bar.finish()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Embedded %s of %s files (%s failed); index holds %s vectors\n",
				formatCount(report.Succeeded), formatCount(len(files)), formatCount(report.Failed), formatCount(p.index.Len()))
			return nil
		},
	}
}
