package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aprskalo1/UMS/internal/logging"
	"github.com/aprskalo1/UMS/internal/preflight"
	"github.com/aprskalo1/UMS/internal/workflow"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var skipPreflight bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process queued jobs until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			release, err := acquireWorkerLock(cfg)
			if err != nil {
				return err
			}
			defer release()

			p, err := ctx.buildPipeline(runCtx, true)
			if err != nil {
				return err
			}
			defer p.Close()

			if !skipPreflight {
				results := preflight.RunAll(runCtx, cfg, preflight.Probes{Queue: p.queue, Extractor: p.features})
				if preflight.Failed(results) {
					printChecks(cmd.ErrOrStderr(), results)
					return fmt.Errorf("preflight checks failed; run 'embedder check' for details")
				}
			}

			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			logger.Info("embedder worker starting",
				logging.String("queue_backend", cfg.Queue.Backend),
				logging.String("index_path", cfg.Paths.IndexPath),
				logging.Int("dimension", cfg.Embedding.Dimension),
				logging.String("mode", cfg.Embedding.Mode),
			)
			return p.manager.Run(runCtx)
		},
	}
	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Start without running readiness checks")
	return cmd
}

func newOnceCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single fetch/process/persist cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			release, err := acquireWorkerLock(cfg)
			if err != nil {
				return err
			}
			defer release()

			p, err := ctx.buildPipeline(runCtx, true)
			if err != nil {
				return err
			}
			defer p.Close()

			report, err := p.manager.RunOnce(runCtx)
			printCycleReport(cmd.OutOrStdout(), report, p.index.Len())
			return err
		},
	}
}

func printCycleReport(out io.Writer, report workflow.CycleReport, indexSize int) {
	if report.Fetched == 0 {
		fmt.Fprintln(out, "No pending jobs")
		return
	}
	if len(report.Results) > 0 {
		rows := make([][]string, 0, len(report.Results))
		for _, result := range report.Results {
			ordinal := "-"
			if result.OrdinalID >= 0 {
				ordinal = formatCount(int(result.OrdinalID))
			}
			outcome := "embedded"
			if result.Err != nil {
				outcome = truncate(result.Err.Error(), 80)
			}
			rows = append(rows, []string{result.JobID, ordinal, result.Duration.Round(time.Millisecond).String(), outcome})
		}
		fmt.Fprint(out, renderTable(
			[]string{"Job", "Ordinal", "Took", "Outcome"},
			rows,
			[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft},
		))
	}
	fmt.Fprintf(out, "Fetched %s, embedded %s, failed %s", formatCount(report.Fetched), formatCount(report.Succeeded), formatCount(report.Failed))
	if report.Requeued > 0 {
		fmt.Fprintf(out, ", returned %s to pending", formatCount(report.Requeued))
	}
	fmt.Fprintf(out, "; index holds %s vectors\n", formatCount(indexSize))
}
