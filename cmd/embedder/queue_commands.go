package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aprskalo1/UMS/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the job queue",
	}

	queueCmd.AddCommand(newQueueAddCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueResetLeasedCommand(ctx))
	queueCmd.AddCommand(newQueueStatsCommand(ctx))

	return queueCmd
}

func newQueueAddCommand(ctx *commandContext) *cobra.Command {
	var (
		id       string
		start    float64
		duration float64
	)

	cmd := &cobra.Command{
		Use:   "add <url>...",
		Short: "Enqueue media URLs for embedding",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if id != "" && len(args) > 1 {
				return errors.New("--id can only be used with a single url")
			}
			return ctx.withQueue(cmd.Context(), func(store queue.Backend) error {
				out := cmd.OutOrStdout()
				for _, raw := range args {
					job, err := store.Enqueue(cmd.Context(), queue.NewJob{
						ID:              id,
						SourceURL:       raw,
						StartSeconds:    start,
						DurationSeconds: duration,
					})
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Enqueued %s (%s)\n", job.ID, job.SourceURL)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Job id (defaults to a generated UUID)")
	cmd.Flags().Float64Var(&start, "start", 0, "Clip start offset in seconds")
	cmd.Flags().Float64Var(&duration, "duration", 0, "Clip length in seconds (0 uses clip.default_seconds)")
	return cmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statusFlags []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatuses(statusFlags)
			if err != nil {
				return err
			}
			return ctx.withQueue(cmd.Context(), func(store queue.Backend) error {
				jobs, err := store.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(jobs) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				rows := make([][]string, 0, len(jobs))
				for _, job := range jobs {
					rows = append(rows, []string{
						job.ID,
						statusLabel(string(job.Status)),
						truncate(job.SourceURL, 60),
						formatSeconds(job.StartSeconds),
						formatSeconds(job.DurationSeconds),
						formatTime(job.CollectedAt),
					})
				}
				fmt.Fprint(out, renderTable(
					[]string{"ID", "Status", "Source", "Start", "Duration", "Collected"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statusFlags, "status", "s", nil, "Filter by status (pending, leased, completed, failed)")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := requireArg(args, "job id")
			if err != nil {
				return err
			}
			return ctx.withQueue(cmd.Context(), func(store queue.Backend) error {
				job, err := store.Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				if job == nil {
					return fmt.Errorf("job %s not found", id)
				}
				printJob(cmd.OutOrStdout(), job)
				return nil
			})
		},
	}
}

func printJob(out io.Writer, job *queue.Job) {
	rows := [][]string{
		{"ID", job.ID},
		{"Status", statusLabel(string(job.Status))},
		{"Source", job.SourceURL},
		{"Start", formatSeconds(job.StartSeconds)},
		{"Duration", formatSeconds(job.DurationSeconds)},
		{"Collected", formatTime(job.CollectedAt)},
		{"Leased", formatTimePtr(job.LeasedAt)},
		{"Processed", formatTimePtr(job.ProcessedAt)},
		{"Updated", formatTime(job.UpdatedAt)},
	}
	if job.ErrorMessage != "" {
		rows = append(rows, []string{"Error", job.ErrorMessage})
	}
	fmt.Fprint(out, renderTable([]string{"Field", "Value"}, rows, nil))
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [id...]",
		Short: "Move failed jobs back to pending (all failed jobs when no id is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(cmd.Context(), func(store queue.Backend) error {
				n, err := store.RetryFailed(cmd.Context(), args...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Retried %s failed jobs\n", formatCount(int(n)))
				return nil
			})
		},
	}
}

func newQueueResetLeasedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-leased [id...]",
		Short: "Return jobs stranded by a crashed worker to pending",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(cmd.Context(), func(store queue.Backend) error {
				n, err := store.ResetLeased(cmd.Context(), args...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %s leased jobs\n", formatCount(int(n)))
				return nil
			})
		},
	}
}

func newQueueStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show job counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(cmd.Context(), func(store queue.Backend) error {
				health, err := store.Health(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if health.Total == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				rows := [][]string{
					{statusLabel(string(queue.StatusPending)), formatCount(health.Pending)},
					{statusLabel(string(queue.StatusLeased)), formatCount(health.Leased)},
					{statusLabel(string(queue.StatusCompleted)), formatCount(health.Completed)},
					{statusLabel(string(queue.StatusFailed)), formatCount(health.Failed)},
					{"Total", formatCount(health.Total)},
				}
				fmt.Fprintf(out, "Backend: %s\n", health.Backend)
				fmt.Fprint(out, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}

func parseStatuses(values []string) ([]queue.Status, error) {
	statuses := make([]queue.Status, 0, len(values))
	for _, value := range values {
		status, ok := queue.ParseStatus(value)
		if !ok {
			return nil, fmt.Errorf("unknown status %q (want one of %s)", value, joinStatuses())
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func joinStatuses() string {
	names := make([]string, 0, len(queue.AllStatuses()))
	for _, status := range queue.AllStatuses() {
		names = append(names, string(status))
	}
	return strings.Join(names, ", ")
}
