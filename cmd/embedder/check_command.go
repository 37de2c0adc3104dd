package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/aprskalo1/UMS/internal/preflight"
	"github.com/aprskalo1/UMS/internal/queue"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify binaries, directories, queue, index, and feature extractor",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			var probes preflight.Probes
			var extra []preflight.Result

			store, err := queue.Open(cmd.Context(), cfg)
			if err != nil {
				extra = append(extra, preflight.Result{Name: "Job queue", Detail: err.Error()})
			} else {
				defer store.Close()
				probes.Queue = store
			}

			if client, err := ctx.featureClient(); err != nil {
				extra = append(extra, preflight.Result{Name: "Feature extractor", Detail: err.Error()})
			} else {
				probes.Extractor = client
			}

			results := append(preflight.RunAll(cmd.Context(), cfg, probes), extra...)
			printChecks(out, results)
			if preflight.Failed(results) {
				return errors.New("one or more checks failed")
			}
			fmt.Fprintln(out, "All checks passed")
			return nil
		},
	}
}

func printChecks(out io.Writer, results []preflight.Result) {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{r.Name, passLabel(r.Passed), r.Detail})
	}
	fmt.Fprint(out, renderTable([]string{"Check", "Status", "Detail"}, rows, nil))
}
