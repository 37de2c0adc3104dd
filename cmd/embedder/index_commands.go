package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aprskalo1/UMS/internal/mapping"
)

func newIndexCommand(ctx *commandContext) *cobra.Command {
	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Inspect the vector index and its mapping",
	}
	indexCmd.AddCommand(newIndexInfoCommand(ctx))
	indexCmd.AddCommand(newIndexVerifyCommand(ctx))
	return indexCmd
}

func newIndexInfoCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show index size, dimension, and mapping backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			index, err := ctx.openIndex()
			if err != nil {
				return err
			}
			size := "-"
			if info, err := os.Stat(index.Path()); err == nil {
				size = formatCount(int(info.Size())) + " bytes"
			}
			rows := [][]string{
				{"Path", index.Path()},
				{"Dimension", strconv.Itoa(index.Dim())},
				{"Vectors", formatCount(index.Len())},
				{"File size", size},
				{"Mapping backends", strings.Join(cfg.Mapping.Backends, ", ")},
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
			return nil
		},
	}
}

func newIndexVerifyCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Report index entries without a mapping and mappings past the index end",
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := ctx.openIndex()
			if err != nil {
				return err
			}
			store, err := ctx.openMapping(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			var failed []string
			for _, backend := range store.Stores() {
				records, err := backend.Load(cmd.Context())
				if err != nil {
					return fmt.Errorf("load %s mapping: %w", backend.Name(), err)
				}
				missing, dangling := mapping.Orphans(records, index.Len())
				fmt.Fprintf(out, "%s: %s records, %s unmapped vectors, %s dangling records\n",
					backend.Name(), formatCount(len(records)), formatCount(len(missing)), formatCount(len(dangling)))
				if len(missing) > 0 {
					fmt.Fprintf(out, "  unmapped: %s\n", joinIDs(missing, limit))
				}
				if len(dangling) > 0 {
					fmt.Fprintf(out, "  dangling: %s\n", joinIDs(dangling, limit))
				}
				if len(missing) > 0 || len(dangling) > 0 {
					failed = append(failed, backend.Name())
				}
			}
			if len(failed) > 0 {
				return fmt.Errorf("index and mapping disagree in %s", strings.Join(failed, ", "))
			}
			fmt.Fprintf(out, "Index and mapping agree (%s vectors)\n", formatCount(index.Len()))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum ids to print per list")
	return cmd
}

func joinIDs(ids []int64, limit int) string {
	shown := ids
	if limit > 0 && len(ids) > limit {
		shown = ids[:limit]
	}
	parts := make([]string, 0, len(shown)+1)
	for _, id := range shown {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	if len(shown) < len(ids) {
		parts = append(parts, fmt.Sprintf("... (+%d more)", len(ids)-len(shown)))
	}
	return strings.Join(parts, ", ")
}
