package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/aprskalo1/UMS/internal/vectorstore"
)

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var (
		id          int64
		topK        int
		includeSelf bool
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "List the nearest neighbours of an indexed vector",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id < 0 {
				return errors.New("--id is required")
			}
			if topK <= 0 {
				return errors.New("--top-k must be positive")
			}
			index, err := ctx.openIndex()
			if err != nil {
				return err
			}
			query, err := index.Reconstruct(id)
			if err != nil {
				return err
			}
			var exclude []int64
			if !includeSelf {
				exclude = append(exclude, id)
			}
			hits, err := index.Search(query, topK, exclude...)
			if err != nil {
				return err
			}

			store, err := ctx.openMapping(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()
			records, err := store.Load(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(hits) == 0 {
				fmt.Fprintln(out, "No neighbours found")
				return nil
			}
			fmt.Fprintf(out, "Query %d (%s)\n", id, keyOrDash(records, id))
			rows := make([][]string, 0, len(hits))
			for rank, hit := range hits {
				rows = append(rows, []string{
					strconv.Itoa(rank + 1),
					strconv.FormatInt(hit.ID, 10),
					keyOrDash(records, hit.ID),
					formatPercent(vectorstore.ScorePercent(hit.Score)),
				})
			}
			fmt.Fprint(out, renderTable(
				[]string{"Rank", "Ordinal", "Key", "Similarity"},
				rows,
				[]columnAlignment{alignRight, alignRight, alignLeft, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().Int64Var(&id, "id", -1, "Ordinal id of the query vector")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 10, "Number of neighbours to return")
	cmd.Flags().BoolVar(&includeSelf, "include-self", false, "Keep the query vector in the results")
	return cmd
}

func keyOrDash(records map[int64]string, id int64) string {
	if key, ok := records[id]; ok && key != "" {
		return key
	}
	return "-"
}
