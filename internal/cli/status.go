package cli

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/scrypster/secretary/internal/persona"
	"github.com/scrypster/secretary/internal/storage"
)

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show checkpoints, processed messages and memo counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()

			store := persona.NewCheckpointStore(a.cfg.Persona.CheckpointPath)
			path, n, err := store.Latest()
			switch {
			case errors.Is(err, persona.ErrNoCheckpoint):
				fmt.Fprintf(out, "persona: no checkpoint in %s\n", store.Root())
			case err != nil:
				return err
			default:
				hyps, bio, err := persona.ReadCheckpoint(path)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "persona: checkpoint %d at %s (%d hypotheses, %d biography chars)\n",
					n, path, len(hyps), len(bio))
			}

			ledger, err := a.openLedger()
			if err != nil {
				return err
			}
			if ledger == nil {
				fmt.Fprintln(out, "ledger: disabled")
				return nil
			}

			stats, err := ledger.Stats(cmd.Context())
			if err != nil {
				return err
			}
			printStats(out, stats)
			return nil
		},
	}
}

func printStats(out io.Writer, stats *storage.Stats) {
	fmt.Fprintf(out, "ledger: %d checkpoints recorded\n", stats.Checkpoints)
	fmt.Fprintf(out, "processed: %d persona, %d memo\n",
		stats.ProcessedByStage[storage.StagePersona], stats.ProcessedByStage[storage.StageMemo])
	fmt.Fprintf(out, "memos: %d\n", stats.Memos)

	categories := make([]string, 0, len(stats.MemosByCategory))
	for c := range stats.MemosByCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	for _, c := range categories {
		fmt.Fprintf(out, "  %-20s %d\n", c, stats.MemosByCategory[c])
	}
}
