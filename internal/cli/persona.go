package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scrypster/secretary/internal/logging"
	"github.com/scrypster/secretary/internal/mailbox"
	"github.com/scrypster/secretary/internal/persona"
)

func (a *app) personaCmd() *cobra.Command {
	var (
		source     string
		days       int
		resume     bool
		checkpoint string
		batchSize  int
	)

	cmd := &cobra.Command{
		Use:   "persona",
		Short: "Infer the owner's persona from mail metadata",
		Long: `Reads messages from the source directory in date order, maps them in batches to
persona hypotheses and rebuilds the biography after every batch. Each batch
writes a new checkpoint_<n> directory with hypothesis.json and persona.txt.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := a.cfg

			if !cmd.Flags().Changed("source") {
				source = cfg.Mailbox.SourcePath
			}
			if !cmd.Flags().Changed("days") {
				days = cfg.Mailbox.LookbackDays
			}
			if !cmd.Flags().Changed("batch-size") {
				batchSize = cfg.Persona.BatchSize
			}

			messages, err := mailbox.NewDirSource(source, logging.Named("mailbox")).Fetch(ctx, days)
			if err != nil {
				return err
			}

			gw, err := a.gateway()
			if err != nil {
				return err
			}

			opts := []persona.Option{
				persona.WithBatchSize(batchSize),
				persona.WithOwnerAddress(cfg.Persona.OwnerAddress),
				persona.WithLogger(logging.Named("persona")),
			}
			ledger, err := a.openLedger()
			if err != nil {
				return err
			}
			if ledger != nil {
				opts = append(opts, persona.WithLedger(ledger))
			}
			agg := persona.NewAggregator(gw, cfg.Persona.CheckpointPath, opts...)

			loaded := false
			switch {
			case checkpoint != "":
				if err := agg.LoadCheckpoint(checkpoint); err != nil {
					return err
				}
				loaded = true
			case resume:
				path, _, err := agg.Store().Latest()
				switch {
				case errors.Is(err, persona.ErrNoCheckpoint):
					a.logger.Info("no checkpoint to resume from, starting fresh")
				case err != nil:
					return err
				default:
					if err := agg.LoadCheckpoint(path); err != nil {
						return err
					}
					loaded = true
				}
			}

			if loaded {
				if messages, err = agg.Unprocessed(ctx, messages); err != nil {
					return err
				}
			}

			a.logger.Info("building persona",
				zap.String("source", source),
				zap.Int("lookback_days", days),
				zap.Int("messages", len(messages)))

			if err := agg.Digest(ctx, messages); err != nil {
				return err
			}

			snap := agg.Snapshot()
			fmt.Fprintf(cmd.OutOrStdout(), "checkpoint %d written to %s (%d hypotheses)\n",
				snap.Generation, agg.Store().Path(snap.Generation), len(agg.Hypotheses()))
			return nil
		},
	}

	cmd.Flags().StringVarP(&source, "source", "s", "", "Directory of stored .json/.eml messages (default: mailbox.source_path)")
	cmd.Flags().IntVarP(&days, "days", "d", 0, "Lookback window in days, 0 for all messages (default: mailbox.lookback_days)")
	cmd.Flags().BoolVar(&resume, "resume", false, "Continue from the latest checkpoint")
	cmd.Flags().StringVar(&checkpoint, "checkpoint", "", "Load this checkpoint directory before digesting")
	cmd.Flags().IntVarP(&batchSize, "batch-size", "b", 0, "Messages per batch (default: persona.batch_size)")
	return cmd
}
