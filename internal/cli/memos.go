package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scrypster/secretary/internal/logging"
	"github.com/scrypster/secretary/internal/mailbox"
	"github.com/scrypster/secretary/internal/memoboard"
	"github.com/scrypster/secretary/internal/notify"
	"github.com/scrypster/secretary/internal/persona"
	"github.com/scrypster/secretary/pkg/types"
)

func (a *app) memosCmd() *cobra.Command {
	var (
		personaPath string
		messagePath string
		days        int
		watch       bool
	)

	cmd := &cobra.Command{
		Use:   "memos",
		Short: "Extract memos from messages onto the memoboard",
		Long: `Summarizes each message with the owner's persona in mind, extracts actionable
and informative items from the summary and files every item under
memoboard/<category>/<id>.json for each category it belongs to.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := a.cfg

			if messagePath == "" {
				messagePath = cfg.Mailbox.SourcePath
			}
			if !cmd.Flags().Changed("days") {
				days = cfg.Mailbox.LookbackDays
			}

			bio, err := a.loadPersona(personaPath)
			if err != nil {
				return err
			}

			gw, err := a.gateway()
			if err != nil {
				return err
			}

			opts := []memoboard.Option{
				memoboard.WithMaxBodyTokens(cfg.Memo.MaxBodyTokens),
				memoboard.WithLogger(logging.Named("memoboard")),
			}
			ledger, err := a.openLedger()
			if err != nil {
				return err
			}
			if ledger != nil {
				opts = append(opts, memoboard.WithLedger(ledger))
			}
			ex := memoboard.NewExtractor(gw, memoboard.NewBoard(cfg.Memo.BoardPath), opts...)

			info, err := os.Stat(messagePath)
			if err != nil {
				return err
			}

			if !info.IsDir() {
				msg, err := mailbox.Load(messagePath)
				if err != nil {
					return err
				}
				memos, err := ex.Process(ctx, msg, bio)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d memos from %q\n", len(memos), msg.Subject)
				return nil
			}

			if watch {
				return a.watchInbox(ctx, ex, messagePath, bio)
			}

			messages, err := mailbox.NewDirSource(messagePath, logging.Named("mailbox")).Fetch(ctx, days)
			if err != nil {
				return err
			}
			res, err := ex.ProcessAll(ctx, messages, bio)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d messages processed, %d skipped, %d memos\n",
				res.Processed, res.Skipped, res.Memos)
			return nil
		},
	}

	cmd.Flags().StringVarP(&personaPath, "persona", "p", "", "persona.txt or checkpoint directory (default: latest checkpoint)")
	cmd.Flags().StringVar(&messagePath, "message", "", "Message file or directory (default: mailbox.source_path)")
	cmd.Flags().IntVarP(&days, "days", "d", 0, "Lookback window in days for a directory, 0 for all (default: mailbox.lookback_days)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep running and process messages as they arrive in the directory")
	return cmd
}

// loadPersona reads the biography from path, or from the latest checkpoint
// when path is empty.
func (a *app) loadPersona(path string) (string, error) {
	if path == "" {
		latest, _, err := persona.NewCheckpointStore(a.cfg.Persona.CheckpointPath).Latest()
		if errors.Is(err, persona.ErrNoCheckpoint) {
			return "", fmt.Errorf("no persona checkpoint in %s: run `secretary persona` first or pass --persona", a.cfg.Persona.CheckpointPath)
		}
		if err != nil {
			return "", err
		}
		path = latest
	}

	bio, err := persona.ReadBiography(path)
	if err != nil {
		return "", err
	}
	if bio == "" {
		a.logger.Warn("persona is empty", zap.String("path", path))
	}
	return bio, nil
}

// watchInbox processes message files as they appear under dir until ctx is
// done. Files are handled one at a time; a failing message is logged and the
// loop moves on.
func (a *app) watchInbox(ctx context.Context, ex *memoboard.Extractor, dir, bio string) error {
	paths := make(chan string, 64)
	w := notify.NewInboxWatcher(dir, func(path string) {
		select {
		case paths <- path:
		case <-ctx.Done():
		}
	}, notify.WithLogger(logging.Named("notify")))

	// Start feeds the files already present through the callback before it
	// returns, so it runs beside the loop that drains paths.
	started := make(chan error, 1)
	go func() { started <- w.Start() }()
	startDone := false
	defer func() {
		if !startDone {
			<-started
		}
		w.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-started:
			startDone = true
			started = nil
			if err != nil {
				return fmt.Errorf("watch %s: %w", dir, err)
			}
		case path := <-paths:
			msg, err := mailbox.Load(path)
			if err != nil {
				a.logger.Warn("skipping unreadable message", zap.String("path", path), zap.Error(err))
				continue
			}
			if _, err := ex.ProcessAll(ctx, []types.Message{msg}, bio); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				a.logger.Error("message failed", zap.String("path", path), zap.Error(err))
			}
		}
	}
}
