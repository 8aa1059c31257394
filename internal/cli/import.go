package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scrypster/secretary/internal/logging"
	"github.com/scrypster/secretary/internal/mailbox"
)

func (a *app) importCmd() *cobra.Command {
	var (
		days     int
		provider string
	)

	cmd := &cobra.Command{
		Use:   "import <dir>",
		Short: "Copy .eml and .json messages into the source directory",
		Long: `Reads every message under dir, normalizes it and stores it under
mailbox.source_path as <provider>/<YYYYmmdd_HHMMSS>_<message_id>.json.
Messages already stored under the same name are replaced.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			messages, err := mailbox.NewDirSource(args[0], logging.Named("mailbox")).Fetch(cmd.Context(), days)
			if err != nil {
				return err
			}

			archive := mailbox.NewArchive(a.cfg.Mailbox.SourcePath)
			for _, msg := range messages {
				if provider != "" {
					msg.Provider = provider
				}
				path, err := archive.Save(msg)
				if err != nil {
					return err
				}
				a.logger.Debug("stored message", zap.String("message_id", msg.MessageID), zap.String("path", path))
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d messages stored in %s\n", len(messages), a.cfg.Mailbox.SourcePath)
			return nil
		},
	}

	cmd.Flags().IntVarP(&days, "days", "d", 0, "Only import messages from the last N days, 0 for all")
	cmd.Flags().StringVar(&provider, "mail-provider", "", "Provider directory to store messages under (default: taken from each message)")
	return cmd
}
