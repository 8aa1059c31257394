// Package cli implements the secretary commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scrypster/secretary/internal/config"
	"github.com/scrypster/secretary/internal/llm"
	"github.com/scrypster/secretary/internal/logging"
	"github.com/scrypster/secretary/internal/metrics"
	"github.com/scrypster/secretary/internal/storage/sqlite"
)

// app carries the state shared by all commands of one invocation.
type app struct {
	configPath string
	provider   string
	model      string

	cfg    *config.Config
	logger *zap.Logger
	ledger *sqlite.Ledger
	gw     llm.Invoker

	// newGateway is replaced in tests.
	newGateway func(cfg config.LLMConfig, logger *zap.Logger) (llm.Invoker, error)
}

func newApp() *app {
	return &app{
		logger: zap.NewNop(),
		newGateway: func(cfg config.LLMConfig, logger *zap.Logger) (llm.Invoker, error) {
			return llm.NewGatewayFromConfig(cfg, llm.WithLogger(logger))
		},
	}
}

// Execute runs the CLI with args and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := newApp()
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	a.close()
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "secretary",
		Short:         "Build a persona from your mail and file memos on a memoboard",
		Long:          "secretary reads a mail export, infers a biography of its owner with an LLM and extracts actionable and informative memos from single messages.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", os.Getenv("SECRETARY_CONFIG"), "YAML config file (default: $SECRETARY_CONFIG)")
	root.PersistentFlags().StringVar(&a.provider, "provider", "", "LLM provider: ollama, openai or anthropic (overrides config)")
	root.PersistentFlags().StringVarP(&a.model, "model", "m", "", "Model of the selected provider (overrides config)")

	root.AddCommand(a.personaCmd(), a.memosCmd(), a.importCmd(), a.statusCmd())
	return root
}

// setup loads configuration, applies global flags and initialises logging.
func (a *app) setup() error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.provider != "" {
		cfg.LLM.Provider = a.provider
	}
	cfg.LLM.SetModel(a.model)
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := logging.Init(logging.Config{Level: cfg.Logging.Level, File: cfg.Logging.File})
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	a.logger = logger
	return nil
}

// openLedger opens the run ledger once. It returns nil when the ledger is
// disabled in configuration.
func (a *app) openLedger() (*sqlite.Ledger, error) {
	if a.ledger != nil || a.cfg.Storage.LedgerPath == config.LedgerDisabled {
		return a.ledger, nil
	}
	l, err := sqlite.Open(a.cfg.Storage.LedgerPath, logging.Named("ledger"))
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	a.ledger = l
	return l, nil
}

func (a *app) gateway() (llm.Invoker, error) {
	a.logger.Info("llm backend",
		zap.String("provider", a.cfg.LLM.Provider),
		zap.String("model", a.cfg.LLM.Model()))
	gw, err := a.newGateway(a.cfg.LLM, logging.Named("llm"))
	if err != nil {
		return nil, err
	}
	a.gw = gw
	return gw, nil
}

// close releases the ledger, exports metrics and flushes logs.
func (a *app) close() {
	if g, ok := a.gw.(*llm.Gateway); ok {
		c := g.Breaker().Counts()
		a.logger.Info("llm circuit",
			zap.String("state", g.Breaker().State()),
			zap.Uint64("requests", c.Requests),
			zap.Uint64("failures", c.Failures))
	}
	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			a.logger.Warn("closing ledger", zap.Error(err))
		}
	}
	if a.cfg != nil {
		if err := metrics.WriteTextfile(a.cfg.Metrics.TextfilePath); err != nil {
			a.logger.Warn("writing metrics textfile", zap.Error(err))
		}
	}
	logging.Sync()
}
