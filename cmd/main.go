package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/aura/internal/adapters/gateway"
	"github.com/okian/aura/internal/adapters/repository"
	app "github.com/okian/aura/internal/app"
	"github.com/okian/aura/internal/config"
	"github.com/okian/aura/internal/domain/prompt"
	"github.com/okian/aura/internal/domain/scoring"
	"github.com/okian/aura/pkg/logger"
	"github.com/okian/aura/pkg/metrics"
)

// pushTimeout bounds the Pushgateway export after a cycle.
const pushTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs the CLI and maps the result to a process exit code: 0 when
// the roster document was written, 1 otherwise.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "aura: %v\n", err)
		return 1
	}
	return 0
}

type cliOptions struct {
	configPath string
	storePath  string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:   "aura",
		Short: "Refresh aura scores for the roster with one batched model call",
		Long: `aura loads the roster document, asks the model for one score delta per
entity in a single batched call, applies the deltas and rewrites the document.

A failed model call or an unusable answer still rewrites the document with a
fresh timestamp. The command exits non-zero only when nothing was written.`,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRefresh(cmd.Context(), opts, stderr)
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file (default $AURA_CONFIG)")
	root.PersistentFlags().StringVar(&opts.storePath, "store", "", "roster document path (overrides store_path)")

	root.AddCommand(newPromptCmd(opts, stdout, stderr))
	return root
}

func newPromptCmd(opts *cliOptions, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "prompt",
		Short: "Print the batch prompt for the current roster without calling the model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(ctx, opts, stderr)
			if err != nil {
				return err
			}
			svc := app.New(
				app.WithLogger(logger.Get()),
				app.WithStore(repository.NewFileStore(cfg.StorePath)),
				app.WithPromptOptions(prompt.WithRecencyWindow(cfg.RecencyWindow())),
				app.WithMetrics(nil),
			)
			text, err := svc.Prompt(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(stdout, text)
			return err
		},
	}
}

// loadConfig layers configuration, applies flag overrides and initializes
// the global logger from it.
func loadConfig(ctx context.Context, opts *cliOptions, stderr io.Writer) (*config.Config, error) {
	cfg, err := config.Load(ctx, opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.storePath != "" {
		cfg.StorePath = opts.storePath
	}

	if err := logger.Init(
		logger.WithOutput(stderr),
		logger.WithJSON(strings.EqualFold(cfg.LogFormat, "json")),
	); err != nil {
		return nil, fmt.Errorf("initialize logging: %w", err)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return cfg, nil
}

func runRefresh(ctx context.Context, opts *cliOptions, stderr io.Writer) error {
	cfg, err := loadConfig(ctx, opts, stderr)
	if err != nil {
		return err
	}
	log := logger.Named("aura")

	// Fail before touching the store so a misconfigured run leaves no trace.
	if err := cfg.RequireCredential(); err != nil {
		log.Error(ctx, "missing model credential", logger.Error(err))
		return err
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	gwOpts := []gateway.GenAIOption{
		gateway.WithTimeout(cfg.RequestTimeout()),
		gateway.WithLogger(log.Named("gateway")),
	}
	if cfg.BaseURL != "" {
		gwOpts = append(gwOpts, gateway.WithBaseURL(cfg.BaseURL))
	}
	gw, err := gateway.NewGenAI(ctx, cfg.APIKey, gwOpts...)
	if err != nil {
		return fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}

	m := metrics.NewManager()
	svc := app.New(
		app.WithLogger(log.Named("cycle")),
		app.WithStore(repository.NewFileStore(cfg.StorePath,
			repository.WithStaleLockAfter(cfg.StaleLockAfter()),
		)),
		app.WithGateway(gw),
		app.WithUpdater(scoring.NewUpdater(
			scoring.WithTrendLength(cfg.TrendLength),
			scoring.WithPrecision(cfg.ScorePrecision),
		)),
		app.WithModel(cfg.Model),
		app.WithPromptOptions(prompt.WithRecencyWindow(cfg.RecencyWindow())),
		app.WithTimestamp(loc, cfg.TimestampLayout),
		app.WithMetrics(m),
		app.WithLock(cfg.Lock),
	)

	_, runErr := svc.RunCycle(ctx)
	exportMetrics(ctx, cfg, m, log)
	return runErr
}

// exportMetrics writes and pushes cycle metrics when configured. Failures
// are logged and never change the exit code.
func exportMetrics(ctx context.Context, cfg *config.Config, m *metrics.Manager, log logger.Logger) {
	if cfg.MetricsTextfile != "" {
		if err := m.WriteTextfile(cfg.MetricsTextfile); err != nil {
			log.Warn(ctx, "failed to write metrics textfile", logger.Error(err))
		}
	}
	if cfg.PushgatewayURL != "" {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
		defer cancel()
		if err := m.Push(pctx, cfg.PushgatewayURL, cfg.MetricsJob); err != nil {
			log.Warn(ctx, "failed to push metrics", logger.Error(err))
		}
	}
}
