package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tadwir/internal/bootstrap"
	"tadwir/internal/config"
	"tadwir/internal/domain"
	"tadwir/internal/logging"
	"tadwir/internal/usecase"
)

// cli holds the flags and collaborators shared by every subcommand.
type cli struct {
	configPath string
	logLevel   string

	out       io.Writer
	loadCfg   func(path string) (config.Config, error)
	buildOpts bootstrap.Options
}

func newCLI() *cli {
	return &cli{out: os.Stdout, loadCfg: config.Load}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "tadwirctl",
		Short: "Recycling advice from the command line",
		Long: `tadwirctl runs the same advice pipeline as the desktop app.

Available subcommands:
  scan         - Ask for advice about a photo
  ask          - Ask for advice about a named item
  stats        - Show usage counters
  achievements - List achievements and their unlock state`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default ~/.config/tadwir/config.yaml)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(
		newScanCmd(c),
		newAskCmd(c),
		newStatsCmd(c),
		newAchievementsCmd(c),
	)
	return root
}

// services loads config and builds the runtime graph. The stats load delay
// only exists for the UI skeleton, so it is disabled here.
func (c *cli) services(ctx context.Context) (bootstrap.Services, *zap.Logger, error) {
	cfg, err := c.loadCfg(c.configPath)
	if err != nil {
		return bootstrap.Services{}, nil, err
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	cfg.Stats.MinLoadLatency = 0

	logger := c.buildOpts.Logger
	if logger == nil {
		logger, err = logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
		if err != nil {
			return bootstrap.Services{}, nil, err
		}
	}

	opts := c.buildOpts
	opts.Logger = logger
	if opts.Events == nil {
		opts.Events = &printSink{out: c.out}
	}
	services, err := bootstrap.Build(ctx, cfg, opts)
	if err != nil {
		_ = logger.Sync()
		return bootstrap.Services{}, nil, err
	}
	return services, logger, nil
}

func (c *cli) run(cmd *cobra.Command, fn func(ctx context.Context, services bootstrap.Services) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	services, logger, err := c.services(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := services.Close(); err != nil {
			logger.Warn("close store failed", zap.Error(err))
		}
		_ = logger.Sync()
	}()
	return fn(ctx, services)
}

// printSink writes unlock toasts to the terminal. Voice and advice events
// have no CLI surface.
type printSink struct {
	out io.Writer
}

func (p *printSink) VoiceStateChanged(domain.VoiceSnapshot) {}

func (p *printSink) AchievementUnlocked(achievement domain.Achievement) {
	fmt.Fprintf(p.out, "%s %s\n", achievement.Icon, usecase.UnlockToast(achievement))
}

func (p *printSink) AdviceReady(domain.AdviceOutcome)  {}
func (p *printSink) AdviceFailed(domain.AdviceOutcome) {}
