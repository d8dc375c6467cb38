package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/devlongs/flash-arb/internal/bot"
	"github.com/devlongs/flash-arb/internal/config"
	"github.com/devlongs/flash-arb/internal/output"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "arbbot",
	Short: "Two-pool flash-loan arbitrage bot",
	Long: `arbbot watches two constant-product pools that trade the same pair and,
on every new block, dispatches a flash-loan round trip through the
arbitrage contract when the price gap covers both swap fees.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
}

// loadConfig loads configuration and sets up logging from it
func loadConfig(dryRun bool) (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{Path: cfgFile, DryRun: dryRun})
	if err != nil {
		return nil, err
	}
	output.Setup(cfg.Logging)
	return cfg, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

func withBot(dryRun bool, fn func(ctx context.Context, b *bot.Bot) error) error {
	cfg, err := loadConfig(dryRun)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	b, err := bot.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	if err := fn(ctx, b); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("arbbot failed")
		os.Exit(1)
	}
}
