package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/devlongs/flash-arb/internal/bot"
)

var (
	dryRun        bool
	withdrawToken string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Watch new blocks and trade",
	RunE: func(cmd *cobra.Command, args []string) error {
		err := withBot(dryRun, func(ctx context.Context, b *bot.Bot) error {
			return b.Run(ctx)
		})
		log.Info().Msg("Arbitrage bot stopped")
		return err
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate the latest block once without trading",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBot(true, func(ctx context.Context, b *bot.Bot) error {
			return b.Check(ctx)
		})
	},
}

var withdrawCmd = &cobra.Command{
	Use:   "withdraw",
	Short: "Sweep a token balance from the arbitrage contract to the owner",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !common.IsHexAddress(withdrawToken) {
			return fmt.Errorf("invalid token address %q", withdrawToken)
		}
		token := common.HexToAddress(withdrawToken)

		return withBot(false, func(ctx context.Context, b *bot.Bot) error {
			outcome, err := b.Withdraw(ctx, token)
			if err != nil {
				return err
			}
			log.Info().
				Str("txHash", outcome.TxHash.Hex()).
				Uint64("confirmedBlock", outcome.ConfirmedBlock).
				Msg("Withdrawal confirmed")
			return nil
		})
	},
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "evaluate and log opportunities without submitting")

	withdrawCmd.Flags().StringVar(&withdrawToken, "token", "", "token to withdraw")
	_ = withdrawCmd.MarkFlagRequired("token")

	rootCmd.AddCommand(runCmd, checkCmd, withdrawCmd)
}
