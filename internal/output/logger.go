package output

import (
	"fmt"
	"math/big"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/devlongs/flash-arb/internal/config"
	"github.com/devlongs/flash-arb/pkg/types"
)

// Logger handles output formatting for the per-block pipeline
type Logger struct {
	symbol   string
	decimals uint8

	mu    sync.Mutex
	stats Stats
}

// Stats tracks bot activity since start
type Stats struct {
	BlocksProcessed  uint64
	BlocksSkipped    uint64
	Opportunities    uint64
	TradesSubmitted  uint64
	TradesConfirmed  uint64
	TradesFailed     uint64
	Errors           uint64
	TotalGrossProfit *big.Int
	StartTime        time.Time
}

// Setup configures the global zerolog logger
func Setup(cfg config.LoggingConfig) {
	switch cfg.Format {
	case "json":
		// Default JSON output
	case "console":
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "15:04:05",
		})
	}

	switch cfg.Level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	}
}

// NewLogger creates a pipeline logger that formats amounts of the base token
func NewLogger(symbol string, decimals uint8) *Logger {
	return &Logger{
		symbol:   symbol,
		decimals: decimals,
		stats: Stats{
			TotalGrossProfit: big.NewInt(0),
			StartTime:        time.Now(),
		},
	}
}

// LogReserves logs the reserve snapshot read for a block
func (l *Logger) LogReserves(block uint64, nameA string, a types.ReservePair, nameB string, b types.ReservePair) {
	log.Info().
		Uint64("block", block).
		Str("pool", nameA).
		Str("baseA", a.Base.Dec()).
		Str("quoteA", a.Quote.Dec()).
		Str("poolB", nameB).
		Str("baseB", b.Base.Dec()).
		Str("quoteB", b.Quote.Dec()).
		Msg("Reserves")
}

// LogOpportunity logs a profitable round trip
func (l *Logger) LogOpportunity(block uint64, opp *types.Opportunity, buyPool, sellPool string) {
	l.mu.Lock()
	l.stats.Opportunities++
	l.stats.TotalGrossProfit.Add(l.stats.TotalGrossProfit, opp.GrossProfit)
	l.mu.Unlock()

	event := log.Info()
	if opp.ReverseProfit != nil && opp.ReverseProfit.Sign() > 0 {
		// Should not happen with consistent reserves
		event = log.Warn().Str("reverseProfit", l.format(opp.ReverseProfit))
	}

	event.
		Uint64("block", block).
		Str("direction", opp.Direction.String()).
		Str("buyOn", buyPool).
		Str("sellOn", sellPool).
		Str("amountIn", l.format(opp.AmountIn.ToBig())).
		Str("grossProfit", l.format(opp.GrossProfit)).
		Msg("Opportunity found")
}

// LogBlockComplete logs completion of a block's pipeline
func (l *Logger) LogBlockComplete(block uint64, opportunity bool, duration time.Duration) {
	l.mu.Lock()
	l.stats.BlocksProcessed++
	l.mu.Unlock()

	log.Info().
		Uint64("block", block).
		Bool("opportunity", opportunity).
		Dur("duration", duration).
		Msg("Block processed")
}

// LogTradeOutcome logs the final state of a dispatched trade
func (l *Logger) LogTradeOutcome(block uint64, outcome types.TradeOutcome) {
	l.mu.Lock()
	if outcome.Submitted {
		l.stats.TradesSubmitted++
	}
	if outcome.Succeeded() {
		l.stats.TradesConfirmed++
	} else {
		l.stats.TradesFailed++
	}
	l.mu.Unlock()

	if outcome.Succeeded() {
		log.Info().
			Uint64("block", block).
			Str("txHash", outcome.TxHash.Hex()).
			Uint64("confirmedBlock", outcome.ConfirmedBlock).
			Uint64("gasUsed", outcome.GasUsed).
			Msg("Arbitrage confirmed")
		return
	}

	event := log.Error().
		Uint64("block", block).
		Bool("submitted", outcome.Submitted).
		Str("reason", outcome.FailureReason)
	if outcome.TxHash != (common.Hash{}) {
		event = event.Str("txHash", outcome.TxHash.Hex())
	}
	if outcome.ConfirmedBlock > 0 {
		event = event.Uint64("confirmedBlock", outcome.ConfirmedBlock)
	}
	event.Msg("Arbitrage execution failed")
}

// LogSkip logs a block event that did not start a pipeline
func (l *Logger) LogSkip(block uint64, reason string) {
	l.mu.Lock()
	l.stats.BlocksSkipped++
	l.mu.Unlock()

	log.Debug().
		Uint64("block", block).
		Str("reason", reason).
		Msg("Block skipped")
}

// LogPipelineError logs an error that ended a block's pipeline
func (l *Logger) LogPipelineError(block uint64, err error) {
	l.mu.Lock()
	l.stats.Errors++
	l.mu.Unlock()

	log.Error().
		Err(err).
		Uint64("block", block).
		Str("kind", types.Kind(err)).
		Msg("Block pipeline failed")
}

// LogStats logs current statistics
func (l *Logger) LogStats() {
	stats := l.GetStats()
	elapsed := time.Since(stats.StartTime)

	log.Info().
		Uint64("blocksProcessed", stats.BlocksProcessed).
		Uint64("blocksSkipped", stats.BlocksSkipped).
		Uint64("opportunities", stats.Opportunities).
		Uint64("tradesSubmitted", stats.TradesSubmitted).
		Uint64("tradesConfirmed", stats.TradesConfirmed).
		Uint64("tradesFailed", stats.TradesFailed).
		Uint64("errors", stats.Errors).
		Str("totalGrossProfit", l.format(stats.TotalGrossProfit)+" "+l.symbol).
		Dur("uptime", elapsed).
		Msg("Arbitrage Bot Stats")
}

// GetStats returns a copy of the current statistics
func (l *Logger) GetStats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := l.stats
	stats.TotalGrossProfit = new(big.Int).Set(l.stats.TotalGrossProfit)
	return stats
}

func (l *Logger) format(v *big.Int) string {
	return FormatUnits(v, l.decimals)
}

// FormatUnits converts a smallest-unit amount to a decimal string with 6
// decimal places. Negative amounts keep their sign.
func FormatUnits(v *big.Int, decimals uint8) string {
	if v == nil {
		return "0"
	}

	amount := new(big.Float).SetInt(v)
	divisor := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	amount.Quo(amount, divisor)

	return fmt.Sprintf("%.6f", amount)
}
