package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const namespace = "arbbot"

// Trade result labels
const (
	TradeConfirmed          = "confirmed"
	TradeReverted           = "reverted"
	TradeInsufficientProfit = "insufficient_profit"
	TradeSubmissionFailed   = "submission_failed"
	TradeUnconfirmed        = "unconfirmed"
)

// Metrics holds the Prometheus collectors for the block pipeline
type Metrics struct {
	blocksProcessed  prometheus.Counter
	blocksSkipped    *prometheus.CounterVec
	pipelineErrors   *prometheus.CounterVec
	opportunities    *prometheus.CounterVec
	trades           *prometheus.CounterVec
	pipelineDuration prometheus.Histogram
}

// New registers the pipeline collectors on reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		blocksProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_processed_total",
			Help:      "Blocks that ran the full pipeline",
		}),
		blocksSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_skipped_total",
			Help:      "Block events that did not start a pipeline",
		}, []string{"reason"}),
		pipelineErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_errors_total",
			Help:      "Pipeline runs that ended in an error",
		}, []string{"kind"}),
		opportunities: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "opportunities_total",
			Help:      "Profitable round trips found",
		}, []string{"direction"}),
		trades: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Dispatched trades by result",
		}, []string{"result"}),
		pipelineDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Time from block event to pipeline completion",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 15, 60, 180},
		}),
	}
}

func (m *Metrics) BlockProcessed(d time.Duration) {
	m.blocksProcessed.Inc()
	m.pipelineDuration.Observe(d.Seconds())
}

func (m *Metrics) BlockSkipped(reason string) {
	m.blocksSkipped.WithLabelValues(reason).Inc()
}

func (m *Metrics) PipelineError(kind string) {
	m.pipelineErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) Opportunity(direction string) {
	m.opportunities.WithLabelValues(direction).Inc()
}

func (m *Metrics) Trade(result string) {
	m.trades.WithLabelValues(result).Inc()
}

// Handler returns an HTTP handler exposing the metrics gathered by g
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("Serving metrics")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
