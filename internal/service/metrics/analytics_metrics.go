package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Analytics implements domain.repository.AnalyticsMetrics.
type Analytics struct {
	pipelineSeconds *prometheus.HistogramVec
	pipelineSteps   *prometheus.CounterVec
	collapses       *prometheus.CounterVec
	emIterations    *prometheus.HistogramVec
	fits            *prometheus.CounterVec
	superseded      *prometheus.CounterVec
	regime          *prometheus.GaugeVec
}

// NewAnalytics registers the analytics collectors on reg.
func NewAnalytics(reg prometheus.Registerer) *Analytics {
	f := promauto.With(reg)
	return &Analytics{
		pipelineSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "marketstate",
				Subsystem: "pipeline",
				Name:      "duration_seconds",
				Help:      "Duration of a full state-vector run",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"symbol"},
		),
		pipelineSteps: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "marketstate",
				Subsystem: "pipeline",
				Name:      "steps_total",
				Help:      "Observations processed by the pipeline",
			},
			[]string{"symbol"},
		),
		collapses: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "marketstate",
				Subsystem: "filter",
				Name:      "weight_collapses_total",
				Help:      "Particle weight collapses recovered by uniform reweighting",
			},
			[]string{"symbol"},
		),
		emIterations: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "marketstate",
				Subsystem: "regime",
				Name:      "em_iterations",
				Help:      "Baum-Welch iterations per fit",
				Buckets:   []float64{5, 10, 25, 50, 100, 200, 500},
			},
			[]string{"k"},
		),
		fits: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "marketstate",
				Subsystem: "regime",
				Name:      "fits_total",
				Help:      "Regime model fits by convergence outcome",
			},
			[]string{"k", "converged"},
		),
		superseded: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "marketstate",
				Subsystem: "runner",
				Name:      "superseded_total",
				Help:      "Runs cancelled by a newer request for the same key",
			},
			[]string{"symbol"},
		),
		regime: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "marketstate",
				Subsystem: "regime",
				Name:      "confidence",
				Help:      "Confidence of the latest regime per symbol",
			},
			[]string{"symbol", "regime"},
		),
	}
}

func (a *Analytics) ObservePipeline(symbol string, steps int, seconds float64) {
	a.pipelineSeconds.WithLabelValues(symbol).Observe(seconds)
	a.pipelineSteps.WithLabelValues(symbol).Add(float64(steps))
}

func (a *Analytics) IncWeightCollapse(symbol string) {
	a.collapses.WithLabelValues(symbol).Inc()
}

func (a *Analytics) ObserveFit(k, iterations int, converged bool) {
	ks := strconv.Itoa(k)
	a.emIterations.WithLabelValues(ks).Observe(float64(iterations))
	a.fits.WithLabelValues(ks, strconv.FormatBool(converged)).Inc()
}

func (a *Analytics) IncSuperseded(symbol string) {
	a.superseded.WithLabelValues(symbol).Inc()
}

// SetRegime resets the symbol's gauges so that only the current regime is set.
func (a *Analytics) SetRegime(symbol, regime string, confidence float64) {
	a.regime.DeletePartialMatch(prometheus.Labels{"symbol": symbol})
	a.regime.WithLabelValues(symbol, regime).Set(confidence)
}
