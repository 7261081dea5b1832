package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestAnalytics(t *testing.T) {
	a := NewAnalytics(prometheus.NewRegistry())
	a.ObservePipeline("AAPL", 600, 0.4)
	a.IncWeightCollapse("AAPL")
	a.ObserveFit(3, 42, true)
	a.IncSuperseded("AAPL")
	a.IncSuperseded("AAPL")
	a.SetRegime("AAPL", "stable", 0.4)
	a.SetRegime("AAPL", "turbulent", 0.7)

	assert.Equal(t, 600.0, testutil.ToFloat64(a.pipelineSteps.WithLabelValues("AAPL")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.collapses.WithLabelValues("AAPL")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.fits.WithLabelValues("3", "true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(a.superseded.WithLabelValues("AAPL")))
	assert.Equal(t, 1, testutil.CollectAndCount(a.superseded))
	assert.Equal(t, 1, testutil.CollectAndCount(a.regime))
	assert.Equal(t, 0.7, testutil.ToFloat64(a.regime.WithLabelValues("AAPL", "turbulent")))
}
