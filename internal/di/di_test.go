package di

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"MarketState/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeAppWithoutInfrastructure(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Logger.Level = "error"

	app, err := InitializeApp(cfg)
	require.NoError(t, err)
	defer func() { require.NoError(t, app.Shutdown(context.Background())) }()

	e := app.HTTPServer().Echo()

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/state?symbol=BTCUSDT", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/state", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "marketstate_http_requests_total")
}

func TestProvidersWithDisabledInfrastructure(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	ch, err := ProvideClickHouseClient(cfg)
	require.NoError(t, err)
	assert.Nil(t, ch)

	w, err := ProvideObservationWriter(nil, cfg)
	require.NoError(t, err)
	assert.Nil(t, w)
	assert.Nil(t, ProvideObservationStore(nil, cfg, nil))

	p, err := ProvideKafkaProducer(cfg)
	require.NoError(t, err)
	assert.Nil(t, p)

	c, err := ProvideKafkaConsumer(cfg, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, c)

	s, err := ProvideScheduler(cfg, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, s)

	assert.Nil(t, ProvideNarrator(cfg))
	cfg.Narrative.URL = "http://localhost:9"
	assert.NotNil(t, ProvideNarrator(cfg))
}
