package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"MarketState/internal/domain/models"
	domrepo "MarketState/internal/domain/repository"
	pkgkafka "MarketState/pkg/kafka"
)

// Refresher requests a background recompute of a symbol.
type Refresher interface {
	Refresh(symbol string)
}

// TickMessage is the ingestion wire format. T is unix seconds or
// milliseconds.
type TickMessage struct {
	Symbol string  `json:"symbol"`
	T      int64   `json:"t"`
	C      float64 `json:"c"`
	V      float64 `json:"v"`
}

// Observation validates the tick and converts it.
func (m TickMessage) Observation() (models.Observation, error) {
	if m.Symbol == "" {
		return models.Observation{}, fmt.Errorf("tick: symbol empty")
	}
	if m.T <= 0 {
		return models.Observation{}, fmt.Errorf("tick: timestamp invalid")
	}
	if math.IsNaN(m.C) || math.IsInf(m.C, 0) || m.C <= 0 {
		return models.Observation{}, fmt.Errorf("tick: price invalid")
	}
	if math.IsNaN(m.V) || math.IsInf(m.V, 0) || m.V < 0 {
		return models.Observation{}, fmt.Errorf("tick: volume invalid")
	}
	ts := time.Unix(m.T, 0)
	if m.T > 1e11 {
		ts = time.UnixMilli(m.T)
	}
	return models.Observation{Timestamp: ts.UTC(), Price: m.C, Volume: m.V}, nil
}

// KafkaObservationsHandler stores consumed ticks and asks for a recompute of
// the symbol. Recomputes are throttled per symbol; the Runner collapses the
// ones that still overlap.
type KafkaObservationsHandler struct {
	topic    string
	storage  domrepo.ObservationWriter
	refresh  Refresher
	metrics  domrepo.Metrics
	interval time.Duration

	mu       sync.Mutex
	lastSeen map[string]time.Time
	now      func() time.Time
}

var _ pkgkafka.MessageHandler = (*KafkaObservationsHandler)(nil)

// NewKafkaObservationsHandler triggers at most one refresh per symbol per
// interval. A zero interval refreshes on every tick.
func NewKafkaObservationsHandler(topic string, storage domrepo.ObservationWriter, refresh Refresher, metrics domrepo.Metrics, interval time.Duration) *KafkaObservationsHandler {
	return &KafkaObservationsHandler{
		topic:    topic,
		storage:  storage,
		refresh:  refresh,
		metrics:  metrics,
		interval: interval,
		lastSeen: make(map[string]time.Time),
		now:      time.Now,
	}
}

func (h *KafkaObservationsHandler) Topic() string { return h.topic }

// Handle returns an error only for failures worth retrying. Malformed ticks
// are counted and dropped.
func (h *KafkaObservationsHandler) Handle(ctx context.Context, b []byte) error {
	var m TickMessage
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return nil
	}
	o, err := m.Observation()
	if err != nil {
		h.metrics.RecordError("consumer_validate")
		return nil
	}
	h.metrics.RecordLatency("ingest_e2e_seconds", h.now().Sub(o.Timestamp).Seconds())

	if h.storage != nil {
		start := time.Now()
		err := h.storage.Store(ctx, m.Symbol, o)
		h.metrics.RecordLatency("ch_insert_seconds", time.Since(start).Seconds())
		if err != nil {
			h.metrics.RecordError("consumer_store")
			return err
		}
		h.metrics.RecordMessageSent("clickhouse", m.Symbol)
	}

	if h.refresh != nil && h.allow(m.Symbol) {
		h.refresh.Refresh(m.Symbol)
	}
	return nil
}

func (h *KafkaObservationsHandler) allow(symbol string) bool {
	if h.interval <= 0 {
		return true
	}
	now := h.now()
	h.mu.Lock()
	defer h.mu.Unlock()
	if last, ok := h.lastSeen[symbol]; ok && now.Sub(last) < h.interval {
		return false
	}
	h.lastSeen[symbol] = now
	return true
}
