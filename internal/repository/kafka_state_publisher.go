package repository

import (
	"context"
	"time"

	"MarketState/internal/domain/models"
	domrepo "MarketState/internal/domain/repository"
	applogger "MarketState/pkg/logger"
)

// MessageProducer is the subset of pkg/kafka.Producer used for publishing.
type MessageProducer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// StateMessage is the wire form of a published report: the newest state
// vector, its percentiles and the regime call, without the full series.
type StateMessage struct {
	Symbol      string               `json:"symbol"`
	RunID       string               `json:"run_id"`
	Timestamp   time.Time            `json:"timestamp"`
	Latest      *models.StateVector  `json:"latest,omitempty"`
	Percentiles models.Percentiles   `json:"percentiles"`
	Regime      *models.RegimeScores `json:"regime,omitempty"`
	Model       string               `json:"model,omitempty"`
	Narrative   string               `json:"narrative,omitempty"`
}

// NewStateMessage trims r to its wire form.
func NewStateMessage(r *models.Report) StateMessage {
	m := StateMessage{
		Symbol:      r.Symbol,
		RunID:       r.RunID,
		Timestamp:   r.Timestamp,
		Latest:      r.Latest,
		Percentiles: r.Percentiles,
		Regime:      r.Regime,
		Narrative:   r.Narrative,
	}
	if r.Model != nil {
		m.Model = r.Model.Version
	}
	return m
}

// KafkaStatePublisher publishes reports keyed by symbol.
type KafkaStatePublisher struct {
	producer MessageProducer
	topic    string
	metrics  domrepo.Metrics
}

var _ domrepo.StatePublisher = (*KafkaStatePublisher)(nil)

func NewKafkaStatePublisher(producer MessageProducer, topic string, m domrepo.Metrics) *KafkaStatePublisher {
	return &KafkaStatePublisher{producer: producer, topic: topic, metrics: m}
}

func (p *KafkaStatePublisher) Publish(ctx context.Context, r *models.Report) error {
	start := time.Now()
	err := p.producer.Publish(ctx, p.topic, []byte(r.Symbol), NewStateMessage(r))
	if p.metrics != nil {
		p.metrics.RecordLatency("publish_state", time.Since(start).Seconds())
		if err != nil {
			p.metrics.RecordError("publish_state")
		} else {
			p.metrics.RecordMessageSent("kafka", r.Symbol)
		}
	}
	return err
}

func (p *KafkaStatePublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// LogStatePublisher logs reports instead of shipping them. Used when Kafka is
// disabled.
type LogStatePublisher struct {
	l *applogger.Logger
}

func NewLogStatePublisher(l *applogger.Logger) *LogStatePublisher {
	return &LogStatePublisher{l: l}
}

func (p *LogStatePublisher) Publish(_ context.Context, r *models.Report) error {
	fields := []applogger.Field{
		applogger.String("symbol", r.Symbol),
		applogger.String("run_id", r.RunID),
	}
	if r.Regime != nil {
		fields = append(fields,
			applogger.String("regime", r.Regime.Regime),
			applogger.Float("confidence", r.Regime.Confidence))
	}
	p.l.Info("state report", fields...)
	return nil
}

func (p *LogStatePublisher) Close() error { return nil }
