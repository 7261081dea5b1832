package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"MarketState/internal/domain/models"
	domrepo "MarketState/internal/domain/repository"
	"MarketState/internal/services/features"
	pkgch "MarketState/pkg/clickhouse"
	applogger "MarketState/pkg/logger"
)

// CHObservationStore aggregates raw ticks into per-timeframe candles and
// returns their (close, volume) as observations.
type CHObservationStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHObservationStore(ch *pkgch.Client, table string) *CHObservationStore {
	return &CHObservationStore{db: ch.DB(), table: table}
}

// SetLogger injects a structured logger.
func (s *CHObservationStore) SetLogger(l *applogger.Logger) { s.l = l }

const candleColumns = `
        toStartOfInterval(ts, INTERVAL %s) AS bucket,
        symbol,
        argMin(price, ts) AS open,
        max(price) AS high,
        min(price) AS low,
        argMax(price, ts) AS close,
        sum(volume) AS vol`

func (s *CHObservationStore) GetObservations(ctx context.Context, symbol string, from, to time.Time, tf domrepo.Timeframe) ([]models.Observation, error) {
	interval, err := intervalForTF(tf)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`
        SELECT`+candleColumns+`
        FROM %s
        WHERE symbol = ? AND ts >= ? AND ts <= ?
        GROUP BY bucket, symbol
        ORDER BY bucket ASC
    `, interval, s.table)

	candles, err := s.query(ctx, "get_observations", q, symbol, tf, symbol, from, to)
	if err != nil {
		return nil, err
	}
	return features.ObservationsFromCandles(candles), nil
}

func (s *CHObservationStore) GetLatestObservations(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Observation, error) {
	if n <= 0 {
		return nil, fmt.Errorf("latest observations: n must be positive, got %d", n)
	}
	interval, err := intervalForTF(tf)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`
        SELECT`+candleColumns+`
        FROM %s
        WHERE symbol = ?
        GROUP BY bucket, symbol
        ORDER BY bucket DESC
        LIMIT ?
    `, interval, s.table)

	candles, err := s.query(ctx, "latest_observations", q, symbol, tf, symbol, n)
	if err != nil {
		return nil, err
	}
	reverseCandles(candles)
	return features.ObservationsFromCandles(candles), nil
}

func (s *CHObservationStore) query(ctx context.Context, op, q, symbol string, tf domrepo.Timeframe, args ...interface{}) ([]models.Candle, error) {
	start := time.Now()
	fail := func(stage string, err error) error {
		s.l.Error("clickhouse "+op+" "+stage+" error",
			applogger.String("table", s.table),
			applogger.String("symbol", symbol),
			applogger.String("tf", string(tf)),
			applogger.Error(err),
		)
		return fmt.Errorf("%s %s: %w", op, stage, err)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fail("query", err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, 256)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Bucket, &c.Symbol, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fail("scan", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fail("rows", err)
	}
	s.l.Debug("clickhouse "+op+" ok",
		applogger.String("symbol", symbol),
		applogger.String("tf", string(tf)),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

func intervalForTF(tf domrepo.Timeframe) (string, error) {
	switch tf {
	case domrepo.TF1s:
		return "1 SECOND", nil
	case domrepo.TF1m:
		return "1 MINUTE", nil
	case domrepo.TF5m:
		return "5 MINUTE", nil
	default:
		return "", fmt.Errorf("unsupported timeframe: %s", tf)
	}
}

func reverseCandles(cs []models.Candle) {
	for i, j := 0, len(cs)-1; i < j; i, j = i+1, j-1 {
		cs[i], cs[j] = cs[j], cs[i]
	}
}
