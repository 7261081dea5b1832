package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"MarketState/internal/domain/models"
	domrepo "MarketState/internal/domain/repository"
	pkgch "MarketState/pkg/clickhouse"
)

const insertChunk = 2000

// CHTickStorage writes raw ticks to ClickHouse.
type CHTickStorage struct {
	ch       *pkgch.Client
	db       *sql.DB
	database string
	table    string
}

var _ domrepo.ObservationWriter = (*CHTickStorage)(nil)

// NewCHTickStorage stores ticks in database.table.
func NewCHTickStorage(ch *pkgch.Client, database, table string) *CHTickStorage {
	return &CHTickStorage{ch: ch, db: ch.DB(), database: database, table: table}
}

// QualifiedTable returns database.table.
func (s *CHTickStorage) QualifiedTable() string {
	return s.database + "." + s.table
}

// Init creates the database and tick table when missing.
func (s *CHTickStorage) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, TickSchema(s.database, s.table))
}

// TickSchema returns the DDL for the raw tick table.
func TickSchema(database, table string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
            ts     DateTime64(3, 'UTC'),
            symbol LowCardinality(String),
            price  Float64,
            volume Float64
        ) ENGINE = ReplacingMergeTree
        PARTITION BY toYYYYMM(ts)
        ORDER BY (symbol, ts)`, database, table),
	}
}

func (s *CHTickStorage) Store(ctx context.Context, symbol string, o models.Observation) error {
	return s.StoreBatch(ctx, symbol, []models.Observation{o})
}

// StoreBatch inserts observations in multi-row chunks.
func (s *CHTickStorage) StoreBatch(ctx context.Context, symbol string, obs []models.Observation) error {
	if symbol == "" {
		return fmt.Errorf("store ticks: empty symbol")
	}
	for start := 0; start < len(obs); start += insertChunk {
		end := min(start+insertChunk, len(obs))
		q, args := buildTickInsert(s.QualifiedTable(), symbol, obs[start:end])
		if len(args) == 0 {
			continue
		}
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("store ticks: %w", err)
		}
	}
	return nil
}

func buildTickInsert(table, symbol string, obs []models.Observation) (string, []interface{}) {
	values := make([]string, 0, len(obs))
	args := make([]interface{}, 0, len(obs)*4)
	for _, o := range obs {
		if o.Timestamp.IsZero() {
			continue
		}
		values = append(values, "(?, ?, ?, ?)")
		args = append(args, o.Timestamp.UTC(), symbol, o.Price, o.Volume)
	}
	q := fmt.Sprintf("INSERT INTO %s (ts, symbol, price, volume) VALUES %s", table, strings.Join(values, ","))
	return q, args
}

func (s *CHTickStorage) Health(ctx context.Context) error {
	return s.ch.Health(ctx)
}

// Close is a no-op; the client is owned by the caller.
func (s *CHTickStorage) Close() error {
	return nil
}
