package results

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/netforge/protoperf/pkg/types"
)

// Store optionally persists result rows to sqlite so past runs can be
// inspected after the process exits. The in-memory Sink stays the primary
// consumer surface; the store is opt-in via the plan file.
type Store struct {
	db *sql.DB
}

func OpenStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// modernc.org/sqlite requires explicit PRAGMAs (not query-string params)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS result_rows (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		protocol TEXT NOT NULL,
		delay_ms INTEGER NOT NULL,
		loss_percent INTEGER NOT NULL,
		bandwidth_mbps INTEGER NOT NULL,
		requests INTEGER NOT NULL,
		successes INTEGER NOT NULL,
		failures INTEGER NOT NULL,
		min_ms REAL NOT NULL,
		max_ms REAL NOT NULL,
		mean_ms REAL NOT NULL,
		median_ms REAL NOT NULL,
		p95_ms REAL NOT NULL,
		p99_ms REAL NOT NULL,
		filtered INTEGER NOT NULL,
		degraded INTEGER NOT NULL DEFAULT 0,
		missing INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (run_id, seq)
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_result_rows_created_at ON result_rows(created_at)`)
	return err
}

// SaveRun persists all rows of a run in arrival order.
func (s *Store) SaveRun(runID string, rows []types.ResultRow) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	now := time.Now().UTC()
	for seq, row := range rows {
		_, err := tx.Exec(
			`INSERT INTO result_rows (run_id, seq, protocol, delay_ms, loss_percent,
				bandwidth_mbps, requests, successes, failures,
				min_ms, max_ms, mean_ms, median_ms, p95_ms, p99_ms,
				filtered, degraded, missing, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, seq, row.Protocol, row.DelayMs, row.LossPercent,
			row.BandwidthMbps, row.Requests, row.Successes, row.Failures,
			row.MinMs, row.MaxMs, row.MeanMs, row.MedianMs, row.P95Ms, row.P99Ms,
			row.Filtered, row.Degraded, row.Missing, now,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("insert row %d: %w", seq, err)
		}
	}
	return tx.Commit()
}

// LoadRun reads back the rows of a run in stored order. A missing run is
// (nil, nil).
func (s *Store) LoadRun(runID string) ([]types.ResultRow, error) {
	query, err := s.db.Query(
		`SELECT protocol, delay_ms, loss_percent, bandwidth_mbps,
			requests, successes, failures,
			min_ms, max_ms, mean_ms, median_ms, p95_ms, p99_ms,
			filtered, degraded, missing
		FROM result_rows WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query run: %w", err)
	}
	defer query.Close()

	var rows []types.ResultRow
	for query.Next() {
		var row types.ResultRow
		if err := query.Scan(
			&row.Protocol, &row.DelayMs, &row.LossPercent, &row.BandwidthMbps,
			&row.Requests, &row.Successes, &row.Failures,
			&row.MinMs, &row.MaxMs, &row.MeanMs, &row.MedianMs, &row.P95Ms, &row.P99Ms,
			&row.Filtered, &row.Degraded, &row.Missing,
		); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, query.Err()
}
