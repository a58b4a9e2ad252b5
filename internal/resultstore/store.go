// Package resultstore keeps run summaries in SQLite and aggregates them per
// delay, algorithm and node count.
package resultstore

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/signalsfoundry/manet-simulator/internal/export"
	"github.com/signalsfoundry/manet-simulator/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id            TEXT NOT NULL DEFAULT '',
	algorithm         TEXT NOT NULL,
	nodes             INTEGER NOT NULL,
	frames            INTEGER NOT NULL,
	delay             INTEGER NOT NULL,
	sent              INTEGER NOT NULL,
	received          INTEGER NOT NULL,
	sent_nodes        INTEGER NOT NULL,
	received_nodes    INTEGER NOT NULL,
	connectivity      INTEGER NOT NULL,
	convergence       INTEGER NOT NULL,
	convergence_frame INTEGER NOT NULL,
	success           INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_group ON runs (delay, algorithm, nodes);
`

// Store is a SQLite-backed collection of run summaries.
type Store struct {
	db *sql.DB
}

// Open opens or creates the store at path. Use ":memory:" for a private
// in-memory store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection keeps in-memory databases shared and serialises
	// writers from parallel sweeps.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	db.Exec("PRAGMA busy_timeout=5000")

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert records one run summary.
func (s *Store) Insert(ctx context.Context, sum model.RunSummary) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, algorithm, nodes, frames, delay, sent, received,
			sent_nodes, received_nodes, connectivity, convergence, convergence_frame, success)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.RunID, sum.Algorithm, sum.Nodes, sum.Frames, sum.Delay, sum.SentMessages, sum.ReceivedMessages,
		sum.SentNodes, sum.ReceivedNodes, sum.Connectivity, sum.Convergence, sum.ConvergenceFrame, sum.Success,
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", sum.RunID, err)
	}
	return nil
}

// ImportDir walks root for exported run directories and inserts their
// summaries. It returns the number of runs imported.
func (s *Store) ImportDir(ctx context.Context, root string) (int, error) {
	imported := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() || !export.IsRunDir(path) {
			return nil
		}
		sum, err := export.ReadSummary(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		if err := s.Insert(ctx, sum); err != nil {
			return err
		}
		imported++
		return filepath.SkipDir
	})
	return imported, err
}

// Count returns the number of stored runs.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting runs: %w", err)
	}
	return n, nil
}

// Aggregate is the mean outcome of the connected runs sharing a delay,
// algorithm and node count.
type Aggregate struct {
	Delay     int    `json:"delay"`
	Algorithm string `json:"algorithm"`
	Nodes     int    `json:"nodes"`
	Runs      int    `json:"runs"`

	Messages         float64 `json:"messages"`
	SentNodes        float64 `json:"sentnodes"`
	ReceivedNodes    float64 `json:"receivednodes"`
	ConvergenceRate  float64 `json:"convergence"`
	ConvergenceFrame float64 `json:"convergenceframe"`
	SuccessRate      float64 `json:"success"`
}

// Aggregates groups connected runs by (delay, algorithm, nodes). Runs that
// lost connectivity are excluded.
func (s *Store) Aggregates(ctx context.Context) ([]Aggregate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT delay, algorithm, nodes, COUNT(*),
			AVG(sent), AVG(sent_nodes), AVG(received_nodes),
			AVG(convergence), AVG(convergence_frame), AVG(success)
		FROM runs
		WHERE connectivity = 1
		GROUP BY delay, algorithm, nodes
		ORDER BY delay, algorithm, nodes`)
	if err != nil {
		return nil, fmt.Errorf("querying aggregates: %w", err)
	}
	defer rows.Close()

	var out []Aggregate
	for rows.Next() {
		var a Aggregate
		if err := rows.Scan(&a.Delay, &a.Algorithm, &a.Nodes, &a.Runs,
			&a.Messages, &a.SentNodes, &a.ReceivedNodes,
			&a.ConvergenceRate, &a.ConvergenceFrame, &a.SuccessRate); err != nil {
			return nil, fmt.Errorf("scanning aggregate: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
