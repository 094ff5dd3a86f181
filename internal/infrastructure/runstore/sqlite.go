package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bindscape/meshbind/pkg/errors"
)

// SQLiteStore persists run records in a single-file sqlite database.
type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore constructs a store backed by the database at path. Init must
// be called before use.
func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

// Init opens the database and creates the schema.
func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.InvalidParameter("sqlite run store needs a database path")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return errors.Wrap(err, errors.CodeIO, "opening run database")
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return errors.Wrap(err, errors.CodeIO, "pinging run database")
	}
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			config_digest TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			epochs INTEGER NOT NULL,
			best_metric TEXT NOT NULL,
			best_value REAL NOT NULL,
			final_metrics TEXT NOT NULL,
			status TEXT NOT NULL
		);
	`); err != nil {
		_ = db.Close()
		return errors.Wrap(err, errors.CodeIO, "creating run schema")
	}

	s.db = db
	return nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, rec *RunRecord) error {
	if rec == nil || rec.RunID == "" {
		return errors.InvalidParameter("run record needs a run id")
	}
	db, err := s.getDB()
	if err != nil {
		return err
	}

	finals, err := json.Marshal(rec.FinalMetrics)
	if err != nil {
		return errors.Wrap(err, errors.CodeIO, "encoding final metrics")
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO runs (run_id, kind, config_digest, started_at, finished_at,
			epochs, best_metric, best_value, final_metrics, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			kind = excluded.kind,
			config_digest = excluded.config_digest,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			epochs = excluded.epochs,
			best_metric = excluded.best_metric,
			best_value = excluded.best_value,
			final_metrics = excluded.final_metrics,
			status = excluded.status
	`, rec.RunID, rec.Kind, rec.ConfigDigest,
		rec.StartedAt.UnixMilli(), rec.FinishedAt.UnixMilli(),
		rec.Epochs, rec.BestMetric, rec.BestValue, string(finals), rec.Status)
	if err != nil {
		return errors.Wrap(err, errors.CodeIO, "saving run record")
	}
	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, runID string) (*RunRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	row := db.QueryRowContext(ctx, `
		SELECT run_id, kind, config_digest, started_at, finished_at,
			epochs, best_metric, best_value, final_metrics, status
		FROM runs WHERE run_id = ?
	`, runID)
	rec, err := scanRun(row.Scan)
	if err == sql.ErrNoRows {
		return nil, errors.Newf(errors.CodeNotFound, "run %s not found", runID)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeIO, "reading run record")
	}
	return rec, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context) ([]*RunRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT run_id, kind, config_digest, started_at, finished_at,
			epochs, best_metric, best_value, final_metrics, status
		FROM runs ORDER BY started_at, run_id
	`)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeIO, "listing run records")
	}
	defer rows.Close()

	var out []*RunRecord
	for rows.Next() {
		rec, err := scanRun(rows.Scan)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeIO, "reading run record")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeIO, "listing run records")
	}
	return out, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return errors.Wrap(err, errors.CodeIO, "closing run database")
	}
	return nil
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, errors.FatalConfiguration("run store is not initialized")
	}
	return s.db, nil
}

func scanRun(scan func(dest ...any) error) (*RunRecord, error) {
	var rec RunRecord
	var started, finished int64
	var finals string
	if err := scan(&rec.RunID, &rec.Kind, &rec.ConfigDigest, &started, &finished,
		&rec.Epochs, &rec.BestMetric, &rec.BestValue, &finals, &rec.Status); err != nil {
		return nil, err
	}
	rec.StartedAt = time.UnixMilli(started).UTC()
	rec.FinishedAt = time.UnixMilli(finished).UTC()
	if finals != "" && finals != "null" {
		if err := json.Unmarshal([]byte(finals), &rec.FinalMetrics); err != nil {
			return nil, err
		}
	}
	return &rec, nil
}
