// internal/store/sqlite.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps attempt records in a local SQLite file.
type SQLiteStore struct {
	db  *sql.DB
	log *zap.Logger
}

// OpenSQLite opens (creating if needed) the database at path and migrates it.
func OpenSQLite(path string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}
	// modernc serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	s, err := NewSQLiteStore(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStore wraps an open database and migrates it.
func NewSQLiteStore(db *sql.DB, logger *zap.Logger) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db, log: logger.Named("sqlite-store")}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate attempt store: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS attempts (
        lineage_id TEXT NOT NULL,
        ordinal INTEGER NOT NULL,
        job TEXT NOT NULL,
        status TEXT NOT NULL,
        exit_code INTEGER NOT NULL,
        situation TEXT NOT NULL DEFAULT '',
        score REAL NOT NULL DEFAULT 0,
        action TEXT NOT NULL DEFAULT '',
        outcome TEXT NOT NULL DEFAULT '',
        evaluations JSON NOT NULL DEFAULT '[]',
        started_at TEXT NOT NULL,
        finished_at TEXT NOT NULL,
        PRIMARY KEY (lineage_id, ordinal)
    );
    CREATE TABLE IF NOT EXISTS pair_scores (
        lineage_id TEXT NOT NULL,
        ordinal INTEGER NOT NULL,
        situation TEXT NOT NULL,
        pair_index INTEGER NOT NULL,
        condition TEXT NOT NULL,
        channel TEXT NOT NULL,
        score REAL NOT NULL,
        evidence TEXT NOT NULL DEFAULT ''
    );`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// RecordAttempt implements Recorder.
func (s *SQLiteStore) RecordAttempt(ctx context.Context, rec AttemptRecord) error {
	evaluations, err := json.Marshal(rec.Evaluations)
	if err != nil {
		return fmt.Errorf("failed to encode evaluations: %w", err)
	}
	if rec.Evaluations == nil {
		evaluations = []byte("[]")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO attempts (
		lineage_id, ordinal, job, status, exit_code, situation, score, action, outcome, evaluations, started_at, finished_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.LineageID, rec.Ordinal, rec.Job, rec.Status, rec.ExitCode,
		rec.Situation, rec.Score, rec.Action, rec.Outcome, string(evaluations),
		rec.StartedAt.UTC().Format(time.RFC3339Nano), rec.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert attempt %s/%d: %w", rec.LineageID, rec.Ordinal, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM pair_scores WHERE lineage_id = ? AND ordinal = ?`, rec.LineageID, rec.Ordinal); err != nil {
		return fmt.Errorf("failed to clear pair scores: %w", err)
	}
	for _, p := range pairRows(rec.Evaluations) {
		_, err := tx.ExecContext(ctx, `INSERT INTO pair_scores (
			lineage_id, ordinal, situation, pair_index, condition, channel, score, evidence
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.LineageID, rec.Ordinal, p.situation, p.index, p.condition, p.channel, p.score, p.evidence,
		)
		if err != nil {
			return fmt.Errorf("failed to insert pair score: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// AttemptsByLineage returns a lineage's records in attempt order.
func (s *SQLiteStore) AttemptsByLineage(ctx context.Context, lineageID string) ([]AttemptRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT ordinal, job, status, exit_code, situation, score, action, outcome, evaluations, started_at, finished_at
        FROM attempts
        WHERE lineage_id = ?
        ORDER BY ordinal ASC`, lineageID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []AttemptRecord
	for rows.Next() {
		rec := AttemptRecord{LineageID: lineageID}
		var evaluations, started, finished string
		err := rows.Scan(
			&rec.Ordinal, &rec.Job, &rec.Status, &rec.ExitCode,
			&rec.Situation, &rec.Score, &rec.Action, &rec.Outcome,
			&evaluations, &started, &finished,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attempt row: %w", err)
		}
		if err := json.Unmarshal([]byte(evaluations), &rec.Evaluations); err != nil {
			return nil, fmt.Errorf("failed to decode evaluations: %w", err)
		}
		if rec.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("failed to parse started_at: %w", err)
		}
		if rec.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
			return nil, fmt.Errorf("failed to parse finished_at: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return records, nil
}

// PairScores counts the stored pair scores of one attempt.
func (s *SQLiteStore) PairScores(ctx context.Context, lineageID string, ordinal int) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pair_scores WHERE lineage_id = ? AND ordinal = ?`, lineageID, ordinal,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pair scores: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
