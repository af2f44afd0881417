// internal/store/postgres.go
package store

import (
	"context"
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS attempts (
    lineage_id  TEXT NOT NULL,
    ordinal     INTEGER NOT NULL,
    job         TEXT NOT NULL,
    status      TEXT NOT NULL,
    exit_code   INTEGER NOT NULL,
    situation   TEXT NOT NULL DEFAULT '',
    score       DOUBLE PRECISION NOT NULL DEFAULT 0,
    action      TEXT NOT NULL DEFAULT '',
    outcome     TEXT NOT NULL DEFAULT '',
    evaluations JSONB NOT NULL DEFAULT '[]',
    started_at  TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (lineage_id, ordinal)
);
CREATE TABLE IF NOT EXISTS pair_scores (
    lineage_id TEXT NOT NULL,
    ordinal    INTEGER NOT NULL,
    situation  TEXT NOT NULL,
    pair_index INTEGER NOT NULL,
    condition  TEXT NOT NULL,
    channel    TEXT NOT NULL,
    score      DOUBLE PRECISION NOT NULL,
    evidence   TEXT NOT NULL DEFAULT ''
);
`

const sqlInsertAttempt = `
        INSERT INTO attempts (lineage_id, ordinal, job, status, exit_code, situation, score, action, outcome, evaluations, started_at, finished_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        ON CONFLICT (lineage_id, ordinal) DO UPDATE SET
            status = EXCLUDED.status,
            exit_code = EXCLUDED.exit_code,
            situation = EXCLUDED.situation,
            score = EXCLUDED.score,
            action = EXCLUDED.action,
            outcome = EXCLUDED.outcome,
            evaluations = EXCLUDED.evaluations,
            finished_at = EXCLUDED.finished_at;
    `

const sqlSelectAttempts = `
        SELECT ordinal, job, status, exit_code, situation, score, action, outcome, evaluations, started_at, finished_at
        FROM attempts
        WHERE lineage_id = $1
        ORDER BY ordinal ASC;
    `

var pairColumns = []string{"lineage_id", "ordinal", "situation", "pair_index", "condition", "channel", "score", "evidence"}

// Store provides a PostgreSQL implementation of the Recorder interface.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// Migrate creates the audit tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to migrate attempt store: %w", err)
	}
	return nil
}

// RecordAttempt writes the attempt row and its pair scores in one transaction.
func (s *Store) RecordAttempt(ctx context.Context, rec AttemptRecord) error {
	evaluations, err := json.Marshal(rec.Evaluations)
	if err != nil {
		return fmt.Errorf("failed to encode evaluations: %w", err)
	}
	if rec.Evaluations == nil {
		evaluations = []byte("[]")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	_, err = tx.Exec(ctx, sqlInsertAttempt,
		rec.LineageID, rec.Ordinal, rec.Job, rec.Status, rec.ExitCode,
		rec.Situation, rec.Score, rec.Action, rec.Outcome,
		evaluations, rec.StartedAt.UTC(), rec.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert attempt %s/%d: %w", rec.LineageID, rec.Ordinal, err)
	}

	if pairs := pairRows(rec.Evaluations); len(pairs) > 0 {
		rows := make([][]interface{}, len(pairs))
		for i, p := range pairs {
			rows[i] = []interface{}{rec.LineageID, rec.Ordinal, p.situation, p.index, p.condition, p.channel, p.score, p.evidence}
		}
		copyCount, err := tx.CopyFrom(ctx, pgx.Identifier{"pair_scores"}, pairColumns, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("failed to copy pair scores: %w", err)
		}
		if int(copyCount) != len(rows) {
			return fmt.Errorf("mismatch in copied pair scores count: expected %d, got %d", len(rows), copyCount)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// AttemptsByLineage returns a lineage's records in attempt order.
func (s *Store) AttemptsByLineage(ctx context.Context, lineageID string) ([]AttemptRecord, error) {
	rows, err := s.pool.Query(ctx, sqlSelectAttempts, lineageID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer rows.Close()

	var records []AttemptRecord
	for rows.Next() {
		rec := AttemptRecord{LineageID: lineageID}
		var evaluations []byte
		err := rows.Scan(
			&rec.Ordinal, &rec.Job, &rec.Status, &rec.ExitCode,
			&rec.Situation, &rec.Score, &rec.Action, &rec.Outcome,
			&evaluations, &rec.StartedAt, &rec.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attempt row: %w", err)
		}
		if len(evaluations) > 0 {
			if err := json.Unmarshal(evaluations, &rec.Evaluations); err != nil {
				return nil, fmt.Errorf("failed to decode evaluations: %w", err)
			}
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return records, nil
}
