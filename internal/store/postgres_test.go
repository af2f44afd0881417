// internal/store/postgres_test.go
package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/triage/internal/infochannel"
	"github.com/xkilldash9x/triage/internal/situation"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace for more robust SQL mock testing.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

func sampleRecord() AttemptRecord {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return AttemptRecord{
		LineageID: uuid.NewString(),
		Job:       "water",
		Ordinal:   1,
		Status:    "FAILED",
		ExitCode:  1,
		Situation: "scf-not-converged",
		Score:     1,
		Action:    "RETRY_WITH_FIX(FOCUS_JOB) with 1 edit(s)",
		Outcome:   "RETRY",
		Evaluations: []situation.Evaluation{{
			Situation: "scf-not-converged",
			Score:     1,
			Pairs: []situation.PairScore{
				{Condition: "OUTPUT_FILE MATCHES SCF", Channel: infochannel.TypeOutputFile, Score: 1, Evidence: "file:water_1.log"},
				{Condition: "LOG_FEED MATCHES SCF", Channel: infochannel.TypeLogFeed, Score: 1, Evidence: "text:feed"},
			},
		}},
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
	}
}

func TestNewStore(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = New(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr, "Error from ping should be propagated")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should run the schema on migrate", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectPing()
		s, err := New(context.Background(), mockPool, zap.NewNop())
		require.NoError(t, err)

		mockPool.ExpectExec("CREATE TABLE IF NOT EXISTS attempts").WillReturnResult(pgxmock.NewResult("CREATE", 0))
		require.NoError(t, s.Migrate(context.Background()))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestRecordAttempt(t *testing.T) {
	ctx := context.Background()

	t.Run("should persist the attempt and its pair scores", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer mockPool.Close()

		observedZapCore, observedLogs := observer.New(zapcore.ErrorLevel)
		mockPool.ExpectPing()
		s, err := New(ctx, mockPool, zap.New(observedZapCore))
		require.NoError(t, err)

		rec := sampleRecord()
		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertAttempt)).
			WithArgs(
				rec.LineageID, rec.Ordinal, rec.Job, rec.Status, rec.ExitCode,
				rec.Situation, rec.Score, rec.Action, rec.Outcome,
				pgxmock.AnyArg(), rec.StartedAt, rec.FinishedAt,
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCopyFrom(pgx.Identifier{"pair_scores"}, pairColumns).WillReturnResult(2)
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, s.RecordAttempt(ctx, rec))
		assert.NoError(t, mockPool.ExpectationsWereMet())
		assert.Empty(t, observedLogs.All(), "Expected no errors logged on successful commit")
	})

	t.Run("should skip the copy when nothing was evaluated", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectPing()
		s, err := New(ctx, mockPool, zap.NewNop())
		require.NoError(t, err)

		rec := sampleRecord()
		rec.Evaluations = nil
		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertAttempt)).
			WithArgs(
				rec.LineageID, rec.Ordinal, rec.Job, rec.Status, rec.ExitCode,
				rec.Situation, rec.Score, rec.Action, rec.Outcome,
				[]byte("[]"), rec.StartedAt, rec.FinishedAt,
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, s.RecordAttempt(ctx, rec))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should roll back when the copy count is short", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectPing()
		s, err := New(ctx, mockPool, zap.NewNop())
		require.NoError(t, err)

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertAttempt)).WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCopyFrom(pgx.Identifier{"pair_scores"}, pairColumns).WillReturnResult(1)
		mockPool.ExpectRollback()

		err = s.RecordAttempt(ctx, sampleRecord())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mismatch in copied pair scores count")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should surface insert errors", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectPing()
		s, err := New(ctx, mockPool, zap.NewNop())
		require.NoError(t, err)

		insertErr := errors.New("unique violation")
		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertAttempt)).WillReturnError(insertErr)
		mockPool.ExpectRollback()

		err = s.RecordAttempt(ctx, sampleRecord())
		assert.ErrorIs(t, err, insertErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestAttemptsByLineage(t *testing.T) {
	ctx := context.Background()
	mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer mockPool.Close()

	mockPool.ExpectPing()
	s, err := New(ctx, mockPool, zap.NewNop())
	require.NoError(t, err)

	rec := sampleRecord()
	evaluations, err := json.Marshal(rec.Evaluations)
	require.NoError(t, err)

	rows := pgxmock.NewRows([]string{"ordinal", "job", "status", "exit_code", "situation", "score", "action", "outcome", "evaluations", "started_at", "finished_at"}).
		AddRow(1, rec.Job, rec.Status, rec.ExitCode, rec.Situation, rec.Score, rec.Action, rec.Outcome, evaluations, rec.StartedAt, rec.FinishedAt).
		AddRow(2, rec.Job, "SUCCEEDED", 0, "", 0.0, "", "SUCCEEDED", []byte("[]"), rec.FinishedAt, rec.FinishedAt.Add(time.Minute))
	mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectAttempts)).WithArgs(rec.LineageID).WillReturnRows(rows)

	got, err := s.AttemptsByLineage(ctx, rec.LineageID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, rec, got[0])
	assert.Equal(t, "SUCCEEDED", got[1].Outcome)
	assert.Empty(t, got[1].Evaluations)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
