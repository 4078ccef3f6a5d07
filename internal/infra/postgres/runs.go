// Package postgres 把评测运行及其逐视频结果保存到 PostgreSQL。
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/John-Robertt/dicebench/internal/domain"
)

// ErrRunNotFound 表示数据库中没有该 run_id。
var ErrRunNotFound = errors.New("run not found")

const runColumns = `run_id, backend, model, mode, path, target_fps,
	started_at, finished_at, total, correct, failed, skipped, accuracy`

const schema = `
CREATE TABLE IF NOT EXISTS dicebench_runs (
	run_id      TEXT PRIMARY KEY,
	backend     TEXT NOT NULL,
	model       TEXT NOT NULL,
	mode        TEXT NOT NULL,
	path        TEXT NOT NULL,
	target_fps  DOUBLE PRECISION NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	total       INTEGER NOT NULL,
	correct     INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	skipped     INTEGER NOT NULL,
	accuracy    DOUBLE PRECISION NOT NULL
);
CREATE TABLE IF NOT EXISTS dicebench_results (
	run_id      TEXT NOT NULL REFERENCES dicebench_runs(run_id) ON DELETE CASCADE,
	video       TEXT NOT NULL,
	expected    INTEGER NOT NULL,
	predicted   INTEGER,
	correct     BOOLEAN NOT NULL,
	error_code  TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	reply       TEXT NOT NULL DEFAULT '',
	frames      INTEGER NOT NULL DEFAULT 0,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, video)
);`

var resultColumns = []string{
	"run_id", "video", "expected", "predicted", "correct",
	"error_code", "error", "reply", "frames", "duration_ms",
}

type RunStore struct {
	pool *pgxpool.Pool
}

// Open 连接数据库并确保表存在。调用方负责 Close。
func Open(ctx context.Context, dsn string) (*RunStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &RunStore{pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *RunStore) Close() { s.pool.Close() }

func (s *RunStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// SaveRun 在一个事务内写入运行摘要与全部结果；同一 run_id 重复保存会整体覆盖。
func (s *RunStore) SaveRun(ctx context.Context, rr domain.RunReport) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO dicebench_runs (
			run_id, backend, model, mode, path, target_fps,
			started_at, finished_at, total, correct, failed, skipped, accuracy
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (run_id) DO UPDATE SET
			backend=EXCLUDED.backend, model=EXCLUDED.model, mode=EXCLUDED.mode,
			path=EXCLUDED.path, target_fps=EXCLUDED.target_fps,
			started_at=EXCLUDED.started_at, finished_at=EXCLUDED.finished_at,
			total=EXCLUDED.total, correct=EXCLUDED.correct, failed=EXCLUDED.failed,
			skipped=EXCLUDED.skipped, accuracy=EXCLUDED.accuracy`,
		rr.RunID, rr.Backend, rr.Model, rr.Mode, rr.Path, rr.TargetFPS,
		rr.StartedAt, rr.FinishedAt,
		rr.Summary.Total, rr.Summary.Correct, rr.Summary.Failed, rr.Summary.Skipped, rr.Summary.Accuracy,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM dicebench_results WHERE run_id=$1`, rr.RunID); err != nil {
		return fmt.Errorf("clear results: %w", err)
	}

	if len(rr.Results) > 0 {
		rows := resultRows(rr.RunID, rr.Results)
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"dicebench_results"}, resultColumns, pgx.CopyFromRows(rows)); err != nil {
			return fmt.Errorf("copy results: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListRuns 返回所有运行的摘要（不含逐视频结果），按完成时间升序。
func (s *RunStore) ListRuns(ctx context.Context) ([]domain.RunReport, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+runColumns+` FROM dicebench_runs ORDER BY finished_at, run_id`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	out := make([]domain.RunReport, 0, 16)
	for rows.Next() {
		rr, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}

// LoadRun 返回单次运行的摘要与逐视频结果；没有该运行时返回 ErrRunNotFound。
func (s *RunStore) LoadRun(ctx context.Context, runID string) (domain.RunReport, error) {
	rr, err := scanRun(s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM dicebench_runs WHERE run_id=$1`, runID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RunReport{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return domain.RunReport{}, err
	}
	rr.Results, err = s.LoadResults(ctx, runID)
	if err != nil {
		return domain.RunReport{}, err
	}
	rr.Skipped = []domain.SkippedVideo{}
	return rr, nil
}

func scanRun(row pgx.Row) (domain.RunReport, error) {
	var rr domain.RunReport
	if err := row.Scan(
		&rr.RunID, &rr.Backend, &rr.Model, &rr.Mode, &rr.Path, &rr.TargetFPS,
		&rr.StartedAt, &rr.FinishedAt,
		&rr.Summary.Total, &rr.Summary.Correct, &rr.Summary.Failed, &rr.Summary.Skipped, &rr.Summary.Accuracy,
	); err != nil {
		return domain.RunReport{}, fmt.Errorf("scan run: %w", err)
	}
	rr.StartedAt = rr.StartedAt.UTC()
	rr.FinishedAt = rr.FinishedAt.UTC()
	return rr, nil
}

// LoadResults 返回某次运行的逐视频结果（按视频路径排序）。
func (s *RunStore) LoadResults(ctx context.Context, runID string) ([]domain.EvaluationResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT video, expected, predicted, correct, error_code, error, reply, frames, duration_ms
		FROM dicebench_results WHERE run_id=$1 ORDER BY video`, runID)
	if err != nil {
		return nil, fmt.Errorf("load results: %w", err)
	}
	defer rows.Close()

	out := make([]domain.EvaluationResult, 0, 64)
	for rows.Next() {
		var r domain.EvaluationResult
		if err := rows.Scan(&r.Video, &r.Expected, &r.Predicted, &r.Correct,
			&r.ErrorCode, &r.Error, &r.Reply, &r.Frames, &r.DurationMs); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load results: %w", err)
	}
	return out, nil
}

func resultRows(runID string, results []domain.EvaluationResult) [][]any {
	rows := make([][]any, 0, len(results))
	for _, r := range results {
		var predicted any
		if r.Predicted != nil {
			predicted = int32(*r.Predicted)
		}
		rows = append(rows, []any{
			runID, r.Video, int32(r.Expected), predicted, r.Correct,
			r.ErrorCode, r.Error, r.Reply, int32(r.Frames), r.DurationMs,
		})
	}
	return rows
}
