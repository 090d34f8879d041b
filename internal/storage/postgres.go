// Package storage はジョブ状態を PostgreSQL に保存します。
package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/LuizAbreu777/aws-intelligence-lab/internal/jobs"
)

//go:embed schema.sql
var schemaSQL string

const (
	uniqueViolation   = "23505"
	maxUpdateAttempts = 8
	applicationName   = "aws-intelligence-lab"
)

const selectJobSQL = `
SELECT id, type, status, stage, progress, payload, meta, result,
       attempt_count, error_message, created_at, updated_at, version
FROM jobs WHERE id = $1`

// Config は接続プールの設定です。
type Config struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// PostgresStore は jobs.Store の PostgreSQL 実装です。
// 部分更新は version 列による楽観ロックで行い、競合時は読み直して再適用します。
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	now    func() time.Time
}

// Open は接続プールを作成します。接続確認は Ping で別途行います。
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = applicationName
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprintf("%d", cfg.StatementTimeout.Milliseconds())
	}

	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	return NewPostgresStore(pool, logger), nil
}

// NewPostgresStore は既存のプールから PostgresStore を作ります。
func NewPostgresStore(pool *pgxpool.Pool, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{
		pool:   pool,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Close はプールを閉じます。
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping は接続確認を行います。
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InitSchema は jobs テーブルを作成します。何度実行しても既存データは失われません。
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Insert はジョブ行を作成します。
func (s *PostgresStore) Insert(ctx context.Context, job *jobs.Job) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	if job.ID == "" {
		return fmt.Errorf("job.ID is required")
	}
	now := s.now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	job.Version = 1

	_, err := s.pool.Exec(ctx, `
INSERT INTO jobs (id, type, status, stage, progress, payload, meta, result,
                  attempt_count, error_message, created_at, updated_at, version)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		job.ID, job.Type, string(job.Status), string(job.Stage), job.Progress,
		job.Payload, nonNil(job.Meta), nonNil(job.Result),
		job.AttemptCount, job.ErrorMessage, job.CreatedAt, job.UpdatedAt, job.Version,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", jobs.ErrExists, job.ID)
	}
	if err != nil {
		return fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	return nil
}

// Get はジョブを取得します。
func (s *PostgresStore) Get(ctx context.Context, id string) (*jobs.Job, error) {
	job, err := scanJob(s.pool.QueryRow(ctx, selectJobSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", jobs.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

// Update は現在行を読み、Patch を適用して version 一致を条件に書き戻します。
func (s *PostgresStore) Update(ctx context.Context, id string, patch jobs.Patch) (*jobs.Job, error) {
	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		job, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		expected := job.Version
		if err := patch.Apply(job, s.now()); err != nil {
			return nil, err
		}
		job.Version = expected + 1

		tag, err := s.pool.Exec(ctx, `
UPDATE jobs
SET status = $2, stage = $3, progress = $4, meta = $5, result = $6,
    attempt_count = $7, error_message = $8, updated_at = $9, version = $10
WHERE id = $1 AND version = $11`,
			id, string(job.Status), string(job.Stage), job.Progress,
			nonNil(job.Meta), nonNil(job.Result), job.AttemptCount, job.ErrorMessage,
			job.UpdatedAt, job.Version, expected,
		)
		if err != nil {
			return nil, fmt.Errorf("update job %s: %w", id, err)
		}
		if tag.RowsAffected() == 1 {
			return job, nil
		}
		s.logger.Debug("job version changed, retrying update", "job_id", id, "attempt", attempt)
	}
	return nil, fmt.Errorf("%w: %s", jobs.ErrConflict, id)
}

// Stats は status/stage ごとの件数を返します。
func (s *PostgresStore) Stats(ctx context.Context) ([]jobs.StatusCount, error) {
	rows, err := s.pool.Query(ctx, `
SELECT status, stage, COUNT(*)::int AS total
FROM jobs
GROUP BY status, stage
ORDER BY status, stage`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	var out []jobs.StatusCount
	for rows.Next() {
		var status, stage string
		var total int
		if err := rows.Scan(&status, &stage, &total); err != nil {
			return nil, err
		}
		out = append(out, jobs.StatusCount{Status: jobs.Status(status), Stage: jobs.Stage(stage), Total: total})
	}
	return out, rows.Err()
}

func scanJob(row pgx.Row) (*jobs.Job, error) {
	var (
		job           jobs.Job
		status, stage string
	)
	err := row.Scan(
		&job.ID, &job.Type, &status, &stage, &job.Progress,
		&job.Payload, &job.Meta, &job.Result,
		&job.AttemptCount, &job.ErrorMessage, &job.CreatedAt, &job.UpdatedAt, &job.Version,
	)
	if err != nil {
		return nil, err
	}
	job.Status = jobs.Status(status)
	job.Stage = jobs.Stage(stage)
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	return &job, nil
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
