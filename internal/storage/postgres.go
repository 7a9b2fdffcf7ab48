package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"visitor-router/internal/config"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS kv_hash (
		hash  TEXT NOT NULL,
		field TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (hash, field)
	)`,
	`CREATE TABLE IF NOT EXISTS kv_set (
		key    TEXT NOT NULL,
		member TEXT NOT NULL,
		PRIMARY KEY (key, member)
	)`,
	`CREATE TABLE IF NOT EXISTS kv_string (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		expires_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_kv_string_expires ON kv_string(expires_at) WHERE expires_at IS NOT NULL`,
}

// Postgres maps the Store primitives onto three tables. Expired counters
// read as absent and are deleted by PurgeExpired.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, cfg config.Config) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, errors.WithMessage(err, "failed to parse postgres DSN")
	}
	poolCfg.MaxConns = int32(cfg.Postgres.MaxOpenConns)
	poolCfg.MinConns = int32(cfg.Postgres.MaxIdleConns)
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create postgres pool")
	}
	s := &Postgres{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Postgres) migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return errors.WithMessage(err, "create schema")
		}
	}
	return nil
}

func (s *Postgres) HGet(ctx context.Context, hash, field string) (string, bool, error) {
	var value string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM kv_hash WHERE hash = $1 AND field = $2`, hash, field).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.WithMessage(err, "hget")
	}
	return value, true, nil
}

func (s *Postgres) HMGet(ctx context.Context, hash string, fields ...string) ([]string, error) {
	out := make([]string, len(fields))
	if len(fields) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT field, value FROM kv_hash WHERE hash = $1 AND field = ANY($2)`, hash, fields)
	if err != nil {
		return nil, errors.WithMessage(err, "hmget")
	}
	defer rows.Close()

	found := map[string]string{}
	for rows.Next() {
		var field, value string
		if err := rows.Scan(&field, &value); err != nil {
			return nil, errors.WithMessage(err, "scan hmget row")
		}
		found[field] = value
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WithMessage(err, "hmget")
	}
	for i, f := range fields {
		out[i] = found[f]
	}
	return out, nil
}

func (s *Postgres) HSet(ctx context.Context, hash, field, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO kv_hash (hash, field, value) VALUES ($1, $2, $3)
		ON CONFLICT (hash, field) DO UPDATE SET value = EXCLUDED.value`, hash, field, value)
	if err != nil {
		return errors.WithMessage(err, "hset")
	}
	return nil
}

func (s *Postgres) HSetNX(ctx context.Context, hash, field, value string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO kv_hash (hash, field, value) VALUES ($1, $2, $3)
		ON CONFLICT (hash, field) DO NOTHING`, hash, field, value)
	if err != nil {
		return false, errors.WithMessage(err, "hsetnx")
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Postgres) HGetAll(ctx context.Context, hash string) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT field, value FROM kv_hash WHERE hash = $1`, hash)
	if err != nil {
		return nil, errors.WithMessage(err, "hgetall")
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var field, value string
		if err := rows.Scan(&field, &value); err != nil {
			return nil, errors.WithMessage(err, "scan hgetall row")
		}
		out[field] = value
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WithMessage(err, "hgetall")
	}
	return out, nil
}

func (s *Postgres) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO kv_set (key, member) SELECT $1, unnest($2::text[])
		ON CONFLICT DO NOTHING`, key, members)
	if err != nil {
		return errors.WithMessage(err, "sadd")
	}
	return nil
}

func (s *Postgres) SRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM kv_set WHERE key = $1 AND member = ANY($2)`, key, members)
	if err != nil {
		return errors.WithMessage(err, "srem")
	}
	return nil
}

func (s *Postgres) SInter(ctx context.Context, keys ...string) ([]string, error) {
	keys = dedupe(keys)
	if len(keys) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT member FROM kv_set
		WHERE key = ANY($1)
		GROUP BY member
		HAVING COUNT(*) = $2
		ORDER BY member`, keys, len(keys))
	if err != nil {
		return nil, errors.WithMessage(err, "sinter")
	}
	members, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, errors.WithMessage(err, "sinter")
	}
	return members, nil
}

func (s *Postgres) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.pool.QueryRow(ctx, `
		SELECT value FROM kv_string
		WHERE key = $1 AND (expires_at IS NULL OR expires_at > now())`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.WithMessage(err, "get")
	}
	return value, true, nil
}

// Incr restarts an expired row at 1 with no ttl, matching a fresh key.
func (s *Postgres) Incr(ctx context.Context, key string) (int64, error) {
	var value int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO kv_string (key, value) VALUES ($1, '1')
		ON CONFLICT (key) DO UPDATE SET
			value = CASE WHEN kv_string.expires_at <= now() THEN '1'
			             ELSE (kv_string.value::bigint + 1)::text END,
			expires_at = CASE WHEN kv_string.expires_at <= now() THEN NULL
			                  ELSE kv_string.expires_at END
		RETURNING value::bigint`, key).Scan(&value)
	if err != nil {
		return 0, errors.WithMessage(err, "incr")
	}
	return value, nil
}

func (s *Postgres) ExpireNX(ctx context.Context, key string, ttl time.Duration) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE kv_string SET expires_at = now() + make_interval(secs => $2)
		WHERE key = $1 AND expires_at IS NULL`, key, ttl.Seconds())
	if err != nil {
		return errors.WithMessage(err, "expire nx")
	}
	return nil
}

func (s *Postgres) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM kv_string WHERE expires_at <= now()`)
	if err != nil {
		return 0, errors.WithMessage(err, "purge expired")
	}
	return tag.RowsAffected(), nil
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Postgres) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := keys[:0:0]
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
