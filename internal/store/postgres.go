package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaDDL creates the single JSONB-backed table the Postgres backend uses
// for every entity in the spec's data model (§3) — partition key, sort key,
// an opaque item body, and an indexed ttl column for best-effort sweeping.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS durable_records (
	pk TEXT NOT NULL,
	sk TEXT NOT NULL,
	item JSONB NOT NULL,
	ttl TIMESTAMPTZ,
	PRIMARY KEY (pk, sk)
);
CREATE INDEX IF NOT EXISTS durable_records_ttl_idx ON durable_records (ttl) WHERE ttl IS NOT NULL;
`

// PostgresStore is the pgx-backed Durable Store implementation, grounded on
// the teacher's persistence/databases newPgPool conventions (conservative
// pool sizing, short ping timeout on construction).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresPool opens a connection pool with the teacher's conservative
// defaults and verifies connectivity with a short-timeout ping.
func NewPostgresPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MinConns = 0
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("new pool: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// NewPostgresStore wraps an existing pool and ensures the schema exists.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Put(ctx context.Context, pk, sk string, item Item, cond *Condition) error {
	body, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}
	ttl := ttlFromItem(item)

	if cond != nil && cond.IfAbsent {
		tag, err := s.pool.Exec(ctx, `
			INSERT INTO durable_records (pk, sk, item, ttl)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (pk, sk) DO NOTHING`, pk, sk, body, ttl)
		if err != nil {
			return fmt.Errorf("conditional put: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrConditionFailed
		}
		return nil
	}

	if cond != nil && cond.MinRemaining != nil {
		tag, err := s.pool.Exec(ctx, `
			UPDATE durable_records SET item = $3, ttl = $4
			WHERE pk = $1 AND sk = $2 AND (item->>$5)::bigint >= $6`,
			pk, sk, body, ttl, cond.MinRemaining.Field, cond.MinRemaining.Value)
		if err != nil {
			return fmt.Errorf("conditional put: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrConditionFailed
		}
		return nil
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO durable_records (pk, sk, item, ttl)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (pk, sk) DO UPDATE SET item = EXCLUDED.item, ttl = EXCLUDED.ttl`,
		pk, sk, body, ttl)
	if err != nil {
		return fmt.Errorf("put: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, pk, sk string) (Record, error) {
	var body []byte
	var ttl *time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT item, ttl FROM durable_records
		WHERE pk = $1 AND sk = $2 AND (ttl IS NULL OR ttl > now())`, pk, sk).Scan(&body, &ttl)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("get: %w", err)
	}
	var item Item
	if err := json.Unmarshal(body, &item); err != nil {
		return Record{}, fmt.Errorf("unmarshal item: %w", err)
	}
	rec := Record{PK: pk, SK: sk, Item: item}
	if ttl != nil {
		rec.TTL = *ttl
	}
	return rec, nil
}

func (s *PostgresStore) Query(ctx context.Context, pk, skPrefix string, reverse bool, limit int) ([]Record, error) {
	order := "ASC"
	if reverse {
		order = "DESC"
	}
	q := fmt.Sprintf(`
		SELECT sk, item, ttl FROM durable_records
		WHERE pk = $1 AND sk LIKE $2 AND (ttl IS NULL OR ttl > now())
		ORDER BY sk %s`, order)
	args := []any{pk, skPrefix + "%"}
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var sk string
		var body []byte
		var ttl *time.Time
		if err := rows.Scan(&sk, &body, &ttl); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		var item Item
		if err := json.Unmarshal(body, &item); err != nil {
			return nil, fmt.Errorf("unmarshal item: %w", err)
		}
		rec := Record{PK: pk, SK: sk, Item: item}
		if ttl != nil {
			rec.TTL = *ttl
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Increment(ctx context.Context, pk, sk, field string, delta int64, cond *Condition) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var body []byte
	err = tx.QueryRow(ctx, `SELECT item FROM durable_records WHERE pk=$1 AND sk=$2 FOR UPDATE`, pk, sk).Scan(&body)
	item := Item{}
	if err != nil {
		if err != pgx.ErrNoRows {
			return 0, fmt.Errorf("select for update: %w", err)
		}
	} else if err := json.Unmarshal(body, &item); err != nil {
		return 0, fmt.Errorf("unmarshal item: %w", err)
	}

	if cond != nil && cond.MinRemaining != nil {
		if !fieldAtLeast(item, cond.MinRemaining) {
			return 0, ErrConditionFailed
		}
	}

	next := asInt64(item[field]) + delta
	item[field] = next
	newBody, err := json.Marshal(item)
	if err != nil {
		return 0, fmt.Errorf("marshal item: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO durable_records (pk, sk, item) VALUES ($1, $2, $3)
		ON CONFLICT (pk, sk) DO UPDATE SET item = EXCLUDED.item`, pk, sk, newBody)
	if err != nil {
		return 0, fmt.Errorf("upsert: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return next, nil
}

func (s *PostgresStore) SetField(ctx context.Context, pk, sk, field string, value any) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var body []byte
	err = tx.QueryRow(ctx, `SELECT item FROM durable_records WHERE pk=$1 AND sk=$2 FOR UPDATE`, pk, sk).Scan(&body)
	item := Item{}
	if err != nil {
		if err != pgx.ErrNoRows {
			return fmt.Errorf("select for update: %w", err)
		}
	} else if err := json.Unmarshal(body, &item); err != nil {
		return fmt.Errorf("unmarshal item: %w", err)
	}

	item[field] = value
	newBody, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO durable_records (pk, sk, item) VALUES ($1, $2, $3)
		ON CONFLICT (pk, sk) DO UPDATE SET item = EXCLUDED.item`, pk, sk, newBody)
	if err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) Delete(ctx context.Context, pk, sk string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM durable_records WHERE pk=$1 AND sk=$2`, pk, sk)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

func ttlFromItem(item Item) *time.Time {
	v, ok := item["ttl"]
	if !ok {
		return nil
	}
	epoch := asInt64(v)
	if epoch == 0 {
		return nil
	}
	t := time.Unix(epoch, 0).UTC()
	return &t
}
