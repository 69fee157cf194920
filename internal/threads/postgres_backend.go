package threads

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresBackend stores one row per thread and replaces the set in a single
// transaction.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

func NewPostgresBackend(ctx context.Context, databaseURL string) (*PostgresBackend, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresBackend{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversation_threads (
			id TEXT PRIMARY KEY,
			position INTEGER NOT NULL,
			title TEXT NOT NULL,
			title_derived BOOLEAN NOT NULL DEFAULT FALSE,
			messages JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_conversation_threads_position ON conversation_threads (position);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (b *PostgresBackend) Name() string { return "postgres" }

func (b *PostgresBackend) Load(ctx context.Context) ([]Thread, error) {
	rows, err := b.pool.Query(ctx,
		`SELECT id, title, title_derived, messages, created_at, updated_at
		 FROM conversation_threads ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query threads: %w", err)
	}
	defer rows.Close()

	var out []Thread
	for rows.Next() {
		var (
			t   Thread
			raw []byte
		)
		if err := rows.Scan(&t.ID, &t.Title, &t.TitleDerived, &raw, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan thread row: %w", err)
		}
		if err := json.Unmarshal(raw, &t.Messages); err != nil {
			return nil, fmt.Errorf("decode messages for %s: %w", t.ID, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate thread rows: %w", err)
	}
	return out, nil
}

func (b *PostgresBackend) Save(ctx context.Context, threads []Thread) error {
	return pgx.BeginFunc(ctx, b.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM conversation_threads`); err != nil {
			return fmt.Errorf("clear threads: %w", err)
		}
		batch := &pgx.Batch{}
		for i, t := range threads {
			msgs, err := json.Marshal(t.Messages)
			if err != nil {
				return fmt.Errorf("encode messages for %s: %w", t.ID, err)
			}
			batch.Queue(
				`INSERT INTO conversation_threads (id, position, title, title_derived, messages, created_at, updated_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				t.ID, i, t.Title, t.TitleDerived, msgs, t.CreatedAt, t.UpdatedAt,
			)
		}
		if batch.Len() == 0 {
			return nil
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

func (b *PostgresBackend) Close() error {
	b.pool.Close()
	return nil
}
