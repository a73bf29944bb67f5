package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresStore はPostgreSQLのkv_entriesテーブルを使用したStore実装。
// 期限切れの行はGetでは返さないが、クリーンアップで削除されるまで残る。
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore はPostgresStoreを生成する。
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Get はキーの値を返す。
func (s *PostgresStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv_entries
		 WHERE key = $1 AND (expires_at IS NULL OR expires_at > now())`,
		key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get kv entry: %w", err)
	}
	return value, nil
}

// Put は値をUPSERTする。
func (s *PostgresStore) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_entries (key, value, expires_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		key, value, expiresAt(ttl),
	)
	if err != nil {
		return fmt.Errorf("failed to put kv entry: %w", err)
	}
	return nil
}

// Delete はキーを削除する。
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete kv entry: %w", err)
	}
	return nil
}

// List はprefixで始まるキーを返す。期限切れの行も含む。
func (s *PostgresStore) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM kv_entries WHERE starts_with(key, $1) ORDER BY key`,
		prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list kv entries: %w", err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan kv key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Incr は単一のUPSERT文でカウンタを増やす。
// 期限切れの行は1から数え直し、期限も再設定する。
func (s *PostgresStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO kv_entries (key, value, expires_at)
		 VALUES ($1, '1', $2)
		 ON CONFLICT (key) DO UPDATE SET
		   value = CASE
		     WHEN kv_entries.expires_at IS NOT NULL AND kv_entries.expires_at <= now() THEN '1'
		     ELSE (kv_entries.value::bigint + 1)::text
		   END,
		   expires_at = CASE
		     WHEN kv_entries.expires_at IS NOT NULL AND kv_entries.expires_at <= now() THEN EXCLUDED.expires_at
		     ELSE kv_entries.expires_at
		   END
		 RETURNING value::bigint`,
		key, expiresAt(ttl),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to increment kv counter: %w", err)
	}
	return n, nil
}

func expiresAt(ttl time.Duration) sql.NullTime {
	if ttl <= 0 {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: time.Now().Add(ttl), Valid: true}
}

// compile-time interface check
var _ Store = (*PostgresStore)(nil)
