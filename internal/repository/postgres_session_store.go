package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
)

// PostgresSessionStore はPostgreSQLを使用したSessionStore。
// 同一データベースを複数デバイスで共有できるよう、レコードはscopeで区切る。
type PostgresSessionStore struct {
	db    *sql.DB
	scope string
}

// NewPostgresSessionStore はPostgresSessionStoreを生成する。
// scopeが空の場合は "default" を使用する。
func NewPostgresSessionStore(db *sql.DB, scope string) *PostgresSessionStore {
	if scope == "" {
		scope = "default"
	}
	return &PostgresSessionStore{db: db, scope: scope}
}

// Get は指定キーの値を返す。
func (r *PostgresSessionStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM session_items WHERE scope = $1 AND key = $2`,
		r.scope, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get session item: %w", err)
	}
	if value == "" {
		return "", false, nil
	}
	return value, true, nil
}

// Set は指定キーに値を書き込む。
func (r *PostgresSessionStore) Set(ctx context.Context, key, value string) error {
	return r.SetItems(ctx, map[string]string{key: value})
}

// SetItems は複数キーを同一トランザクションでアップサートする。
func (r *PostgresSessionStore) SetItems(ctx context.Context, items map[string]string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// キー順に書き込み、同時実行時のロック順序を固定する
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO session_items (scope, key, value, updated_at)
			 VALUES ($1, $2, $3, now())
			 ON CONFLICT (scope, key) DO UPDATE
			 SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
			r.scope, k, items[k],
		)
		if err != nil {
			return fmt.Errorf("failed to upsert session item %q: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session items: %w", err)
	}
	return nil
}

// Delete は指定キーを削除する。
func (r *PostgresSessionStore) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		_, err := r.db.ExecContext(ctx,
			`DELETE FROM session_items WHERE scope = $1 AND key = $2`,
			r.scope, k,
		)
		if err != nil {
			return fmt.Errorf("failed to delete session item %q: %w", k, err)
		}
	}
	return nil
}

// Exists はscope内にセッションレコードが1件以上あるかを返す。
func (r *PostgresSessionStore) Exists(ctx context.Context) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM session_items WHERE scope = $1)`,
		r.scope,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check session items: %w", err)
	}
	return exists, nil
}
