package database

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// Open はPostgreSQLデータベース接続を開く。
// セッションストアのバックエンドにPostgreSQLを選択した場合に使用する。
// sql.Openは接続を試行しないため、実際の接続確認にはdb.PingContext()を使用すること。
func Open(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// エージェントは単一の論理フローで動作するため、接続数は少なく抑える
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	return db, nil
}
