// Package repository はセッション情報とオフラインイベントログの永続化インターフェースを定義する。
package repository

import (
	"context"
)

// SessionStore はセッション成果物（プラグイントークン、アプリトークン、
// セッショントークン、ユーザーレコード、タイムスタンプ）のスコープ付きKVストア。
// 書き込みはlast-write-winsで、部分的なレコードが残らないこと。
type SessionStore interface {
	// Get は指定キーの値を返す。未設定の場合は ok=false を返す。
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set は指定キーに値を書き込む。
	Set(ctx context.Context, key, value string) error

	// SetItems は複数キーを1回の書き込みでまとめて保存する。
	// セッショントークンとユーザーレコードのように片方だけ残ってはならない値に使う。
	SetItems(ctx context.Context, items map[string]string) error

	// Delete は指定キーを削除する。存在しないキーは無視する。
	Delete(ctx context.Context, keys ...string) error

	// Exists はローカルのセッションレコードが存在するかを返す。
	Exists(ctx context.Context) (bool, error)
}

// EventLog は送信できなかったイベントを1行1レコードで保持するオフラインバッファ。
type EventLog interface {
	// Exists はログファイルが存在するかを返す。
	Exists() bool

	// ReadAll はログ全体を読み込む。
	ReadAll() ([]byte, error)

	// Discard は先頭からnバイトを取り除き、何も残らなければログを削除する。
	// ReadAll以降に追記された行は残す。存在しない場合は何もしない。
	Discard(n int) error

	// Append はレコードを1行として追記する。
	Append(record []byte) error
}
