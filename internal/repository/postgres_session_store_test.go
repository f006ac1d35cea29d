package repository

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/hitoshi/codetime/internal/database"
	"github.com/hitoshi/codetime/internal/model"
)

// PostgresSessionStoreはSessionStoreインターフェースを満たすことを検証
func TestPostgresSessionStore_ImplementsInterface(t *testing.T) {
	var _ SessionStore = (*PostgresSessionStore)(nil)
}

// NewPostgresSessionStoreが正しく初期化されることを検証
func TestNewPostgresSessionStore_Initializes(t *testing.T) {
	store := NewPostgresSessionStore(nil, "")
	if store == nil {
		t.Fatal("expected non-nil store")
	}
	if store.scope != "default" {
		t.Errorf("scope = %q, want %q", store.scope, "default")
	}

	store = NewPostgresSessionStore(nil, "aa:bb:cc:dd:ee:ff")
	if store.scope != "aa:bb:cc:dd:ee:ff" {
		t.Errorf("scope = %q, want hardware address scope", store.scope)
	}
}

// openTestDB はTEST_DATABASE_URLのPostgreSQLに接続し、マイグレーションを適用する。
// 未設定または接続できない場合はスキップする。
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL が未設定のためスキップ")
	}

	db, err := database.Open(dbURL)
	if err != nil {
		t.Fatalf("データベースへの接続に失敗: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("テスト用データベースに接続できません（スキップ）: %v", err)
	}
	if err := database.RunMigrations(dbURL); err != nil {
		db.Close()
		t.Fatalf("マイグレーション実行に失敗: %v", err)
	}
	t.Cleanup(func() {
		db.Exec(`DELETE FROM session_items WHERE scope LIKE 'test-%'`)
		db.Close()
	})
	return db
}

func TestPostgresSessionStore_RoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	store := NewPostgresSessionStore(db, "test-"+t.Name())

	exists, err := store.Exists(ctx)
	if err != nil {
		t.Fatalf("Exists returned error: %v", err)
	}
	if exists {
		t.Fatal("Exists should be false for a fresh scope")
	}

	err = store.SetItems(ctx, map[string]string{
		model.KeySessionToken: "j1",
		model.KeyUserRecord:   `{"id":7,"email":"AA:BB:CC"}`,
	})
	if err != nil {
		t.Fatalf("SetItems returned error: %v", err)
	}
	if err := store.Set(ctx, model.KeySessionToken, "j2"); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	if v, ok, err := store.Get(ctx, model.KeySessionToken); err != nil || !ok || v != "j2" {
		t.Errorf("Get(jwt) = (%q, %v, %v), want (j2, true, nil)", v, ok, err)
	}
	if exists, _ := store.Exists(ctx); !exists {
		t.Error("Exists should be true after a write")
	}

	if err := store.Delete(ctx, model.KeySessionToken, model.KeyUserRecord); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, ok, _ := store.Get(ctx, model.KeyUserRecord); ok {
		t.Error("user record should be deleted")
	}
}
