package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/natefinch/atomic"

	"github.com/hitoshi/codetime/internal/model"
)

// FileSessionStore はJSONファイルを使用したSessionStore。
// 他プロセス（エディタ拡張）も同じファイルを更新するため、読み込みは毎回ファイルから行う。
// 書き込みは一時ファイルへの書き出し後のリネームで置き換え、途中状態を残さない。
type FileSessionStore struct {
	path string
	mu   sync.Mutex
}

// NewFileSessionStore はFileSessionStoreを生成する。
func NewFileSessionStore(path string) *FileSessionStore {
	return &FileSessionStore{path: path}
}

// Path はセッションファイルのパスを返す。
func (s *FileSessionStore) Path() string {
	return s.path
}

// Get は指定キーの値を返す。
// 文字列以外のJSON値（オブジェクトや数値）はJSONテキストのまま返す。
func (s *FileSessionStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load()
	if err != nil {
		return "", false, err
	}
	raw, ok := items[key]
	if !ok {
		return "", false, nil
	}
	return decodeValue(raw)
}

// Set は指定キーに値を書き込む。
func (s *FileSessionStore) Set(ctx context.Context, key, value string) error {
	return s.SetItems(ctx, map[string]string{key: value})
}

// SetItems は複数キーを1回のファイル置き換えで保存する。
// 既存ファイルが壊れている場合は新しい値で上書きする。
func (s *FileSessionStore) SetItems(ctx context.Context, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load()
	if err != nil {
		if !errors.Is(err, model.ErrMalformedLocalRecord) {
			return err
		}
		items = make(map[string]json.RawMessage)
	}

	for k, v := range values {
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode session item %q: %w", k, err)
		}
		items[k] = encoded
	}
	return s.save(items)
}

// Delete は指定キーを削除する。
func (s *FileSessionStore) Delete(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load()
	if err != nil {
		return err
	}
	changed := false
	for _, k := range keys {
		if _, ok := items[k]; ok {
			delete(items, k)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.save(items)
}

// Exists はセッションファイルが存在するかを返す。
func (s *FileSessionStore) Exists(ctx context.Context) (bool, error) {
	_, err := os.Stat(s.path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat session file: %w", err)
}

// load はセッションファイルを読み込む。ファイルがない場合は空のマップを返す。
func (s *FileSessionStore) load() (map[string]json.RawMessage, error) {
	items := make(map[string]json.RawMessage)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return items, nil
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return items, nil
	}
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, model.NewMalformedLocalRecordError(filepath.Base(s.path), err)
	}
	if items == nil {
		items = make(map[string]json.RawMessage)
	}
	return items, nil
}

func (s *FileSessionStore) save(items map[string]json.RawMessage) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session file: %w", err)
	}
	data = append(data, '\n')

	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

func decodeValue(raw json.RawMessage) (string, bool, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", false, nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", false, model.NewMalformedLocalRecordError("value", err)
		}
		if s == "" {
			return "", false, nil
		}
		return s, true, nil
	}
	return string(trimmed), true, nil
}
