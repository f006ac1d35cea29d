package repository

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/natefinch/atomic"
)

// FileEventLog はローカルファイルに1行1レコードで追記するEventLog。
// ファイルの存在は未送信イベントが残っている可能性を、非存在はバックログがないことを表す。
type FileEventLog struct {
	path string
	mu   sync.Mutex
}

// NewFileEventLog はFileEventLogを生成する。
func NewFileEventLog(path string) *FileEventLog {
	return &FileEventLog{path: path}
}

// Path はログファイルのパスを返す。
func (l *FileEventLog) Path() string {
	return l.path
}

// Exists はログファイルが存在するかを返す。
func (l *FileEventLog) Exists() bool {
	_, err := os.Stat(l.path)
	return err == nil
}

// ReadAll はログ全体を読み込む。
func (l *FileEventLog) ReadAll() ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read event log: %w", err)
	}
	return data, nil
}

// Discard は先頭からnバイト（送信済みとして読み込んだ範囲）を取り除く。
// 読み込み後に追記された行は残し、何も残らない場合はファイルを削除する。
func (l *FileEventLog) Discard(n int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read event log: %w", err)
	}
	if n >= len(data) {
		return l.remove()
	}
	if n < 0 {
		n = 0
	}

	if err := atomic.WriteFile(l.path, bytes.NewReader(data[n:])); err != nil {
		return fmt.Errorf("failed to rewrite event log: %w", err)
	}
	return nil
}

func (l *FileEventLog) remove() error {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete event log: %w", err)
	}
	return nil
}

// Append はレコードを1行として追記する。
// 1回のwriteで行全体を書き込み、行の途中で他の追記と混ざらないようにする。
func (l *FileEventLog) Append(record []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o700); err != nil {
		return fmt.Errorf("failed to create event log directory: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open event log: %w", err)
	}

	line := make([]byte, 0, len(record)+1)
	line = append(line, record...)
	line = append(line, '\n')

	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("failed to append event: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close event log: %w", err)
	}
	return nil
}
