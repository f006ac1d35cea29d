// Package summary は確認成功後のセッションデータ更新を提供する。
package summary

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/codetime/internal/model"
	"github.com/hitoshi/codetime/internal/repository"
	"github.com/hitoshi/codetime/internal/softwareapi"
)

const pathSessionSummary = "/sessions?summary=true"

// APIClient はセッションサマリー取得に使うリクエスト送信のインターフェース。
type APIClient interface {
	Get(ctx context.Context, path, authToken string) (*softwareapi.Response, error)
}

// Service は当日のセッションサマリーを取得してストアに保存する。
type Service struct {
	client APIClient
	store  repository.SessionStore
	logger *slog.Logger
}

// NewService はServiceを生成する。
func NewService(client APIClient, store repository.SessionStore, logger *slog.Logger) *Service {
	return &Service{
		client: client,
		store:  store,
		logger: logger,
	}
}

// Refresh はセッショントークンでサマリーを取得し、受信したJSONをそのまま保存する。
// セッショントークンがない場合は何もしない。
func (s *Service) Refresh(ctx context.Context) error {
	jwt, ok, err := s.store.Get(ctx, model.KeySessionToken)
	if err != nil {
		return fmt.Errorf("failed to read session token: %w", err)
	}
	if !ok {
		return nil
	}

	resp, err := s.client.Get(ctx, pathSessionSummary, jwt)
	if err != nil {
		return fmt.Errorf("failed to fetch session summary: %w", err)
	}
	if !resp.IsOK() {
		return fmt.Errorf("session summary returned status %d: %w", resp.StatusCode, model.ErrUnreachable)
	}
	if len(resp.Body) == 0 {
		return nil
	}

	if err := s.store.Set(ctx, model.KeySessionSummary, string(resp.Body)); err != nil {
		return fmt.Errorf("failed to store session summary: %w", err)
	}

	s.logger.Info("セッションサマリーを更新しました", slog.Int("bytes", len(resp.Body)))
	return nil
}
