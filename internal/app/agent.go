package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/codetime/internal/handler"
	"github.com/hitoshi/codetime/internal/model"
	"github.com/hitoshi/codetime/internal/worker/confirm"
)

// agent は常駐モードの状態を保持する。
// ステータスサーバーからのログアウト要求を確認サイクルの再開につなぐ。
type agent struct {
	*components
	ctx    context.Context
	waiter confirm.Waiter
}

// reconcile は認証状態を整合させる。
// 到達不能または匿名ユーザーを作成できない間は、再試行間隔ごとに整合をやり直す。
// 確認待ちになった時点で確認サイクルを開始する。
func (a *agent) reconcile(ctx context.Context) {
	for {
		state := a.auth.Reconcile(ctx)
		a.logger.Info("認証状態を判定しました", slog.String("state", string(state)))

		switch state {
		case model.StatePendingConfirmation:
			a.cycle.Start(ctx)
			return
		case model.StateAuthenticated:
			return
		}

		if err := a.waiter.Wait(ctx, a.cfg.ConfirmRetryInterval); err != nil {
			return
		}
	}
}

// Logout はセッションを削除し、確認サイクルを再開する。
// 実行中のサイクルは停止を待ってから置き換える。
func (a *agent) Logout(ctx context.Context) error {
	if err := a.auth.Logout(ctx); err != nil {
		return fmt.Errorf("failed to logout: %w", err)
	}
	a.cycle.Restart(a.ctx)
	return nil
}

func (a *agent) router() http.Handler {
	return handler.NewRouter(&handler.RouterDeps{
		Status:   a.components,
		Flusher:  a.reconciler,
		Session:  a,
		Gatherer: a.registry,
		Logger:   a.logger,
	})
}
