// Package confirm はプラグイントークンの確認サイクルを提供する。
// 確認結果に応じた再試行間隔の表と、それを駆動するスケジューラを含む。
package confirm

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/codetime/internal/auth"
)

// Confirmer はプラグイントークン確認の実行インターフェース。
type Confirmer interface {
	ConfirmPendingToken(ctx context.Context) auth.ConfirmResult
}

// Refresher は確認成功後のセッションデータ更新のインターフェース。
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Waiter は指定時間の待機を抽象化する。
// コンテキストがキャンセルされた場合はその時点でエラーを返す。
type Waiter interface {
	Wait(ctx context.Context, d time.Duration) error
}

// TimerWaiter はtime.Timerで待機するWaiter。
type TimerWaiter struct{}

// Wait はdだけ待機する。
func (TimerWaiter) Wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Cycle は確認サイクルを管理する。
// 1回の試行が再スケジュールの判断まで完了してから次の待機に入り、
// 同時に実行されるサイクルは常に1つに限られる。
type Cycle struct {
	confirmer    Confirmer
	refresher    Refresher
	policy       Policy
	refreshDelay time.Duration
	waiter       Waiter
	logger       *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCycle はCycleの新しいインスタンスを生成する。
// refresher が nil の場合、成功後の更新は行わない。
func NewCycle(confirmer Confirmer, refresher Refresher, policy Policy, refreshDelay time.Duration, logger *slog.Logger) *Cycle {
	return &Cycle{
		confirmer:    confirmer,
		refresher:    refresher,
		policy:       policy,
		refreshDelay: refreshDelay,
		waiter:       TimerWaiter{},
		logger:       logger,
	}
}

// Start はサイクルをバックグラウンドで開始する。
// 既に実行中の場合は何もせず false を返す。
func (c *Cycle) Start(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.runningLocked() {
		return false
	}
	c.launchLocked(ctx)
	return true
}

// Restart は実行中のサイクルを停止して完了を待ち、新しいサイクルを開始する。
// ログアウト後の再確認に使う。
func (c *Cycle) Restart(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()
	c.launchLocked(ctx)
	c.logger.Info("確認サイクルを再開しました")
}

// Stop は実行中のサイクルを停止し、完了を待つ。
func (c *Cycle) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()
}

// Running はサイクルが実行中かどうかを返す。
func (c *Cycle) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.runningLocked()
}

func (c *Cycle) runningLocked() bool {
	if c.done == nil {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

func (c *Cycle) launchLocked(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done

	go func() {
		defer close(done)
		defer cancel()
		c.Run(runCtx)
	}()
}

func (c *Cycle) stopLocked() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
	c.cancel = nil
	c.done = nil
}

// Run はサイクルを同期的に実行し、最後の確認結果を返す。
// 成功またはプラグイントークンなしで終了する。コンテキストがキャンセルされた場合も終了する。
func (c *Cycle) Run(ctx context.Context) auth.ConfirmResult {
	c.logger.Info("確認サイクルを開始しました")

	for {
		result := c.confirmer.ConfirmPendingToken(ctx)
		delay, cont := c.policy.Next(result)
		if !cont {
			if result == auth.ConfirmSuccess {
				c.refreshAfterDelay(ctx)
			}
			c.logger.Info("確認サイクルを終了しました", slog.String("result", result.String()))
			return result
		}

		c.logger.Debug("次回の確認をスケジュールしました",
			slog.String("result", result.String()),
			slog.Duration("delay", delay),
		)
		if err := c.waiter.Wait(ctx, delay); err != nil {
			c.logger.Info("確認サイクルを停止しました", slog.String("result", result.String()))
			return result
		}
	}
}

func (c *Cycle) refreshAfterDelay(ctx context.Context) {
	if c.refresher == nil {
		return
	}
	if err := c.waiter.Wait(ctx, c.refreshDelay); err != nil {
		return
	}
	if err := c.refresher.Refresh(ctx); err != nil {
		c.logger.Warn("セッションデータの更新に失敗しました", slog.String("error", err.Error()))
	}
}
