// Package offline はオフラインイベントログのフラッシュ処理を提供する。
// ログはサーバーがバッチを受け付け、かつ直後の死活確認に成功した場合にのみ、送信した範囲を削除する。
package offline

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/codetime/internal/metrics"
	"github.com/hitoshi/codetime/internal/model"
	"github.com/hitoshi/codetime/internal/repository"
	"github.com/hitoshi/codetime/internal/softwareapi"
)

const (
	pathBatch = "/data/batch"
	pathPing  = "/ping"
)

// APIClient はバッチ送信と死活確認に使うリクエスト送信のインターフェース。
type APIClient interface {
	Get(ctx context.Context, path, authToken string) (*softwareapi.Response, error)
	Post(ctx context.Context, path string, body any, authToken string) (*softwareapi.Response, error)
}

// FlushResult はフラッシュ1回分の結果。
type FlushResult int

const (
	// FlushNoLog はイベントログが存在しなかったことを表す。
	FlushNoLog FlushResult = iota
	// FlushNothingToSend はパース可能なイベントがなく、送信しなかったことを表す。
	FlushNothingToSend
	// FlushDelivered はバッチが受け付けられ、送信した範囲をログから削除したことを表す。
	FlushDelivered
	// FlushRetained はバッチが受け付けられなかった、または到達確認に失敗したためログを残したことを表す。
	FlushRetained
	// FlushFailed は読み込み・送信・削除のいずれかが失敗したことを表す。ログは残る。
	FlushFailed
)

// String はメトリクスとログ用の名前を返す。
func (r FlushResult) String() string {
	switch r {
	case FlushNoLog:
		return "no_log"
	case FlushNothingToSend:
		return "nothing_to_send"
	case FlushDelivered:
		return "delivered"
	case FlushRetained:
		return "retained"
	case FlushFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Reconciler はオフラインイベントログをリモートセッションサービスへ送信する。
// フラッシュは冪等で、何度呼び出してもよい。
type Reconciler struct {
	client  APIClient
	store   repository.SessionStore
	log     repository.EventLog
	metrics metrics.MetricsCollector
	logger  *slog.Logger
}

// NewReconciler はReconcilerの新しいインスタンスを生成する。
func NewReconciler(client APIClient, store repository.SessionStore, log repository.EventLog, mc metrics.MetricsCollector, logger *slog.Logger) *Reconciler {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Reconciler{
		client:  client,
		store:   store,
		log:     log,
		metrics: mc,
		logger:  logger,
	}
}

// Flush はイベントログを1回フラッシュする。
// 失敗はすべて結果として返し、ログは次回のフラッシュのために残す。
func (r *Reconciler) Flush(ctx context.Context) FlushResult {
	result := r.flush(ctx)
	r.metrics.RecordFlush(result.String())
	return result
}

func (r *Reconciler) flush(ctx context.Context) FlushResult {
	if !r.log.Exists() {
		return FlushNoLog
	}

	content, err := r.log.ReadAll()
	if err != nil {
		r.logger.Warn("イベントログの読み込みに失敗しました", slog.String("error", err.Error()))
		return FlushFailed
	}

	events, dropped := model.ParseEventLog(content)
	if dropped > 0 {
		r.metrics.RecordMalformedEvents(dropped)
		r.logger.Warn("パースできないイベント行を除外しました", slog.Int("dropped", dropped))
	}
	if len(events) == 0 {
		return FlushNothingToSend
	}

	// セッショントークンは送信1回につき1回だけ読む
	token := r.sessionToken(ctx)

	r.logger.Info("オフラインイベントを送信します", slog.Int("event_count", len(events)))
	resp, err := r.client.Post(ctx, pathBatch, events, token)
	if err != nil {
		r.logger.Warn("バッチ送信に失敗しました", slog.String("error", err.Error()))
		return FlushFailed
	}
	if !resp.IsOK() && !resp.IsDeactivated() {
		r.logger.Warn("バッチが受け付けられませんでした", slog.Int("http_status", resp.StatusCode))
		return FlushRetained
	}

	if !r.reachable(ctx) {
		r.logger.Warn("バッチ送信後の死活確認に失敗したためイベントログを保持します")
		return FlushRetained
	}

	// 読み込んだ範囲だけを取り除き、送信中に追記された行は次回に残す
	if err := r.log.Discard(len(content)); err != nil {
		r.logger.Error("イベントログの削除に失敗しました", slog.String("error", err.Error()))
		return FlushFailed
	}

	if resp.IsOK() {
		r.metrics.RecordEventsFlushed(len(events))
	}
	r.logger.Info("オフラインイベントの送信が完了しました", slog.Int("event_count", len(events)))
	return FlushDelivered
}

func (r *Reconciler) sessionToken(ctx context.Context) string {
	token, _, err := r.store.Get(ctx, model.KeySessionToken)
	if err != nil {
		r.logger.Warn("セッショントークンの読み込みに失敗しました", slog.String("error", err.Error()))
		return ""
	}
	return token
}

func (r *Reconciler) reachable(ctx context.Context) bool {
	resp, err := r.client.Get(ctx, pathPing, "")
	if err != nil {
		return false
	}
	return resp.IsOK()
}

// Start は指定間隔でフラッシュを繰り返す。起動直後に1回実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (r *Reconciler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("オフラインキューのフラッシュジョブを開始しました",
		slog.Duration("interval", interval),
	)

	r.Flush(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("オフラインキューのフラッシュジョブを停止しました")
			return
		case <-ticker.C:
			r.Flush(ctx)
		}
	}
}
