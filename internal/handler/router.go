// Package handler はローカルステータスサーバーのHTTPハンドラーとルーティングを提供する。
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/codetime/internal/metrics"
	"github.com/hitoshi/codetime/internal/middleware"
	"github.com/hitoshi/codetime/internal/model"
	"github.com/hitoshi/codetime/internal/worker/offline"
)

// StatusProvider はエージェントの状態を返すインターフェース。
type StatusProvider interface {
	Status(ctx context.Context) (*model.StatusReport, error)
}

// Flusher はオフラインイベントログのフラッシュを実行するインターフェース。
type Flusher interface {
	Flush(ctx context.Context) offline.FlushResult
}

// SessionController はセッション操作のインターフェース。
type SessionController interface {
	// Logout はセッションを削除し、確認サイクルを再開する。
	Logout(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Status   StatusProvider
	Flusher  Flusher
	Session  SessionController
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger

	// 操作系エンドポイントのレート制限。0の場合はデフォルト値を使う。
	ControlRate  rate.Limit
	ControlBurst int
}

// NewRouter はステータスサーバーのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RecoveryMiddleware → LoggingMiddleware → (操作系のみ) RateLimitMiddleware
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	h := &statusHandler{
		status:  deps.Status,
		flusher: deps.Flusher,
		session: deps.Session,
		logger:  deps.Logger,
	}

	r.Get("/health", h.Health)
	r.Get("/status", h.Status)
	r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))

	controlRate, controlBurst := middleware.DefaultControlRate, middleware.DefaultControlBurst
	if deps.ControlRate > 0 {
		controlRate = deps.ControlRate
	}
	if deps.ControlBurst > 0 {
		controlBurst = deps.ControlBurst
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewRateLimitMiddleware(controlRate, controlBurst, deps.Logger))
		r.Post("/flush", h.Flush)
		r.Post("/session/logout", h.Logout)
	})

	return r
}

// statusHandler はステータスサーバーのHTTPハンドラー。
type statusHandler struct {
	status  StatusProvider
	flusher Flusher
	session SessionController
	logger  *slog.Logger
}

// Health はプロセスの死活を返す。
// GET /health
func (h *statusHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Status はエージェントの状態を返す。
// GET /status
func (h *statusHandler) Status(w http.ResponseWriter, r *http.Request) {
	report, err := h.status.Status(r.Context())
	if err != nil {
		h.logger.Error("ステータスの取得に失敗しました", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Flush はオフラインイベントログを1回フラッシュする。
// POST /flush
func (h *statusHandler) Flush(w http.ResponseWriter, r *http.Request) {
	result := h.flusher.Flush(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"result": result.String()})
}

// Logout はセッションを削除し、確認サイクルを再開する。
// POST /session/logout
func (h *statusHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Logout(r.Context()); err != nil {
		h.logger.Error("ログアウトに失敗しました", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}
