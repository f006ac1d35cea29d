package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"golang.org/x/time/rate"

	"github.com/hitoshi/codetime/internal/model"
)

// DefaultControlRate は操作系エンドポイント（フラッシュ、ログアウト）のデフォルトレート。
const (
	DefaultControlRate  = rate.Limit(1.0 / 5.0)
	DefaultControlBurst = 3
)

// NewRateLimitMiddleware はプロセス全体で1つのリミッターを共有するレート制限ミドルウェアを返す。
// ステータスサーバーはローカル専用のため、クライアント単位では分けない。
func NewRateLimitMiddleware(limit rate.Limit, burst int, logger *slog.Logger) func(next http.Handler) http.Handler {
	limiter := rate.NewLimiter(limit, burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				logger.Warn("rate limit exceeded",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				writeRateLimitResponse(w, limit)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, limit rate.Limit) {
	retryAfterSec := 1
	if limit > 0 && limit != rate.Inf {
		retryAfterSec = int(math.Ceil(1.0 / float64(limit)))
		if retryAfterSec < 1 {
			retryAfterSec = 1
		}
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, http.StatusTooManyRequests, &model.SessionError{
		Code:     "RATE_LIMIT_EXCEEDED",
		Message:  "Too many requests. Please try again later.",
		Category: "system",
	})
}
