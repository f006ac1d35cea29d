// Package softwareapi はリモートセッションサービスへのHTTPトランスポートを提供する。
// リクエストの組み立てとレスポンスの判定のみを扱い、状態は持たない。
package softwareapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/codetime/internal/metrics"
	"github.com/hitoshi/codetime/internal/model"
)

const (
	// userAgent は送信リクエストに付与するUser-Agent。
	userAgent = "codetime-agent/1.0"
	// maxResponseBody はレスポンスボディの最大読み取りサイズ。
	maxResponseBody = 4 << 20
	// deactivatedCode はアカウント無効化を示すレスポンスのエラーコード。
	deactivatedCode = "DEACTIVATED"
)

// Response はリモートセッションサービスのレスポンスを表す。
type Response struct {
	StatusCode int
	Body       []byte
}

// IsOK はステータスが2xxかどうかを返す。リダイレクトは成功として扱わない。
func (r *Response) IsOK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// IsDeactivated はアカウント無効化のシグナルかどうかを返す。
// 非2xxで、JSONボディの code が DEACTIVATED の場合のみ true。
func (r *Response) IsDeactivated() bool {
	if r == nil || r.IsOK() || len(r.Body) == 0 {
		return false
	}
	var body struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(r.Body, &body); err != nil {
		return false
	}
	return strings.EqualFold(body.Code, deactivatedCode)
}

// Decode はレスポンスボディをJSONとしてvにデコードする。
func (r *Response) Decode(v any) error {
	if r == nil || len(r.Body) == 0 {
		return fmt.Errorf("empty response body")
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// Client はリモートセッションサービスのHTTPクライアント。
// 送信レートはリミッターで制限する。
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
}

// NewClient はClientの新しいインスタンスを生成する。
// httpClient が nil の場合は timeout を設定したクライアントを生成する。
// リダイレクトは追跡せず、3xxレスポンスをそのまま返す。
func NewClient(httpClient *http.Client, baseURL string, timeout time.Duration, limiter *rate.Limiter, mc metrics.MetricsCollector, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	c := *httpClient
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Client{
		httpClient: &c,
		baseURL:    strings.TrimRight(baseURL, "/"),
		limiter:    limiter,
		metrics:    mc,
		logger:     logger,
	}
}

// Get はGETリクエストを送信する。authToken が空でなければAuthorizationヘッダーにそのまま設定する。
func (c *Client) Get(ctx context.Context, path, authToken string) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, nil, authToken)
}

// Post はbodyをJSONエンコードしてPOSTリクエストを送信する。
func (c *Client) Post(ctx context.Context, path string, body any, authToken string) (*Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, payload, authToken)
}

// do はリクエストを送信し、レスポンス全体を読み取って返す。
// 送信できなかった場合（接続失敗、タイムアウト、リミッター待機のキャンセル）は
// model.ErrUnreachable をラップしたエラーを返す。
func (c *Client) do(ctx context.Context, method, path string, payload []byte, authToken string) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s %s: rate limiter: %w: %w", method, path, model.ErrUnreachable, err)
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authToken != "" {
		req.Header.Set("Authorization", authToken)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordHTTPRequest(method, path, 0, time.Since(start))
		c.logger.Debug("リモートセッションサービスへの送信に失敗しました",
			slog.String("method", method),
			slog.String("path", metrics.NormalizePath(path)),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%s %s: %w: %w", method, path, model.ErrUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	c.metrics.RecordHTTPRequest(method, path, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w: %w", method, path, model.ErrUnreachable, err)
	}

	c.logger.Debug("リモートセッションサービスのレスポンスを受信しました",
		slog.String("method", method),
		slog.String("path", metrics.NormalizePath(path)),
		slog.Int("http_status", resp.StatusCode),
	)

	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}
