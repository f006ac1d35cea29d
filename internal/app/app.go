// Package app はサブコマンドの解析と依存関係のワイヤリングを提供する。
package app

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/codetime/internal/auth"
	"github.com/hitoshi/codetime/internal/config"
	"github.com/hitoshi/codetime/internal/database"
	"github.com/hitoshi/codetime/internal/identity"
	"github.com/hitoshi/codetime/internal/logger"
	"github.com/hitoshi/codetime/internal/metrics"
	"github.com/hitoshi/codetime/internal/model"
	"github.com/hitoshi/codetime/internal/repository"
	"github.com/hitoshi/codetime/internal/softwareapi"
	"github.com/hitoshi/codetime/internal/summary"
	"github.com/hitoshi/codetime/internal/worker/confirm"
	"github.com/hitoshi/codetime/internal/worker/offline"
)

const (
	// defaultStatusAddr はhealthcheckで使うステータスサーバーのデフォルトアドレス。
	defaultStatusAddr = "127.0.0.1:5099"
	// sessionScope はPostgreSQLストアで使うスコープ名。
	sessionScope = "default"
	// maxEventLineSize はenqueueで受け付ける1行の最大サイズ。
	maxEventLineSize = 1 << 20
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// ログはwに出力する。wがnilの場合はstderrに出力する。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		logger.SetupDefault(w, slog.LevelInfo)
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))
	return cfg, log, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// wにはコマンドの出力を書き込み、ログはstderrに出力する。argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	return run(context.Background(), os.Stdin, w, os.Stderr, args)
}

func run(ctx context.Context, stdin io.Reader, stdout, logOut io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		addr, ok := os.LookupEnv("STATUS_ADDR")
		if !ok || addr == "" {
			addr = defaultStatusAddr
		}
		return runHealthcheck(ctx, addr)
	}

	cfg, log, err := Init(logOut)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	log.Debug("starting codetime",
		slog.String("command", string(cmd)),
		slog.String("api_base_url", cfg.APIBaseURL),
		slog.String("store_backend", cfg.StoreBackend),
	)

	switch cmd {
	case CommandFlush:
		return runFlush(ctx, cfg, log, stdout)
	case CommandStatus:
		return runStatus(ctx, cfg, log, stdout)
	case CommandEnqueue:
		return runEnqueue(cfg, log, stdin, stdout)
	case CommandMigrate:
		return runMigrate(cfg, log)
	default:
		ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runAgent(ctx, cfg, log)
	}
}

// components はサブコマンドが共有する依存関係をまとめた構造体。
type components struct {
	cfg        *config.Config
	logger     *slog.Logger
	registry   *prometheus.Registry
	store      repository.SessionStore
	eventLog   *repository.FileEventLog
	auth       *auth.Service
	cycle      *confirm.Cycle
	reconciler *offline.Reconciler
	db         *sql.DB
}

// build は設定から全依存関係を構築する。
func build(cfg *config.Config, log *slog.Logger) (*components, error) {
	c := &components{
		cfg:      cfg,
		logger:   log,
		registry: prometheus.NewRegistry(),
		eventLog: repository.NewFileEventLog(cfg.EventLogFile()),
	}
	collector := metrics.NewCollector(c.registry)

	store, db, err := openSessionStore(cfg)
	if err != nil {
		return nil, err
	}
	c.store = store
	c.db = db

	client := softwareapi.NewClient(
		nil,
		cfg.APIBaseURL,
		cfg.HTTPTimeout,
		rate.NewLimiter(rate.Limit(cfg.APIRateLimit), cfg.APIRateBurst),
		collector,
		log,
	)

	timezone := cfg.Timezone
	if timezone == "" {
		timezone = identity.LocalTimezone()
	}

	c.auth = auth.NewService(client, store, identityProvider(cfg), collector, log, auth.ServiceConfig{
		IdentityEmail: cfg.IdentityEmail,
		Timezone:      timezone,
	})

	c.cycle = confirm.NewCycle(
		c.auth,
		summary.NewService(client, store, log),
		confirm.Policy{
			RetryInterval:       cfg.ConfirmRetryInterval,
			DeactivatedInterval: cfg.ConfirmDeactivatedInterval,
		},
		cfg.SessionRefreshDelay,
		log,
	)

	c.reconciler = offline.NewReconciler(client, store, c.eventLog, collector, log)

	return c, nil
}

// Close は保持しているリソースを解放する。
func (c *components) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// openSessionStore は設定に応じたSessionStoreを開く。
// PostgreSQLの場合は接続確認まで行う。
func openSessionStore(cfg *config.Config) (repository.SessionStore, *sql.DB, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendPostgres:
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return repository.NewPostgresSessionStore(db, sessionScope), db, nil
	default:
		return repository.NewFileSessionStore(cfg.SessionFile()), nil, nil
	}
}

func identityProvider(cfg *config.Config) identity.Provider {
	if cfg.HardwareAddress != "" {
		return identity.StaticProvider(cfg.HardwareAddress)
	}
	return identity.NewNetProvider()
}

// Status はエージェントの現在の状態を返す。匿名ユーザーの作成は行わない。
func (c *components) Status(ctx context.Context) (*model.StatusReport, error) {
	report := &model.StatusReport{
		State:               c.auth.CurrentState(ctx),
		PendingEvents:       c.eventLog.Exists(),
		ConfirmCycleRunning: c.cycle.Running(),
	}

	if token, ok := c.auth.SessionToken(ctx); ok {
		report.HasSessionToken = true
		if exp, ok := auth.TokenExpiry(token); ok {
			report.TokenExpiresAt = &exp
		}
	}
	if report.State == model.StateAuthenticated {
		report.Registered = c.auth.IsRegisteredUser(ctx)
	}
	return report, nil
}

// runFlush はオフラインイベントログを1回フラッシュし、結果を出力する。
func runFlush(ctx context.Context, cfg *config.Config, log *slog.Logger, w io.Writer) error {
	c, err := build(cfg, log)
	if err != nil {
		return err
	}
	defer c.Close()

	result := c.reconciler.Flush(ctx)
	return writeJSON(w, map[string]string{"result": result.String()})
}

// runStatus は現在の状態をJSONで出力する。
func runStatus(ctx context.Context, cfg *config.Config, log *slog.Logger, w io.Writer) error {
	c, err := build(cfg, log)
	if err != nil {
		return err
	}
	defer c.Close()

	report, err := c.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve status: %w", err)
	}
	return writeJSON(w, report)
}

// runEnqueue は標準入力の各行をイベントとしてオフラインイベントログに追記する。
// JSONオブジェクトとして解析できない行は追記しない。
func runEnqueue(cfg *config.Config, log *slog.Logger, r io.Reader, w io.Writer) error {
	eventLog := repository.NewFileEventLog(cfg.EventLogFile())

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLineSize)

	accepted, rejected := 0, 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		ev, ok := model.ParseEventLine(line)
		if !ok {
			rejected++
			continue
		}
		if err := eventLog.Append(ev); err != nil {
			return fmt.Errorf("failed to append event: %w", err)
		}
		accepted++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read events: %w", err)
	}

	if rejected > 0 {
		log.Warn("不正なイベント行を除外しました", slog.Int("rejected", rejected))
	}
	return writeJSON(w, map[string]int{"accepted": accepted, "rejected": rejected})
}

// runMigrate はPostgreSQLストアのマイグレーションを実行する。
func runMigrate(cfg *config.Config, log *slog.Logger) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for migrate")
	}

	log.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Info("database migrations completed successfully")
	return nil
}

// runAgent は常駐モードで起動する。
// 認証状態を整合させ、確認待ちなら確認サイクルを開始する。
// フラッシュジョブとステータスサーバーを起動し、コンテキストのキャンセルで停止する。
func runAgent(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	c, err := build(cfg, log)
	if err != nil {
		return err
	}
	defer c.Close()

	a := &agent{components: c, ctx: ctx, waiter: confirm.TimerWaiter{}}

	var server *http.Server
	serverErr := make(chan error, 1)
	if cfg.StatusAddr != "" {
		server = &http.Server{
			Addr:         cfg.StatusAddr,
			Handler:      a.router(),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			log.Info("status server starting", slog.String("addr", server.Addr))
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				serverErr <- err
			}
		}()
	}

	go c.reconciler.Start(ctx, cfg.FlushInterval)
	go a.reconcile(ctx)

	log.Info("agent started",
		slog.Duration("flush_interval", cfg.FlushInterval),
		slog.Duration("confirm_retry_interval", cfg.ConfirmRetryInterval),
	)

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		runErr = fmt.Errorf("status server failed: %w", err)
	}

	log.Info("shutting down agent...")
	c.cycle.Stop()

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && runErr == nil {
			runErr = fmt.Errorf("status server shutdown failed: %w", err)
		}
	}

	log.Info("agent stopped")
	return runErr
}

// runHealthcheck はステータスサーバーの /health にリクエストを送り、結果を返す。
func runHealthcheck(ctx context.Context, addr string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/health", nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
