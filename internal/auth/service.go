// Package auth は匿名ユーザーの作成、プラグイントークンの確認、
// 認証済みセッションの検証を行う認証状態機械を提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/codetime/internal/identity"
	"github.com/hitoshi/codetime/internal/metrics"
	"github.com/hitoshi/codetime/internal/model"
	"github.com/hitoshi/codetime/internal/repository"
	"github.com/hitoshi/codetime/internal/softwareapi"
)

// リモートセッションサービスのエンドポイント。
const (
	pathPing        = "/ping"
	pathUserPing    = "/users/ping"
	pathAppToken    = "/data/token"
	pathOnboard     = "/data/onboard"
	pathConfirm     = "/users/plugin/confirm"
	pathUserLookupF = "/users/%d"
)

// APIClient はリモートセッションサービスへのリクエスト送信のインターフェース。
type APIClient interface {
	Get(ctx context.Context, path, authToken string) (*softwareapi.Response, error)
	Post(ctx context.Context, path string, body any, authToken string) (*softwareapi.Response, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	IdentityEmail string // オンボーディングで優先する識別ソース。空ならハードウェアアドレスを使う
	Timezone      string // オンボーディングで送信するIANAタイムゾーン
}

// Service は認証状態機械。
// ネットワークやストアの失敗は各操作の境界で捕捉し、bool / 結果型に変換して返す。
type Service struct {
	client   APIClient
	store    repository.SessionStore
	identity identity.Provider
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
	config   ServiceConfig

	now            func() time.Time
	newPluginToken func() string
}

// NewService はServiceを生成する。
func NewService(
	client APIClient,
	store repository.SessionStore,
	provider identity.Provider,
	mc metrics.MetricsCollector,
	logger *slog.Logger,
	config ServiceConfig,
) *Service {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Service{
		client:         client,
		store:          store,
		identity:       provider,
		metrics:        mc,
		logger:         logger,
		config:         config,
		now:            time.Now,
		newPluginToken: uuid.NewString,
	}
}

// CheckServerReachable はリモートセッションサービスの死活を確認する。
// 通信エラー、非2xx、リダイレクトはいずれも到達不能とみなす。
func (s *Service) CheckServerReachable(ctx context.Context) bool {
	resp, err := s.client.Get(ctx, pathPing, "")
	if err != nil {
		s.logger.Debug("死活確認に失敗しました", slog.String("error", err.Error()))
		return false
	}
	return resp.IsOK()
}

// RequiresBootstrap は匿名ユーザーの作成が必要かを返す。
// サーバーに到達でき、かつセッショントークンまたはローカルのセッションレコードがない場合に true。
// オフライン中は再作成を誤検知しないよう常に false を返す。
func (s *Service) RequiresBootstrap(ctx context.Context) bool {
	if !s.CheckServerReachable(ctx) {
		return false
	}
	return s.missingSession(ctx)
}

func (s *Service) missingSession(ctx context.Context) bool {
	if s.value(ctx, model.KeySessionToken) == "" {
		return true
	}
	exists, err := s.store.Exists(ctx)
	if err != nil {
		s.logger.Warn("セッションレコードの確認に失敗しました", slog.String("error", err.Error()))
		return true
	}
	return !exists
}

// IsAuthenticated はプラグイントークンが存在し、
// 保存済みのセッショントークンがサーバーに受け付けられる場合に true を返す。
func (s *Service) IsAuthenticated(ctx context.Context) bool {
	if s.value(ctx, model.KeyPluginToken) == "" {
		return false
	}

	jwt := s.value(ctx, model.KeySessionToken)
	if jwt == "" {
		return false
	}

	resp, err := s.client.Get(ctx, pathUserPing, jwt)
	if err != nil {
		s.logger.Debug("認証確認に失敗しました", slog.String("error", err.Error()))
		return false
	}
	if !resp.IsOK() {
		s.logger.Info("セッショントークンが受け付けられませんでした",
			slog.Int("http_status", resp.StatusCode),
		)
		return false
	}
	return true
}

// EnsureAppToken はアプリトークンを返す。
// キャッシュがなければ、サーバーに到達できハードウェアアドレスが取得できる場合に限り交換して保存する。
// 前提条件を満たさない場合は ok=false を返す。
func (s *Service) EnsureAppToken(ctx context.Context) (string, bool) {
	if token := s.value(ctx, model.KeyAppToken); token != "" {
		return token, true
	}

	if !s.CheckServerReachable(ctx) {
		return "", false
	}

	addr, ok := s.hardwareAddress(ctx)
	if !ok {
		return "", false
	}

	resp, err := s.client.Get(ctx, pathAppToken+"?addr="+url.QueryEscape(addr), "")
	if err != nil {
		s.logger.Warn("アプリトークンの取得に失敗しました", slog.String("error", err.Error()))
		return "", false
	}
	if !resp.IsOK() {
		s.logger.Warn("アプリトークンの取得が拒否されました", slog.Int("http_status", resp.StatusCode))
		return "", false
	}

	var grant model.AppTokenGrant
	if err := resp.Decode(&grant); err != nil || grant.JWT == "" {
		s.logger.Warn("アプリトークンのレスポンスが不正です")
		return "", false
	}

	if err := s.store.Set(ctx, model.KeyAppToken, grant.JWT); err != nil {
		s.logger.Error("アプリトークンの保存に失敗しました", slog.String("error", err.Error()))
		return "", false
	}
	return grant.JWT, true
}

// BootstrapAnonymousUser は匿名ユーザーを作成し、セッショントークンとユーザーレコードを保存する。
// アプリトークンが得られない場合や、セッショントークンが既にある場合は何もしない。
// 失敗時は状態を変更せず、再試行は次回の起動・確認時に委ねる。
func (s *Service) BootstrapAnonymousUser(ctx context.Context) bool {
	appToken, ok := s.EnsureAppToken(ctx)
	if !ok {
		return false
	}
	if s.value(ctx, model.KeySessionToken) != "" {
		return false
	}

	addr, ok := s.hardwareAddress(ctx)
	if !ok {
		return false
	}

	pluginToken, err := s.ensurePluginToken(ctx)
	if err != nil {
		s.logger.Error("プラグイントークンの保存に失敗しました", slog.String("error", err.Error()))
		return false
	}

	req := model.OnboardRequest{
		Email:       identity.Hint(s.config.IdentityEmail, addr),
		PluginToken: pluginToken,
		Timezone:    s.config.Timezone,
	}
	resp, err := s.client.Post(ctx, pathOnboard+"?addr="+url.QueryEscape(addr), req, appToken)
	if err != nil {
		s.logger.Warn("匿名ユーザーの作成に失敗しました", slog.String("error", err.Error()))
		s.metrics.RecordBootstrap(false)
		return false
	}

	grant, ok := decodeGrant(resp)
	if !ok {
		s.logger.Warn("匿名ユーザーの作成が受け付けられませんでした", slog.Int("http_status", resp.StatusCode))
		s.metrics.RecordBootstrap(false)
		return false
	}

	if err := s.store.SetItems(ctx, map[string]string{
		model.KeySessionToken: grant.JWT,
		model.KeyUserRecord:   string(grant.User),
	}); err != nil {
		s.logger.Error("セッションの保存に失敗しました", slog.String("error", err.Error()))
		s.metrics.RecordBootstrap(false)
		return false
	}

	s.metrics.RecordBootstrap(true)
	s.logger.Info("匿名ユーザーを作成しました")
	return true
}

// ConfirmPendingToken はプラグイントークンの確認を1回試行し、結果を返す。
// 成功時はセッショントークン、ユーザーレコード、更新時刻を1回の書き込みで保存する。
// 再スケジュールは呼び出し元のサイクルが結果に応じて行う。
func (s *Service) ConfirmPendingToken(ctx context.Context) ConfirmResult {
	result := s.confirm(ctx)
	if result != ConfirmSkipped {
		s.metrics.RecordConfirmAttempt(result.String())
	}
	return result
}

func (s *Service) confirm(ctx context.Context) ConfirmResult {
	pluginToken := s.value(ctx, model.KeyPluginToken)
	if pluginToken == "" {
		return ConfirmSkipped
	}

	resp, err := s.client.Get(ctx, pathConfirm+"?token="+url.QueryEscape(pluginToken), "")
	if err != nil {
		s.logger.Warn("プラグイントークンの確認に失敗しました", slog.String("error", err.Error()))
		return ConfirmPending
	}

	if grant, ok := decodeGrant(resp); ok {
		if err := s.store.SetItems(ctx, map[string]string{
			model.KeySessionToken:   grant.JWT,
			model.KeyUserRecord:     string(grant.User),
			model.KeyLastUpdateTime: strconv.FormatInt(s.now().UnixMilli(), 10),
		}); err != nil {
			s.logger.Error("セッションの保存に失敗しました", slog.String("error", err.Error()))
			return ConfirmPending
		}
		s.logger.Info("プラグイントークンが確認されました")
		return ConfirmSuccess
	}

	if resp.IsDeactivated() {
		s.logger.Warn("アカウントが無効化されているためセッショントークンを取得できません")
		return ConfirmDeactivated
	}

	s.logger.Info("セッショントークンはまだ取得できません", slog.Int("http_status", resp.StatusCode))
	return ConfirmPending
}

// IsRegisteredUser はセッショントークン、到達可能なサーバー、ユーザーレコードが揃い、
// かつサーバー上のユーザーのメールアドレスがデバイスのハードウェアアドレスと異なる場合に true を返す。
func (s *Service) IsRegisteredUser(ctx context.Context) bool {
	jwt := s.value(ctx, model.KeySessionToken)
	rawUser := s.value(ctx, model.KeyUserRecord)
	if jwt == "" || rawUser == "" {
		return false
	}
	if !s.CheckServerReachable(ctx) {
		return false
	}

	user, err := model.ParseUserRecord(rawUser)
	if err != nil {
		s.logger.Warn("ユーザーレコードを解析できません", slog.String("error", err.Error()))
		return false
	}
	id, err := user.NumericID()
	if err != nil {
		s.logger.Warn("ユーザーIDを解析できません", slog.String("error", err.Error()))
		return false
	}

	addr, ok := s.hardwareAddress(ctx)
	if !ok {
		return false
	}

	resp, err := s.client.Get(ctx, fmt.Sprintf(pathUserLookupF, id), jwt)
	if err != nil || !resp.IsOK() {
		return false
	}
	var lookup model.UserLookup
	if err := resp.Decode(&lookup); err != nil {
		return false
	}
	return lookup.Data.Email != "" && lookup.Data.Email != addr
}

// Reconcile は起動時に認証状態を判定する。
// 匿名ユーザーの作成が必要なら作成を試み、プラグイントークンがあり未認証なら確認待ちとする。
// プラグイントークンなしで残ったセッションは破棄し、匿名ユーザーの作成からやり直す。
func (s *Service) Reconcile(ctx context.Context) model.State {
	if !s.CheckServerReachable(ctx) {
		return model.StateUnreachable
	}

	if s.missingSession(ctx) {
		if !s.BootstrapAnonymousUser(ctx) {
			return model.StateNoIdentity
		}
	}

	if s.IsAuthenticated(ctx) {
		return model.StateAuthenticated
	}
	if s.value(ctx, model.KeyPluginToken) != "" {
		return model.StatePendingConfirmation
	}

	// プラグイントークンのないセッションは認証も確認もできないため、破棄して匿名ユーザーを作り直す
	s.logger.Warn("プラグイントークンのないセッションを破棄します")
	if err := s.store.Delete(ctx, model.KeySessionToken, model.KeyUserRecord); err != nil {
		s.logger.Warn("セッションの破棄に失敗しました", slog.String("error", err.Error()))
		return model.StateNoIdentity
	}
	if !s.BootstrapAnonymousUser(ctx) {
		return model.StateNoIdentity
	}
	if s.IsAuthenticated(ctx) {
		return model.StateAuthenticated
	}
	return model.StatePendingConfirmation
}

// CurrentState は匿名ユーザーの作成を行わずに現在の状態を判定する。
func (s *Service) CurrentState(ctx context.Context) model.State {
	if !s.CheckServerReachable(ctx) {
		return model.StateUnreachable
	}
	if s.value(ctx, model.KeySessionToken) == "" {
		return model.StateNoIdentity
	}
	if s.IsAuthenticated(ctx) {
		return model.StateAuthenticated
	}
	if s.value(ctx, model.KeyPluginToken) != "" {
		return model.StatePendingConfirmation
	}
	return model.StateNoIdentity
}

// Logout はセッショントークンとユーザーレコードを削除する。
// プラグイントークンは残し、再確認に使う。
func (s *Service) Logout(ctx context.Context) error {
	if err := s.store.Delete(ctx, model.KeySessionToken, model.KeyUserRecord); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	s.logger.Info("セッションを削除しました")
	return nil
}

// SessionToken は保存済みのセッショントークンを返す。
func (s *Service) SessionToken(ctx context.Context) (string, bool) {
	token := s.value(ctx, model.KeySessionToken)
	return token, token != ""
}

// ensurePluginToken はプラグイントークンを返す。未作成なら生成して永続化する。
func (s *Service) ensurePluginToken(ctx context.Context) (string, error) {
	if token := s.value(ctx, model.KeyPluginToken); token != "" {
		return token, nil
	}
	token := s.newPluginToken()
	if err := s.store.Set(ctx, model.KeyPluginToken, token); err != nil {
		return "", err
	}
	return token, nil
}

func (s *Service) hardwareAddress(ctx context.Context) (string, bool) {
	addr, err := s.identity.HardwareAddress(ctx)
	if err != nil {
		s.logger.Warn("ハードウェアアドレスを取得できません", slog.String("error", err.Error()))
		return "", false
	}
	return addr, true
}

// value はストアの値を返す。読み込みに失敗した場合は未設定として扱う。
func (s *Service) value(ctx context.Context, key string) string {
	v, ok, err := s.store.Get(ctx, key)
	if err != nil {
		s.logger.Warn("セッションストアの読み込みに失敗しました",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return ""
	}
	if !ok {
		return ""
	}
	return v
}

// decodeGrant は成功レスポンスからセッショントークンとユーザーレコードを取り出す。
// どちらか一方でも欠けていれば ok=false。
func decodeGrant(resp *softwareapi.Response) (*model.SessionGrant, bool) {
	if !resp.IsOK() {
		return nil, false
	}
	var grant model.SessionGrant
	if err := resp.Decode(&grant); err != nil {
		return nil, false
	}
	if !grant.Complete() {
		return nil, false
	}
	return &grant, true
}
