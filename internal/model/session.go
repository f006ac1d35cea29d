package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// セッションストアのキー。
// プラグイントークン・アプリトークン・セッショントークン・ユーザーレコードは独立して保存される。
const (
	KeyPluginToken    = "token"
	KeyAppToken       = "app_jwt"
	KeySessionToken   = "jwt"
	KeyUserRecord     = "user"
	KeyLastUpdateTime = "last_update_time"
	KeySessionSummary = "session_summary"
)

// State は認証状態機械の状態を表す。
type State string

const (
	// StateNoIdentity はセッショントークンがなく、匿名ユーザーの作成が必要な状態。
	StateNoIdentity State = "no_identity"
	// StatePendingConfirmation はプラグイントークンの確認待ちの状態。
	StatePendingConfirmation State = "pending_confirmation"
	// StateAuthenticated はセッショントークンがサーバーに受け付けられている状態。
	StateAuthenticated State = "authenticated"
	// StateUnreachable はサーバーに到達できない一時的な状態。永続化しない。
	StateUnreachable State = "unreachable"
)

// UserRecord はサーバーが割り当てたユーザー識別情報を表す。
// ストアには不透明なJSON文字列として保存し、比較が必要な場合のみパースする。
type UserRecord struct {
	ID    json.Number `json:"id"`
	Email string      `json:"email"`
}

// NumericID はユーザーIDを整数として返す。
// 7.0 のような整数値の浮動小数点表記は受け付ける。
// 数値でないID、小数部を持つID、int64の範囲外のIDは ErrMalformedLocalRecord として扱う。
func (u *UserRecord) NumericID() (int64, error) {
	id, err := strconv.ParseInt(u.ID.String(), 10, 64)
	if err == nil {
		return id, nil
	}
	f, ferr := u.ID.Float64()
	if ferr != nil || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("user id %q: %w", u.ID.String(), ErrMalformedLocalRecord)
	}
	return int64(f), nil
}

// ParseUserRecord は保存済みのユーザーレコードをパースする。
func ParseUserRecord(raw string) (*UserRecord, error) {
	var u UserRecord
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, fmt.Errorf("parse user record: %w", ErrMalformedLocalRecord)
	}
	return &u, nil
}

// SessionGrant はトークン交換・確認のレスポンス本体 {jwt, user} を表す。
// User は受信したままの生JSONで保持し、そのままストアに書き込む。
type SessionGrant struct {
	JWT  string          `json:"jwt"`
	User json.RawMessage `json:"user"`
}

// Complete はセッショントークンとユーザーレコードの両方が揃っているかを返す。
// どちらか一方だけのレスポンスは成功として扱わない。
func (g *SessionGrant) Complete() bool {
	if g == nil || g.JWT == "" {
		return false
	}
	switch string(g.User) {
	case "", "null", "{}", `""`:
		return false
	}
	return true
}

// AppTokenGrant はアプリトークン交換のレスポンス本体 {jwt} を表す。
type AppTokenGrant struct {
	JWT string `json:"jwt"`
}

// OnboardRequest は匿名ユーザー作成リクエストの本体を表す。
type OnboardRequest struct {
	Email       string `json:"email"`
	PluginToken string `json:"plugin_token"`
	Timezone    string `json:"timezone"`
}

// UserLookup はユーザー参照APIのレスポンス本体 {data: {email, ...}} を表す。
type UserLookup struct {
	Data struct {
		Email string `json:"email"`
	} `json:"data"`
}
