// Package model はセッション識別情報とオフラインイベントのドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// セッション整合処理で扱うエラー分類。
// いずれも各操作の境界で捕捉され、呼び出し元へは bool / 結果型として返る。
var (
	// ErrUnreachable はネットワーク経路がない、または非2xxステータスを表す。
	ErrUnreachable = errors.New("remote session service unreachable")
	// ErrInvalidCredential は保存済みトークンがサーバーに拒否されたことを表す。
	ErrInvalidCredential = errors.New("stored credential rejected")
	// ErrAccountDeactivated はサーバーが明示的にアカウント無効化を通知したことを表す。
	ErrAccountDeactivated = errors.New("account deactivated")
	// ErrMalformedLocalRecord は永続化済みJSONのパースに失敗したことを表す。
	ErrMalformedLocalRecord = errors.New("malformed local record")
	// ErrHardwareAddressUnavailable はハードウェアアドレスを取得できないことを表す。
	ErrHardwareAddressUnavailable = errors.New("hardware address unavailable")
)

// SessionError は操作単位のエラー報告フォーマットを表す。
type SessionError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: network, auth, storage, identity
	Err      error  // 分類用の sentinel エラー
}

// Error はerrorインターフェースを実装する。
func (e *SessionError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は分類用の sentinel エラーを返す。errors.Is での判定に使用する。
func (e *SessionError) Unwrap() error {
	return e.Err
}

// 定義済みエラーコード
const (
	ErrCodeUnreachable          = "UNREACHABLE"
	ErrCodeInvalidCredential    = "INVALID_CREDENTIAL"
	ErrCodeAccountDeactivated   = "ACCOUNT_DEACTIVATED"
	ErrCodeMalformedLocalRecord = "MALFORMED_LOCAL_RECORD"
	ErrCodeLookupFailed         = "LOOKUP_FAILED"
)

// NewUnreachableError はサーバー到達不能エラーを生成する。
func NewUnreachableError(reason string) *SessionError {
	return &SessionError{
		Code:     ErrCodeUnreachable,
		Message:  fmt.Sprintf("セッションサービスに到達できません: %s", reason),
		Category: "network",
		Err:      ErrUnreachable,
	}
}

// NewInvalidCredentialError はトークン拒否エラーを生成する。
func NewInvalidCredentialError() *SessionError {
	return &SessionError{
		Code:     ErrCodeInvalidCredential,
		Message:  "保存済みのセッショントークンが受け付けられませんでした。",
		Category: "auth",
		Err:      ErrInvalidCredential,
	}
}

// NewAccountDeactivatedError はアカウント無効化エラーを生成する。
func NewAccountDeactivatedError() *SessionError {
	return &SessionError{
		Code:     ErrCodeAccountDeactivated,
		Message:  "アカウントは無効化されています。",
		Category: "auth",
		Err:      ErrAccountDeactivated,
	}
}

// NewMalformedLocalRecordError はローカルレコードのパース失敗エラーを生成する。
func NewMalformedLocalRecordError(key string, cause error) *SessionError {
	return &SessionError{
		Code:     ErrCodeMalformedLocalRecord,
		Message:  fmt.Sprintf("ローカルレコードを解析できません (%s): %v", key, cause),
		Category: "storage",
		Err:      ErrMalformedLocalRecord,
	}
}

// NewLookupError はハードウェアアドレス取得失敗エラーを生成する。
func NewLookupError(reason string) *SessionError {
	return &SessionError{
		Code:     ErrCodeLookupFailed,
		Message:  fmt.Sprintf("ハードウェアアドレスを取得できません: %s", reason),
		Category: "identity",
		Err:      ErrHardwareAddressUnavailable,
	}
}
