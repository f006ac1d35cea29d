package model

import "time"

// StatusReport はエージェントの現在の状態を表す。
// ステータスサーバーと status コマンドが出力する。
type StatusReport struct {
	State               State      `json:"state"`
	Registered          bool       `json:"registered"`
	HasSessionToken     bool       `json:"has_session_token"`
	TokenExpiresAt      *time.Time `json:"token_expires_at,omitempty"`
	PendingEvents       bool       `json:"pending_events"`
	ConfirmCycleRunning bool       `json:"confirm_cycle_running"`
}
