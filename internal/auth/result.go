package auth

// ConfirmResult はプラグイントークン確認1回分の結果。
type ConfirmResult int

const (
	// ConfirmSkipped はプラグイントークンがなく、確認を行わなかったことを表す。
	ConfirmSkipped ConfirmResult = iota
	// ConfirmPending は未確認または一時的な失敗を表す。
	ConfirmPending
	// ConfirmDeactivated はアカウント無効化のシグナルを受け取ったことを表す。
	ConfirmDeactivated
	// ConfirmSuccess はセッショントークンとユーザーレコードを保存したことを表す。
	ConfirmSuccess
)

// String はメトリクスとログ用の名前を返す。
func (r ConfirmResult) String() string {
	switch r {
	case ConfirmSkipped:
		return "skipped"
	case ConfirmPending:
		return "pending"
	case ConfirmDeactivated:
		return "deactivated"
	case ConfirmSuccess:
		return "success"
	default:
		return "unknown"
	}
}
