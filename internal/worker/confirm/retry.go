package confirm

import (
	"time"

	"github.com/hitoshi/codetime/internal/auth"
)

const (
	// DefaultRetryInterval は未確認・一時的な失敗時の再試行間隔。
	DefaultRetryInterval = 45 * time.Second
	// DefaultDeactivatedInterval はアカウント無効化時の再試行間隔。
	DefaultDeactivatedInterval = 24 * time.Hour
	// DefaultRefreshDelay は確認成功からセッションデータ更新までの遅延。
	DefaultRefreshDelay = time.Second
)

// Policy は確認結果ごとの再試行間隔の表。
// 成功で停止、無効化で長い間隔、それ以外は短い間隔で再試行する。
type Policy struct {
	RetryInterval       time.Duration
	DeactivatedInterval time.Duration
}

// DefaultPolicy はデフォルトの再試行間隔を返す。
func DefaultPolicy() Policy {
	return Policy{
		RetryInterval:       DefaultRetryInterval,
		DeactivatedInterval: DefaultDeactivatedInterval,
	}
}

// Next は確認結果から次回の試行までの遅延を返す。
// cont が false の場合はサイクルを終了する。
func (p Policy) Next(result auth.ConfirmResult) (delay time.Duration, cont bool) {
	switch result {
	case auth.ConfirmSuccess, auth.ConfirmSkipped:
		return 0, false
	case auth.ConfirmDeactivated:
		return p.DeactivatedInterval, true
	default:
		return p.RetryInterval, true
	}
}
