package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// sessionTokenPrefix はサーバーが発行するセッショントークンの接頭辞。
const sessionTokenPrefix = "JWT "

// TokenExpiry はセッショントークンの有効期限を返す。
// 署名は検証しない。表示用途のみで、認証判定には使わない。
// 期限を読み取れない場合は ok=false を返す。
func TokenExpiry(token string) (time.Time, bool) {
	raw := strings.TrimSpace(strings.TrimPrefix(token, sessionTokenPrefix))
	if raw == "" {
		return time.Time{}, false
	}

	parsed, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}

	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
