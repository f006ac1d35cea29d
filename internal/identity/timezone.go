package identity

import (
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"
)

const zoneinfoMarker = "zoneinfo/"

// LocalTimezone はローカルのIANAタイムゾーン名を返す。
// TZ環境変数、/etc/localtime のリンク先の順に解決し、解決できない場合は time.Local の名前を返す。
func LocalTimezone() string {
	return resolveTimezone(os.Getenv("TZ"), "/etc/localtime")
}

func resolveTimezone(tzEnv, localtimePath string) string {
	if tz := strings.TrimPrefix(strings.TrimSpace(tzEnv), ":"); tz != "" {
		if _, err := time.LoadLocation(tz); err == nil {
			return tz
		}
	}

	if target, err := filepath.EvalSymlinks(localtimePath); err == nil {
		target = filepath.ToSlash(target)
		if i := strings.LastIndex(target, zoneinfoMarker); i >= 0 {
			name := target[i+len(zoneinfoMarker):]
			if _, err := time.LoadLocation(name); err == nil {
				return name
			}
		}
	}

	if name := time.Local.String(); name != "" && name != "Local" {
		return name
	}
	return "UTC"
}
