// Package identity はデバイスの安定したハードウェア識別子を提供する。
package identity

import (
	"context"
	"net"
	"sort"
	"strings"

	"github.com/hitoshi/codetime/internal/model"
)

// Provider はハードウェアアドレス取得のインターフェース。
// 取得失敗は「今回は識別子なし」として扱い、呼び出し元はキャッシュせずに次回再試行する。
type Provider interface {
	HardwareAddress(ctx context.Context) (string, error)
}

// NetProvider はネットワークインターフェースのMACアドレスから識別子を導出する。
type NetProvider struct {
	interfaces func() ([]net.Interface, error) // テスト用に差し替え可能
}

// NewNetProvider はNetProviderの新しいインスタンスを生成する。
func NewNetProvider() *NetProvider {
	return &NetProvider{interfaces: net.Interfaces}
}

// HardwareAddress はプライマリのハードウェアアドレスを返す。
// 稼働中かつループバックでないインターフェースを優先し、同条件内では名前順で選ぶ。
// 該当するインターフェースがない場合は ErrHardwareAddressUnavailable を返す。
func (p *NetProvider) HardwareAddress(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ifaces, err := p.interfaces()
	if err != nil {
		return "", model.NewLookupError(err.Error())
	}

	var candidates []net.Interface
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if len(iface.HardwareAddr) == 0 || isZeroAddr(iface.HardwareAddr) {
			continue
		}
		candidates = append(candidates, iface)
	}
	if len(candidates) == 0 {
		return "", model.NewLookupError("no interface with a hardware address")
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		upI := candidates[i].Flags&net.FlagUp != 0
		upJ := candidates[j].Flags&net.FlagUp != 0
		if upI != upJ {
			return upI
		}
		return candidates[i].Name < candidates[j].Name
	})

	return candidates[0].HardwareAddr.String(), nil
}

func isZeroAddr(addr net.HardwareAddr) bool {
	for _, b := range addr {
		if b != 0 {
			return false
		}
	}
	return true
}

// StaticProvider は設定で固定されたハードウェアアドレスを返す。
type StaticProvider string

// HardwareAddress は固定値を返す。空文字の場合は取得失敗として扱う。
func (s StaticProvider) HardwareAddress(ctx context.Context) (string, error) {
	addr := strings.TrimSpace(string(s))
	if addr == "" {
		return "", model.NewLookupError("static hardware address is empty")
	}
	return addr, nil
}

// Hint はオンボーディングで送信する識別ヒントを返す。
// 別の識別ソース（メールアドレス）が設定されていない場合はハードウェアアドレスを使う。
func Hint(email, hardwareAddress string) string {
	if e := strings.TrimSpace(email); e != "" {
		return e
	}
	return hardwareAddress
}
