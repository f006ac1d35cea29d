package identity

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/hitoshi/codetime/internal/model"
)

func mustMAC(t *testing.T, s string) net.HardwareAddr {
	t.Helper()
	hw, err := net.ParseMAC(s)
	if err != nil {
		t.Fatalf("ParseMAC(%q): %v", s, err)
	}
	return hw
}

func TestNetProvider_PrefersUpNonLoopback(t *testing.T) {
	p := &NetProvider{interfaces: func() ([]net.Interface, error) {
		return []net.Interface{
			{Name: "lo", Flags: net.FlagLoopback | net.FlagUp},
			{Name: "eth1", HardwareAddr: mustMAC(t, "00:11:22:33:44:01")},
			{Name: "wlan0", Flags: net.FlagUp, HardwareAddr: mustMAC(t, "00:11:22:33:44:03")},
			{Name: "eth0", Flags: net.FlagUp, HardwareAddr: mustMAC(t, "00:11:22:33:44:02")},
		}, nil
	}}

	addr, err := p.HardwareAddress(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if addr != "00:11:22:33:44:02" {
		t.Errorf("addr = %q, want eth0 address", addr)
	}
}

func TestNetProvider_FallsBackToDownInterface(t *testing.T) {
	p := &NetProvider{interfaces: func() ([]net.Interface, error) {
		return []net.Interface{
			{Name: "eth0", HardwareAddr: mustMAC(t, "aa:bb:cc:dd:ee:ff")},
		}, nil
	}}

	addr, err := p.HardwareAddress(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if addr != "aa:bb:cc:dd:ee:ff" {
		t.Errorf("addr = %q", addr)
	}
}

func TestNetProvider_NoCandidates_ReturnsLookupError(t *testing.T) {
	p := &NetProvider{interfaces: func() ([]net.Interface, error) {
		return []net.Interface{
			{Name: "lo", Flags: net.FlagLoopback | net.FlagUp},
			{Name: "tun0", Flags: net.FlagUp},
			{Name: "dummy0", Flags: net.FlagUp, HardwareAddr: mustMAC(t, "00:00:00:00:00:00")},
		}, nil
	}}

	_, err := p.HardwareAddress(context.Background())
	if !errors.Is(err, model.ErrHardwareAddressUnavailable) {
		t.Fatalf("err = %v, want ErrHardwareAddressUnavailable", err)
	}
}

func TestNetProvider_InterfaceError_ReturnsLookupError(t *testing.T) {
	p := &NetProvider{interfaces: func() ([]net.Interface, error) {
		return nil, errors.New("netlink failure")
	}}

	_, err := p.HardwareAddress(context.Background())
	if !errors.Is(err, model.ErrHardwareAddressUnavailable) {
		t.Fatalf("err = %v, want ErrHardwareAddressUnavailable", err)
	}
}

func TestStaticProvider(t *testing.T) {
	addr, err := StaticProvider("AA:BB:CC").HardwareAddress(context.Background())
	if err != nil || addr != "AA:BB:CC" {
		t.Errorf("StaticProvider = (%q, %v), want (AA:BB:CC, nil)", addr, err)
	}

	if _, err := StaticProvider(" ").HardwareAddress(context.Background()); !errors.Is(err, model.ErrHardwareAddressUnavailable) {
		t.Errorf("empty StaticProvider err = %v, want ErrHardwareAddressUnavailable", err)
	}
}

func TestHint(t *testing.T) {
	if got := Hint("", "AA:BB:CC"); got != "AA:BB:CC" {
		t.Errorf("Hint without email = %q, want hardware address", got)
	}
	if got := Hint("dev@example.com", "AA:BB:CC"); got != "dev@example.com" {
		t.Errorf("Hint with email = %q, want email", got)
	}
}

func TestResolveTimezone_FromEnv(t *testing.T) {
	if got := resolveTimezone("Asia/Tokyo", "/nonexistent"); got != "Asia/Tokyo" {
		t.Errorf("resolveTimezone = %q, want Asia/Tokyo", got)
	}
	if got := resolveTimezone(":Europe/Paris", "/nonexistent"); got != "Europe/Paris" {
		t.Errorf("resolveTimezone = %q, want Europe/Paris", got)
	}
}

func TestResolveTimezone_InvalidEnv_NeverEmpty(t *testing.T) {
	if got := resolveTimezone("Not/AZone", "/nonexistent"); got == "" || got == "Not/AZone" {
		t.Errorf("resolveTimezone = %q, want a valid fallback", got)
	}
}
