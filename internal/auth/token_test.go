package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	withExp := signedToken(t, jwt.MapClaims{"exp": exp.Unix()})
	withoutExp := signedToken(t, jwt.MapClaims{"sub": "7"})

	tests := []struct {
		name   string
		token  string
		want   time.Time
		wantOK bool
	}{
		{"接頭辞付き", "JWT " + withExp, exp, true},
		{"接頭辞なし", withExp, exp, true},
		{"expなし", withoutExp, time.Time{}, false},
		{"JWTでない", "not-a-token", time.Time{}, false},
		{"空", "", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := TokenExpiry(tt.token)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("expiry = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfirmResult_String(t *testing.T) {
	tests := map[ConfirmResult]string{
		ConfirmSkipped:     "skipped",
		ConfirmPending:     "pending",
		ConfirmDeactivated: "deactivated",
		ConfirmSuccess:     "success",
		ConfirmResult(99):  "unknown",
	}
	for r, want := range tests {
		if got := r.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(r), got, want)
		}
	}
}
