package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestDeviceToken_RoundTrip(t *testing.T) {
	token, err := GenerateDeviceToken("s3cret", "fern-01", time.Hour)
	if err != nil {
		t.Fatalf("GenerateDeviceToken: %v", err)
	}
	device, err := ValidateDeviceToken("s3cret", token)
	if err != nil {
		t.Fatalf("ValidateDeviceToken: %v", err)
	}
	if device != "fern-01" {
		t.Errorf("device = %q, want fern-01", device)
	}
}

func TestDeviceToken_Rejections(t *testing.T) {
	valid, _ := GenerateDeviceToken("s3cret", "fern-01", time.Hour)
	expired, _ := GenerateDeviceToken("s3cret", "fern-01", -time.Minute)

	otherAudience, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "fern-01",
		"aud": "someone-else",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("s3cret"))

	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "fern-01",
		"aud": deviceAudience,
	}).SignedString([]byte("s3cret"))

	tests := []struct {
		name   string
		secret string
		token  string
	}{
		{"wrong secret", "other", valid},
		{"expired", "s3cret", expired},
		{"wrong audience", "s3cret", otherAudience},
		{"no expiry", "s3cret", noExpiry},
		{"garbage", "s3cret", "not.a.token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ValidateDeviceToken(tt.secret, tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("err = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestGenerateDeviceToken_RequiresSecret(t *testing.T) {
	if _, err := GenerateDeviceToken("", "fern-01", time.Hour); err == nil {
		t.Error("expected error without secret")
	}
}
