package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/relaybot/relaybot/internal/config"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-signing-key"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestTokenPresent(t *testing.T) {
	svc := NewService(config.IdentityConfig{}, nil)

	valid := signedToken(t, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	expired := signedToken(t, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	noExpiry := signedToken(t, jwt.MapClaims{"sub": "user-1"})

	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{"valid token", valid, true},
		{"expired token", expired, false},
		{"no expiry claim", noExpiry, true},
		{"empty", "", false},
		{"garbage", "not-a-jwt", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := svc.TokenPresent(tt.token); got != tt.want {
				t.Errorf("TokenPresent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProfileRequiresToken(t *testing.T) {
	svc := NewService(config.IdentityConfig{}, nil)
	if _, err := svc.Profile(context.Background(), ""); err != ErrNotSignedIn {
		t.Errorf("Profile() error = %v, want ErrNotSignedIn", err)
	}
}

func TestFetchProfileIndentsJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer graph-token" {
			t.Errorf("Authorization = %q", auth)
		}
		w.Write([]byte(`{"displayName":"Test User","mail":"test@example.org"}`))
	}))
	defer srv.Close()

	svc := NewService(config.IdentityConfig{}, nil)
	svc.graphURL = srv.URL
	svc.httpClient = srv.Client()

	profile, err := svc.fetchProfile(context.Background(), "graph-token")
	if err != nil {
		t.Fatalf("fetchProfile() error = %v", err)
	}
	if !strings.Contains(profile, "\"displayName\": \"Test User\"") {
		t.Errorf("profile = %q, want indented JSON", profile)
	}
}

func TestFetchProfileSurfacesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	svc := NewService(config.IdentityConfig{}, nil)
	svc.graphURL = srv.URL
	svc.httpClient = srv.Client()

	if _, err := svc.fetchProfile(context.Background(), "graph-token"); err == nil {
		t.Error("fetchProfile() error = nil, want http error")
	}
}
