// Package identity resolves the caller's directory identity. The
// sign-in flow hands the bot a delegated user token; /status checks its
// presence and /me exchanges it on-behalf-of for a Microsoft Graph
// token to fetch the caller's profile.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/golang-jwt/jwt/v5"

	"github.com/relaybot/relaybot/internal/config"
)

const graphMeURL = "https://graph.microsoft.com/v1.0/me"

// graphScope is the Entra scope the exchanged token is requested for.
const graphScope = "https://graph.microsoft.com/.default"

// ErrNotSignedIn is returned when no delegated token is available.
var ErrNotSignedIn = errors.New("identity: no sign-in token for this user")

// Service exchanges delegated tokens and fetches profiles.
type Service struct {
	cfg        config.IdentityConfig
	httpClient *http.Client
	logger     *slog.Logger

	// graphURL is swappable for tests.
	graphURL string
}

// NewService creates an identity service.
func NewService(cfg config.IdentityConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.With("component", "identity"),
		graphURL:   graphMeURL,
	}
}

// TokenPresent reports whether token is a well-formed, unexpired JWT.
// The signature is not verified here; the token is only forwarded to
// the identity provider, which does verify it.
func (s *Service) TokenPresent(token string) bool {
	if token == "" {
		return false
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil {
		return false
	}
	return exp == nil || exp.After(time.Now())
}

// Profile exchanges the user's delegated token on-behalf-of and returns
// the caller's Graph profile as indented JSON.
func (s *Service) Profile(ctx context.Context, userToken string) (string, error) {
	if userToken == "" {
		return "", ErrNotSignedIn
	}

	cred, err := azidentity.NewOnBehalfOfCredentialWithSecret(
		s.cfg.TenantID, s.cfg.ClientID, userToken, s.cfg.ClientSecret, nil)
	if err != nil {
		return "", fmt.Errorf("create on-behalf-of credential: %w", err)
	}

	token, err := cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{graphScope}})
	if err != nil {
		return "", fmt.Errorf("exchange token: %w", err)
	}

	return s.fetchProfile(ctx, token.Token)
}

func (s *Service) fetchProfile(ctx context.Context, accessToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.graphURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch profile: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read profile: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		s.logger.Warn("profile fetch rejected", "status", resp.StatusCode)
		return "", fmt.Errorf("graph returned http %d", resp.StatusCode)
	}

	var indented bytes.Buffer
	if err := json.Indent(&indented, body, "", "  "); err != nil {
		// Not JSON; return the raw body rather than nothing.
		return string(body), nil
	}
	return indented.String(), nil
}
