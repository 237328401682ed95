// Package teams is the Bot Framework webhook adapter. It receives
// activities on a webhook endpoint, verifies the caller's token, and
// posts replies back to the activity's service URL with a connector
// token acquired via the client-credentials flow.
package teams

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/relaybot/relaybot/internal/channels"
	"github.com/relaybot/relaybot/internal/config"
	"github.com/relaybot/relaybot/internal/observability"
	"github.com/relaybot/relaybot/pkg/models"
)

const (
	// connectorScope is the scope outbound connector tokens are
	// requested for.
	connectorScope = "https://api.botframework.com/.default"

	// connectorTokenURL is the Bot Framework token endpoint.
	connectorTokenURL = "https://login.microsoftonline.com/botframework.com/oauth2/v2.0/token"

	// botFrameworkIssuer is the expected issuer of inbound tokens.
	botFrameworkIssuer = "https://api.botframework.com"
)

// Adapter serves the Bot Framework webhook and relays activities to a
// handler.
type Adapter struct {
	cfg        config.ServerConfig
	pacing     time.Duration
	handler    channels.Handler
	logger     *slog.Logger
	metrics    *observability.Metrics
	httpClient *http.Client

	// tokenURL is swappable for tests.
	tokenURL string

	// Connector token cache.
	tokenMu     sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewAdapter creates a Teams webhook adapter. pacing bounds how often
// streamed reply updates are pushed to the channel.
func NewAdapter(cfg config.ServerConfig, pacing time.Duration, handler channels.Handler, logger *slog.Logger, metrics *observability.Metrics) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	if pacing <= 0 {
		pacing = 100 * time.Millisecond
	}
	return &Adapter{
		cfg:        cfg,
		pacing:     pacing,
		handler:    handler,
		logger:     logger.With("component", "teams"),
		metrics:    metrics,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tokenURL:   connectorTokenURL,
	}
}

// ServeHTTP handles one webhook POST carrying an activity.
func (a *Adapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := a.authorize(r); err != nil {
		a.logger.Warn("rejected webhook call", "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var activity models.Activity
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&activity); err != nil {
		a.logger.Warn("bad activity payload", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	a.logger.Info("activity received",
		"type", activity.Type,
		"conversation_id", activity.Conversation.ID,
		"user_id", activity.UserID())

	responder := a.newResponder(&activity)
	if err := a.handler(r.Context(), &activity, responder); err != nil {
		// The handler already surfaced the failure to the user; the
		// channel still gets a 200 so it does not retry the activity.
		a.logger.Error("activity handler failed", "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("{}"))
}

// authorize validates the inbound Authorization token: well-formed JWT,
// Bot Framework issuer, bot app id audience, unexpired.
//
// TODO: verify the signature against the Bot Framework JWKS document.
func (a *Adapter) authorize(r *http.Request) error {
	if a.cfg.DisableAuth {
		return nil
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return fmt.Errorf("missing bearer token")
	}
	raw := strings.TrimPrefix(auth, "Bearer ")

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return fmt.Errorf("parse token: %w", err)
	}

	issuer, err := claims.GetIssuer()
	if err != nil || issuer != botFrameworkIssuer {
		return fmt.Errorf("unexpected issuer %q", issuer)
	}

	audience, err := claims.GetAudience()
	if err != nil {
		return fmt.Errorf("read audience: %w", err)
	}
	audOK := false
	for _, aud := range audience {
		if aud == a.cfg.AppID {
			audOK = true
			break
		}
	}
	if !audOK {
		return fmt.Errorf("token not issued for this bot")
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return fmt.Errorf("missing expiry")
	}
	if exp.Before(time.Now()) {
		return fmt.Errorf("token expired")
	}
	return nil
}

// sendActivity posts one outbound activity to the conversation the
// inbound activity arrived on.
func (a *Adapter) sendActivity(ctx context.Context, inbound *models.Activity, outbound *models.Activity) error {
	serviceURL := strings.TrimRight(inbound.ServiceURL, "/")
	endpoint := fmt.Sprintf("%s/v3/conversations/%s/activities",
		serviceURL, url.PathEscape(inbound.Conversation.ID))
	if inbound.ID != "" {
		outbound.ReplyToID = inbound.ID
	}

	body, err := json.Marshal(outbound)
	if err != nil {
		return fmt.Errorf("marshal activity: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(body)))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if !a.cfg.DisableAuth {
		token, err := a.connectorToken(ctx)
		if err != nil {
			return fmt.Errorf("get connector token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		if a.metrics != nil {
			a.metrics.RecordError("teams", "send_activity")
		}
		return fmt.Errorf("send activity: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		if readErr != nil {
			respBody = []byte("(failed to read response body)")
		}
		if a.metrics != nil {
			a.metrics.RecordError("teams", "send_activity")
		}
		return fmt.Errorf("connector error %d: %s", resp.StatusCode, string(respBody))
	}

	if a.metrics != nil {
		a.metrics.RecordMessage("outbound")
	}
	return nil
}

// connectorToken returns a cached client-credentials token, refreshing
// it shortly before expiry.
func (a *Adapter) connectorToken(ctx context.Context) (string, error) {
	a.tokenMu.Lock()
	defer a.tokenMu.Unlock()

	if a.accessToken != "" && time.Until(a.tokenExpiry) > time.Minute {
		return a.accessToken, nil
	}

	data := url.Values{}
	data.Set("client_id", a.cfg.AppID)
	data.Set("client_secret", a.cfg.AppPassword)
	data.Set("scope", connectorScope)
	data.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		if readErr != nil {
			body = []byte("(failed to read response body)")
		}
		return "", fmt.Errorf("token request failed %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}

	a.accessToken = tokenResp.AccessToken
	a.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	a.logger.Info("connector token refreshed", "expires_in", tokenResp.ExpiresIn)
	return a.accessToken, nil
}
