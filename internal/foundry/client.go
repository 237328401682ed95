// Package foundry is an HTTP client for the Azure AI Foundry agent
// data plane: agents, threads, runs, MCP tool approvals, and the run
// event stream. There is no published Go SDK for this surface, so the
// client speaks the REST protocol directly, authenticating with an
// azcore token credential.
package foundry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
)

const (
	apiVersion = "2025-05-01"

	// tokenScope is the Entra scope for the Foundry data plane.
	tokenScope = "https://ai.azure.com/.default"
)

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("foundry: %s (%s, http %d)", e.Message, e.Code, e.StatusCode)
	}
	return fmt.Sprintf("foundry: %s (http %d)", e.Message, e.StatusCode)
}

// Client issues requests against one Foundry project endpoint.
type Client struct {
	endpoint   string
	credential azcore.TokenCredential
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientOptions tunes the client. The zero value is usable.
type ClientOptions struct {
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// NewClient creates a client for the given project endpoint, e.g.
// https://myres.services.ai.azure.com/api/projects/myproject.
func NewClient(endpoint string, credential azcore.TokenCredential, opts *ClientOptions) (*Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("foundry: endpoint is required")
	}
	if credential == nil {
		return nil, fmt.Errorf("foundry: credential is required")
	}
	if opts == nil {
		opts = &ClientOptions{}
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		credential: credential,
		httpClient: httpClient,
		logger:     logger.With("component", "foundry"),
	}, nil
}

// do sends one request. Callers own the returned body.
func (c *Client) do(ctx context.Context, method, path string, body any, stream bool) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	u := c.endpoint + path
	if strings.Contains(path, "?") {
		u += "&api-version=" + url.QueryEscape(apiVersion)
	} else {
		u += "?api-version=" + url.QueryEscape(apiVersion)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	token, err := c.credential.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{tokenScope}})
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, parseAPIError(resp)
	}
	return resp, nil
}

// doJSON sends a request and decodes the JSON response into out, which
// may be nil when the body is irrelevant.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.do(ctx, method, path, body, false)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func parseAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	var wrapped struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(data, &wrapped)

	msg := wrapped.Error.Message
	if msg == "" {
		msg = strings.TrimSpace(string(data))
	}
	if msg == "" {
		msg = resp.Status
	}
	return &APIError{StatusCode: resp.StatusCode, Code: wrapped.Error.Code, Message: msg}
}
