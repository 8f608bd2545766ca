// ABOUTME: HTTP client for the remote conversation archive service.
// ABOUTME: Posts conversation content and returns the URL the archive assigned to it.

package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ErrNotConfigured is returned when no archive base URL has been configured.
var ErrNotConfigured = errors.New("archive base URL is not configured (set archive.base_url or STASH_ARCHIVE_URL)")

// ErrRejected is returned when the archive answers but does not report success.
var ErrRejected = errors.New("archive rejected the conversation")

// conversationsPath is appended to the base URL for uploads.
const conversationsPath = "/api/conversations"

// maxResponseSize bounds how much of the archive response is read.
const maxResponseSize = 1 << 20

// Archiver stores conversation content remotely and returns a retrieval URL.
type Archiver interface {
	Archive(ctx context.Context, content, model string) (string, error)
}

// OAuthConfig enables client-credentials auth against the archive service.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

// Config holds configuration for the archive client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	OAuth      *OAuthConfig
	HTTPClient *http.Client // overrides Timeout and OAuth when set
	Logger     *slog.Logger
}

// Client talks to the archive service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

type archiveRequest struct {
	Content string `json:"content"`
	Model   string `json:"model"`
}

type archiveResponse struct {
	URL   string `json:"url"`
	Error string `json:"error,omitempty"`
}

// NewClient creates an archive client. An empty BaseURL is accepted; Archive
// reports ErrNotConfigured when called.
func NewClient(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = newHTTPClient(cfg)
	}

	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// newHTTPClient builds a plain client, or one that fetches client-credentials
// tokens when OAuth is configured. Token requests get the same timeout as
// archive requests.
func newHTTPClient(cfg Config) *http.Client {
	if cfg.OAuth == nil {
		return &http.Client{Timeout: cfg.Timeout}
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.OAuth.ClientSecret,
		TokenURL:     cfg.OAuth.TokenURL,
		Scopes:       cfg.OAuth.Scopes,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: cfg.Timeout})
	client := cc.Client(tokenCtx)
	client.Timeout = cfg.Timeout
	return client
}

// Configured reports whether a base URL is set.
func (c *Client) Configured() bool {
	return c.baseURL != ""
}

// Archive uploads content and returns the archive URL.
func (c *Client) Archive(ctx context.Context, content, model string) (string, error) {
	if c.baseURL == "" {
		return "", ErrNotConfigured
	}

	endpoint, err := url.JoinPath(c.baseURL, conversationsPath)
	if err != nil {
		return "", fmt.Errorf("building archive URL: %w", err)
	}

	body, err := json.Marshal(archiveRequest{Content: content, Model: model})
	if err != nil {
		return "", fmt.Errorf("encoding archive request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating archive request: %w", err)
	}
	requestID := uuid.New().String()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", requestID)

	c.logger.Debug("archiving conversation",
		"request_id", requestID,
		"model", model,
		"bytes", len(content),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling archive: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("reading archive response: %w", err)
	}

	var parsed archiveResponse
	decodeErr := json.Unmarshal(raw, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reason := strings.TrimSpace(string(raw))
		if decodeErr == nil && parsed.Error != "" {
			reason = parsed.Error
		}
		if reason == "" {
			reason = http.StatusText(resp.StatusCode)
		}
		return "", fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, reason)
	}

	if decodeErr != nil {
		return "", fmt.Errorf("decoding archive response: %w", decodeErr)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrRejected, parsed.Error)
	}
	if parsed.URL == "" {
		return "", fmt.Errorf("%w: response did not include a url", ErrRejected)
	}

	c.logger.Info("conversation archived",
		"request_id", requestID,
		"model", model,
		"url", parsed.URL,
	)

	return parsed.URL, nil
}
