// Copyright 2026 The WebWX Authors
// SPDX-License-Identifier: Apache-2.0

package wechat

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

	"github.com/webwx-foundation/webwx/lib/clock"
	"github.com/webwx-foundation/webwx/lib/netutil"
)

// Default gateway endpoints. The gateway is sharded; wx2 is the shard
// web clients are assigned to on login.
const (
	DefaultAPIURL   = "https://wx2.qq.com"
	DefaultLoginURL = "https://login.wx2.qq.com"
	DefaultPushURL  = "https://webpush.wx2.qq.com"
	DefaultFileURL  = "https://file.wx2.qq.com"
)

// DefaultUserAgent is sent when ClientConfig.UserAgent is empty. The
// gateway rejects clients that do not present a desktop browser agent.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// APIURL is the main gateway base URL. Empty uses DefaultAPIURL.
	APIURL string
	// LoginURL is the login handshake base URL. Empty uses DefaultLoginURL.
	LoginURL string
	// PushURL is the long-poll (synccheck) base URL. Empty uses DefaultPushURL.
	PushURL string
	// FileURL is the media upload/download base URL. Empty uses DefaultFileURL.
	FileURL string
	// UserAgent is sent on every request. Empty uses DefaultUserAgent.
	UserAgent string
	// HTTPClient is used for all requests. If nil, http.DefaultClient
	// is used. The client must follow redirects normally; the one
	// call that must not (the login redirect) disables them itself.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
	// Clock supplies the timestamps used for client message ids.
	// If nil, the real clock is used.
	Clock clock.Clock
}

// Client is an unauthenticated gateway client. It holds the gateway
// base URLs and HTTP transport, shared by every Session derived from
// it via Login.
type Client struct {
	apiURL     string
	loginURL   string
	pushURL    string
	fileURL    string
	userAgent  string
	httpClient *http.Client
	logger     *slog.Logger
	clock      clock.Clock
}

// NewClient creates a new unauthenticated gateway client.
func NewClient(config ClientConfig) (*Client, error) {
	bases := []*string{&config.APIURL, &config.LoginURL, &config.PushURL, &config.FileURL}
	defaults := []string{DefaultAPIURL, DefaultLoginURL, DefaultPushURL, DefaultFileURL}
	for index, base := range bases {
		if *base == "" {
			*base = defaults[index]
		}
		if _, err := url.Parse(*base); err != nil {
			return nil, fmt.Errorf("wechat: invalid base URL %q: %w", *base, err)
		}
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeSource := config.Clock
	if timeSource == nil {
		timeSource = clock.Real()
	}
	userAgent := config.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	return &Client{
		apiURL:     strings.TrimRight(config.APIURL, "/"),
		loginURL:   strings.TrimRight(config.LoginURL, "/"),
		pushURL:    strings.TrimRight(config.PushURL, "/"),
		fileURL:    strings.TrimRight(config.FileURL, "/"),
		userAgent:  userAgent,
		httpClient: httpClient,
		logger:     logger,
		clock:      timeSource,
	}, nil
}

// CloseIdleConnections closes idle HTTP connections in the underlying
// transport's connection pool. The sync engine calls this after a
// dropped long-poll so the retry opens a fresh TCP connection instead
// of reusing a poisoned pooled one.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// newRequest builds a request with the client's User-Agent header set.
func (c *Client) newRequest(ctx context.Context, method, requestURL string, body io.Reader) (*http.Request, error) {
	request, err := http.NewRequestWithContext(ctx, method, requestURL, body)
	if err != nil {
		return nil, fmt.Errorf("wechat: failed to create request: %w", err)
	}
	request.Header.Set("User-Agent", c.userAgent)
	return request, nil
}

// get performs a GET and returns the raw response body. Used for the
// handshake endpoints (JS-literal bodies) and as the base for getJSON.
func (c *Client) get(ctx context.Context, requestURL string) ([]byte, error) {
	request, err := c.newRequest(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, err
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("wechat: request to %s failed: %w", requestURL, err)
	}
	defer response.Body.Close()

	body, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return nil, fmt.Errorf("wechat: failed to read response body: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, fmt.Errorf("wechat: unexpected %d response from %s: %s",
			response.StatusCode, requestURL, netutil.Truncate(body))
	}
	return body, nil
}

// getJSON performs a GET against a JSON endpoint, decodes the body
// into out, and converts an embedded nonzero BaseResponse.Ret into a
// *GatewayError.
func (c *Client) getJSON(ctx context.Context, requestURL string, out any) error {
	body, err := c.get(ctx, requestURL)
	if err != nil {
		return err
	}
	return decodeChecked(body, out)
}

// postJSON marshals payload, POSTs it, decodes the response into out
// (which may be nil), and converts an embedded nonzero
// BaseResponse.Ret into a *GatewayError.
//
// Marshaling disables HTML escaping: several payloads carry XML
// fragments in string fields and the gateway expects them literal.
func (c *Client) postJSON(ctx context.Context, requestURL string, payload, out any) error {
	var encoded bytes.Buffer
	encoder := json.NewEncoder(&encoded)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(payload); err != nil {
		return fmt.Errorf("wechat: failed to encode request body: %w", err)
	}

	request, err := c.newRequest(ctx, http.MethodPost, requestURL, &encoded)
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("wechat: request to %s failed: %w", requestURL, err)
	}
	defer response.Body.Close()

	body, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return fmt.Errorf("wechat: failed to read response body: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return fmt.Errorf("wechat: unexpected %d response from %s: %s",
			response.StatusCode, requestURL, netutil.Truncate(body))
	}
	return decodeChecked(body, out)
}

// download performs a GET and returns the response body as a stream
// for the caller to copy. extraHeader may be nil.
func (c *Client) download(ctx context.Context, requestURL string, extraHeader http.Header) (io.ReadCloser, error) {
	request, err := c.newRequest(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, err
	}
	for name, values := range extraHeader {
		for _, value := range values {
			request.Header.Add(name, value)
		}
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("wechat: request to %s failed: %w", requestURL, err)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		defer response.Body.Close()
		return nil, fmt.Errorf("wechat: unexpected %d response from %s: %s",
			response.StatusCode, requestURL, netutil.ErrorBody(response.Body))
	}
	return response.Body, nil
}

// noRedirectClient returns a copy of the underlying HTTP client that
// reports redirects to the caller instead of following them. The login
// redirect is one-time: following it twice voids the credentials.
func (c *Client) noRedirectClient() *http.Client {
	clientCopy := *c.httpClient
	clientCopy.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &clientCopy
}

// decodeChecked decodes a JSON gateway response into out and surfaces
// an embedded nonzero BaseResponse.Ret as a *GatewayError. The check
// runs against every JSON endpoint, since the gateway embeds the block
// in GET responses too. out may be nil when the caller only needs the
// status check.
func decodeChecked(body []byte, out any) error {
	var probe struct {
		BaseResponse *BaseResponse `json:"BaseResponse"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return fmt.Errorf("wechat: failed to parse gateway response: %w", err)
	}
	if probe.BaseResponse != nil && probe.BaseResponse.Ret != 0 {
		return &GatewayError{Ret: probe.BaseResponse.Ret, Message: probe.BaseResponse.ErrMsg}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("wechat: failed to parse gateway response: %w", err)
	}
	return nil
}
