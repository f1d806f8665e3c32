// Package api provides the HTTP client for the gptkit backend.
//
// The client is stateless with respect to authentication: callers pass the
// bearer token for every request. Token lifecycle lives in internal/auth.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gptkit/gptkit-cli/internal/version"
)

// DefaultTimeout is applied when no http.Client is supplied.
const DefaultTimeout = 30 * time.Second

// NoContent is the marker type for endpoints that answer with an empty body.
// Decoding into any other type treats an empty 2xx body as a failure.
type NoContent struct{}

// Request describes one call. It is a plain value with no identity, so the
// same Request can be replayed after a token refresh.
type Request struct {
	Path   string
	Method string
	Body   []byte
}

// NewRequest builds a Request, JSON-encoding body when it is not nil.
// A []byte or json.RawMessage body is sent as-is.
func NewRequest(method, path string, body any) (Request, error) {
	req := Request{Path: path, Method: method}
	switch b := body.(type) {
	case nil:
	case []byte:
		req.Body = b
	case json.RawMessage:
		req.Body = b
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return Request{}, fmt.Errorf("failed to marshal body: %w", err)
		}
		req.Body = data
	}
	return req, nil
}

// Response is a successful (2xx) raw response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client executes requests against a single base URL.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	hooks      Hooks
	logger     zerolog.Logger
	userAgent  string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithHooks installs request observability hooks.
func WithHooks(h Hooks) Option {
	return func(c *Client) {
		if h != nil {
			c.hooks = h
		}
	}
}

// WithLogger sets the debug logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// NewClient creates a client for baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: missing host", baseURL)
	}

	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		hooks:      NoopHooks{},
		logger:     zerolog.Nop(),
		userAgent:  version.UserAgent(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Do executes req and decodes a successful body into T.
//
// An empty 2xx body is accepted only when T is NoContent. Any other decoding
// problem is reported as KindDecoding, never defaulted.
func Do[T any](ctx context.Context, c *Client, req Request, bearer string) (T, error) {
	var zero T
	resp, err := c.Send(ctx, req, bearer)
	if err != nil {
		return zero, err
	}
	return decode[T](resp.Body)
}

func decode[T any](body []byte) (T, error) {
	var v T
	if _, ok := any(&v).(*NoContent); ok {
		return v, nil
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return v, ErrDecoding(errors.New("empty response body"))
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return v, ErrDecoding(err)
	}
	return v, nil
}

// Send executes req and returns the raw 2xx response. Non-2xx statuses are
// returned as KindServer errors with a message taken from the body when one
// of the known error shapes matches.
func (c *Client) Send(ctx context.Context, req Request, bearer string) (*Response, error) {
	target, err := c.resolve(req.Path)
	if err != nil {
		return nil, err
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	requestID := uuid.NewString()
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("X-Request-ID", requestID)
	if bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+bearer)
	}

	info := RequestInfo{
		Method:        method,
		URL:           target,
		RequestID:     requestID,
		Authenticated: bearer != "",
	}
	ctx = c.hooks.OnRequestStart(ctx, info)
	c.logger.Debug().
		Str("method", method).
		Str("path", req.Path).
		Str("request_id", requestID).
		Bool("authenticated", bearer != "").
		Msg("request")

	start := time.Now()
	resp, err := c.roundTrip(httpReq)
	result := RequestResult{Duration: time.Since(start), Err: err}
	if resp != nil {
		result.StatusCode = resp.StatusCode
	}
	c.hooks.OnRequestEnd(ctx, info, result)

	if err != nil {
		c.logger.Debug().Err(err).Str("request_id", requestID).Msg("request failed")
		return nil, err
	}

	c.logger.Debug().
		Int("status", resp.StatusCode).
		Str("request_id", requestID).
		Dur("duration", result.Duration).
		Msg("response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, ok := ParseErrorMessage(resp.Body)
		if !ok {
			msg = DefaultServerMessage(resp.StatusCode)
		}
		return nil, ErrServer(resp.StatusCode, msg)
	}
	return resp, nil
}

// roundTrip performs the exchange and reads the whole body, classifying any
// failure below the HTTP status level.
func (c *Client) roundTrip(req *http.Request) (*Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isMalformedResponse(err) {
			return nil, ErrInvalidResponse(err)
		}
		return nil, ErrTransport(err)
	}
	if resp == nil {
		return nil, ErrInvalidResponse(errors.New("no response"))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 100 || resp.StatusCode > 599 {
		return nil, ErrInvalidResponse(fmt.Errorf("status code %d out of range", resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ErrTransport(fmt.Errorf("failed to read response: %w", err))
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

// isMalformedResponse detects net/http's protocol-level parse failures, which
// mean the peer answered with something that is not HTTP at all. net/http
// exposes no typed error for these, so this matches the badStringError texts
// from http.ReadResponse ("malformed HTTP response", "malformed HTTP status
// code", "malformed HTTP version") and the Client's "returned a nil *Response"
// error for a broken RoundTripper. TestReadResponseErrorsAreMalformed pins the
// wording against the net/http in use.
func isMalformedResponse(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "malformed HTTP") ||
		strings.Contains(msg, "nil *Response")
}

// resolve joins path onto the base URL. A query string in path is preserved.
func (c *Client) resolve(p string) (string, error) {
	rawQuery := ""
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p, rawQuery = p[:i], p[i+1:]
	}
	if strings.Contains(p, "://") {
		return "", fmt.Errorf("path %q must be relative to the base URL", p)
	}
	u := c.baseURL.JoinPath(p)
	u.RawQuery = rawQuery
	return u.String(), nil
}
