package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"easel/internal/logging"
	"easel/internal/signalbus"
)

const userAgent = "easel/0.1.0"

// Credentials supplies the bearer token for outbound requests and allows the
// 401 handler to tear the session down. Implemented by the session store.
type Credentials interface {
	Token() string
	Invalidate()
}

// Client is the single chokepoint for outbound requests. It attaches the
// bearer credential, classifies response failures, and raises cross-cutting
// signals on the bus without knowing who listens.
type Client struct {
	base   *url.URL
	http   *http.Client
	creds  Credentials
	bus    *signalbus.Bus
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithTimeout sets the per-request timeout on the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.http.Timeout = timeout
		}
	}
}

// New creates a transport client for the service at baseURL.
func New(baseURL string, creds Credentials, bus *signalbus.Bus, logger *slog.Logger, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("transport: base url required")
	}
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	client := &Client{
		base:   base,
		http:   &http.Client{Timeout: 30 * time.Second},
		creds:  creds,
		bus:    bus,
		logger: logging.NewComponentLogger(logger, "transport"),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type requestOptions struct {
	skipUnauthorized bool
}

// RequestOption adjusts failure classification for a single request.
type RequestOption func(*requestOptions)

// SkipUnauthorizedHandling disables the global 401 reaction for this request.
// Login and register use it: a 401 there is a local credential failure, not
// the loss of an established session, and must not clear an unrelated token
// or spam the unauthorized channel.
func SkipUnauthorizedHandling() RequestOption {
	return func(o *requestOptions) { o.skipUnauthorized = true }
}

// NewRequest builds a request against the service base URL.
func (c *Client) NewRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	endpoint := *c.base
	endpoint.Path = strings.TrimRight(endpoint.Path, "/") + "/" + strings.TrimLeft(path, "/")
	if query != nil {
		endpoint.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return req, nil
}

// Do executes req through the interception point. On a non-2xx response the
// body is consumed and a *StatusError is returned; classification signals are
// published but the error always flows back to the caller as well.
func (c *Client) Do(req *http.Request, opts ...RequestOption) (*http.Response, error) {
	options := requestOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.creds != nil {
		if token := c.creds.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	requestStart := time.Now()
	resp, err := c.http.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		// A cancelled request is the caller's doing, not a connectivity problem.
		if !errors.Is(err, context.Canceled) {
			c.publishAPIError("Connection Failed", "Could not reach the image service. Check your network and the server URL.")
		}
		return nil, fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	statusErr := newStatusError(resp)
	resp.Body.Close()
	c.classify(statusErr, options)
	c.logger.Debug("request failed",
		logging.Args(
			logging.String("method", req.Method),
			logging.String("path", req.URL.Path),
			logging.Int("status", statusErr.StatusCode),
			logging.Duration("latency", latency),
		)...)
	return nil, statusErr
}

// classify publishes cross-cutting signals by status. It never swallows the
// error; the caller still receives it for local handling.
func (c *Client) classify(statusErr *StatusError, options requestOptions) {
	switch {
	case statusErr.StatusCode == http.StatusUnauthorized:
		if options.skipUnauthorized {
			return
		}
		if c.creds != nil {
			c.creds.Invalidate()
		}
		c.publish(signalbus.ChannelUnauthorized, nil)
	case statusErr.StatusCode == http.StatusForbidden:
		c.publishAPIError("Permission Denied", statusErr.DetailOr("You do not have permission to perform this action."))
	case statusErr.StatusCode == http.StatusTooManyRequests:
		c.publishAPIError("Rate Limited", statusErr.DetailOr("Too many requests. Slow down and try again shortly."))
	case statusErr.StatusCode >= 500:
		c.publishAPIError("Server Error", statusErr.DetailOr("The image service hit an internal error. Try again later."))
	}
}

func (c *Client) publishAPIError(title, message string) {
	c.publish(signalbus.ChannelAPIError, &signalbus.APIError{Title: title, Message: message})
}

func (c *Client) publish(channel signalbus.Channel, payload any) {
	if c.bus != nil {
		c.bus.Publish(channel, payload)
	}
}

// GetJSON issues a GET and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any, opts ...RequestOption) error {
	req, err := c.NewRequest(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	return c.doJSON(req, out, opts...)
}

// PostJSON issues a POST with a JSON body and decodes the JSON response.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any, opts ...RequestOption) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}
	req, err := c.NewRequest(ctx, http.MethodPost, path, nil, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doJSON(req, out, opts...)
}

// PostMultipart issues a POST with a multipart form body built by build.
func (c *Client) PostMultipart(ctx context.Context, path string, build func(*multipart.Writer) error, out any, opts ...RequestOption) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := build(writer); err != nil {
		return fmt.Errorf("build form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalize form: %w", err)
	}

	req, err := c.NewRequest(ctx, http.MethodPost, path, nil, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return c.doJSON(req, out, opts...)
}

// PutJSON issues a PUT with a JSON body and decodes the JSON response.
func (c *Client) PutJSON(ctx context.Context, path string, in, out any, opts ...RequestOption) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}
	req, err := c.NewRequest(ctx, http.MethodPut, path, nil, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doJSON(req, out, opts...)
}

// Delete issues a DELETE and decodes the JSON response into out.
func (c *Client) Delete(ctx context.Context, path string, out any, opts ...RequestOption) error {
	req, err := c.NewRequest(ctx, http.MethodDelete, path, nil, nil)
	if err != nil {
		return err
	}
	return c.doJSON(req, out, opts...)
}

// GetRaw issues a GET and returns the open response for streaming bodies.
// The caller owns closing the body.
func (c *Client) GetRaw(ctx context.Context, path string, query url.Values, opts ...RequestOption) (*http.Response, error) {
	req, err := c.NewRequest(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req, opts...)
}

func (c *Client) doJSON(req *http.Request, out any, opts ...RequestOption) error {
	resp, err := c.Do(req, opts...)
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
