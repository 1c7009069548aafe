// Package chat implements the HTTP transports that open a chat stream.
//
// Two transports share one request shape: eventsource issues a GET with the
// message in the query string, post sends it as a JSON body. Both return the raw
// response body for the caller to frame.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/streamchat/internal/core/domain"
	"github.com/tjfontaine/streamchat/internal/core/ports"
)

const (
	DefaultPath      = "/agent/chat"
	DefaultUserAgent = "streamchat/1.0"

	// maxErrorBody bounds how much of a failed response is read for its message.
	maxErrorBody = 4 << 10
)

// Kind selects a transport.
type Kind string

const (
	KindEventSource Kind = "eventsource"
	KindPost        Kind = "post"
)

// ClientOption configures a transport.
type ClientOption func(*Client)

// WithBaseURL sets the backend origin, e.g. http://localhost:8000.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithPath sets the chat endpoint path.
func WithPath(path string) ClientOption {
	return func(c *Client) {
		if path != "" {
			c.path = "/" + strings.TrimPrefix(path, "/")
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// Client is an HTTP transport for the chat endpoint.
type Client struct {
	kind       Kind
	baseURL    string
	path       string
	userAgent  string
	httpClient *http.Client
}

var _ ports.Transport = (*Client)(nil)

// NewClient creates a transport of the given kind.
func NewClient(kind Kind, opts ...ClientOption) (*Client, error) {
	switch kind {
	case KindEventSource, KindPost:
	case "":
		kind = KindPost
	default:
		return nil, fmt.Errorf("unknown transport kind: %s", kind)
	}

	c := &Client{
		kind:      kind,
		path:      DefaultPath,
		userAgent: DefaultUserAgent,
		httpClient: &http.Client{
			// No overall timeout: streams are bounded by the client's idle timer.
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.baseURL == "" {
		return nil, errors.New("base URL is required")
	}
	return c, nil
}

// NewEventSource creates a GET transport.
func NewEventSource(opts ...ClientOption) (*Client, error) {
	return NewClient(KindEventSource, opts...)
}

// NewPost creates a POST transport.
func NewPost(opts ...ClientOption) (*Client, error) {
	return NewClient(KindPost, opts...)
}

// Name returns the transport kind.
func (c *Client) Name() string {
	return string(c.kind)
}

// Endpoint returns the URL exchanges are sent to.
func (c *Client) Endpoint() string {
	return c.baseURL + c.path
}

// Open starts an exchange and returns the response body.
func (c *Client) Open(ctx context.Context, req *ports.ExchangeRequest) (io.ReadCloser, error) {
	var (
		httpReq *http.Request
		err     error
	)
	switch c.kind {
	case KindEventSource:
		httpReq, err = c.newEventSourceRequest(ctx, req)
	default:
		httpReq, err = c.newPostRequest(ctx, req)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.setHeaders(httpReq, req)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, domain.ErrTransportFailure("request failed", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}

	if c.kind == KindEventSource {
		if err := checkEventStream(resp); err != nil {
			resp.Body.Close()
			return nil, err
		}
	}

	return resp.Body, nil
}

func (c *Client) setHeaders(httpReq *http.Request, req *ports.ExchangeRequest) {
	for name, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(name, v)
		}
	}

	httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")
	httpReq.Header.Set("User-Agent", c.userAgent)
	if req.RequestID != "" {
		httpReq.Header.Set("X-Request-ID", req.RequestID)
	}
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	msg, err := ParseErrorResponse(body)
	if err != nil || msg == "" {
		msg = strings.TrimSpace(string(body))
		if len(msg) > 256 {
			msg = msg[:256] + "..."
		}
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return domain.ErrHTTPStatus(resp.StatusCode, fmt.Sprintf("server returned %d: %s", resp.StatusCode, msg))
}
