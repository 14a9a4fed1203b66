package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/valyala/fasthttp"
)

// DefaultTimeout bounds a single request when the context carries no
// earlier deadline.
const DefaultTimeout = 15 * time.Second

// Client is the fasthttp-backed Transport. JSON in, JSON out.
type Client struct {
	base    string
	hc      *fasthttp.Client
	timeout time.Duration
	headers map[string]string
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithHeader adds a header to every request (auth token, API key).
func WithHeader(key, value string) Option {
	return func(c *Client) { c.headers[key] = value }
}

// NewClient creates a client for the given base URL, e.g.
// "https://api.example.com/api".
func NewClient(base string, opts ...Option) *Client {
	c := &Client{
		base:    strings.TrimRight(base, "/"),
		hc:      &fasthttp.Client{},
		timeout: DefaultTimeout,
		headers: make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get implements Transport.
func (c *Client) Get(ctx context.Context, path string, params Params) (json.RawMessage, error) {
	return c.do(ctx, fasthttp.MethodGet, path, params, nil)
}

// Post implements Transport.
func (c *Client) Post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.do(ctx, fasthttp.MethodPost, path, nil, body)
}

// Put implements Transport.
func (c *Client) Put(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.do(ctx, fasthttp.MethodPut, path, nil, body)
}

// Delete implements Transport.
func (c *Client) Delete(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.do(ctx, fasthttp.MethodDelete, path, nil, body)
}

func (c *Client) do(ctx context.Context, method, path string, params Params, body any) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	uri := c.base + path
	if len(params) > 0 {
		q := url.Values{}
		for k, v := range params {
			q.Set(k, v)
		}
		uri += "?" + q.Encode()
	}
	req.SetRequestURI(uri)
	req.Header.SetMethod(method)
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		req.Header.SetContentType("application/json")
		req.SetBody(b)
	}

	// fasthttp has no context plumbing; honor the context deadline by
	// shrinking the request timeout to whichever bound is tighter.
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	if err := c.hc.DoTimeout(req, resp, timeout); err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	status := resp.StatusCode()
	data := append([]byte(nil), resp.Body()...)
	if status < 200 || status > 299 {
		return nil, &APIError{Status: status, Message: serverMessage(data)}
	}
	return data, nil
}

// serverMessage pulls the error text out of a failure body. Servers in
// the wild use either "error" or "message".
func serverMessage(body []byte) string {
	if msg := gjson.GetBytes(body, "error"); msg.Type == gjson.String {
		return msg.String()
	}
	if msg := gjson.GetBytes(body, "message"); msg.Type == gjson.String {
		return msg.String()
	}
	return ""
}
