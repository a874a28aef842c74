// Package client provides the HTTP client used by simulated users.
// Every request is timed, classified and recorded exactly once, except
// requests cut short by the end of the run.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/example/odoo/loadtest/internal/metrics"
)

// DefaultUserAgent is sent when Options.UserAgent is empty.
const DefaultUserAgent = "odooload/1.0"

// Options configures a Client.
type Options struct {
	// Timeout bounds a single request including redirects. Default: 30s
	Timeout time.Duration

	TLSSkipVerify bool

	// Recorder receives one metrics.Result per request. Default: metrics.Discard
	Recorder metrics.Sink

	// Transport overrides the HTTP transport.
	Transport http.RoundTripper

	UserAgent string
}

// Client is an HTTP client with its own cookie jar, so each simulated user
// carries an independent server session. It never retries.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	headers    map[string]string
	recorder   metrics.Sink
	now        func() time.Time
}

// New creates a client for the target host.
func New(baseURL string, opts Options) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL: %q", baseURL)
	}

	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.Discard
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}

	transport := opts.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: opts.TLSSkipVerify, //nolint:gosec // opt-in for self-signed test targets
			},
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		}
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
			Jar:       jar,
		},
		baseURL:  u,
		headers:  map[string]string{"User-Agent": opts.UserAgent},
		recorder: opts.Recorder,
		now:      time.Now,
	}, nil
}

// Check classifies a completed response. A non-nil error marks the request failed.
type Check func(resp *Response) error

// Request represents an HTTP request to be executed.
type Request struct {
	// Name is the reporting name. Defaults to Path.
	Name   string
	Method string
	Path   string
	Query  url.Values
	// Form is sent form-encoded. Ignored when JSON is set.
	Form    url.Values
	JSON    any
	Headers map[string]string
	// Check classifies the response. Default: ExpectStatus(200).
	Check Check
}

// Response represents an HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// URL is the final URL after redirects.
	URL      *url.URL
	Duration time.Duration
}

// ContentType returns the media type of the response without parameters.
func (r *Response) ContentType() string {
	ct := r.Header.Get("Content-Type")
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.TrimSpace(strings.ToLower(ct))
}

// Do executes the request, records the outcome and returns the response.
// The error is non-nil when the transport failed or the check rejected the
// response; the response is still returned in the latter case.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	if req.Name == "" {
		req.Name = req.Path
	}
	if req.Check == nil {
		req.Check = ExpectStatus(http.StatusOK)
	}

	start := c.now()
	resp, err := c.roundTrip(ctx, req)
	latency := c.now().Sub(start)

	if err == nil {
		resp.Duration = latency
		err = req.Check(resp)
	} else if ctx.Err() != nil {
		return nil, err
	}

	result := metrics.Result{
		Name:      req.Name,
		Method:    req.Method,
		Latency:   latency,
		Success:   err == nil,
		Timestamp: start,
	}
	if resp != nil {
		result.StatusCode = resp.StatusCode
		result.ResponseSize = int64(len(resp.Body))
	}
	if err != nil {
		result.Error = err.Error()
	}
	c.recorder.Record(result)

	return resp, err
}

func (c *Client) roundTrip(ctx context.Context, req Request) (*Response, error) {
	u, err := c.buildURL(req.Path, req.Query)
	if err != nil {
		return nil, fmt.Errorf("building URL: %w", err)
	}

	var body io.Reader
	contentType := ""
	switch {
	case req.JSON != nil:
		b, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	case req.Form != nil:
		body = strings.NewReader(req.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
		URL:        httpResp.Request.URL,
	}, nil
}

// buildURL resolves path against the base URL. Fragments are kept on the
// URL but never reach the server.
func (c *Client) buildURL(path string, query url.Values) (*url.URL, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	u, err := c.baseURL.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}

	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u, nil
}

// Get performs a GET request recorded under name.
func (c *Client) Get(ctx context.Context, name, path string) (*Response, error) {
	return c.Do(ctx, Request{Name: name, Method: http.MethodGet, Path: path})
}

// PostForm performs a form-encoded POST recorded under name.
func (c *Client) PostForm(ctx context.Context, name, path string, form url.Values) (*Response, error) {
	return c.Do(ctx, Request{Name: name, Method: http.MethodPost, Path: path, Form: form})
}

// BaseURL returns the client's base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// ResetSession drops all cookies, starting a fresh server session.
func (c *Client) ResetSession() error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("creating cookie jar: %w", err)
	}
	c.httpClient.Jar = jar
	return nil
}

