// Package rest is the HTTP transport used to talk to REST devices.
//
// Requests are plain HTTP/1.1 with JSON bodies. A Client keeps a fixed
// number of sockets; when all of them are busy a request fails right away
// with ErrNoSocket instead of queueing behind slow device calls.
package rest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/robertof/go-restclient-exporter/jsondict"
	"github.com/robertof/go-restclient-exporter/param"
)

const (
	DefaultPort           = 80
	DefaultSockets        = 5
	DefaultTimeout        = 20 * time.Second
	DefaultConnectTimeout = 1 * time.Second

	maxRetries  = 1
	contentType = "application/json; charset=utf-8"
)

var (
	ErrNoSocket    = errors.New("no available socket")
	ErrInvalidHost = errors.New("invalid hostname")
)

// StatusError is returned when the device answers with anything but 200.
type StatusError struct {
	Method string
	Param  string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: server returned error code %d", e.Method, e.Param, e.Code)
}

type Client struct {
	host    string
	port    int
	baseURL string

	httpClient     *http.Client
	sockets        *semaphore.Weighted
	numSockets     int
	timeout        time.Duration
	connectTimeout time.Duration
	accessModes    map[string]param.AccessMode
}

type Option func(*Client)

// WithSockets sets how many requests may be in flight at once.
func WithSockets(n int) Option {
	return func(c *Client) {
		c.numSockets = n
	}
}

// WithTimeout sets the timeout applied to requests whose context has no deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

func WithConnectTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.connectTimeout = d
	}
}

// WithHTTPClient replaces the HTTP client built by New.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.httpClient = h
	}
}

// WithAccessModes fixes the access mode of every parameter under the given
// subsystems, overriding what the device reports.
func WithAccessModes(modes map[string]param.AccessMode) Option {
	return func(c *Client) {
		for subsystem, mode := range modes {
			c.accessModes[subsystem] = mode
		}
	}
}

func New(host string, port int, opts ...Option) (*Client, error) {
	host = strings.TrimSpace(host)

	if host == "" || strings.ContainsAny(host, "/?# ") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidHost, host)
	}

	if port <= 0 {
		port = DefaultPort
	}

	if port > 65535 {
		return nil, fmt.Errorf("invalid port %d", port)
	}

	c := &Client{
		host:           host,
		port:           port,
		baseURL:        "http://" + net.JoinHostPort(host, strconv.Itoa(port)),
		numSockets:     DefaultSockets,
		timeout:        DefaultTimeout,
		connectTimeout: DefaultConnectTimeout,
		accessModes:    make(map[string]param.AccessMode),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.numSockets < 1 {
		c.numSockets = 1
	}

	c.sockets = semaphore.NewWeighted(int64(c.numSockets))

	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: c.connectTimeout,
				}).DialContext,
				MaxConnsPerHost:     c.numSockets,
				MaxIdleConnsPerHost: c.numSockets,
				IdleConnTimeout:     90 * time.Second,
				DisableCompression:  true,
			},
		}
	}

	return c, nil
}

func (c *Client) Host() string { return c.host }
func (c *Client) Port() int { return c.port }
func (c *Client) Sockets() int { return c.numSockets }

func (c *Client) String() string {
	return fmt.Sprintf("rest[%s:%d, sockets=%d]", c.host, c.port, c.numSockets)
}

// CloseIdle drops kept-alive connections to the device.
func (c *Client) CloseIdle() {
	c.httpClient.CloseIdleConnections()
}

// LookupAccessMode implements param.API.
func (c *Client) LookupAccessMode(subsystem string) (param.AccessMode, bool) {
	mode, ok := c.accessModes[subsystem]
	return mode, ok
}

// Get reads subsystem+name and returns the response body.
func (c *Client) Get(ctx context.Context, subsystem, name string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, subsystem+name, nil)
}

// Put writes {"value": rawValue} to subsystem+name. An empty rawValue sends
// an empty body, which devices use to trigger commands.
func (c *Client) Put(ctx context.Context, subsystem, name, rawValue string) ([]byte, error) {
	var body []byte
	if rawValue != "" {
		body = []byte(jsondict.Raw("value", rawValue).String())
	}

	return c.do(ctx, http.MethodPut, subsystem+name, body)
}

// PutKey writes {key: rawValue} to subsystem+name.
func (c *Client) PutKey(ctx context.Context, subsystem, name, key, rawValue string) ([]byte, error) {
	body := []byte(jsondict.Raw(key, rawValue).String())

	return c.do(ctx, http.MethodPut, subsystem+name, body)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	if !c.sockets.TryAcquire(1) {
		noSocketCounter.Inc()
		return nil, fmt.Errorf("%s %s: %w", method, path, ErrNoSocket)
	}
	defer c.sockets.Release(1)

	if _, ok := ctx.Deadline(); !ok && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	requestsCounter.WithLabelValues(method).Inc()

	var (
		resp []byte
		err  error
	)

	for attempt := 0; attempt <= maxRetries; attempt++ {
		resp, err = c.roundTrip(ctx, method, path, body)

		var statusErr *StatusError
		if err == nil || errors.As(err, &statusErr) || ctx.Err() != nil {
			break
		}

		log.Debug().
			Err(err).
			Str("Method", method).
			Str("Path", path).
			Int("Attempt", attempt+1).
			Msg("rest: request failed")
	}

	if err != nil {
		failuresCounter.WithLabelValues(method).Inc()
		return nil, err
	}

	return resp, nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%s %s: failed to build request: %w", method, path, err)
	}

	switch method {
	case http.MethodGet:
		req.Header.Set("Accept", contentType)
	case http.MethodPut:
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Accept-Encoding", "identity")
		req.ContentLength = int64(len(body))
	}

	log.Trace().
		Str("Method", method).
		Str("URL", req.URL.String()).
		Bytes("Body", body).
		Msg("rest: sending request")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: request failed: %w", method, path, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: failed to read response: %w", method, path, err)
	}

	if res.StatusCode != http.StatusOK {
		return nil, &StatusError{Method: method, Param: path, Code: res.StatusCode}
	}

	log.Trace().
		Str("Method", method).
		Str("URL", req.URL.String()).
		Bytes("Response", data).
		Msg("rest: received response")

	return data, nil
}
