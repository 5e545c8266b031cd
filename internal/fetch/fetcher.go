package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/net/proxy"

	"github.com/nao1215/cfstatic/internal/config"
)

var (
	// ErrEmptyBody is returned when a response has no body. An empty page
	// or asset is treated as a failed fetch.
	ErrEmptyBody = errors.New("empty response body")

	// ErrInvalidProxyAddress is returned when the proxy address is not host:port.
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")

	// ErrTooManyRedirects is returned when the redirect limit is exceeded.
	ErrTooManyRedirects = errors.New("too many redirects")
)

// Response is the result of one successful fetch.
type Response struct {
	// URL is the requested URL.
	URL string

	// FinalURL is the URL after redirects.
	FinalURL string

	// StatusCode is the HTTP status of the final response. A non-2xx
	// status is not an error: the origin's error pages are content too.
	StatusCode int

	// ContentType is the Content-Type header of the final response.
	ContentType string

	// Body is the response body, at most MaxBodySize bytes.
	Body []byte

	// Truncated reports whether Body was cut at MaxBodySize.
	Truncated bool
}

// Fetcher retrieves URLs from the origin, attaching the gateway session
// cookie when one is set.
type Fetcher struct {
	client       *http.Client
	session      *sessionTransport
	userAgent    string
	maxBodySize  int64
	timeout      time.Duration
	maxRedirects int
	proxyAddress string
	headers      map[string]string
	base         http.RoundTripper
	logger       *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.timeout = d
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithMaxBodySize sets the maximum number of body bytes read.
func WithMaxBodySize(size int64) Option {
	return func(f *Fetcher) {
		f.maxBodySize = size
	}
}

// WithMaxRedirects sets how many redirects are followed.
func WithMaxRedirects(n int) Option {
	return func(f *Fetcher) {
		f.maxRedirects = n
	}
}

// WithHeaders sets extra headers sent with every request.
func WithHeaders(headers map[string]string) Option {
	return func(f *Fetcher) {
		f.headers = headers
	}
}

// WithProxy routes all requests through a SOCKS5 proxy at host:port.
func WithProxy(address string) Option {
	return func(f *Fetcher) {
		f.proxyAddress = address
	}
}

// WithTransport replaces the base transport. Intended for tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(f *Fetcher) {
		f.base = rt
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// New creates a Fetcher. It fails only for an invalid proxy address.
func New(opts ...Option) (*Fetcher, error) {
	f := &Fetcher{
		userAgent:    config.DefaultUserAgent,
		maxBodySize:  config.DefaultMaxBodySize,
		timeout:      config.DefaultTimeout,
		maxRedirects: config.DefaultMaxRedirects,
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		opt(f)
	}

	base := f.base
	if base == nil {
		transport, err := newTransport(f.proxyAddress)
		if err != nil {
			return nil, err
		}
		base = transport
	}

	f.session = &sessionTransport{base: base, headers: f.headers}
	maxRedirects := f.maxRedirects
	f.client = &http.Client{
		Transport: f.session,
		Timeout:   f.timeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return ErrTooManyRedirects
			}
			return nil
		},
	}

	return f, nil
}

// newTransport builds the base transport, optionally dialing through a
// SOCKS5 proxy.
func newTransport(proxyAddress string) (*http.Transport, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone() //nolint:forcetypeassert // DefaultTransport is always *http.Transport
	transport.MaxIdleConnsPerHost = 4
	transport.IdleConnTimeout = 30 * time.Second

	if proxyAddress == "" {
		return transport, nil
	}
	if !isValidProxyAddress(proxyAddress) {
		return nil, ErrInvalidProxyAddress
	}

	dialer, err := proxy.SOCKS5("tcp", proxyAddress, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}
	transport.Proxy = nil
	transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		if cd, ok := dialer.(proxy.ContextDialer); ok {
			return cd.DialContext(ctx, network, addr)
		}
		return dialer.Dial(network, addr)
	}
	return transport, nil
}

// isValidProxyAddress checks for a "host:port" address with a port in 1-65535.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 1 && n <= 65535
}

// UseSession sets the Cookie value attached to every later request.
// An empty value stops attaching the cookie.
func (f *Fetcher) UseSession(cookie string) {
	f.session.cookie.Store(&cookie)
}

// Client returns the underlying HTTP client, sharing the transport and
// session of the Fetcher.
func (f *Fetcher) Client() *http.Client {
	return f.client
}

// Fetch retrieves rawURL. Transport failures and empty bodies are errors;
// HTTP error statuses are not.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	// Read one extra byte to detect truncation.
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}
	truncated := int64(len(body)) > f.maxBodySize
	if truncated {
		body = body[:f.maxBodySize]
		f.logger.Warn("response truncated", "url", rawURL, "limit", f.maxBodySize)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, ErrEmptyBody)
	}

	return &Response{
		URL:         rawURL,
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		Truncated:   truncated,
	}, nil
}

// sessionTransport wraps an http.RoundTripper to inject the session
// cookie and custom headers into every request, redirects included.
type sessionTransport struct {
	base    http.RoundTripper
	cookie  atomic.Pointer[string]
	headers map[string]string
}

// RoundTrip implements http.RoundTripper.
func (t *sessionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())

	if p := t.cookie.Load(); p != nil && *p != "" {
		if existing := clone.Header.Get("Cookie"); existing != "" {
			clone.Header.Set("Cookie", existing+"; "+*p)
		} else {
			clone.Header.Set("Cookie", *p)
		}
	}

	for key, value := range t.headers {
		clone.Header.Set(key, value)
	}

	return t.base.RoundTrip(clone)
}
