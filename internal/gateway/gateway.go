package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/nao1215/cfstatic/internal/config"
)

// Header and cookie names of the Access gateway protocol.
const (
	HeaderClientID     = "CF-Access-Client-Id"
	HeaderClientSecret = "CF-Access-Client-Secret"
	CookieName         = "CF_Authorization"
)

var (
	// ErrTokenNotFound is returned when the gateway response carries no
	// CF_Authorization value, whatever its HTTP status.
	ErrTokenNotFound = errors.New("gateway response carried no " + CookieName + " token")

	// ErrIncompleteCredentials is returned when Authenticate is called
	// without both credential values.
	ErrIncompleteCredentials = errors.New("both client id and client secret are required to authenticate")
)

// tokenPattern finds the session value in a raw header line. The value
// ends at the first attribute separator or whitespace.
var tokenPattern = regexp.MustCompile(CookieName + `=([^;\s]+)`)

// Token is the opaque session value issued by the gateway.
// The zero value means no gateway session.
type Token string

// Cookie returns the Cookie header value carrying the token, or an empty
// string for the zero Token.
func (t Token) Cookie() string {
	if t == "" {
		return ""
	}
	return CookieName + "=" + string(t)
}

// Authenticator exchanges service credentials for a session token.
type Authenticator struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithHTTPClient sets the client used for the handshake. Its transport
// and timeout are kept; redirects are never followed because the token
// is issued on the redirect response itself.
func WithHTTPClient(client *http.Client) Option {
	return func(a *Authenticator) {
		a.client = client
	}
}

// WithUserAgent sets the User-Agent header of the handshake.
func WithUserAgent(ua string) Option {
	return func(a *Authenticator) {
		a.userAgent = ua
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Authenticator) {
		a.logger = logger
	}
}

// New creates an Authenticator.
func New(opts ...Option) *Authenticator {
	a := &Authenticator{
		client:    &http.Client{Timeout: config.DefaultTimeout},
		userAgent: config.DefaultUserAgent,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(a)
	}

	// Copy so the caller's client keeps following redirects.
	noRedirect := *a.client
	noRedirect.Jar = nil
	noRedirect.CheckRedirect = func(_ *http.Request, _ []*http.Request) error {
		return http.ErrUseLastResponse
	}
	a.client = &noRedirect

	return a
}

// Authenticate sends a HEAD request to siteURL carrying the credentials
// and returns the session token found in the response headers.
// A response without a token is ErrTokenNotFound even on a 2xx status.
func (a *Authenticator) Authenticate(ctx context.Context, siteURL string, creds config.Credentials) (Token, error) {
	if !creds.Complete() {
		return "", ErrIncompleteCredentials
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, siteURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create gateway request: %w", err)
	}
	req.Header.Set(HeaderClientID, creds.ClientID)
	req.Header.Set(HeaderClientSecret, creds.ClientSecret)
	req.Header.Set("User-Agent", a.userAgent)

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse

	token, ok := ExtractToken(resp.Header)
	if !ok {
		a.logger.Warn("gateway did not issue a session",
			"url", siteURL,
			"status", resp.StatusCode,
		)
		return "", fmt.Errorf("%w (status %d)", ErrTokenNotFound, resp.StatusCode)
	}

	a.logger.Info("gateway session established",
		"url", siteURL,
		"status", resp.StatusCode,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return token, nil
}

// ExtractToken scans every header line for a CF_Authorization value.
// Set-Cookie is the usual carrier, but the value may also appear in a
// Location or custom header depending on the gateway configuration.
func ExtractToken(header http.Header) (Token, bool) {
	// Set-Cookie first so the answer does not depend on map order when
	// several headers carry a value.
	for _, v := range header.Values("Set-Cookie") {
		if m := tokenPattern.FindStringSubmatch(v); m != nil {
			return Token(m[1]), true
		}
	}
	for name, values := range header {
		if http.CanonicalHeaderKey(name) == "Set-Cookie" {
			continue
		}
		for _, v := range values {
			if m := tokenPattern.FindStringSubmatch(v); m != nil {
				return Token(m[1]), true
			}
		}
	}
	return "", false
}
