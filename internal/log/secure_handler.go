package log

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"strings"
)

// MaskValue replaces every redacted attribute value.
const MaskValue = "***REDACTED***"

// redactedKeys are attribute keys whose value never reaches a log line,
// compared lowercase. They cover the Access service-token headers, the
// session cookie, the Pages deploy settings and the usual HTTP auth
// headers the fetcher may echo back.
var redactedKeys = map[string]struct{}{
	"cf-access-client-secret": {},
	"cf_authorization":        {},
	"client_secret":           {},
	"clientsecret":            {},
	"api_token":               {},
	"cloudflare_api_token":    {},
	"access_token":            {},
	"refresh_token":           {},

	"authorization":       {},
	"proxy-authorization": {},
	"cookie":              {},
	"set-cookie":          {},
	"x-api-key":           {},
	"x-auth-token":        {},

	"password":    {},
	"passwd":      {},
	"private_key": {},
	"privatekey":  {},
	"secret_key":  {},
	"secretkey":   {},
	"session":     {},
	"session_id":  {},
	"sid":         {},
}

// redactedFragments mark a key as sensitive when they appear anywhere in
// it, e.g. "pages_api_token" or "session_cookie". A bare "key" is left
// out so "cache_key" and "primary_key" stay readable.
var redactedFragments = []string{
	"secret", "token", "cookie", "passw", "auth", "credential", "private",
}

// redactedValues catch secrets logged under an innocent key, such as a
// raw header dump carrying the session cookie.
var redactedValues = []*regexp.Regexp{
	regexp.MustCompile(`CF_Authorization=[^;\s]+`),
	regexp.MustCompile(`^eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*$`),
	regexp.MustCompile(`(?i)^(bearer|basic)\s+\S+`),
	regexp.MustCompile(`(?i)-----BEGIN.*(PRIVATE|SECRET).*KEY-----`),
	regexp.MustCompile(`^[A-Za-z0-9]{32,}$`),
}

// SecureHandler redacts credentials from records before handing them to
// the wrapped handler. Bound attributes and groups are redacted too.
type SecureHandler struct {
	next slog.Handler
}

// NewSecureHandler wraps next, or the default handler when next is nil.
func NewSecureHandler(next slog.Handler) *SecureHandler {
	if next == nil {
		next = slog.Default().Handler()
	}
	return &SecureHandler{next: next}
}

func (h *SecureHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *SecureHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(redact(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *SecureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &SecureHandler{next: h.next.WithAttrs(redactAll(attrs))}
}

func (h *SecureHandler) WithGroup(name string) slog.Handler {
	return &SecureHandler{next: h.next.WithGroup(name)}
}

func redactAll(attrs []slog.Attr) []slog.Attr {
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = redact(a)
	}
	return out
}

// redact masks a by key first, then by value. Groups are walked.
func redact(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(redactAll(a.Value.Group())...)}
	}

	key := strings.ToLower(a.Key)
	if _, ok := redactedKeys[key]; ok || containsSensitiveKeyword(key) {
		return slog.String(a.Key, MaskValue)
	}
	if a.Value.Kind() == slog.KindString && isSensitiveValue(a.Value.String()) {
		return slog.String(a.Key, MaskValue)
	}
	return a
}

func containsSensitiveKeyword(key string) bool {
	for _, fragment := range redactedFragments {
		if strings.Contains(key, fragment) {
			return true
		}
	}
	return false
}

func isSensitiveValue(value string) bool {
	for _, re := range redactedValues {
		if re.MatchString(value) {
			return true
		}
	}
	return false
}

// levelFor maps the --verbose flag to a minimum level: Debug when set,
// Warn otherwise.
func levelFor(verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelWarn
}

// NewSecureLogger returns a redacting text logger writing to w.
func NewSecureLogger(w io.Writer, verbose bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: levelFor(verbose)}
	return slog.New(NewSecureHandler(slog.NewTextHandler(w, opts)))
}

// NewRunLogger creates the logger of one generation run. Records are
// redacted once, then written to w at the verbosity level and to journal
// at Info and above, so the run log can be rendered after the run.
// A nil journal gives a plain redacting logger.
func NewRunLogger(w io.Writer, verbose, jsonFormat bool, journal *Journal) *slog.Logger {
	opts := &slog.HandlerOptions{Level: levelFor(verbose)}

	var out slog.Handler = slog.NewTextHandler(w, opts)
	if jsonFormat {
		out = slog.NewJSONHandler(w, opts)
	}
	if journal == nil {
		return slog.New(NewSecureHandler(out))
	}
	return slog.New(NewSecureHandler(NewTeeHandler(out, journal.Handler())))
}
