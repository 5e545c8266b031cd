package rules

import (
	"net/url"
	"path"
	"strings"
)

// SitePath resolves a link or asset reference found on a page of origin
// to a site-relative path. Only root-relative references and absolute
// references on the same origin (scheme, host and port) resolve; the
// query and fragment are dropped and an empty path becomes "/".
// Dot segments are cleaned so a path never climbs above the root.
func SitePath(origin *url.URL, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}

	u, err := url.Parse(ref)
	if err != nil {
		return "", false
	}

	switch {
	case u.IsAbs() || strings.HasPrefix(ref, "//"):
		if u.Scheme == "" {
			u.Scheme = origin.Scheme
		}
		if !SameOrigin(origin, u) {
			return "", false
		}
	case strings.HasPrefix(ref, "/"):
		// root-relative
	default:
		return "", false
	}

	return cleanPath(u.Path), true
}

// AssetPath is SitePath for asset references, which may also be written
// without a leading slash ("wp-content/uploads/a.png"). Such a bare
// reference is taken from the site root. One that climbs with dot
// segments does not resolve.
func AssetPath(origin *url.URL, ref string) (string, bool) {
	if p, ok := SitePath(origin, ref); ok {
		return p, true
	}

	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "/") {
		return "", false
	}
	u, err := url.Parse(ref)
	if err != nil || u.Scheme != "" || u.Host != "" || u.Path == "" {
		return "", false
	}

	p := cleanPath(u.Path)
	if strings.TrimPrefix(p, "/") != u.Path {
		return "", false
	}
	return p, true
}

// SameOrigin reports whether a and b share scheme, host and port. Scheme
// and host compare case-insensitively and a missing port equals the
// scheme's default port.
func SameOrigin(a, b *url.URL) bool {
	if !strings.EqualFold(a.Scheme, b.Scheme) {
		return false
	}
	if !strings.EqualFold(a.Hostname(), b.Hostname()) {
		return false
	}
	return effectivePort(a) == effectivePort(b)
}

func effectivePort(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	return DefaultPort(u.Scheme)
}

// DefaultPort returns the port implied by an http or https scheme, or ""
// for any other scheme.
func DefaultPort(scheme string) string {
	switch strings.ToLower(scheme) {
	case "https":
		return "443"
	case "http":
		return "80"
	}
	return ""
}

// cleanPath normalizes p to a rooted path, keeping a trailing slash.
func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	cleaned := path.Clean("/" + p)
	if strings.HasSuffix(p, "/") && cleaned != "/" {
		cleaned += "/"
	}
	return cleaned
}

// OutputFile maps a site-relative page path to its Output Tree file:
// "/" and "dir/" map to index.html within the directory, any other path
// maps to itself. The result has no leading slash.
func OutputFile(sitePath string) string {
	rel := strings.TrimPrefix(sitePath, "/")
	if rel == "" || strings.HasSuffix(rel, "/") {
		return rel + "index.html"
	}
	return rel
}
