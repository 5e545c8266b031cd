package rules

import (
	"path"
	"slices"
	"strings"
)

// DefaultExclusions are the endpoints that are never crawled or mirrored:
// the gateway's own paths, comment and feed endpoints, the JSON and
// XML-RPC APIs, and the administrative area.
var DefaultExclusions = []string{
	"cdn-cgi",
	"comments",
	"feed",
	"wp-json",
	"xmlrpc.php",
	"wp-admin",
	"wp-login.php",
}

// DefaultCategories are the content subdirectories whose files are
// mirrored as assets.
var DefaultCategories = []string{"uploads", "themes", "plugins"}

// Exclusions is a set of path rules shared by the crawler and the asset
// mirror. The zero value excludes nothing.
type Exclusions struct {
	rules []string
}

// NewExclusions returns the default rules plus extra, deduplicated.
// Leading and trailing slashes of extra rules are ignored.
func NewExclusions(extra ...string) *Exclusions {
	rules := slices.Clone(DefaultExclusions)
	for _, r := range extra {
		r = strings.Trim(strings.TrimSpace(r), "/")
		if r == "" || slices.Contains(rules, r) {
			continue
		}
		rules = append(rules, r)
	}
	return &Exclusions{rules: rules}
}

// Rules returns a copy of the rule list.
func (e *Exclusions) Rules() []string {
	return slices.Clone(e.rules)
}

// ExcludesPage reports whether a site-relative page path must be skipped.
// A rule matches a path that starts with "/"+rule, or the bare rule.
func (e *Exclusions) ExcludesPage(p string) bool {
	for _, r := range e.rules {
		if strings.HasPrefix(p, "/"+r) || p == r {
			return true
		}
	}
	return false
}

// ExcludesAsset reports whether an asset path (leading slash already
// stripped) must be skipped. A rule matches the exact path or anything
// below it.
func (e *Exclusions) ExcludesAsset(p string) bool {
	for _, r := range e.rules {
		if p == r || strings.HasPrefix(p, r+"/") {
			return true
		}
	}
	return false
}

// Categories decides which asset paths are mirrored.
type Categories struct {
	prefixes []string
}

// NewCategories returns the categories under contentDir. Empty arguments
// fall back to "wp-content" and DefaultCategories.
func NewCategories(contentDir string, names ...string) *Categories {
	contentDir = strings.Trim(contentDir, "/")
	if contentDir == "" {
		contentDir = "wp-content"
	}
	if len(names) == 0 {
		names = DefaultCategories
	}

	prefixes := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.Trim(strings.TrimSpace(n), "/")
		if n == "" {
			continue
		}
		prefixes = append(prefixes, path.Join(contentDir, n)+"/")
	}
	return &Categories{prefixes: prefixes}
}

// Allows reports whether the asset path falls under a permitted category.
func (c *Categories) Allows(p string) bool {
	for _, prefix := range c.prefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// Prefixes returns the permitted path prefixes, each ending in "/".
func (c *Categories) Prefixes() []string {
	return slices.Clone(c.prefixes)
}
