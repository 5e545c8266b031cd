package config

import (
	"maps"
	"net/url"
	"slices"
	"strings"
)

// SiteConfig holds site-specific configuration for a single origin.
type SiteConfig struct {
	// Headers are extra HTTP headers sent with every request to this site.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Exclude adds exclusion rules to the built-in ones
	// (cdn-cgi, comments, feed, wp-json, xmlrpc.php, wp-admin, wp-login.php).
	Exclude []string `yaml:"exclude,omitempty"`

	// ContentDir overrides the content root (default "wp-content").
	ContentDir string `yaml:"contentDir,omitempty"`

	// Categories overrides the mirrored content categories
	// (default uploads, themes, plugins).
	Categories []string `yaml:"categories,omitempty"`

	// InstallRoot is the local directory of the site installation.
	InstallRoot string `yaml:"installRoot,omitempty"`

	// Components are the selected component identifiers whose public
	// scripts are bundled.
	Components []string `yaml:"components,omitempty"`

	// ActiveComponents lists the components enabled on the site. When
	// empty, every directory under <contentDir>/plugins counts as active.
	ActiveComponents []string `yaml:"activeComponents,omitempty"`

	// Extractor selects the markup scanner: "pattern" (default) or "markup".
	Extractor string `yaml:"extractor,omitempty"`

	// AssetConcurrency overrides the global asset concurrency.
	AssetConcurrency int `yaml:"assetConcurrency,omitempty"`

	// MaxPages overrides the global page cap.
	MaxPages int `yaml:"maxPages,omitempty"`

	// Generate404 writes 404.html for this site.
	Generate404 bool `yaml:"generate404,omitempty"`

	// Audit enables the EXIF audit of mirrored uploads. Defaults to true.
	Audit *bool `yaml:"audit,omitempty"`
}

// AuditEnabled reports whether the EXIF audit runs for this site.
func (sc SiteConfig) AuditEnabled() bool {
	return sc.Audit == nil || *sc.Audit
}

// File represents the structure of the .cfstatic configuration file.
type File struct {
	// Sites maps a site (full origin URL or bare host) to its configuration.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults apply to every site unless overridden.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the configuration for siteURL merged over the
// defaults. The site is looked up by its exact key, then by origin, then
// by bare host.
func (cf *File) GetSiteConfig(siteURL string) SiteConfig {
	if cf == nil {
		return SiteConfig{}
	}

	for _, key := range siteKeys(siteURL) {
		if site, ok := cf.Sites[key]; ok {
			return MergeSiteConfig(cf.Defaults, site)
		}
	}
	return MergeSiteConfig(cf.Defaults, SiteConfig{})
}

// siteKeys returns the lookup keys for a site URL in priority order.
func siteKeys(siteURL string) []string {
	keys := []string{siteURL, strings.TrimSuffix(siteURL, "/")}
	if u, err := url.Parse(siteURL); err == nil && u.Host != "" {
		keys = append(keys, u.Scheme+"://"+u.Host, u.Host, u.Hostname())
	}
	return keys
}

// MergeSiteConfig returns defaults overridden by the non-zero fields of
// override. The returned value shares no maps or slices with its inputs.
func MergeSiteConfig(defaults, override SiteConfig) SiteConfig {
	result := SiteConfig{
		Headers:          maps.Clone(defaults.Headers),
		Exclude:          slices.Clone(defaults.Exclude),
		ContentDir:       defaults.ContentDir,
		Categories:       slices.Clone(defaults.Categories),
		InstallRoot:      defaults.InstallRoot,
		Components:       slices.Clone(defaults.Components),
		ActiveComponents: slices.Clone(defaults.ActiveComponents),
		Extractor:        defaults.Extractor,
		AssetConcurrency: defaults.AssetConcurrency,
		MaxPages:         defaults.MaxPages,
		Generate404:      defaults.Generate404,
		Audit:            defaults.Audit,
	}

	if len(override.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string, len(override.Headers))
		}
		maps.Copy(result.Headers, override.Headers)
	}
	// Exclusions accumulate: a site can only add rules, never drop a default one.
	result.Exclude = append(result.Exclude, override.Exclude...)
	if override.ContentDir != "" {
		result.ContentDir = override.ContentDir
	}
	if len(override.Categories) > 0 {
		result.Categories = slices.Clone(override.Categories)
	}
	if override.InstallRoot != "" {
		result.InstallRoot = override.InstallRoot
	}
	if len(override.Components) > 0 {
		result.Components = slices.Clone(override.Components)
	}
	if len(override.ActiveComponents) > 0 {
		result.ActiveComponents = slices.Clone(override.ActiveComponents)
	}
	if override.Extractor != "" {
		result.Extractor = override.Extractor
	}
	if override.AssetConcurrency > 0 {
		result.AssetConcurrency = override.AssetConcurrency
	}
	if override.MaxPages > 0 {
		result.MaxPages = override.MaxPages
	}
	if override.Generate404 {
		result.Generate404 = true
	}
	if override.Audit != nil {
		result.Audit = override.Audit
	}

	return result
}
