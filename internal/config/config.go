package config

import (
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "cfstatic"

	// DefaultTimeout applies to each HTTP request, not to the whole run.
	DefaultTimeout = 60 * time.Second

	// DefaultOutputDir is the root of the Output Tree.
	DefaultOutputDir = "static"

	// DefaultContentDir is the content root under which assets and
	// component scripts live on the origin and in the Output Tree.
	DefaultContentDir = "wp-content"

	// DefaultAssetConcurrency keeps asset mirroring sequential unless
	// the operator opts into parallel downloads.
	DefaultAssetConcurrency = 1

	// DefaultUserAgent identifies cfstatic in the origin's access logs.
	DefaultUserAgent = "cfstatic/1.0 (+https://github.com/nao1215/cfstatic)"

	// DefaultMaxBodySize limits a single page or asset download.
	// Uploaded media is larger than HTML, hence the generous limit.
	DefaultMaxBodySize = 64 * 1024 * 1024 // 64MB

	// DefaultMaxRedirects is the redirect limit of the fetcher.
	DefaultMaxRedirects = 10
)

// Config holds all configuration options for one generation run.
// It is populated from CLI flags and the .cfstatic file and passed
// through the application rather than kept in global state.
type Config struct {
	// SiteURL is the origin being mirrored (scheme://host[:port]).
	SiteURL string

	// Credentials is the optional gateway service token pair.
	Credentials Credentials

	// RememberCredentials persists the gateway pair in the credential store.
	// When false, any previously remembered pair is cleared.
	RememberCredentials bool

	// RequireCredentials turns a partial credential pair into a hard error
	// instead of a warning.
	RequireCredentials bool

	// InstallRoot is the local directory of the site installation. The
	// script bundler copies runtime and component scripts from here.
	// When empty, script bundling is skipped.
	InstallRoot string

	// OutputDir is the root of the Output Tree.
	OutputDir string

	// ArchiveDir is where the versioned zip archive is written.
	// It must not be inside OutputDir.
	ArchiveDir string

	// SelectedComponents lists component identifiers (for example
	// "my-plugin/my-plugin.php") whose public scripts are bundled.
	SelectedComponents []string

	// Generate404 writes a 404.html rendered by the origin.
	Generate404 bool

	// AssetConcurrency bounds parallel asset downloads. 1 means sequential.
	AssetConcurrency int

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration

	// MaxPages caps the crawl. 0 means no cap.
	MaxPages int

	// CrawlDelay is the pause between page fetches.
	CrawlDelay time.Duration

	// UserAgent is sent with every request.
	UserAgent string

	// MaxBodySize is the maximum number of bytes read per response.
	MaxBodySize int64

	// ProxyAddress is an optional SOCKS5 proxy in "host:port" format.
	ProxyAddress string

	// Verbose enables debug logging on stderr.
	Verbose bool

	// ConfigFilePath is the path to the configuration file.
	// If empty, .cfstatic is searched in the current and home directories.
	ConfigFilePath string

	// SiteConfigs holds the parsed configuration file.
	SiteConfigs *File

	// JSONReport selects JSON output. Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport selects Markdown output. Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile writes the report to a file instead of stdout.
	ReportFile string

	// DBDir is the directory of the run history database.
	DBDir string

	// SaveToDB records the run in the history database.
	SaveToDB bool
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		OutputDir:        DefaultOutputDir,
		ArchiveDir:       XDGArchiveDir(),
		AssetConcurrency: DefaultAssetConcurrency,
		Timeout:          DefaultTimeout,
		UserAgent:        DefaultUserAgent,
		MaxBodySize:      DefaultMaxBodySize,
		DBDir:            XDGDataDir(),
		SaveToDB:         true,
	}
}

// XDGDataDir returns the XDG data directory for cfstatic.
// On Linux: ~/.local/share/cfstatic
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for cfstatic.
// On Linux: ~/.config/cfstatic
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGArchiveDir returns the default archive directory.
func XDGArchiveDir() string {
	return filepath.Join(XDGDataDir(), "archives")
}

// Origin returns the parsed origin of SiteURL with path, query and
// fragment removed.
func (c *Config) Origin() (*url.URL, error) {
	return ParseOrigin(c.SiteURL)
}

// ParseOrigin parses a site URL and reduces it to scheme://host[:port].
func ParseOrigin(raw string) (*url.URL, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrNoSiteURL
	}
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, ErrInvalidSiteURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, ErrInvalidSiteURL
	}
	if u.Host == "" || u.User != nil {
		return nil, ErrInvalidSiteURL
	}
	return &url.URL{Scheme: strings.ToLower(u.Scheme), Host: strings.ToLower(u.Host)}, nil
}

// Validate checks if the configuration is valid and returns the first
// problem found.
func (c *Config) Validate() error {
	if _, err := c.Origin(); err != nil {
		return err
	}

	if c.Credentials.Partial() && c.RequireCredentials {
		return ErrPartialCredentials
	}

	if strings.TrimSpace(c.OutputDir) == "" {
		return ErrNoOutputDir
	}

	if strings.TrimSpace(c.ArchiveDir) == "" {
		return ErrNoArchiveDir
	}

	if isWithin(c.OutputDir, c.ArchiveDir) {
		return ErrArchiveInsideOutput
	}

	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.AssetConcurrency <= 0 {
		return ErrInvalidAssetConcurrency
	}

	if c.MaxPages < 0 {
		return ErrInvalidMaxPages
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	if c.CrawlDelay < 0 {
		return ErrInvalidCrawlDelay
	}

	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}

	return nil
}

// isWithin reports whether child is parent or a directory below it.
func isWithin(parent, child string) bool {
	p, err := filepath.Abs(parent)
	if err != nil {
		return false
	}
	c, err := filepath.Abs(child)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(p, c)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
