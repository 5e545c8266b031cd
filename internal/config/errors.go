package config

import "errors"

// Configuration validation errors returned by Config.Validate.
// Callers use errors.Is to tell them apart.
var (
	// ErrNoSiteURL is returned when no site URL is given.
	ErrNoSiteURL = errors.New("no site specified: provide the site URL as an argument")

	// ErrInvalidSiteURL is returned when the site URL is not an absolute
	// http(s) URL with a host.
	ErrInvalidSiteURL = errors.New("invalid site URL: must be http:// or https:// with a host")

	// ErrPartialCredentials is returned when exactly one of the gateway
	// credentials is set and complete credentials are required.
	ErrPartialCredentials = errors.New("partial credentials: both client id and client secret must be set")

	// ErrNoOutputDir is returned when the output directory is empty.
	ErrNoOutputDir = errors.New("no output directory specified")

	// ErrNoArchiveDir is returned when the archive directory is empty.
	ErrNoArchiveDir = errors.New("no archive directory specified")

	// ErrArchiveInsideOutput is returned when the archive directory is the
	// output directory or below it; the archive would contain itself.
	ErrArchiveInsideOutput = errors.New("invalid archive directory: must not be inside the output directory")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidAssetConcurrency is returned when asset concurrency is not positive.
	ErrInvalidAssetConcurrency = errors.New("invalid asset concurrency: must be positive")

	// ErrInvalidMaxPages is returned when the page cap is negative.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be non-negative")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidCrawlDelay is returned when the crawl delay is negative.
	ErrInvalidCrawlDelay = errors.New("invalid crawl delay: must be non-negative")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")
)
