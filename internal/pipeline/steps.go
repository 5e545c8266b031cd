package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/nao1215/cfstatic/internal/config"
	"github.com/nao1215/cfstatic/internal/crawler"
	"github.com/nao1215/cfstatic/internal/gateway"
	"github.com/nao1215/cfstatic/internal/model"
)

// Step names, recorded in model.Run.Steps.
const (
	StepAuthenticate = "authenticate"
	StepCrawl        = "crawl"
	StepBundle       = "bundle"
	StepNotFound     = "not_found"
	StepSanitize     = "sanitize"
	StepAudit        = "audit"
	StepArchive      = "archive"
)

// ErrAuthentication wraps a gateway failure; it stops the run.
var ErrAuthentication = errors.New("gateway authentication failed")

// Authenticator exchanges credentials for a session token.
// *gateway.Authenticator satisfies it.
type Authenticator interface {
	Authenticate(ctx context.Context, siteURL string, creds config.Credentials) (gateway.Token, error)
}

// SessionUser receives the session cookie. *fetch.Fetcher satisfies it.
type SessionUser interface {
	UseSession(cookie string)
}

// AuthenticateStep establishes the gateway session used by every later
// fetch. Without credentials the site is crawled unauthenticated; a
// partial pair is reported as a warning and treated the same way.
type AuthenticateStep struct {
	auth    Authenticator
	session SessionUser
	siteURL string
	creds   config.Credentials
	logger  *slog.Logger
}

// NewAuthenticateStep creates an AuthenticateStep.
func NewAuthenticateStep(auth Authenticator, session SessionUser, siteURL string, creds config.Credentials, logger *slog.Logger) *AuthenticateStep {
	return &AuthenticateStep{
		auth:    auth,
		session: session,
		siteURL: siteURL,
		creds:   creds,
		logger:  orDefault(logger),
	}
}

// Name returns the step name.
func (s *AuthenticateStep) Name() string {
	return StepAuthenticate
}

// Do executes the authentication step.
func (s *AuthenticateStep) Do(ctx context.Context, run *model.Run) error {
	switch {
	case s.creds.Empty():
		s.logger.Info("no credentials configured, crawling without a gateway session")
		s.session.UseSession("")
		return nil
	case s.creds.Partial():
		run.PartialCredentials = true
		s.logger.Warn(s.creds.Warning())
		s.session.UseSession("")
		return nil
	}

	token, err := s.auth.Authenticate(ctx, s.siteURL, s.creds)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAuthentication, err)
	}

	s.session.UseSession(token.Cookie())
	run.Authenticated = true
	run.Token = string(token)
	return nil
}

// Crawler walks the site. *crawler.Scheduler satisfies it.
type Crawler interface {
	Crawl(ctx context.Context) (*crawler.Result, error)
}

// AssetCounter reports asset mirror outcomes. *mirror.Mirror satisfies it.
type AssetCounter interface {
	Stats() model.AssetStats
}

// CrawlStep mirrors the pages of the site and, through the scheduler's
// asset mirror, the assets they reference.
type CrawlStep struct {
	crawler Crawler
	assets  AssetCounter
	logger  *slog.Logger
}

// NewCrawlStep creates a CrawlStep. assets may be nil.
func NewCrawlStep(c Crawler, assets AssetCounter, logger *slog.Logger) *CrawlStep {
	return &CrawlStep{
		crawler: c,
		assets:  assets,
		logger:  orDefault(logger),
	}
}

// Name returns the step name.
func (s *CrawlStep) Name() string {
	return StepCrawl
}

// Do executes the crawl step.
func (s *CrawlStep) Do(ctx context.Context, run *model.Run) error {
	result, err := s.crawler.Crawl(ctx)
	if result != nil {
		run.Pages = append(run.Pages, result.Pages...)
		run.FailedPaths = append(run.FailedPaths, result.Failed...)
		run.FailedPaths = append(run.FailedPaths, result.Conflicts...)
		run.ExcludedPaths += result.Excluded
	}
	if s.assets != nil {
		run.Assets = s.assets.Stats()
	}
	if err != nil {
		return fmt.Errorf("crawl stopped: %w", err)
	}

	s.logger.Info("pages mirrored",
		"pages", len(run.Pages),
		"failed", len(run.FailedPaths),
		"assets_written", run.Assets.Written,
		"assets_existing", run.Assets.Existing,
	)
	return nil
}

// ScriptBundler copies runtime and component scripts.
// *bundle.Bundler satisfies it.
type ScriptBundler interface {
	Bundle(ctx context.Context, selected []string) (model.ScriptStats, error)
}

// BundleStep copies the scripts the static pages need from the install root.
type BundleStep struct {
	bundler  ScriptBundler
	selected []string
}

// NewBundleStep creates a BundleStep for the selected component ids.
func NewBundleStep(b ScriptBundler, selected []string) *BundleStep {
	return &BundleStep{bundler: b, selected: selected}
}

// Name returns the step name.
func (s *BundleStep) Name() string {
	return StepBundle
}

// Do executes the bundle step.
func (s *BundleStep) Do(ctx context.Context, run *model.Run) error {
	stats, err := s.bundler.Bundle(ctx, s.selected)
	run.Scripts = stats
	if err != nil {
		return fmt.Errorf("script bundling failed: %w", err)
	}
	return nil
}

// PageFetcher retrieves one URL. *fetch.Fetcher satisfies it.
type PageFetcher = crawler.Fetcher

// NotFoundStep renders the origin's not-found page into 404.html by
// requesting a path that cannot exist. Failures are logged and never stop
// the run.
type NotFoundStep struct {
	fetcher PageFetcher
	fs      billy.Filesystem
	origin  *url.URL
	clock   func() time.Time
	logger  *slog.Logger
}

// NotFoundFile is the Output Tree file written by NotFoundStep.
const NotFoundFile = "404.html"

// NewNotFoundStep creates a NotFoundStep writing into the Output Tree fs.
func NewNotFoundStep(fetcher PageFetcher, fs billy.Filesystem, origin *url.URL, logger *slog.Logger) *NotFoundStep {
	return &NotFoundStep{
		fetcher: fetcher,
		fs:      fs,
		origin:  origin,
		clock:   time.Now,
		logger:  orDefault(logger),
	}
}

// Name returns the step name.
func (s *NotFoundStep) Name() string {
	return StepNotFound
}

// ProbePath returns the path requested to obtain the not-found page.
func (s *NotFoundStep) ProbePath() string {
	return "/cfstatic-not-found-" + strconv.FormatInt(s.clock().UnixNano(), 36) + "/"
}

// Do executes the not-found step.
func (s *NotFoundStep) Do(ctx context.Context, run *model.Run) error {
	probe := s.origin.JoinPath(s.ProbePath()).String()

	resp, err := s.fetcher.Fetch(ctx, probe)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("failed to generate 404.html", "url", probe, "error", err)
		return nil
	}
	if resp.StatusCode != http.StatusNotFound {
		s.logger.Warn("origin did not answer with a not-found page, 404.html not written",
			"url", probe,
			"status", resp.StatusCode,
		)
		return nil
	}

	page := crawler.RewriteOrigin(string(resp.Body), s.origin)
	if err := util.WriteFile(s.fs, NotFoundFile, []byte(page), 0o644); err != nil {
		s.logger.Warn("failed to write 404.html", "error", err)
		return nil
	}

	run.NotFoundPage = true
	s.logger.Info("404.html generated", "bytes", len(page))
	return nil
}

// ScriptSanitizer removes administrative scripts.
// *sanitize.Sanitizer satisfies it.
type ScriptSanitizer interface {
	Sanitize(ctx context.Context) ([]string, error)
}

// SanitizeStep deletes administrative scripts from the Output Tree.
type SanitizeStep struct {
	sanitizer ScriptSanitizer
}

// NewSanitizeStep creates a SanitizeStep.
func NewSanitizeStep(s ScriptSanitizer) *SanitizeStep {
	return &SanitizeStep{sanitizer: s}
}

// Name returns the step name.
func (s *SanitizeStep) Name() string {
	return StepSanitize
}

// Do executes the sanitize step.
func (s *SanitizeStep) Do(ctx context.Context, run *model.Run) error {
	removed, err := s.sanitizer.Sanitize(ctx)
	run.RemovedScripts = append(run.RemovedScripts, removed...)
	if err != nil {
		return fmt.Errorf("sanitizing failed: %w", err)
	}
	return nil
}

// UploadAuditor inspects mirrored uploads. *audit.Auditor satisfies it.
type UploadAuditor interface {
	Audit(ctx context.Context) ([]model.Finding, error)
}

// AuditStep records image metadata findings. It never changes the tree.
type AuditStep struct {
	auditor UploadAuditor
}

// NewAuditStep creates an AuditStep.
func NewAuditStep(a UploadAuditor) *AuditStep {
	return &AuditStep{auditor: a}
}

// Name returns the step name.
func (s *AuditStep) Name() string {
	return StepAudit
}

// Do executes the audit step.
func (s *AuditStep) Do(ctx context.Context, run *model.Run) error {
	findings, err := s.auditor.Audit(ctx)
	run.AddFinding(findings...)
	return err
}

// TreeArchiver seals the Output Tree. *archive.Archiver satisfies it.
type TreeArchiver interface {
	Archive(ctx context.Context, tree billy.Filesystem) (*model.ArchiveInfo, error)
}

// ArchiveStep seals the Output Tree into the versioned archive.
type ArchiveStep struct {
	archiver TreeArchiver
	tree     billy.Filesystem
}

// NewArchiveStep creates an ArchiveStep for tree.
func NewArchiveStep(a TreeArchiver, tree billy.Filesystem) *ArchiveStep {
	return &ArchiveStep{archiver: a, tree: tree}
}

// Name returns the step name.
func (s *ArchiveStep) Name() string {
	return StepArchive
}

// Do executes the archive step.
func (s *ArchiveStep) Do(ctx context.Context, run *model.Run) error {
	info, err := s.archiver.Archive(ctx, s.tree)
	if err != nil {
		return fmt.Errorf("archiving failed: %w", err)
	}
	run.Archive = info
	return nil
}

func orDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
