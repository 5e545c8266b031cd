package crawler

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/url"
	"os"
	"path"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/nao1215/cfstatic/internal/extract"
	"github.com/nao1215/cfstatic/internal/fetch"
	"github.com/nao1215/cfstatic/internal/model"
	"github.com/nao1215/cfstatic/internal/rules"
)

// ErrPathConflict is returned when a page file would need a directory
// where a file exists, or a file where a directory exists.
var ErrPathConflict = errors.New("output path conflicts with an existing entry")

// Fetcher retrieves one URL. *fetch.Fetcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetch.Response, error)
}

// AssetMirror receives the asset candidates of every written page.
// *mirror.Mirror satisfies it.
type AssetMirror interface {
	Mirror(ctx context.Context, candidates iter.Seq[string]) error
}

// Scheduler drives a breadth-first crawl of one origin into an Output
// Tree. It owns the frontier and visited set for a single run and is not
// safe for concurrent use.
type Scheduler struct {
	fetcher    Fetcher
	fs         billy.Filesystem
	origin     *url.URL
	extractor  extract.Extractor
	assets     AssetMirror
	exclusions *rules.Exclusions
	maxPages   int
	delay      time.Duration
	logger     *slog.Logger
	onState    func(from, to State)

	state    State
	frontier []string
	queued   map[string]struct{}
	visited  map[string]struct{}
	excluded map[string]struct{}
	originRe *regexp.Regexp
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithExtractor sets the link and asset extractor.
func WithExtractor(e extract.Extractor) Option {
	return func(s *Scheduler) {
		s.extractor = e
	}
}

// WithAssetMirror sets the mirror invoked for every written page.
func WithAssetMirror(m AssetMirror) Option {
	return func(s *Scheduler) {
		s.assets = m
	}
}

// WithExclusions sets the exclusion rules.
func WithExclusions(e *rules.Exclusions) Option {
	return func(s *Scheduler) {
		s.exclusions = e
	}
}

// WithMaxPages stops the crawl after n pages have been visited.
// Zero means no limit.
func WithMaxPages(n int) Option {
	return func(s *Scheduler) {
		s.maxPages = n
	}
}

// WithDelay sets the delay between page fetches.
func WithDelay(d time.Duration) Option {
	return func(s *Scheduler) {
		s.delay = d
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithStateHook registers a function called on every state transition.
func WithStateHook(fn func(from, to State)) Option {
	return func(s *Scheduler) {
		s.onState = fn
	}
}

// New creates a Scheduler that mirrors origin into fs.
func New(fetcher Fetcher, fs billy.Filesystem, origin *url.URL, opts ...Option) *Scheduler {
	s := &Scheduler{
		fetcher:    fetcher,
		fs:         fs,
		origin:     origin,
		extractor:  extract.NewPattern(),
		exclusions: rules.NewExclusions(),
		logger:     slog.Default(),
		state:      StateIdle,
		queued:     make(map[string]struct{}),
		visited:    make(map[string]struct{}),
		excluded:   make(map[string]struct{}),
		originRe:   originPattern(origin),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Result summarizes a crawl.
type Result struct {
	// Pages lists the pages written, in crawl order.
	Pages []model.Page

	// Failed lists paths whose fetch failed.
	Failed []string

	// Conflicts lists paths fetched but not written because of a
	// file/directory conflict in the Output Tree.
	Conflicts []string

	// Excluded counts distinct paths dropped by exclusion rules.
	Excluded int
}

// Crawl runs the crawl from "/" until the frontier is empty, the page
// limit is reached or ctx is cancelled. On cancellation the partial
// result is returned together with the context error.
func (s *Scheduler) Crawl(ctx context.Context) (*Result, error) {
	if s.state != StateIdle {
		return nil, fmt.Errorf("crawl already %s", s.state)
	}

	result := &Result{
		Pages:  make([]model.Page, 0),
		Failed: make([]string, 0),
	}

	s.enqueue("/")
	s.transition(StateRunning)

	for len(s.frontier) > 0 {
		if err := ctx.Err(); err != nil {
			s.transition(StateDone)
			return result, err
		}
		if s.maxPages > 0 && len(s.visited) >= s.maxPages {
			s.logger.Warn("page limit reached", "limit", s.maxPages, "queued", len(s.frontier))
			break
		}

		p := s.frontier[0]
		s.frontier = s.frontier[1:]
		delete(s.queued, p)
		if len(s.frontier) == 0 {
			s.transition(StateDraining)
		}

		if _, ok := s.visited[p]; ok {
			continue
		}
		if s.exclusions.ExcludesPage(p) {
			s.excluded[p] = struct{}{}
			result.Excluded++
			s.logger.Debug("excluded path", "path", p)
			continue
		}
		s.visited[p] = struct{}{}

		added, err := s.visit(ctx, p, result)
		if err != nil {
			s.transition(StateDone)
			return result, err
		}
		if added > 0 && s.state == StateDraining {
			s.transition(StateRunning)
		}

		if s.delay > 0 && len(s.frontier) > 0 {
			select {
			case <-ctx.Done():
				s.transition(StateDone)
				return result, ctx.Err()
			case <-time.After(s.delay):
			}
		}
	}

	s.transition(StateDone)
	s.logger.Info("crawl finished",
		"pages", len(result.Pages),
		"failed", len(result.Failed),
		"excluded", result.Excluded,
	)
	return result, nil
}

// visit fetches one page, grows the frontier from its links, writes the
// rewritten page and mirrors its assets. It returns the number of paths
// enqueued. Fetch and write failures are recorded in result; only
// cancellation is returned as an error.
func (s *Scheduler) visit(ctx context.Context, p string, result *Result) (int, error) {
	target := s.URL(p)
	resp, err := s.fetcher.Fetch(ctx, target)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		result.Failed = append(result.Failed, p)
		s.logger.Warn("page fetch failed", "path", p, "error", err)
		return 0, nil
	}

	markup := string(resp.Body)
	added := 0
	for link := range s.extractor.Links(markup) {
		if lp, ok := rules.SitePath(s.origin, link); ok && s.enqueue(lp) {
			added++
		}
	}

	rewritten := s.Rewrite(markup)
	file := rules.OutputFile(p)
	if err := s.write(file, []byte(rewritten)); err != nil {
		result.Conflicts = append(result.Conflicts, p)
		s.logger.Warn("page not written", "path", p, "file", file, "error", err)
	} else {
		page := model.Page{
			Path:        p,
			URL:         target,
			StatusCode:  resp.StatusCode,
			ContentType: resp.ContentType,
			File:        file,
		}
		page.ComputeHash([]byte(rewritten))
		result.Pages = append(result.Pages, page)
		s.logger.Debug("page written", "path", p, "file", file, "status", resp.StatusCode, "links", added)
	}

	if s.assets != nil {
		if err := s.assets.Mirror(ctx, s.extractor.Assets(rewritten)); err != nil {
			return added, err
		}
	}
	return added, nil
}

// enqueue appends p to the frontier unless it is already visited,
// excluded or queued, and reports whether it was added.
func (s *Scheduler) enqueue(p string) bool {
	if _, ok := s.visited[p]; ok {
		return false
	}
	if _, ok := s.excluded[p]; ok {
		return false
	}
	if _, ok := s.queued[p]; ok {
		return false
	}
	s.queued[p] = struct{}{}
	s.frontier = append(s.frontier, p)
	return true
}

// URL returns the absolute URL of a site-relative path on the origin.
func (s *Scheduler) URL(p string) string {
	return s.origin.ResolveReference(&url.URL{Path: p}).String()
}

// Rewrite removes every occurrence of the origin from markup, including
// the JSON-escaped form found in inline scripts, so references become
// host-relative. Removal repeats until no occurrence is left because
// deleting one occurrence can join its neighbours into a new one.
func (s *Scheduler) Rewrite(markup string) string {
	return removeOrigin(markup, s.originRe)
}

// RewriteOrigin is Rewrite for an arbitrary origin.
func RewriteOrigin(markup string, origin *url.URL) string {
	return removeOrigin(markup, originPattern(origin))
}

// originPattern matches origin as it may be written in a page: scheme and
// host in any letter case, "/" escaped as "\/" or not, and the default
// port either spelled out or left off.
func originPattern(origin *url.URL) *regexp.Regexp {
	host := regexp.QuoteMeta(origin.Hostname())
	if strings.Contains(origin.Hostname(), ":") {
		host = `\[` + host + `\]`
	}

	var port string
	def := rules.DefaultPort(origin.Scheme)
	switch p := origin.Port(); {
	case p != "" && p != def:
		port = ":" + regexp.QuoteMeta(p)
	case def != "":
		port = "(?::" + def + ")?"
	}

	return regexp.MustCompile(`(?i)` + regexp.QuoteMeta(origin.Scheme) + `:(?://|\\/\\/)` + host + port)
}

func removeOrigin(markup string, re *regexp.Regexp) string {
	for re.MatchString(markup) {
		markup = re.ReplaceAllLiteralString(markup, "")
	}
	return markup
}

// write stores data at file, overwriting an existing page and creating
// parent directories.
func (s *Scheduler) write(file string, data []byte) error {
	if info, err := s.fs.Stat(file); err == nil && info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrPathConflict, file)
	}
	if dir := path.Dir(file); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: %w", ErrPathConflict, err)
		}
	}
	if err := util.WriteFile(s.fs, file, data, 0o644); err != nil {
		if errors.Is(err, os.ErrExist) || errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %w", ErrPathConflict, err)
		}
		return err
	}
	return nil
}

// Visited returns the visited paths in sorted order.
func (s *Scheduler) Visited() []string {
	paths := make([]string, 0, len(s.visited))
	for p := range s.visited {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}

// State returns the current state.
func (s *Scheduler) State() State {
	return s.state
}

func (s *Scheduler) transition(to State) {
	if s.state == to {
		return
	}
	from := s.state
	s.state = to
	s.logger.Debug("crawl state changed", "from", from.String(), "to", to.String())
	if s.onState != nil {
		s.onState(from, to)
	}
}
