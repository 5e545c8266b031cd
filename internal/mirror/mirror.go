package mirror

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/url"
	"os"
	"path"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-git/go-billy/v5"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/cfstatic/internal/config"
	"github.com/nao1215/cfstatic/internal/fetch"
	"github.com/nao1215/cfstatic/internal/model"
	"github.com/nao1215/cfstatic/internal/rules"
)

// Fetcher retrieves one URL. *fetch.Fetcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetch.Response, error)
}

// Mirror downloads the assets a page references into the Output Tree.
// A destination is written at most once: an asset already on disk, or
// claimed by an earlier page of the run, is not fetched again. A failed
// fetch drops the claim.
type Mirror struct {
	fetcher     Fetcher
	fs          billy.Filesystem
	origin      *url.URL
	exclusions  *rules.Exclusions
	categories  *rules.Categories
	concurrency int
	logger      *slog.Logger

	// claimed holds every destination handed to a worker in this run.
	claimed sync.Map

	written  atomic.Int64
	existing atomic.Int64
	failed   atomic.Int64
	skipped  atomic.Int64
}

// Option configures a Mirror.
type Option func(*Mirror)

// WithExclusions sets the exclusion rules.
func WithExclusions(e *rules.Exclusions) Option {
	return func(m *Mirror) {
		m.exclusions = e
	}
}

// WithCategories sets the permitted content categories.
func WithCategories(c *rules.Categories) Option {
	return func(m *Mirror) {
		m.categories = c
	}
}

// WithConcurrency sets how many assets are fetched at once.
// Values below 1 are treated as 1.
func WithConcurrency(n int) Option {
	return func(m *Mirror) {
		m.concurrency = max(n, 1)
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Mirror) {
		m.logger = logger
	}
}

// New creates a Mirror that writes into fs the assets of origin.
func New(fetcher Fetcher, fs billy.Filesystem, origin *url.URL, opts ...Option) *Mirror {
	m := &Mirror{
		fetcher:     fetcher,
		fs:          fs,
		origin:      origin,
		exclusions:  rules.NewExclusions(),
		categories:  rules.NewCategories(config.DefaultContentDir),
		concurrency: config.DefaultAssetConcurrency,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Mirror processes every candidate reference of one page. Fetch and write
// failures are counted and skipped; only context cancellation is returned.
func (m *Mirror) Mirror(ctx context.Context, candidates iter.Seq[string]) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)

	for candidate := range candidates {
		if ctx.Err() != nil {
			break
		}

		rel, ok := m.destination(candidate)
		if !ok {
			m.skipped.Add(1)
			continue
		}
		if _, loaded := m.claimed.LoadOrStore(rel, struct{}{}); loaded {
			continue
		}
		if _, err := m.fs.Stat(rel); err == nil {
			m.existing.Add(1)
			continue
		}

		g.Go(func() error {
			m.download(gctx, rel)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// destination maps a candidate reference to its Output Tree path, or
// reports false when the candidate is not a mirrorable asset.
func (m *Mirror) destination(candidate string) (string, bool) {
	p, ok := rules.AssetPath(m.origin, candidate)
	if !ok || strings.HasSuffix(p, "/") {
		return "", false
	}
	rel := strings.TrimPrefix(p, "/")
	if m.exclusions.ExcludesAsset(rel) || !m.categories.Allows(rel) {
		return "", false
	}
	return rel, true
}

// download fetches one asset and creates its destination exclusively.
func (m *Mirror) download(ctx context.Context, rel string) {
	src := m.origin.ResolveReference(&url.URL{Path: "/" + rel}).String()

	resp, err := m.fetcher.Fetch(ctx, src)
	if err != nil {
		// A later page referencing the asset tries again.
		m.claimed.Delete(rel)
		m.failed.Add(1)
		m.logger.Debug("asset fetch failed", "path", rel, "error", err)
		return
	}

	if err := m.create(rel, resp.Body); err != nil {
		if errors.Is(err, os.ErrExist) {
			m.existing.Add(1)
			return
		}
		m.failed.Add(1)
		m.logger.Warn("asset write failed", "path", rel, "error", err)
		return
	}

	m.written.Add(1)
	m.logger.Debug("asset mirrored", "path", rel, "bytes", len(resp.Body))
}

// create writes data to a new file, failing with os.ErrExist when the
// destination already exists.
func (m *Mirror) create(rel string, data []byte) error {
	if err := m.fs.MkdirAll(path.Dir(rel), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", rel, err)
	}

	f, err := m.fs.OpenFile(rel, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}

	_, werr := f.Write(data)
	cerr := f.Close()
	if werr != nil || cerr != nil {
		_ = m.fs.Remove(rel) //nolint:errcheck // best-effort cleanup of a partial file
		return errors.Join(werr, cerr)
	}
	return nil
}

// Stats returns the counts accumulated across every Mirror call.
func (m *Mirror) Stats() model.AssetStats {
	return model.AssetStats{
		Written:  int(m.written.Load()),
		Existing: int(m.existing.Load()),
		Failed:   int(m.failed.Load()),
		Skipped:  int(m.skipped.Load()),
	}
}
