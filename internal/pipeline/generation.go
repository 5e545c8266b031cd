package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/nao1215/cfstatic/internal/archive"
	"github.com/nao1215/cfstatic/internal/audit"
	"github.com/nao1215/cfstatic/internal/bundle"
	"github.com/nao1215/cfstatic/internal/config"
	"github.com/nao1215/cfstatic/internal/crawler"
	"github.com/nao1215/cfstatic/internal/extract"
	"github.com/nao1215/cfstatic/internal/fetch"
	"github.com/nao1215/cfstatic/internal/gateway"
	"github.com/nao1215/cfstatic/internal/mirror"
	"github.com/nao1215/cfstatic/internal/model"
	"github.com/nao1215/cfstatic/internal/rules"
	"github.com/nao1215/cfstatic/internal/sanitize"
)

// Generation is one fully wired generation run: the fetcher, the
// filesystems and the ordered steps for a single site.
type Generation struct {
	pipeline  *Pipeline
	origin    *url.URL
	outputDir string
	clock     func() time.Time
	logger    *slog.Logger
}

// GenerationOption configures NewGeneration.
type GenerationOption func(*generationOptions)

type generationOptions struct {
	logger *slog.Logger
	clock  func() time.Time
}

// WithRunLogger sets the logger handed to every component of the run.
func WithRunLogger(logger *slog.Logger) GenerationOption {
	return func(o *generationOptions) {
		o.logger = logger
	}
}

// WithClock sets the time source for run timestamps and the archive name.
func WithClock(clock func() time.Time) GenerationOption {
	return func(o *generationOptions) {
		o.clock = clock
	}
}

// NewGeneration validates cfg and assembles the steps of a run. site holds
// the per-site settings of the configuration file; settings present in
// both are taken from cfg, which the command line has already resolved.
//
// The Output Tree and archive directories are created if missing. The
// bundle step is added only when an install root is configured, the
// not-found step only when requested, and the audit step unless disabled.
func NewGeneration(cfg *config.Config, site config.SiteConfig, opts ...GenerationOption) (*Generation, error) {
	o := generationOptions{
		logger: slog.Default(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	origin, err := cfg.Origin()
	if err != nil {
		return nil, err
	}

	fetchOpts := []fetch.Option{
		fetch.WithTimeout(cfg.Timeout),
		fetch.WithUserAgent(cfg.UserAgent),
		fetch.WithMaxBodySize(cfg.MaxBodySize),
		fetch.WithMaxRedirects(config.DefaultMaxRedirects),
		fetch.WithHeaders(site.Headers),
		fetch.WithLogger(logger),
	}
	if cfg.ProxyAddress != "" {
		fetchOpts = append(fetchOpts, fetch.WithProxy(cfg.ProxyAddress))
	}
	fetcher, err := fetch.New(fetchOpts...)
	if err != nil {
		return nil, err
	}

	extractor, err := extract.New(site.Extractor)
	if err != nil {
		return nil, err
	}

	tree, err := openDir(cfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open output directory: %w", err)
	}
	archiveDir, err := openDir(cfg.ArchiveDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive directory: %w", err)
	}

	contentDir := site.ContentDir
	if contentDir == "" {
		contentDir = config.DefaultContentDir
	}
	exclusions := rules.NewExclusions(site.Exclude...)

	assets := mirror.New(fetcher, tree, origin,
		mirror.WithExclusions(exclusions),
		mirror.WithCategories(rules.NewCategories(contentDir, site.Categories...)),
		mirror.WithConcurrency(cfg.AssetConcurrency),
		mirror.WithLogger(logger),
	)
	scheduler := crawler.New(fetcher, tree, origin,
		crawler.WithExtractor(extractor),
		crawler.WithAssetMirror(assets),
		crawler.WithExclusions(exclusions),
		crawler.WithMaxPages(cfg.MaxPages),
		crawler.WithDelay(cfg.CrawlDelay),
		crawler.WithLogger(logger),
	)
	auth := gateway.New(
		gateway.WithHTTPClient(fetcher.Client()),
		gateway.WithUserAgent(cfg.UserAgent),
		gateway.WithLogger(logger),
	)

	p := New(WithLogger(logger))
	p.AddSteps(
		NewAuthenticateStep(auth, fetcher, origin.String(), cfg.Credentials, logger),
		NewCrawlStep(scheduler, assets, logger),
	)

	if cfg.InstallRoot != "" {
		bundler := bundle.New(osfs.New(cfg.InstallRoot, osfs.WithBoundOS()), tree,
			bundle.WithContentDir(contentDir),
			bundle.WithActiveComponents(site.ActiveComponents),
			bundle.WithLogger(logger),
		)
		p.AddStep(NewBundleStep(bundler, cfg.SelectedComponents))
	} else {
		logger.Debug("no install root configured, script bundling skipped")
	}

	if cfg.Generate404 {
		nf := NewNotFoundStep(fetcher, tree, origin, logger)
		nf.clock = o.clock
		p.AddStep(nf)
	}

	p.AddStep(NewSanitizeStep(sanitize.New(tree, sanitize.WithLogger(logger))))

	if site.AuditEnabled() {
		p.AddStep(NewAuditStep(audit.New(tree,
			audit.WithContentDir(contentDir),
			audit.WithLogger(logger),
		)))
	}

	location, err := filepath.Abs(cfg.ArchiveDir)
	if err != nil {
		location = cfg.ArchiveDir
	}
	p.AddStep(NewArchiveStep(archive.New(archiveDir,
		archive.WithClock(o.clock),
		archive.WithLocation(location),
		archive.WithLogger(logger),
	), tree))

	return &Generation{
		pipeline:  p,
		origin:    origin,
		outputDir: cfg.OutputDir,
		clock:     o.clock,
		logger:    logger,
	}, nil
}

// StepNames returns the names of the assembled steps in order.
func (g *Generation) StepNames() []string {
	return g.pipeline.StepNames()
}

// Execute runs the generation. The returned Run is always non-nil and
// records how far the run got, even when an error is returned.
func (g *Generation) Execute(ctx context.Context) (*model.Run, error) {
	run := model.NewRun(g.origin.String(), g.clock())
	run.OutputDir = g.outputDir

	g.logger.Info("generation started", "site", run.Site, "output", g.outputDir)
	err := g.pipeline.Execute(ctx, run)
	run.Finish(g.clock(), err)

	if err != nil {
		return run, err
	}
	g.logger.Info("generation finished",
		"site", run.Site,
		"pages", len(run.Pages),
		"elapsed", run.Duration().Round(time.Millisecond),
	)
	return run, nil
}

// openDir creates dir if needed and returns a filesystem rooted at it.
func openDir(dir string) (billy.Filesystem, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return osfs.New(dir, osfs.WithBoundOS()), nil
}
