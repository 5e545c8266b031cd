package bundle

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/nao1215/cfstatic/internal/config"
	"github.com/nao1215/cfstatic/internal/model"
	"github.com/nao1215/cfstatic/internal/rules"
)

// RuntimeScripts are the framework runtime files copied when present in
// the install root. Pages load them through the script loader, so the
// crawler never sees them as asset references.
var RuntimeScripts = []string{
	"wp-includes/js/jquery/jquery.min.js",
	"wp-includes/js/jquery/jquery.js",
	"wp-includes/js/jquery/jquery-migrate.min.js",
	"wp-includes/js/jquery/jquery-migrate.js",
}

// distDir is the conventional public build output of a component.
const distDir = "dist/frontend"

// Bundler copies client-side scripts from an install root into the
// Output Tree. Missing sources are skipped; anything whose path contains
// "admin" is never copied.
type Bundler struct {
	src        billy.Filesystem
	dst        billy.Filesystem
	contentDir string
	active     []string
	logger     *slog.Logger

	copied map[string]struct{}
}

// Option configures a Bundler.
type Option func(*Bundler)

// WithContentDir sets the content directory relative to the install root.
func WithContentDir(dir string) Option {
	return func(b *Bundler) {
		b.contentDir = strings.Trim(dir, "/")
	}
}

// WithActiveComponents sets the active component ids. Without it every
// directory under the plugins directory counts as active.
func WithActiveComponents(ids []string) Option {
	return func(b *Bundler) {
		b.active = ids
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bundler) {
		b.logger = logger
	}
}

// New creates a Bundler reading from the install root src and writing to
// the Output Tree dst.
func New(src, dst billy.Filesystem, opts ...Option) *Bundler {
	b := &Bundler{
		src:        src,
		dst:        dst,
		contentDir: config.DefaultContentDir,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Bundle copies the runtime scripts and the public scripts of every
// selected component that is also active. Selected ids that are not
// active are ignored.
func (b *Bundler) Bundle(ctx context.Context, selected []string) (model.ScriptStats, error) {
	b.copied = make(map[string]struct{})
	var stats model.ScriptStats

	for _, rel := range RuntimeScripts {
		ok, err := b.copyIfPresent(rel)
		if err != nil {
			return stats, err
		}
		if ok {
			stats.RuntimeFiles++
		}
	}

	active, err := b.activeDirs()
	if err != nil {
		return stats, err
	}

	for _, dir := range componentDirs(selected) {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if !slices.Contains(active, dir) {
			b.logger.Debug("component not active, ignored", "component", dir)
			continue
		}

		n, err := b.bundleComponent(dir)
		if err != nil {
			return stats, err
		}
		stats.ComponentFiles += n
		stats.Components = append(stats.Components, dir)
		b.logger.Info("component scripts bundled", "component", dir, "files", n)
	}

	b.logger.Info("scripts bundled",
		"runtime", stats.RuntimeFiles,
		"components", len(stats.Components),
		"files", stats.ComponentFiles,
	)
	return stats, nil
}

// bundleComponent copies the public scripts of one component directory.
func (b *Bundler) bundleComponent(dir string) (int, error) {
	root := path.Join(b.pluginsDir(), dir)
	count := 0

	dist := path.Join(root, distDir)
	if info, err := b.src.Stat(dist); err == nil && info.IsDir() && !rules.ContainsFold(dist, "admin") {
		n, err := b.copyTree(dist)
		if err != nil {
			return count, err
		}
		count += n
	}

	if _, err := b.src.Stat(root); err != nil {
		b.logger.Debug("component directory missing", "component", dir)
		return count, nil
	}

	err := util.Walk(b.src, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			b.logger.Debug("skipping unreadable entry", "path", p, "error", err)
			return nil
		}
		if p == root {
			return nil
		}
		if rules.ContainsFold(p, "admin") {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			if !rules.ContainsFold(info.Name(), "js") {
				return nil
			}
			n, err := b.copyTree(p)
			count += n
			if err != nil {
				return err
			}
			return filepath.SkipDir
		}
		if rules.HasExtFold(info.Name(), ".js") {
			ok, err := b.copyIfPresent(p)
			if ok {
				count++
			}
			return err
		}
		return nil
	})
	return count, err
}

// copyTree copies every file below root except admin entries.
func (b *Bundler) copyTree(root string) (int, error) {
	count := 0
	err := util.Walk(b.src, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if p != root && rules.ContainsFold(strings.TrimPrefix(p, root), "admin") {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}
		ok, err := b.copyIfPresent(p)
		if ok {
			count++
		}
		return err
	})
	return count, err
}

// copyIfPresent copies rel from the install root to the same path in the
// Output Tree. A missing or unreadable source is skipped and reported as
// not copied; a file already copied in this run is not copied again.
func (b *Bundler) copyIfPresent(rel string) (bool, error) {
	if _, done := b.copied[rel]; done {
		return false, nil
	}

	data, err := util.ReadFile(b.src, rel)
	if err != nil {
		b.logger.Debug("script source skipped", "path", rel, "error", err)
		return false, nil
	}

	if err := b.dst.MkdirAll(path.Dir(rel), 0o755); err != nil {
		return false, fmt.Errorf("failed to create directory for %s: %w", rel, err)
	}
	if err := util.WriteFile(b.dst, rel, data, 0o644); err != nil {
		return false, fmt.Errorf("failed to copy %s: %w", rel, err)
	}

	b.copied[rel] = struct{}{}
	return true, nil
}

// activeDirs returns the directories of the active components, or every
// directory under the plugins directory when no active list is set.
func (b *Bundler) activeDirs() ([]string, error) {
	if b.active != nil {
		return componentDirs(b.active), nil
	}

	entries, err := b.src.ReadDir(b.pluginsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list components: %w", err)
	}

	dirs := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	return dirs, nil
}

func (b *Bundler) pluginsDir() string {
	return path.Join(b.contentDir, "plugins")
}

// componentDirs maps component ids such as "gallery/gallery.php" to their
// directory under the plugins directory, deduplicated in input order.
// Single-file ids like "hello.php" have no directory and are dropped.
func componentDirs(ids []string) []string {
	dirs := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.Trim(strings.TrimSpace(id), "/")
		dir, _, nested := strings.Cut(id, "/")
		if !nested && path.Ext(id) != "" {
			continue
		}
		if dir == "" || dir == "." || dir == ".." || slices.Contains(dirs, dir) {
			continue
		}
		dirs = append(dirs, dir)
	}
	return dirs
}
