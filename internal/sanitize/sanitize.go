package sanitize

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/go-git/go-billy/v5"

	"github.com/nao1215/cfstatic/internal/rules"
)

// Sanitizer removes administrative scripts from the Output Tree.
type Sanitizer struct {
	fs     billy.Filesystem
	logger *slog.Logger
}

// Option configures a Sanitizer.
type Option func(*Sanitizer)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sanitizer) {
		s.logger = logger
	}
}

// New creates a Sanitizer for the Output Tree fs.
func New(fs billy.Filesystem, opts ...Option) *Sanitizer {
	s := &Sanitizer{
		fs:     fs,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Plan walks the tree depth-first and returns every administrative
// script, children before their parents. The tree is not modified.
func (s *Sanitizer) Plan() ([]string, error) {
	var removals []string
	if err := s.collect("", &removals); err != nil {
		return nil, err
	}
	return removals, nil
}

func (s *Sanitizer) collect(dir string, removals *[]string) error {
	name := dir
	if name == "" {
		name = "."
	}
	entries, err := s.fs.ReadDir(name)
	if err != nil {
		if os.IsNotExist(err) && dir == "" {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	slices.SortFunc(entries, func(a, b os.FileInfo) int {
		return strings.Compare(a.Name(), b.Name())
	})

	for _, e := range entries {
		p := path.Join(dir, e.Name())
		if e.IsDir() {
			if err := s.collect(p, removals); err != nil {
				return err
			}
			continue
		}
		if rules.IsAdminScript(e.Name()) {
			*removals = append(*removals, p)
		}
	}
	return nil
}

// Sanitize plans and applies the removals, logging each one, and returns
// the removed paths.
func (s *Sanitizer) Sanitize(ctx context.Context) ([]string, error) {
	plan, err := s.Plan()
	if err != nil {
		return nil, err
	}

	removed := make([]string, 0, len(plan))
	for _, p := range plan {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if err := s.fs.Remove(p); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", p, err)
		}
		removed = append(removed, p)
		s.logger.Info("removed admin script", "path", p)
	}
	return removed, nil
}
