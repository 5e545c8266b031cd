package archive

import (
	"archive/zip"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"golang.org/x/crypto/sha3"

	"github.com/nao1215/cfstatic/internal/model"
)

// Archive naming.
const (
	NamePrefix = "cf-static-site-"
	NameSuffix = ".zip"
	TimeLayout = "20060102-150405"
)

// namePattern matches every archive this package produces.
const namePattern = NamePrefix + "*" + NameSuffix

// ErrNoArchive is returned by Latest when the directory holds no archive.
var ErrNoArchive = errors.New("no archive found")

// Archiver seals an Output Tree into a single timestamped zip file,
// deleting every earlier archive in the same directory first.
type Archiver struct {
	dir      billy.Filesystem
	location string
	clock    func() time.Time
	logger   *slog.Logger
}

// Option configures an Archiver.
type Option func(*Archiver)

// WithClock sets the time source used for the archive name.
func WithClock(clock func() time.Time) Option {
	return func(a *Archiver) {
		a.clock = clock
	}
}

// WithLocation sets the directory path reported in ArchiveInfo.Path.
func WithLocation(dir string) Option {
	return func(a *Archiver) {
		a.location = dir
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Archiver) {
		a.logger = logger
	}
}

// New creates an Archiver writing into dir.
func New(dir billy.Filesystem, opts ...Option) *Archiver {
	a := &Archiver{
		dir:    dir,
		clock:  time.Now,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Name returns the archive file name for t.
func Name(t time.Time) string {
	return NamePrefix + t.UTC().Format(TimeLayout) + NameSuffix
}

// ParseName returns the generation time encoded in an archive name.
func ParseName(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, NamePrefix) || !strings.HasSuffix(name, NameSuffix) {
		return time.Time{}, false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, NamePrefix), NameSuffix)
	t, err := time.ParseInLocation(TimeLayout, stamp, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Archive deletes the existing archives and writes a new one holding
// every file of tree, with entries relative to the tree root in sorted
// order.
func (a *Archiver) Archive(ctx context.Context, tree billy.Filesystem) (*model.ArchiveInfo, error) {
	files, err := listFiles(tree)
	if err != nil {
		return nil, err
	}

	if err := a.removeExisting(); err != nil {
		return nil, err
	}

	created := a.clock().UTC().Truncate(time.Second)
	name := Name(created)
	partial := name + ".partial"

	digest, err := a.write(ctx, tree, files, partial)
	if err != nil {
		_ = a.dir.Remove(partial) //nolint:errcheck // best-effort cleanup
		return nil, err
	}
	if err := a.dir.Rename(partial, name); err != nil {
		_ = a.dir.Remove(partial) //nolint:errcheck // best-effort cleanup
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}

	info, err := a.dir.Stat(name)
	if err != nil {
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}

	result := &model.ArchiveInfo{
		Name:      name,
		Path:      path.Join(a.location, name),
		Entries:   len(files),
		Size:      info.Size(),
		Digest:    digest,
		CreatedAt: created,
	}
	a.logger.Info("archive created", "name", name, "entries", len(files), "bytes", info.Size())
	return result, nil
}

// removeExisting deletes every earlier archive.
func (a *Archiver) removeExisting() error {
	entries, err := a.dir.ReadDir(".")
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to list archive directory: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ok, _ := path.Match(namePattern, e.Name()); !ok {
			continue
		}
		if err := a.dir.Remove(e.Name()); err != nil {
			return fmt.Errorf("failed to remove old archive %s: %w", e.Name(), err)
		}
		a.logger.Debug("old archive removed", "name", e.Name())
	}
	return nil
}

// write zips files into name and returns the hex SHA3-256 of the result.
func (a *Archiver) write(ctx context.Context, tree billy.Filesystem, files []string, name string) (string, error) {
	f, err := a.dir.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create archive: %w", err)
	}
	defer f.Close()

	hasher := sha3.New256()
	zw := zip.NewWriter(io.MultiWriter(f, hasher))

	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := addFile(zw, tree, rel); err != nil {
			return "", err
		}
	}

	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("failed to finish archive: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close archive: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func addFile(zw *zip.Writer, tree billy.Filesystem, rel string) error {
	info, err := tree.Stat(rel)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", rel, err)
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("failed to build header for %s: %w", rel, err)
	}
	header.Name = rel
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", rel, err)
	}

	src, err := tree.Open(rel)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", rel, err)
	}
	defer src.Close()

	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("failed to compress %s: %w", rel, err)
	}
	return nil
}

// listFiles returns every regular file of tree as a sorted slash path.
func listFiles(tree billy.Filesystem) ([]string, error) {
	var files []string
	err := util.Walk(tree, ".", func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if p == "." && os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.Mode().IsRegular() {
			files = append(files, path.Clean(strings.ReplaceAll(p, `\`, "/")))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list output tree: %w", err)
	}
	slices.Sort(files)
	return files, nil
}

// Latest returns the newest archive in dir.
func Latest(dir billy.Filesystem) (*model.ArchiveInfo, error) {
	entries, err := dir.ReadDir(".")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoArchive
		}
		return nil, fmt.Errorf("failed to list archive directory: %w", err)
	}

	var latest *model.ArchiveInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		created, ok := ParseName(e.Name())
		if !ok {
			continue
		}
		if latest == nil || created.After(latest.CreatedAt) {
			latest = &model.ArchiveInfo{
				Name:      e.Name(),
				Path:      e.Name(),
				Size:      e.Size(),
				CreatedAt: created,
			}
		}
	}
	if latest == nil {
		return nil, ErrNoArchive
	}
	return latest, nil
}
