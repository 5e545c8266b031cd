package audit

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path"
	"regexp"
	"slices"
	"strings"

	exif "github.com/dsoprea/go-exif/v3"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/nao1215/cfstatic/internal/config"
	"github.com/nao1215/cfstatic/internal/model"
)

// DefaultMaxImageSize is the largest image inspected.
const DefaultMaxImageSize = 5 * 1024 * 1024

// imagePattern matches the formats that carry EXIF metadata.
var imagePattern = regexp.MustCompile(`(?i)\.(jpe?g|tiff?|heic)$`)

// tagTypes maps EXIF tag names to finding types.
var tagTypes = map[string]string{
	"GPSLatitude":        model.FindingExifGPS,
	"GPSLongitude":       model.FindingExifGPS,
	"GPSLatitudeRef":     model.FindingExifGPS,
	"GPSLongitudeRef":    model.FindingExifGPS,
	"GPSAltitude":        model.FindingExifGPS,
	"Make":               model.FindingExifDevice,
	"Model":              model.FindingExifDevice,
	"LensModel":          model.FindingExifDevice,
	"SerialNumber":       model.FindingExifSerial,
	"CameraSerialNumber": model.FindingExifSerial,
	"BodySerialNumber":   model.FindingExifSerial,
	"LensSerialNumber":   model.FindingExifSerial,
	"Artist":             model.FindingExifAuthor,
	"Author":             model.FindingExifAuthor,
	"Copyright":          model.FindingExifAuthor,
	"XPAuthor":           model.FindingExifAuthor,
	"Software":           model.FindingExifSoftware,
	"ProcessingSoftware": model.FindingExifSoftware,
	"HostComputer":       model.FindingExifSoftware,
	"DateTimeOriginal":   model.FindingExifTimestamp,
	"DateTimeDigitized":  model.FindingExifTimestamp,
	"DateTime":           model.FindingExifTimestamp,
}

// titles are the report titles of each finding type.
var titles = map[string]string{
	model.FindingExifGPS:       "GPS coordinates in image metadata",
	model.FindingExifDevice:    "Camera make or model in image metadata",
	model.FindingExifSerial:    "Device serial number in image metadata",
	model.FindingExifAuthor:    "Author or copyright in image metadata",
	model.FindingExifSoftware:  "Software or host computer in image metadata",
	model.FindingExifTimestamp: "Capture timestamp in image metadata",
}

// typeOrder fixes the order of findings reported for one file.
var typeOrder = []string{
	model.FindingExifGPS,
	model.FindingExifSerial,
	model.FindingExifAuthor,
	model.FindingExifDevice,
	model.FindingExifSoftware,
	model.FindingExifTimestamp,
}

// Auditor inspects the images mirrored into the Output Tree for EXIF
// metadata that would be published along with them.
type Auditor struct {
	fs           billy.Filesystem
	root         string
	maxImageSize int64
	logger       *slog.Logger
}

// Option configures an Auditor.
type Option func(*Auditor)

// WithContentDir sets the content directory; uploads below it are audited.
func WithContentDir(dir string) Option {
	return func(a *Auditor) {
		a.root = path.Join(strings.Trim(dir, "/"), "uploads")
	}
}

// WithMaxImageSize sets the largest image inspected.
func WithMaxImageSize(size int64) Option {
	return func(a *Auditor) {
		a.maxImageSize = size
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Auditor) {
		a.logger = logger
	}
}

// New creates an Auditor for the Output Tree fs.
func New(fs billy.Filesystem, opts ...Option) *Auditor {
	a := &Auditor{
		fs:           fs,
		root:         path.Join(config.DefaultContentDir, "uploads"),
		maxImageSize: DefaultMaxImageSize,
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Audit returns the findings for every image under the uploads
// directory. Unreadable files and images without metadata are skipped;
// only cancellation is returned as an error.
func (a *Auditor) Audit(ctx context.Context) ([]model.Finding, error) {
	findings := make([]model.Finding, 0)
	if _, err := a.fs.Stat(a.root); err != nil {
		return findings, nil
	}

	var images []string
	err := util.Walk(a.fs, a.root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.Mode().IsRegular() && imagePattern.MatchString(p) && info.Size() <= a.maxImageSize {
			images = append(images, p)
		}
		return nil
	})
	if err != nil {
		return findings, err
	}

	for _, p := range images {
		if err := ctx.Err(); err != nil {
			return findings, err
		}
		findings = append(findings, a.auditFile(p)...)
	}

	if len(findings) > 0 {
		a.logger.Warn("image metadata found in mirrored uploads", "images", len(images), "findings", len(findings))
	}
	return findings, nil
}

func (a *Auditor) auditFile(p string) []model.Finding {
	f, err := a.fs.Open(p)
	if err != nil {
		return nil
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, a.maxImageSize))
	if err != nil {
		return nil
	}

	rawExif, err := exif.SearchAndExtractExif(data)
	if err != nil || rawExif == nil {
		return nil
	}

	entries, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		a.logger.Debug("unparseable image metadata", "path", p, "error", err)
		return nil
	}

	return findingsFromTags(entries, p)
}

// findingsFromTags groups the sensitive tags of one image into one
// finding per type, in a fixed order.
func findingsFromTags(entries []exif.ExifTag, location string) []model.Finding {
	values := make(map[string][]string)
	for _, entry := range entries {
		findingType, ok := tagTypes[entry.TagName]
		if !ok {
			continue
		}
		value := entry.TagName + "=" + strings.TrimSpace(entry.Formatted)
		if !slices.Contains(values[findingType], value) {
			values[findingType] = append(values[findingType], value)
		}
	}

	findings := make([]model.Finding, 0, len(values))
	for _, findingType := range typeOrder {
		v, ok := values[findingType]
		if !ok {
			continue
		}
		findings = append(findings, model.NewFinding(findingType, titles[findingType], strings.Join(v, "; "), location))
	}
	return findings
}
