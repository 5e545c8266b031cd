package extract

import (
	"errors"
	"fmt"
	"iter"
	"strings"
)

// Extractor kinds selectable from the site config.
const (
	KindPattern = "pattern"
	KindMarkup  = "markup"
)

// ErrUnknownExtractor is returned by New for an unsupported kind.
var ErrUnknownExtractor = errors.New("unknown extractor")

// Extractor finds navigation and asset candidates in raw markup.
// Both sequences are lazy and finite; values are yielded exactly as they
// appear in the markup, without resolution against any base URL.
type Extractor interface {
	// Links yields every href attribute value.
	Links(markup string) iter.Seq[string]

	// Assets yields every src and href attribute value, plus the first
	// token of each entry of every srcset attribute value.
	Assets(markup string) iter.Seq[string]
}

// New returns the extractor for kind. An empty kind selects the pattern
// extractor.
func New(kind string) (Extractor, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindPattern:
		return NewPattern(), nil
	case KindMarkup:
		return NewMarkup(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownExtractor, kind)
	}
}

// srcsetCandidates yields the URL of each comma-separated srcset entry,
// dropping the width or density descriptor.
func srcsetCandidates(value string, yield func(string) bool) bool {
	for part := range strings.SplitSeq(value, ",") {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		if !yield(fields[0]) {
			return false
		}
	}
	return true
}
