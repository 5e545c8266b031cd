package extract

import (
	"iter"
	"regexp"
	"strings"
)

// attrPattern matches href, src and srcset attributes with a single- or
// double-quoted value. Group 1 is the attribute name, group 2 or 3 the value.
var attrPattern = regexp.MustCompile(`(?i)\b(href|srcset|src)\s*=\s*(?:"([^"]*)"|'([^']*)')`)

// Pattern scans markup with a regular expression instead of building a
// parse tree. It also finds attributes inside inline scripts and comments,
// which is what a string-based exporter has always done.
type Pattern struct{}

// NewPattern creates a Pattern extractor.
func NewPattern() *Pattern {
	return &Pattern{}
}

// Links implements Extractor.
func (p *Pattern) Links(markup string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for name, value := range attributes(markup) {
			if name == "href" && !yield(value) {
				return
			}
		}
	}
}

// Assets implements Extractor.
func (p *Pattern) Assets(markup string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for name, value := range attributes(markup) {
			if name == "srcset" {
				if !srcsetCandidates(value, yield) {
					return
				}
				continue
			}
			if !yield(value) {
				return
			}
		}
	}
}

// attributes yields (lowercased name, value) for every non-empty matched
// attribute, scanning the markup one match at a time.
func attributes(markup string) iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		rest := markup
		for {
			loc := attrPattern.FindStringSubmatchIndex(rest)
			if loc == nil {
				return
			}
			name := strings.ToLower(rest[loc[2]:loc[3]])
			var value string
			switch {
			case loc[4] >= 0:
				value = rest[loc[4]:loc[5]]
			case loc[6] >= 0:
				value = rest[loc[6]:loc[7]]
			}
			rest = rest[loc[1]:]

			if value == "" {
				continue
			}
			if !yield(name, value) {
				return
			}
		}
	}
}
