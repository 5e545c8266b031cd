package extract

import (
	"iter"
	"strings"

	"golang.org/x/net/html"
)

// Markup extracts attributes with the golang.org/x/net/html tokenizer.
// It copes with malformed markup, unquoted attribute values and entity
// escapes, but ignores text inside script and style elements.
type Markup struct{}

// NewMarkup creates a Markup extractor.
func NewMarkup() *Markup {
	return &Markup{}
}

// Links implements Extractor.
func (m *Markup) Links(markup string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for attr := range tagAttributes(markup) {
			if attr.Key == "href" && !yield(attr.Val) {
				return
			}
		}
	}
}

// Assets implements Extractor.
func (m *Markup) Assets(markup string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for attr := range tagAttributes(markup) {
			switch attr.Key {
			case "href", "src":
				if !yield(attr.Val) {
					return
				}
			case "srcset":
				if !srcsetCandidates(attr.Val, yield) {
					return
				}
			}
		}
	}
}

// tagAttributes yields the non-empty attributes of every start tag. The
// tokenizer lowercases attribute names.
func tagAttributes(markup string) iter.Seq[html.Attribute] {
	return func(yield func(html.Attribute) bool) {
		z := html.NewTokenizer(strings.NewReader(markup))
		for {
			switch z.Next() {
			case html.ErrorToken:
				return
			case html.StartTagToken, html.SelfClosingTagToken:
				for _, attr := range z.Token().Attr {
					attr.Val = strings.TrimSpace(attr.Val)
					if attr.Val == "" {
						continue
					}
					if !yield(attr) {
						return
					}
				}
			}
		}
	}
}
