// Package extract finds navigation links and asset references in page
// markup.
//
// Two implementations satisfy the Extractor interface: Pattern, a regular
// expression scanner that is the default, and Markup, built on the
// golang.org/x/net/html tokenizer. The crawler only sees the interface,
// so a site can switch with `extractor: markup` in its config.
package extract
