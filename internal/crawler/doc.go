// Package crawler mirrors the pages of one origin into an Output Tree.
//
// The Scheduler starts from "/" and walks the site breadth-first, one
// page at a time. For every page it extracts links, enqueues the
// same-origin ones it has not seen, strips the origin from the markup so
// references become host-relative, writes the result and hands the
// asset references to an AssetMirror.
//
// Output mapping:
//
//	/            -> index.html
//	/about/      -> about/index.html
//	/feed.xml    -> feed.xml
//
// Paths matching an exclusion rule are never fetched. A failed fetch
// skips that page and the crawl continues.
package crawler
