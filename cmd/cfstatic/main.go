// Package main provides the entry point for the cfstatic CLI.
//
// cfstatic mirrors a site protected by Cloudflare Access into a static
// Output Tree, seals it into a timestamped archive and deploys the tree to
// Cloudflare Pages.
//
// Usage:
//
//	cfstatic generate https://example.com
//	cfstatic deploy --project my-site
//
// See --help for all available options.
package main

// main is the entry point for cfstatic.
func main() {
	Execute()
}
