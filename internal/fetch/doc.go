// Package fetch retrieves pages and assets from the origin being mirrored.
//
// A Fetcher follows redirects, attaches the gateway session cookie to
// every request once UseSession has been called, and optionally dials
// through a SOCKS5 proxy. Failures are returned to the caller, which
// decides whether they are fatal; the crawler and asset mirror skip the
// failed path and continue.
package fetch
