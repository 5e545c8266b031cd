// Package log provides secure logging functionality with automatic sanitization
// of sensitive information, built on top of the standard slog package.
//
// This package extends slog to provide:
//   - Automatic sanitization of sensitive values (cookies, tokens, secrets)
//   - A Journal that keeps the ordered log of one generation run so it can
//     be rendered once the run has finished or failed
//   - A TeeHandler that writes the same record to stderr and the Journal
//
// # Security Features
//
// The SecureHandler automatically sanitizes sensitive information in log output:
//   - HTTP headers (Authorization, Cookie, Set-Cookie, CF-Access-Client-Secret)
//   - The CF_Authorization session cookie, wherever it appears in a value
//   - Secret values detected by pattern matching (JWTs, bearer tokens, keys)
//   - Pages API tokens and gateway client secrets
//
// Even in verbose mode, sensitive values are masked to prevent accidental
// exposure of secrets in logs that may be shared or stored.
//
// # Usage
//
//	journal := log.NewJournal(slog.LevelInfo)
//	logger := log.NewRunLogger(os.Stderr, verbose, false, journal)
//
//	logger.Info("page written", "path", "/about/", "file", "about/index.html")
//
//	for _, e := range journal.Entries() {
//	    fmt.Println(e.String())
//	}
package log
