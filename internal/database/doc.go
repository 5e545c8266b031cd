// Package database stores the run history of cfstatic in SQLite.
//
// Each generation run is stored as a row in runs (with the complete
// model.Run as JSON) plus one row per written page in pages. The page
// hashes let two runs of the same site be compared without keeping the
// Output Trees around.
//
// The driver is modernc.org/sqlite, which needs no cgo. The database
// lives in the XDG data directory by default.
package database
