// Package model defines the data structures shared by the pipeline, the
// report writers and the run history database.
//
// A Run is created when a generation starts and is filled in by each
// step: pages written by the crawler, asset and script counts, scripts
// removed by the sanitizer, audit findings and the sealed archive. The
// types serialize to JSON for the machine-readable report.
package model
