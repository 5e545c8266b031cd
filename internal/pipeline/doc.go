// Package pipeline runs one generation as an ordered list of steps:
//
//	authenticate -> crawl -> bundle -> not_found -> sanitize -> audit -> archive
//
// Each step fills in its part of a model.Run. The pipeline stops at the
// first step that returns an error; steps treat recoverable problems
// (a page or asset that cannot be fetched, a missing script) as log
// entries and return nil.
//
// NewGeneration assembles the steps from a config.Config so the command
// line and the tests build runs the same way.
package pipeline
