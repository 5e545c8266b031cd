package model

import (
	"time"
)

// Run is the outcome of one generation run. It is filled in step by step
// by the pipeline, rendered by the report writers and stored in the run
// history database.
type Run struct {
	// ID is the database row id; zero until the run is saved.
	ID int64 `json:"id,omitempty"`

	// Site is the origin that was mirrored.
	Site string `json:"site"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the run ended, successfully or not.
	FinishedAt time.Time `json:"finished_at"`

	// Authenticated is true when the gateway issued a session.
	Authenticated bool `json:"authenticated"`

	// PartialCredentials is true when exactly one credential value was
	// supplied and the gateway step was skipped.
	PartialCredentials bool `json:"partial_credentials,omitempty"`

	// Token is the gateway session value. Never serialized.
	Token string `json:"-"`

	// OutputDir is the Output Tree root.
	OutputDir string `json:"output_dir"`

	// Pages lists every page written, in crawl order.
	Pages []Page `json:"pages"`

	// FailedPaths lists pages whose fetch failed.
	FailedPaths []string `json:"failed_paths,omitempty"`

	// ExcludedPaths counts frontier entries dropped by exclusion rules.
	ExcludedPaths int `json:"excluded_paths"`

	// Assets summarizes the asset mirror.
	Assets AssetStats `json:"assets"`

	// Scripts summarizes the script bundler.
	Scripts ScriptStats `json:"scripts"`

	// RemovedScripts lists the administrative scripts deleted by the sanitizer.
	RemovedScripts []string `json:"removed_scripts,omitempty"`

	// NotFoundPage is true when 404.html was written.
	NotFoundPage bool `json:"not_found_page"`

	// Archive describes the archive sealed at the end of the run.
	Archive *ArchiveInfo `json:"archive,omitempty"`

	// Findings are the upload audit results.
	Findings []Finding `json:"findings,omitempty"`

	// Steps lists the pipeline steps that completed, in order.
	Steps []string `json:"steps"`

	// Error contains the error message if the run failed.
	Error string `json:"error,omitempty"`
}

// AssetStats counts asset mirror outcomes.
type AssetStats struct {
	// Written counts assets fetched and written during this run.
	Written int `json:"written"`

	// Existing counts assets skipped because the destination already existed.
	Existing int `json:"existing"`

	// Failed counts assets whose fetch or write failed.
	Failed int `json:"failed"`

	// Skipped counts candidates outside the content categories or excluded.
	Skipped int `json:"skipped"`
}

// ScriptStats counts script bundler outcomes.
type ScriptStats struct {
	// RuntimeFiles counts framework runtime scripts copied.
	RuntimeFiles int `json:"runtime_files"`

	// ComponentFiles counts files copied from selected components.
	ComponentFiles int `json:"component_files"`

	// Components lists the selected components that were bundled.
	Components []string `json:"components,omitempty"`
}

// ArchiveInfo describes one sealed archive.
type ArchiveInfo struct {
	// Name is the archive file name.
	Name string `json:"name"`

	// Path is the archive path on disk.
	Path string `json:"path"`

	// Entries is the number of files in the archive.
	Entries int `json:"entries"`

	// Size is the archive size in bytes.
	Size int64 `json:"size"`

	// Digest is the hex SHA3-256 of the archive file.
	Digest string `json:"sha3_256"`

	// CreatedAt is the generation timestamp encoded in Name.
	CreatedAt time.Time `json:"created_at"`
}

// NewRun creates a Run for site starting at now.
func NewRun(site string, now time.Time) *Run {
	return &Run{
		Site:      site,
		StartedAt: now,
		Pages:     make([]Page, 0),
		Steps:     make([]string, 0),
	}
}

// Finish records the end of the run and the error that ended it, if any.
func (r *Run) Finish(now time.Time, err error) {
	r.FinishedAt = now
	if err != nil {
		r.Error = err.Error()
	}
}

// Succeeded reports whether the run finished without error.
func (r *Run) Succeeded() bool {
	return r.Error == ""
}

// Duration returns the wall-clock time of the run, or zero if unfinished.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// AddFinding appends audit findings.
func (r *Run) AddFinding(findings ...Finding) {
	r.Findings = append(r.Findings, findings...)
}

// FindingsBySeverity returns findings filtered by severity.
func (r *Run) FindingsBySeverity(severity Severity) []Finding {
	var result []Finding
	for _, f := range r.Findings {
		if f.Severity == severity {
			result = append(result, f)
		}
	}
	return result
}

// ContentBreakdown returns the number of files per kind written to the
// Output Tree, for the report chart. Kinds with zero files are omitted.
func (r *Run) ContentBreakdown() map[string]int {
	breakdown := make(map[string]int)
	add := func(kind string, n int) {
		if n > 0 {
			breakdown[kind] = n
		}
	}
	add("pages", len(r.Pages))
	add("assets", r.Assets.Written+r.Assets.Existing)
	add("runtime scripts", r.Scripts.RuntimeFiles)
	add("component files", r.Scripts.ComponentFiles)
	if r.NotFoundPage {
		add("404 page", 1)
	}
	return breakdown
}
