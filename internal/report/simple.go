package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	applog "github.com/nao1215/cfstatic/internal/log"
	"github.com/nao1215/cfstatic/internal/model"
)

// dateLayout is used for every timestamp in text reports.
const dateLayout = "2006-01-02 15:04:05 MST"

// SimpleWriter outputs human-readable text reports for terminal display.
type SimpleWriter struct {
	baseWriter

	// verbose lists every page and removed script.
	verbose bool

	// showLog renders the ordered run log after the summary.
	showLog bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// WithRunLog controls whether the run log is rendered. Enabled by default.
func WithRunLog(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showLog = show
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
		showLog:    true,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the run in human-readable format.
func (w *SimpleWriter) Write(run *model.Run, entries []applog.Entry) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, run)
	w.writeOutput(&sb, run)
	w.writeArchive(&sb, run)
	w.writeFindings(&sb, run)
	if w.showLog {
		w.writeLog(&sb, entries)
	}
	w.writeFooter(&sb, run)

	return io.WriteString(w.output, sb.String())
}

func section(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, run *model.Run) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                     CFSTATIC GENERATION REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Site:           %s\n", run.Site)
	fmt.Fprintf(sb, "Started:        %s\n", run.StartedAt.Format(dateLayout))
	if d := run.Duration(); d > 0 {
		fmt.Fprintf(sb, "Duration:       %s\n", d.Round(time.Millisecond))
	}
	fmt.Fprintf(sb, "Access:         %s\n", authText(run))
	fmt.Fprintf(sb, "Status:         %s\n", statusText(run))
	if len(run.Steps) > 0 {
		fmt.Fprintf(sb, "Steps:          %s\n", strings.Join(run.Steps, " -> "))
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeOutput(sb *strings.Builder, run *model.Run) {
	section(sb, "OUTPUT TREE")

	fmt.Fprintf(sb, "  Directory:        %s\n", run.OutputDir)
	fmt.Fprintf(sb, "  Pages written:    %d\n", len(run.Pages))
	fmt.Fprintf(sb, "  Pages failed:     %d\n", len(run.FailedPaths))
	fmt.Fprintf(sb, "  Paths excluded:   %d\n", run.ExcludedPaths)
	fmt.Fprintf(sb, "  Assets written:   %d\n", run.Assets.Written)
	fmt.Fprintf(sb, "  Assets existing:  %d\n", run.Assets.Existing)
	fmt.Fprintf(sb, "  Assets failed:    %d\n", run.Assets.Failed)
	fmt.Fprintf(sb, "  Runtime scripts:  %d\n", run.Scripts.RuntimeFiles)
	fmt.Fprintf(sb, "  Component files:  %d\n", run.Scripts.ComponentFiles)
	fmt.Fprintf(sb, "  Scripts removed:  %d\n", len(run.RemovedScripts))
	if run.NotFoundPage {
		sb.WriteString("  404 page:         written\n")
	}
	sb.WriteString("\n")

	if len(run.FailedPaths) > 0 {
		sb.WriteString("  Failed pages:\n")
		for _, p := range run.FailedPaths {
			fmt.Fprintf(sb, "    [!] %s\n", p)
		}
		sb.WriteString("\n")
	}

	if !w.verbose {
		return
	}
	if len(run.Pages) > 0 {
		sb.WriteString("  Pages:\n")
		for _, p := range run.Pages {
			fmt.Fprintf(sb, "    [%d] %s -> %s\n", p.StatusCode, p.Path, p.File)
		}
		sb.WriteString("\n")
	}
	if len(run.RemovedScripts) > 0 {
		sb.WriteString("  Removed scripts:\n")
		for _, p := range run.RemovedScripts {
			fmt.Fprintf(sb, "    [-] %s\n", p)
		}
		sb.WriteString("\n")
	}
}

func (w *SimpleWriter) writeArchive(sb *strings.Builder, run *model.Run) {
	if run.Archive == nil {
		return
	}
	section(sb, "ARCHIVE")

	fmt.Fprintf(sb, "  Name:      %s\n", run.Archive.Name)
	fmt.Fprintf(sb, "  Path:      %s\n", run.Archive.Path)
	fmt.Fprintf(sb, "  Entries:   %d\n", run.Archive.Entries)
	fmt.Fprintf(sb, "  Size:      %d bytes\n", run.Archive.Size)
	fmt.Fprintf(sb, "  SHA3-256:  %s\n", run.Archive.Digest)
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeFindings(sb *strings.Builder, run *model.Run) {
	if len(run.Findings) == 0 {
		return
	}
	section(sb, "UPLOAD METADATA")

	for _, severity := range []model.Severity{model.SeverityHigh, model.SeverityMedium, model.SeverityLow, model.SeverityInfo} {
		findings := run.FindingsBySeverity(severity)
		if len(findings) == 0 {
			continue
		}

		fmt.Fprintf(sb, "[%s] %s\n", severityIndicator(severity), severity)
		for _, f := range findings {
			fmt.Fprintf(sb, "  * %s\n", f.Title)
			fmt.Fprintf(sb, "    Value: %s\n", f.Value)
			fmt.Fprintf(sb, "    Location: %s\n", f.Location)
			if w.verbose && f.Recommendation != "" {
				fmt.Fprintf(sb, "    Recommendation: %s\n", f.Recommendation)
			}
		}
		sb.WriteString("\n")
	}
}

func (w *SimpleWriter) writeLog(sb *strings.Builder, entries []applog.Entry) {
	if len(entries) == 0 {
		return
	}
	section(sb, "RUN LOG")

	for _, e := range entries {
		fmt.Fprintf(sb, "  %s %s\n", e.Time.Format("15:04:05"), e.String())
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeFooter(sb *strings.Builder, run *model.Run) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	if run.Succeeded() && run.Archive != nil {
		fmt.Fprintf(sb, "Static site ready in %s; deploy it with 'cfstatic deploy'.\n", run.OutputDir)
	}
}

func severityIndicator(severity model.Severity) string {
	switch severity {
	case model.SeverityHigh:
		return "!!!"
	case model.SeverityMedium:
		return "!! "
	case model.SeverityLow:
		return "!  "
	default:
		return "i  "
	}
}
