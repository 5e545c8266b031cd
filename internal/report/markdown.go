package report

import (
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	applog "github.com/nao1215/cfstatic/internal/log"
	"github.com/nao1215/cfstatic/internal/model"
)

// MarkdownWriter outputs reports in Markdown format, for pull requests
// and release notes of the mirrored site.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the run in Markdown format.
func (w *MarkdownWriter) Write(run *model.Run, entries []applog.Entry) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, run)
	w.writeOutput(md, run)
	w.writeArchive(md, run)
	w.writeFindings(md, run)
	w.writeLog(md, entries)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, run *model.Run) {
	md.H1("cfstatic Generation Report")
	md.PlainText("")

	rows := [][]string{
		{"Site", "`" + run.Site + "`"},
		{"Started", run.StartedAt.Format(dateLayout)},
		{"Access", authText(run)},
		{"Status", w.statusText(run)},
	}
	if d := run.Duration(); d > 0 {
		rows = append(rows, []string{"Duration", d.Round(time.Millisecond).String()})
	}
	if len(run.Steps) > 0 {
		rows = append(rows, []string{"Steps", strings.Join(run.Steps, " → ")})
	}

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")

	switch {
	case run.Error != "":
		md.Cautionf("The run stopped: %s", run.Error)
	case run.PartialCredentials:
		md.Warning("Only one of the client id and client secret was set. The site was crawled without an Access session.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) statusText(run *model.Run) string {
	if run.Error != "" {
		return "❌ Failed"
	}
	if run.FinishedAt.IsZero() {
		return "⏳ Running"
	}
	return "✅ Complete"
}

func (w *MarkdownWriter) writeOutput(md *markdown.Markdown, run *model.Run) {
	md.H2("Output Tree")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Item", "Count"},
		Rows: [][]string{
			{"Pages written", strconv.Itoa(len(run.Pages))},
			{"Pages failed", strconv.Itoa(len(run.FailedPaths))},
			{"Paths excluded", strconv.Itoa(run.ExcludedPaths)},
			{"Assets written", strconv.Itoa(run.Assets.Written)},
			{"Assets already present", strconv.Itoa(run.Assets.Existing)},
			{"Assets failed", strconv.Itoa(run.Assets.Failed)},
			{"Runtime scripts", strconv.Itoa(run.Scripts.RuntimeFiles)},
			{"Component files", strconv.Itoa(run.Scripts.ComponentFiles)},
			{"Admin scripts removed", strconv.Itoa(len(run.RemovedScripts))},
		},
	})
	md.PlainText("")

	if breakdown := run.ContentBreakdown(); len(breakdown) > 0 {
		w.writePieChart(md, breakdown)
	}

	if len(run.FailedPaths) > 0 {
		md.H3("Failed pages")
		md.PlainText("")
		md.BulletList(run.FailedPaths...)
		md.PlainText("")
	}

	if len(run.Pages) > 0 {
		rows := make([][]string, len(run.Pages))
		for i, p := range run.Pages {
			rows[i] = []string{
				"`" + truncateString(p.Path, 60) + "`",
				strconv.Itoa(p.StatusCode),
				truncateString(p.File, 60),
				strconv.Itoa(p.Size),
			}
		}

		md.H3("Pages")
		md.PlainText("")
		md.Table(markdown.TableSet{
			Header: []string{"Path", "Status", "File", "Bytes"},
			Rows:   rows,
		})
		md.PlainText("")
	}
}

// writePieChart writes a mermaid pie chart of the files written per kind.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, breakdown map[string]int) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Files in the Output Tree"),
		piechart.WithShowData(true),
	)

	for _, kind := range slices.Sorted(maps.Keys(breakdown)) {
		chart.LabelAndIntValue(kind, uint64(breakdown[kind])) //nolint:gosec // counts are never negative
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeArchive(md *markdown.Markdown, run *model.Run) {
	if run.Archive == nil {
		return
	}

	md.H2("Archive")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Name", "`" + run.Archive.Name + "`"},
			{"Entries", strconv.Itoa(run.Archive.Entries)},
			{"Size", strconv.FormatInt(run.Archive.Size, 10) + " bytes"},
			{"SHA3-256", "`" + run.Archive.Digest + "`"},
		},
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeFindings(md *markdown.Markdown, run *model.Run) {
	md.H2("Upload Metadata")
	md.PlainText("")

	if len(run.Findings) == 0 {
		md.Tip("No sensitive image metadata found in the mirrored uploads.")
		md.PlainText("")
		return
	}

	if high := len(run.FindingsBySeverity(model.SeverityHigh)); high > 0 {
		md.Warningf("%d image(s) publish GPS coordinates. Strip the metadata at the origin before deploying.", high)
	} else {
		md.Notef("%d metadata finding(s) in the mirrored uploads.", len(run.Findings))
	}
	md.PlainText("")

	severities := []struct {
		level  model.Severity
		header string
	}{
		{model.SeverityHigh, "### 🟠 High"},
		{model.SeverityMedium, "### 🟡 Medium"},
		{model.SeverityLow, "### 🔵 Low"},
		{model.SeverityInfo, "### ⚪ Info"},
	}

	for _, sev := range severities {
		findings := run.FindingsBySeverity(sev.level)
		if len(findings) == 0 {
			continue
		}

		md.PlainText(sev.header)
		md.PlainText("")

		rows := make([][]string, len(findings))
		for i, f := range findings {
			rows[i] = []string{
				f.Title,
				truncateString(f.Value, 50),
				"`" + truncateString(f.Location, 50) + "`",
				truncateString(f.Recommendation, 60),
			}
		}
		md.Table(markdown.TableSet{
			Header: []string{"Title", "Value", "File", "Recommendation"},
			Rows:   rows,
		})
		md.PlainText("")
	}
}

func (w *MarkdownWriter) writeLog(md *markdown.Markdown, entries []applog.Entry) {
	if len(entries) == 0 {
		return
	}

	md.H2("Run Log")
	md.PlainText("")

	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.Time.Format("15:04:05") + " " + e.String()
	}
	md.CodeBlocks(markdown.SyntaxHighlightText, strings.Join(lines, "\n"))
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [cfstatic](https://github.com/nao1215/cfstatic)*")
}
