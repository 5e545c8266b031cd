package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"

	"github.com/nao1215/cfstatic/internal/config"
	"github.com/nao1215/cfstatic/internal/database"
	"github.com/nao1215/cfstatic/internal/model"
	"github.com/nao1215/cfstatic/internal/report"
	"github.com/spf13/cobra"
)

// historyDateLayout is the date format of --prune-before.
const historyDateLayout = "2006-01-02"

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [site-url]",
		Short: "Show recorded generation runs",
		Long: `History lists the generation runs stored in the history database.

Every 'cfstatic generate' run is recorded unless --no-history is given.
A run can be compared with the previous successful run of the same site
to see which pages were added, removed or changed.

Examples:
  # List the latest runs of every site
  cfstatic history

  # List runs of one site
  cfstatic history https://example.com

  # Show the page changes of run 12
  cfstatic history --diff 12

  # List all sites in the database
  cfstatic history --list-sites

  # Delete runs started before 2025-01-01
  cfstatic history --prune-before 2025-01-01`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().IntP("limit", "n", 20,
		"Maximum number of runs to list (0 = all)")
	cmd.Flags().BoolP("list-sites", "L", false,
		"List every site in the database")
	cmd.Flags().Int64P("diff", "i", 0,
		"Compare the run with this id with the previous successful run")
	cmd.Flags().String("prune-before", "",
		"Delete runs started before this date (format: YYYY-MM-DD)")

	cmd.Flags().BoolP("json", "j", false,
		"Output in JSON format")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output in Markdown format")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the history database")

	return cmd
}

// historyFormat selects the output of the history command.
type historyFormat int

const (
	formatText historyFormat = iota
	formatJSON
	formatMarkdown
)

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	listSites, err := flags.GetBool("list-sites")
	if err != nil {
		return err
	}
	limit, err := flags.GetInt("limit")
	if err != nil {
		return err
	}
	diffID, err := flags.GetInt64("diff")
	if err != nil {
		return err
	}
	pruneBefore, err := flags.GetString("prune-before")
	if err != nil {
		return err
	}
	jsonOutput, err := flags.GetBool("json")
	if err != nil {
		return err
	}
	markdownOutput, err := flags.GetBool("markdown")
	if err != nil {
		return err
	}
	dbDir, err := flags.GetString("db-dir")
	if err != nil {
		return err
	}

	if jsonOutput && markdownOutput {
		return config.ErrConflictingReportFormats
	}
	format := formatText
	switch {
	case jsonOutput:
		format = formatJSON
	case markdownOutput:
		format = formatMarkdown
	}

	// Validate arguments before opening the database so a usage error
	// never creates one.
	var cutoff time.Time
	if pruneBefore != "" {
		cutoff, err = time.ParseInLocation(historyDateLayout, pruneBefore, time.Local)
		if err != nil {
			return fmt.Errorf("invalid date format (use YYYY-MM-DD): %w", err)
		}
	}

	var site string
	if len(args) > 0 {
		origin, err := config.ParseOrigin(args[0])
		if err != nil {
			return err
		}
		site = origin.String()
	}

	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	switch {
	case !cutoff.IsZero():
		return pruneRuns(ctx, out, db, cutoff)
	case listSites:
		return listRecordedSites(ctx, out, db)
	case diffID > 0:
		return showRunDiff(ctx, out, db, diffID, format)
	default:
		return listRunHistory(ctx, out, db, site, limit, format)
	}
}

// listRecordedSites lists all sites that have runs in the database.
func listRecordedSites(ctx context.Context, out io.Writer, db *database.RunDB) error {
	sites, err := db.ListSites(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sites: %w", err)
	}

	if len(sites) == 0 {
		fmt.Fprintln(out, "No generation runs found in the database.")
		fmt.Fprintln(out, "\nUse 'cfstatic generate <site-url>' to mirror a site.")
		return nil
	}

	fmt.Fprintf(out, "Recorded sites (%d):\n\n", len(sites))
	for _, site := range sites {
		fmt.Fprintf(out, "  • %s\n", site)
	}
	fmt.Fprintln(out, "\nUse 'cfstatic history <site-url>' to see the runs of a site.")
	return nil
}

// listRunHistory lists run summaries, newest first.
func listRunHistory(ctx context.Context, out io.Writer, db *database.RunDB, site string, limit int, format historyFormat) error {
	runs, err := db.ListRuns(ctx, site, limit)
	if err != nil {
		return fmt.Errorf("failed to get run history: %w", err)
	}

	switch format {
	case formatJSON:
		return writeJSON(out, runs)
	case formatMarkdown:
		return writeRunsMarkdown(out, site, runs)
	}

	if len(runs) == 0 {
		if site != "" {
			fmt.Fprintf(out, "No runs found for %s\n", site)
		} else {
			fmt.Fprintln(out, "No runs found.")
		}
		fmt.Fprintln(out, "\nUse 'cfstatic generate <site-url>' to mirror a site.")
		return nil
	}

	title := "Run history"
	if site != "" {
		title += " for " + site
	}
	fmt.Fprintf(out, "%s (%d runs):\n\n", title, len(runs))
	fmt.Fprintf(out, "  %-6s  %-20s  %-8s  %-6s  %-6s  %-9s  %s\n", "ID", "Started", "Status", "Pages", "Assets", "Duration", "Site")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 90))

	for _, r := range runs {
		fmt.Fprintf(out, "  %-6d  %-20s  %-8s  %-6d  %-6d  %-9s  %s\n",
			r.ID,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			runStatus(r.Succeeded),
			r.Pages,
			r.Assets,
			r.Duration().Round(time.Second),
			r.Site,
		)
	}

	fmt.Fprintln(out, "\nUse 'cfstatic history --diff <id>' to see the page changes of a run.")
	return nil
}

// writeRunsMarkdown renders run summaries as a Markdown table.
func writeRunsMarkdown(out io.Writer, site string, runs []database.RunSummary) error {
	md := markdown.NewMarkdown(out)

	title := "Run History"
	if site != "" {
		title += ": " + site
	}
	md.H1(title)
	md.PlainText("")

	if len(runs) == 0 {
		md.PlainText("No runs found.")
		return md.Build()
	}

	rows := make([][]string, len(runs))
	for i, r := range runs {
		rows[i] = []string{
			strconv.FormatInt(r.ID, 10),
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			"`" + r.Site + "`",
			runStatus(r.Succeeded),
			strconv.Itoa(r.Pages),
			strconv.Itoa(r.Assets),
			strconv.Itoa(r.Findings),
			r.ArchiveName,
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"ID", "Started", "Site", "Status", "Pages", "Assets", "Findings", "Archive"},
		Rows:   rows,
	})
	return md.Build()
}

// showRunDiff compares a run with the previous successful run of its site.
func showRunDiff(ctx context.Context, out io.Writer, db *database.RunDB, id int64, format historyFormat) error {
	run, err := db.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run with ID %d not found", id)
	}

	base, err := db.PreviousRun(ctx, run.Site, id)
	if err != nil {
		return err
	}
	if base == nil {
		return fmt.Errorf("no successful run of %s before run %d", run.Site, id)
	}

	diff := model.DiffPages(base, run)

	switch format {
	case formatJSON:
		return writeJSON(out, diff)
	case formatMarkdown:
		return writeDiffMarkdown(out, run, base, diff)
	}

	fmt.Fprintf(out, "Page changes: %s\n", run.Site)
	fmt.Fprintln(out, strings.Repeat("=", 60))
	fmt.Fprintf(out, "\nPrevious run: #%d %s\n", base.ID, base.StartedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Current run:  #%d %s\n", run.ID, run.StartedAt.Local().Format("2006-01-02 15:04:05"))

	if !diff.HasChanges() {
		fmt.Fprintf(out, "\nNo page changes (%d pages unchanged)\n", diff.Unchanged)
		return nil
	}

	printPaths := func(title, marker string, paths []string) {
		if len(paths) == 0 {
			return
		}
		fmt.Fprintf(out, "\n%s (%d):\n", title, len(paths))
		for _, p := range paths {
			fmt.Fprintf(out, "  [%s] %s\n", marker, p)
		}
	}
	printPaths("Added", "+", diff.Added)
	printPaths("Removed", "-", diff.Removed)
	printPaths("Changed", "~", diff.Changed)

	fmt.Fprintf(out, "\nUnchanged: %d pages\n", diff.Unchanged)
	return nil
}

// writeDiffMarkdown renders a page diff in Markdown.
func writeDiffMarkdown(out io.Writer, run, base *model.Run, diff *model.PageDiff) error {
	md := markdown.NewMarkdown(out)

	md.H1("Page Changes: " + run.Site)
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Previous", "Current"},
		Rows: [][]string{
			{"Run", "#" + strconv.FormatInt(base.ID, 10), "#" + strconv.FormatInt(run.ID, 10)},
			{"Date", base.StartedAt.Local().Format("2006-01-02 15:04"), run.StartedAt.Local().Format("2006-01-02 15:04")},
			{"Pages", strconv.Itoa(len(base.Pages)), strconv.Itoa(len(run.Pages))},
		},
	})
	md.PlainText("")

	section := func(title string, paths []string) {
		if len(paths) == 0 {
			return
		}
		md.H2(fmt.Sprintf("%s (%d)", title, len(paths)))
		md.PlainText("")
		items := make([]string, len(paths))
		for i, p := range paths {
			items[i] = "`" + p + "`"
		}
		md.BulletList(items...)
		md.PlainText("")
	}
	section("Added", diff.Added)
	section("Removed", diff.Removed)
	section("Changed", diff.Changed)

	md.PlainText(fmt.Sprintf("*%d pages unchanged*", diff.Unchanged))
	return md.Build()
}

// pruneRuns deletes runs started before cutoff.
func pruneRuns(ctx context.Context, out io.Writer, db *database.RunDB, cutoff time.Time) error {
	n, err := db.DeleteRunsBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to delete runs: %w", err)
	}
	fmt.Fprintf(out, "Deleted %d runs started before %s\n", n, cutoff.Format(historyDateLayout))
	return nil
}

func runStatus(succeeded bool) string {
	if succeeded {
		return "ok"
	}
	return "failed"
}

// writeJSON encodes v as indented JSON.
func writeJSON(out io.Writer, v any) error {
	_, err := report.NewJSONWriter(out, report.WithPrettyPrint()).WriteValue(v)
	return err
}
