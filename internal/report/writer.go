package report

import (
	"io"

	applog "github.com/nao1215/cfstatic/internal/log"
	"github.com/nao1215/cfstatic/internal/model"
)

// Writer renders the outcome of a generation run.
// The entries are the ordered run log; writers render them after the
// summary so the operator sees every step the run took.
type Writer interface {
	// Write outputs the report to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(run *model.Run, entries []applog.Entry) (int, error)
}

// MultiWriter writes to multiple Writers, for example the terminal and a
// report file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(run *model.Run, entries []applog.Entry) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(run, entries)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// statusText returns a short description of how the run ended.
func statusText(run *model.Run) string {
	switch {
	case run.Error != "":
		return "FAILED - " + run.Error
	case run.FinishedAt.IsZero():
		return "Running"
	default:
		return "Complete"
	}
}

// authText describes how the run reached the origin.
func authText(run *model.Run) string {
	switch {
	case run.Authenticated:
		return "Access session"
	case run.PartialCredentials:
		return "Unauthenticated (partial credentials)"
	default:
		return "Unauthenticated"
	}
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
