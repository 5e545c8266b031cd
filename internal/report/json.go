package report

import (
	"encoding/json"
	"io"

	applog "github.com/nao1215/cfstatic/internal/log"
	"github.com/nao1215/cfstatic/internal/model"
)

// JSONWriter outputs reports in JSON format for tool integration.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	indent bool

	indentPrefix string
	indentString string

	// version is recorded in the report envelope.
	version string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with two-space indentation.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// WithVersion records the cfstatic version in the report.
func WithVersion(version string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.version = version
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// JSONReport is the envelope written by JSONWriter.
type JSONReport struct {
	// Version is the cfstatic version that generated this report.
	Version string `json:"version,omitempty"`

	// Run is the generation run.
	Run *model.Run `json:"run"`

	// Log is the ordered run log.
	Log []applog.Entry `json:"log"`
}

// Write outputs the run and its log as one JSON document.
func (w *JSONWriter) Write(run *model.Run, entries []applog.Entry) (int, error) {
	if entries == nil {
		entries = []applog.Entry{}
	}
	return w.WriteValue(&JSONReport{
		Version: w.version,
		Run:     run,
		Log:     entries,
	})
}

// WriteValue marshals any value with the writer's formatting, followed
// by a newline. The history command uses it for run listings.
func (w *JSONWriter) WriteValue(v any) (int, error) {
	var data []byte
	var err error

	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}

	data = append(data, '\n')
	return w.output.Write(data)
}
