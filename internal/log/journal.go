package log

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

// Entry is one record of a Journal.
type Entry struct {
	Time    time.Time   `json:"time"`
	Level   slog.Level  `json:"level"`
	Message string      `json:"message"`
	Attrs   []slog.Attr `json:"-"`

	// Fields is the flattened text form of Attrs, used by report writers.
	Fields map[string]string `json:"fields,omitempty"`
}

// String renders the entry as "LEVEL message key=value ...".
// Attributes keep their emission order.
func (e Entry) String() string {
	var b strings.Builder
	b.WriteString(e.Level.String())
	b.WriteByte(' ')
	b.WriteString(e.Message)
	for _, a := range e.Attrs {
		fmt.Fprintf(&b, " %s=%s", a.Key, a.Value.String())
	}
	return b.String()
}

// Journal is the ordered log of one generation run.
// It is filled through the slog.Handler returned by Handler and read once
// the run is over. It is safe for concurrent use.
type Journal struct {
	mu      sync.Mutex
	entries []Entry
	level   slog.Leveler
}

// NewJournal creates a Journal that keeps records at or above level.
// A nil level keeps Info and above.
func NewJournal(level slog.Leveler) *Journal {
	if level == nil {
		level = slog.LevelInfo
	}
	return &Journal{level: level}
}

// Handler returns an slog.Handler that appends to the journal.
func (j *Journal) Handler() slog.Handler {
	return &journalHandler{journal: j}
}

// Entries returns a copy of all entries in emission order.
func (j *Journal) Entries() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return slices.Clone(j.entries)
}

// Warnings returns the entries at Warn level or above.
func (j *Journal) Warnings() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()

	var out []Entry
	for _, e := range j.entries {
		if e.Level >= slog.LevelWarn {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of entries.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

func (j *Journal) append(e Entry) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
}

// journalHandler carries the attributes and group prefix bound with
// WithAttrs and WithGroup.
type journalHandler struct {
	journal *Journal
	attrs   []slog.Attr
	prefix  string
}

func (h *journalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.journal.level.Level()
}

func (h *journalHandler) Handle(_ context.Context, r slog.Record) error {
	attrs := slices.Clone(h.attrs)
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, flatten(h.prefix, a)...)
		return true
	})

	fields := make(map[string]string, len(attrs))
	for _, a := range attrs {
		fields[a.Key] = a.Value.String()
	}

	h.journal.append(Entry{
		Time:    r.Time,
		Level:   r.Level,
		Message: r.Message,
		Attrs:   attrs,
		Fields:  fields,
	})
	return nil
}

func (h *journalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	bound := slices.Clone(h.attrs)
	for _, a := range attrs {
		bound = append(bound, flatten(h.prefix, a)...)
	}
	return &journalHandler{journal: h.journal, attrs: bound, prefix: h.prefix}
}

func (h *journalHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &journalHandler{journal: h.journal, attrs: h.attrs, prefix: h.prefix + name + "."}
}

// flatten expands group attributes into dotted keys.
func flatten(prefix string, a slog.Attr) []slog.Attr {
	a.Value = a.Value.Resolve()
	if a.Value.Kind() != slog.KindGroup {
		if a.Key == "" {
			return nil
		}
		return []slog.Attr{{Key: prefix + a.Key, Value: a.Value}}
	}

	groupPrefix := prefix
	if a.Key != "" {
		groupPrefix = prefix + a.Key + "."
	}
	var out []slog.Attr
	for _, ga := range a.Value.Group() {
		out = append(out, flatten(groupPrefix, ga)...)
	}
	return out
}

// TeeHandler forwards every record to all handlers that accept its level.
type TeeHandler struct {
	handlers []slog.Handler
}

// NewTeeHandler creates a handler that fans out to handlers.
func NewTeeHandler(handlers ...slog.Handler) *TeeHandler {
	return &TeeHandler{handlers: handlers}
}

// Enabled reports whether any wrapped handler accepts level.
func (t *TeeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle passes a clone of r to each handler enabled for its level and
// returns the first error.
func (t *TeeHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range t.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// WithAttrs returns a TeeHandler whose handlers carry attrs.
func (t *TeeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		out[i] = h.WithAttrs(attrs)
	}
	return &TeeHandler{handlers: out}
}

// WithGroup returns a TeeHandler whose handlers open group name.
func (t *TeeHandler) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		out[i] = h.WithGroup(name)
	}
	return &TeeHandler{handlers: out}
}
