package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const (
	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiRed    = "\033[31m"
	ansiYellow = "\033[33m"
	ansiBlue   = "\033[34m"
	ansiCyan   = "\033[36m"
	ansiDim    = "\033[90m"
)

// PrettyHandler renders records as single colored lines for terminal use:
// a dim timestamp, a bold level, the message, then key=value attributes.
type PrettyHandler struct {
	w      io.Writer
	level  slog.Leveler
	mu     *sync.Mutex
	prefix string      // dotted group path applied to record attrs
	fields []slog.Attr // attrs accumulated via WithAttrs, keys already prefixed
}

func NewPrettyHandler(w io.Writer, opts *slog.HandlerOptions) *PrettyHandler {
	h := &PrettyHandler{w: w, mu: &sync.Mutex{}}
	if opts != nil {
		h.level = opts.Level
	}
	return h
}

func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	min := slog.LevelInfo
	if h.level != nil {
		min = h.level.Level()
	}
	return level >= min
}

func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.Grow(128)

	b.WriteString(ansiDim)
	b.WriteByte('[')
	b.WriteString(r.Time.Format(time.DateTime))
	b.WriteByte(']')
	b.WriteString(ansiReset)
	b.WriteByte(' ')

	name := r.Level.String()
	b.WriteString(levelColor(r.Level))
	b.WriteString(ansiBold)
	b.WriteString(name)
	for i := len(name); i < 5; i++ {
		b.WriteByte(' ')
	}
	b.WriteString(ansiReset)
	b.WriteByte(' ')

	b.WriteString(r.Message)

	hasAttrs := len(h.fields) > 0 || r.NumAttrs() > 0
	if hasAttrs {
		b.WriteByte(' ')
		b.WriteString(ansiCyan)
		first := true
		for _, a := range h.fields {
			writeAttr(&b, a, "", &first)
		}
		r.Attrs(func(a slog.Attr) bool {
			writeAttr(&b, a, h.prefix, &first)
			return true
		})
		b.WriteString(ansiReset)
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	child := h.clone()
	for _, a := range attrs {
		if h.prefix != "" {
			a.Key = h.prefix + "." + a.Key
		}
		child.fields = append(child.fields, a)
	}
	return child
}

func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	child := h.clone()
	if h.prefix == "" {
		child.prefix = name
	} else {
		child.prefix = h.prefix + "." + name
	}
	return child
}

// clone shares the writer and its mutex so concurrent children do not
// interleave lines.
func (h *PrettyHandler) clone() *PrettyHandler {
	return &PrettyHandler{
		w:      h.w,
		level:  h.level,
		mu:     h.mu,
		prefix: h.prefix,
		fields: append([]slog.Attr(nil), h.fields...),
	}
}

func levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return ansiRed
	case level >= slog.LevelWarn:
		return ansiYellow
	case level >= slog.LevelInfo:
		return ansiBlue
	default:
		return ansiDim
	}
}

// writeAttr emits one attribute as key=value, flattening group values into
// dotted keys. first tracks whether a separating space is needed.
func writeAttr(b *strings.Builder, a slog.Attr, prefix string, first *bool) {
	key := a.Key
	if prefix != "" {
		key = prefix + "." + key
	}
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, ga := range v.Group() {
			writeAttr(b, ga, key, first)
		}
		return
	}
	if !*first {
		b.WriteByte(' ')
	}
	*first = false

	b.WriteString(key)
	b.WriteByte('=')
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if needsQuoting(s) {
			b.WriteByte('"')
			b.WriteString(s)
			b.WriteByte('"')
		} else {
			b.WriteString(s)
		}
	case slog.KindTime:
		b.WriteString(v.Time().Format(time.RFC3339))
	default:
		fmt.Fprint(b, v.Any())
	}
}

func needsQuoting(s string) bool {
	return strings.ContainsAny(s, " \t\n\"")
}
