package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

// PrettyHandler writes each record as an indented JSON object. It is meant
// for reading training logs in a terminal, not for throughput.
//
// Attributes added with WithAttrs are resolved once into a tree; groups
// opened with WithGroup only apply to attributes added after them.
type PrettyHandler struct {
	out   io.Writer
	mu    *sync.Mutex
	opts  slog.HandlerOptions
	tree  map[string]any
	group []string
}

func NewPrettyHandler(w io.Writer, opts *slog.HandlerOptions) *PrettyHandler {
	h := &PrettyHandler{out: w, mu: &sync.Mutex{}, tree: map[string]any{}}
	if opts != nil {
		h.opts = *opts
	}
	if h.opts.Level == nil {
		h.opts.Level = slog.LevelInfo
	}
	return h
}

func (h *PrettyHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.opts.Level.Level()
}

func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	doc := copyTree(h.tree)

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	doc[slog.TimeKey] = ts.Format(time.RFC3339Nano)
	doc[slog.LevelKey] = r.Level.String()
	doc[slog.MessageKey] = r.Message
	if h.opts.AddSource && r.PC != 0 {
		f, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		if f.File != "" {
			doc[slog.SourceKey] = fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
		}
	}

	target := descend(doc, h.group)
	r.Attrs(func(a slog.Attr) bool {
		put(target, a)
		return true
	})

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		// Values that cannot be marshalled fall back to their %v form.
		buf.Reset()
		if err := enc.Encode(stringify(doc)); err != nil {
			return err
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.out.Write(buf.Bytes())
	return err
}

func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	c := *h
	c.tree = copyTree(h.tree)
	target := descend(c.tree, c.group)
	for _, a := range attrs {
		put(target, a)
	}
	return &c
}

func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.group = append(append([]string(nil), h.group...), name)
	return &c
}

// descend walks (creating as needed) the nested maps named by path.
func descend(m map[string]any, path []string) map[string]any {
	for _, k := range path {
		next, ok := m[k].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[k] = next
		}
		m = next
	}
	return m
}

func put(m map[string]any, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		attrs := v.Group()
		if len(attrs) == 0 {
			return
		}
		// An unnamed group is inlined.
		dst := m
		if a.Key != "" {
			dst = descend(m, []string{a.Key})
		}
		for _, ga := range attrs {
			put(dst, ga)
		}
		return
	}
	if a.Key == "" {
		return
	}
	m[a.Key] = plain(v)
}

func plain(v slog.Value) any {
	switch v.Kind() {
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return v.Any()
	default:
		return v.Any()
	}
}

func copyTree(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+4)
	for k, v := range m {
		if sub, ok := v.(map[string]any); ok {
			out[k] = copyTree(sub)
			continue
		}
		out[k] = v
	}
	return out
}

func stringify(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch tv := v.(type) {
		case map[string]any:
			out[k] = stringify(tv)
		case float64:
			if math.IsNaN(tv) || math.IsInf(tv, 0) {
				out[k] = fmt.Sprintf("%v", tv)
			} else {
				out[k] = tv
			}
		case string, bool, int64, uint64, nil:
			out[k] = tv
		default:
			out[k] = fmt.Sprintf("%v", tv)
		}
	}
	return out
}
