package logring

import (
	"context"
	"log/slog"
)

// Tee forwards records to an inner handler and captures them into a Buffer.
type Tee struct {
	inner slog.Handler
	buf   *Buffer
	// attrs carry their full dotted key, fixed when they were added.
	attrs  []slog.Attr
	prefix string
}

func NewTee(inner slog.Handler, buf *Buffer) *Tee {
	return &Tee{inner: inner, buf: buf}
}

func (t *Tee) Enabled(ctx context.Context, level slog.Level) bool {
	return t.inner.Enabled(ctx, level)
}

func (t *Tee) Handle(ctx context.Context, r slog.Record) error {
	e := Entry{Time: r.Time, Level: r.Level, Message: r.Message}
	attrs := make(map[string]any, len(t.attrs)+r.NumAttrs())
	add := func(key string, v slog.Value) {
		if key == RoomAttr {
			e.Room = v.String()
		}
		attrs[key] = v.Any()
	}
	for _, a := range t.attrs {
		add(a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		add(t.prefix+a.Key, a.Value)
		return true
	})
	if len(attrs) > 0 {
		e.Attrs = attrs
	}
	t.buf.Add(e)

	return t.inner.Handle(ctx, r)
}

func (t *Tee) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(t.attrs)+len(attrs))
	merged = append(merged, t.attrs...)
	for _, a := range attrs {
		merged = append(merged, slog.Attr{Key: t.prefix + a.Key, Value: a.Value})
	}
	return &Tee{inner: t.inner.WithAttrs(attrs), buf: t.buf, attrs: merged, prefix: t.prefix}
}

func (t *Tee) WithGroup(name string) slog.Handler {
	if name == "" {
		return t
	}
	return &Tee{inner: t.inner.WithGroup(name), buf: t.buf, attrs: t.attrs, prefix: t.prefix + name + "."}
}
