package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"

	timeLayout = "2006-01-02T15:04:05.000Z07:00"
)

// eventHandler normalizes records into flat event lines: fixed leading keys,
// context identifiers, durations in milliseconds. Rendering is left to the
// stdlib JSON or text handler.
type eventHandler struct {
	render slog.Handler
	level  slog.Leveler
	rank   map[string]int
	prefix string
	attrs  []slog.Attr
}

func newEventHandler(w io.Writer, format logFormat, level slog.Leveler, order []string) *eventHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	if len(order) == 0 {
		order = defaultKeyOrder
	}
	opts := &slog.HandlerOptions{Level: slog.LevelDebug, ReplaceAttr: renderAttr}
	var render slog.Handler
	if format == formatKV {
		render = slog.NewTextHandler(w, opts)
	} else {
		render = slog.NewJSONHandler(w, opts)
	}
	rank := make(map[string]int, len(order))
	for i, k := range order {
		rank[k] = i
	}
	return &eventHandler{render: render, level: level, rank: rank}
}

// renderAttr rewrites the built-in keys: ts in UTC millis, no msg.
func renderAttr(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return a
	}
	switch a.Key {
	case slog.TimeKey:
		return slog.String("ts", a.Value.Time().UTC().Format(timeLayout))
	case slog.MessageKey:
		return slog.Attr{}
	}
	return a
}

func (h *eventHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *eventHandler) Handle(ctx context.Context, r slog.Record) error {
	fields := make(map[string]slog.Value, 16)
	put := func(a slog.Attr) { h.flatten(fields, h.prefix, a) }
	for _, a := range h.attrs {
		fields[a.Key] = a.Value
	}
	r.Attrs(func(a slog.Attr) bool {
		put(a)
		return true
	})
	for _, a := range metaFrom(ctx).attrs() {
		if _, ok := fields[a.Key]; !ok {
			fields[a.Key] = a.Value
		}
	}

	if v, ok := fields["rid"]; ok {
		fields["rid"] = slog.StringValue(CompactRID(v.String()))
	}
	if v, ok := fields["event"]; !ok || v.String() == "" {
		event := r.Message
		if event == "" {
			event = "unknown"
		}
		fields["event"] = slog.StringValue(event)
	}
	if v, ok := fields["component"]; !ok || v.String() == "" {
		fields["component"] = slog.StringValue("app")
	}
	normalizeEnums(fields)

	out := slog.NewRecord(r.Time, r.Level, "", r.PC)
	out.AddAttrs(h.ordered(fields)...)
	return h.render.Handle(ctx, out)
}

func (h *eventHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	fields := make(map[string]slog.Value, len(attrs))
	for _, a := range attrs {
		h.flatten(fields, h.prefix, a)
	}
	clone := *h
	clone.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, k := range sortedKeys(fields) {
		clone.attrs = append(clone.attrs, slog.Attr{Key: k, Value: fields[k]})
	}
	return &clone
}

func (h *eventHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = joinKey(h.prefix, name)
	return &clone
}

// flatten stores a as dotted keys, converting values into loggable scalars.
// Empty strings and nil values are dropped.
func (h *eventHandler) flatten(fields map[string]slog.Value, prefix string, a slog.Attr) {
	key := joinKey(prefix, a.Key)
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindGroup:
		for _, child := range v.Group() {
			h.flatten(fields, key, child)
		}
		return
	case slog.KindDuration:
		fields[msKey(key)] = slog.Int64Value(RoundMS(v.Duration()).Milliseconds())
		return
	case slog.KindTime:
		fields[key] = slog.StringValue(v.Time().UTC().Format(time.RFC3339Nano))
		return
	case slog.KindString:
		if s := strings.TrimSpace(v.String()); s != "" {
			fields[key] = slog.StringValue(s)
		}
		return
	case slog.KindAny:
		switch x := v.Any().(type) {
		case nil:
			return
		case error:
			fields[key] = slog.StringValue(x.Error())
			return
		case fmt.Stringer:
			if s := x.String(); s != "" {
				fields[key] = slog.StringValue(s)
			}
			return
		}
	}
	if key != "" {
		fields[key] = v
	}
}

func (h *eventHandler) ordered(fields map[string]slog.Value) []slog.Attr {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ri, iok := h.rank[keys[i]]
		rj, jok := h.rank[keys[j]]
		switch {
		case iok && jok:
			return ri < rj
		case iok != jok:
			return iok
		}
		return keys[i] < keys[j]
	})
	attrs := make([]slog.Attr, len(keys))
	for i, k := range keys {
		attrs[i] = slog.Attr{Key: k, Value: fields[k]}
	}
	return attrs
}

func normalizeEnums(fields map[string]slog.Value) {
	if v, ok := fields["status"]; ok {
		fields["status"] = slog.StringValue(normalizeStatus(v.String()))
	}
	if v, ok := fields["outcome"]; ok {
		if o, valid := normalizeOutcome(v.String()); valid {
			fields["outcome"] = slog.StringValue(o)
		} else {
			delete(fields, "outcome")
		}
	}
}

func msKey(key string) string {
	switch {
	case key == "duration":
		return "duration_ms"
	case strings.HasSuffix(key, "_ms"):
		return key
	}
	return key + "_ms"
}

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	}
	return prefix + "." + key
}

func sortedKeys(m map[string]slog.Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
