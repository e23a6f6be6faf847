package edict

import (
	"context"
	"log/slog"
	"strconv"
)

// Options configure a dictionary tree. Children share the options of their
// root.
type Options struct {
	// Logger receives warnings about non-fatal conditions. Defaults to
	// slog.Default().
	Logger *slog.Logger

	// OnEvent, if set, is called for every non-fatal condition in addition to
	// logging it.
	OnEvent func(Event)
}

// EventKind enumerates the non-fatal conditions a dictionary reports.
type EventKind int

const (
	// EventInsertConflict: insert found an existing non-empty key and kept it.
	EventInsertConflict EventKind = iota + 1
	// EventExtendConflict: extend found an existing non-empty key and skipped it.
	EventExtendConflict
	// EventUpdateEmpty: update was called on an empty dictionary.
	EventUpdateEmpty
	// EventParseError: Update or Extend received malformed bytes and did nothing.
	EventParseError
	// EventRemoveMissing: Remove was called with a key that is not present.
	EventRemoveMissing
	// EventCloseFailed: closing a stored value failed while it was released.
	EventCloseFailed
)

var eventKindNames = [...]string{
	EventInsertConflict: "insert_conflict",
	EventExtendConflict: "extend_conflict",
	EventUpdateEmpty:    "update_empty",
	EventParseError:     "parse_error",
	EventRemoveMissing:  "remove_missing",
	EventCloseFailed:    "close_failed",
}

// AllEventKinds lists every kind, in declaration order.
var AllEventKinds = []EventKind{
	EventInsertConflict,
	EventExtendConflict,
	EventUpdateEmpty,
	EventParseError,
	EventRemoveMissing,
	EventCloseFailed,
}

func (k EventKind) String() string {
	if k > 0 && int(k) < len(eventKindNames) {
		return eventKindNames[k]
	}
	return "EventKind(" + strconv.Itoa(int(k)) + ")"
}

// Event describes one non-fatal condition.
type Event struct {
	Kind EventKind
	Key  string // empty when no single key is involved
	Type string // name of the stored type, when known
	Err  error
}

type env struct {
	logger  *slog.Logger
	onEvent func(Event)
}

var defaultEnv = &env{}

func newEnv(opt Options) *env {
	return &env{
		logger:  opt.Logger,
		onEvent: opt.OnEvent,
	}
}

func (e *env) log() *slog.Logger {
	if e.logger != nil {
		return e.logger
	}
	return slog.Default()
}

func (e *env) report(ev Event) {
	level, msg := slog.LevelWarn, ""
	switch ev.Kind {
	case EventInsertConflict:
		msg = "edict: key already exists, keeping existing value"
	case EventExtendConflict:
		msg = "edict: extend skipping existing key"
	case EventUpdateEmpty:
		msg = "edict: update of an empty dictionary"
	case EventParseError:
		level, msg = slog.LevelError, "edict: malformed data ignored"
	case EventRemoveMissing:
		level, msg = slog.LevelDebug, "edict: no key to remove"
	case EventCloseFailed:
		level, msg = slog.LevelError, "edict: closing value failed"
	}
	attrs := make([]slog.Attr, 0, 3)
	if ev.Key != "" {
		attrs = append(attrs, slog.String("key", ev.Key))
	}
	if ev.Type != "" {
		attrs = append(attrs, slog.String("type", ev.Type))
	}
	if ev.Err != nil {
		attrs = append(attrs, slog.Any("err", ev.Err))
	}
	e.log().LogAttrs(context.Background(), level, msg, attrs...)
	if e.onEvent != nil {
		e.onEvent(ev)
	}
}
