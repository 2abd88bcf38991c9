package logging

import (
	"context"
	"io"
	"log/slog"
	"runtime"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/lmittmann/tint"
)

type (
	slogEvent struct {
		logiface.UnimplementedEvent
		time    time.Time
		err     error
		message string
		attrs   []slog.Attr
		lvl     logiface.Level
	}

	// slogLogger writes events to a slog.Handler
	slogLogger struct {
		handler slog.Handler
	}
)

var (
	// compile time assertions

	_ logiface.Event                    = (*slogEvent)(nil)
	_ logiface.EventFactory[*slogEvent] = (*slogLogger)(nil)
	_ logiface.Writer[*slogEvent]       = (*slogLogger)(nil)
)

func newSlog(w io.Writer, level logiface.Level, color bool) *logiface.Logger[logiface.Event] {
	impl := &slogLogger{handler: tint.NewHandler(w, &tint.Options{
		// filtering happens in logiface
		Level:      slog.LevelDebug - 4,
		TimeFormat: time.RFC3339,
		NoColor:    !color,
	})}
	return logiface.New[*slogEvent](
		logiface.WithEventFactory[*slogEvent](impl),
		logiface.WithWriter[*slogEvent](impl),
		logiface.WithLevel[*slogEvent](level),
	).Logger()
}

// toSlogLevel converts logiface.Level to slog.Level. The mapping is lossy,
// as slog has only four standard levels.
func toSlogLevel(lvl logiface.Level) slog.Level {
	switch lvl {
	case logiface.LevelTrace:
		return slog.LevelDebug - 4
	case logiface.LevelDebug:
		return slog.LevelDebug
	case logiface.LevelInformational:
		return slog.LevelInfo
	case logiface.LevelNotice, logiface.LevelWarning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

func (x *slogEvent) Level() logiface.Level {
	if x == nil {
		return logiface.LevelDisabled
	}
	return x.lvl
}

func (x *slogEvent) AddField(key string, val any) {
	x.attrs = append(x.attrs, slog.Any(key, val))
}

func (x *slogEvent) AddMessage(msg string) bool {
	x.message = msg
	return true
}

func (x *slogEvent) AddError(err error) bool {
	x.err = err
	return true
}

func (x *slogEvent) AddString(key string, val string) bool {
	x.attrs = append(x.attrs, slog.String(key, val))
	return true
}

func (x *slogEvent) AddInt(key string, val int) bool {
	x.attrs = append(x.attrs, slog.Int(key, val))
	return true
}

func (x *slogEvent) AddBool(key string, val bool) bool {
	x.attrs = append(x.attrs, slog.Bool(key, val))
	return true
}

func (x *slogEvent) AddDuration(key string, val time.Duration) bool {
	x.attrs = append(x.attrs, slog.Duration(key, val))
	return true
}

func (x *slogEvent) AddTime(key string, val time.Time) bool {
	x.attrs = append(x.attrs, slog.Time(key, val))
	return true
}

func (x *slogLogger) NewEvent(level logiface.Level) *slogEvent {
	if !level.Enabled() {
		return nil
	}
	return &slogEvent{
		time: time.Now(),
		lvl:  level,
	}
}

// Write emits the event as a slog.Record.
func (x *slogLogger) Write(event *slogEvent) error {
	ctx := context.Background()
	level := toSlogLevel(event.lvl)
	if !x.handler.Enabled(ctx, level) {
		return logiface.ErrDisabled
	}

	// skip runtime.Callers and Write
	var pcs [1]uintptr
	runtime.Callers(2, pcs[:])

	record := slog.NewRecord(event.time, level, event.message, pcs[0])
	record.AddAttrs(event.attrs...)
	if event.err != nil {
		record.AddAttrs(tint.Err(event.err))
	}
	return x.handler.Handle(ctx, record)
}
