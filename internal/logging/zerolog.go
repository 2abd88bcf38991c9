package logging

import (
	"io"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/rs/zerolog"
)

type (
	zerologEvent struct {
		logiface.UnimplementedEvent
		z   *zerolog.Event
		msg string
		lvl logiface.Level
	}

	zerologLogger struct {
		z zerolog.Logger
	}
)

var (
	// compile time assertions

	_ logiface.Event                       = (*zerologEvent)(nil)
	_ logiface.EventFactory[*zerologEvent] = (*zerologLogger)(nil)
	_ logiface.Writer[*zerologEvent]       = (*zerologLogger)(nil)
)

func newZerolog(w io.Writer, level logiface.Level, color bool) *logiface.Logger[logiface.Event] {
	cw := zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    !color,
		TimeFormat: time.RFC3339,
	}
	impl := &zerologLogger{z: zerolog.New(cw).Level(zerolog.TraceLevel).With().Timestamp().Logger()}
	return logiface.New[*zerologEvent](
		logiface.WithEventFactory[*zerologEvent](impl),
		logiface.WithWriter[*zerologEvent](impl),
		logiface.WithLevel[*zerologEvent](level),
	).Logger()
}

func (x *zerologEvent) Level() logiface.Level {
	if x != nil {
		return x.lvl
	}
	return logiface.LevelDisabled
}

func (x *zerologEvent) AddField(key string, val any) {
	x.z.Interface(key, val)
}

func (x *zerologEvent) AddMessage(msg string) bool {
	x.msg = msg
	return true
}

func (x *zerologEvent) AddError(err error) bool {
	x.z.Err(err)
	return true
}

func (x *zerologEvent) AddString(key string, val string) bool {
	x.z.Str(key, val)
	return true
}

func (x *zerologEvent) AddInt(key string, val int) bool {
	x.z.Int(key, val)
	return true
}

func (x *zerologEvent) AddInt64(key string, val int64) bool {
	x.z.Int64(key, val)
	return true
}

func (x *zerologEvent) AddUint64(key string, val uint64) bool {
	x.z.Uint64(key, val)
	return true
}

func (x *zerologEvent) AddBool(key string, val bool) bool {
	x.z.Bool(key, val)
	return true
}

func (x *zerologEvent) AddFloat64(key string, val float64) bool {
	x.z.Float64(key, val)
	return true
}

func (x *zerologEvent) AddDuration(key string, val time.Duration) bool {
	x.z.Dur(key, val)
	return true
}

func (x *zerologEvent) AddTime(key string, val time.Time) bool {
	x.z.Time(key, val)
	return true
}

// NewEvent maps syslog levels onto zerolog's. The levels above error use
// WithLevel, which unlike Fatal and Panic never exits or panics.
func (x *zerologLogger) NewEvent(level logiface.Level) *zerologEvent {
	if !level.Enabled() {
		return nil
	}
	r := zerologEvent{
		lvl: level,
	}
	switch level {
	case logiface.LevelTrace:
		r.z = x.z.Trace()
	case logiface.LevelDebug:
		r.z = x.z.Debug()
	case logiface.LevelInformational:
		r.z = x.z.Info()
	case logiface.LevelNotice, logiface.LevelWarning:
		r.z = x.z.Warn()
	case logiface.LevelError:
		r.z = x.z.Error()
	case logiface.LevelCritical, logiface.LevelAlert:
		r.z = x.z.WithLevel(zerolog.FatalLevel)
	case logiface.LevelEmergency:
		r.z = x.z.WithLevel(zerolog.PanicLevel)
	default:
		// >= 9, translate to numeric levels in zerolog
		// (9 -> -2, 10 -> -3, etc)
		r.z = x.z.WithLevel(zerolog.Level(7 - level))
	}
	return &r
}

func (x *zerologLogger) Write(event *zerologEvent) error {
	event.z.Msg(event.msg)
	return nil
}
