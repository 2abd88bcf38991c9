// Package stream provides a file-backed readable byte stream whose
// lifecycle is reported as events on an [eventloop.Emitter].
package stream

import (
	"context"
	"errors"
	"io"
	"os"
	"sync/atomic"

	"github.com/joeycumines/go-faultcatalog/eventloop"
	"github.com/joeycumines/go-faultcatalog/fault"
)

// Events emitted by a [ReadStream], in lifecycle order.
const (
	// EventOpen is emitted with the path once the file is open.
	EventOpen = "open"
	// EventData is emitted with each chunk ([]byte) read.
	EventData = "data"
	// EventEnd is emitted once all data has been read.
	EventEnd = "end"
	// EventError is emitted with a resource fault if opening or reading
	// fails. With no listener registered, it escalates to an uncaught fault.
	EventError = eventloop.EventError
	// EventClose is always emitted last, unless the loop already terminated.
	EventClose = "close"
)

// DefaultHighWaterMark is the default maximum chunk size.
const DefaultHighWaterMark = 64 * 1024

// Option configures [CreateReadStream].
type Option func(*ReadStream)

// WithHighWaterMark sets the maximum chunk size. Values < 1 are ignored.
func WithHighWaterMark(n int) Option {
	return func(s *ReadStream) {
		if n > 0 {
			s.highWaterMark = n
		}
	}
}

// ReadStream reads a file in chunks off the loop, emitting its events on the
// loop goroutine, each as its own task. Listeners may be attached any time
// before the current task ends; no event is emitted sooner.
type ReadStream struct {
	*eventloop.Emitter

	loop   *eventloop.Loop
	done   *eventloop.ChainedPromise
	cancel context.CancelFunc
	path   string

	highWaterMark int
	bytesRead     atomic.Int64
}

// CreateReadStream opens path for reading and starts streaming it.
func CreateReadStream(js *eventloop.JS, path string, opts ...Option) *ReadStream {
	s := &ReadStream{
		Emitter:       eventloop.NewEmitter(),
		loop:          js.Loop(),
		path:          path,
		highWaterMark: DefaultHighWaterMark,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = js.Promisify(ctx, func(ctx context.Context) (eventloop.Result, error) {
		defer cancel()
		s.read(ctx)
		return s.BytesRead(), nil
	})

	return s
}

// Path returns the path being read.
func (s *ReadStream) Path() string {
	return s.path
}

// BytesRead returns the number of bytes read so far.
func (s *ReadStream) BytesRead() int64 {
	return s.bytesRead.Load()
}

// Done returns a promise fulfilled with the total bytes read once the stream
// has finished, after its close event has been queued.
func (s *ReadStream) Done() *eventloop.ChainedPromise {
	return s.done
}

// Destroy stops reading. The stream emits close without end.
func (s *ReadStream) Destroy() {
	s.cancel()
}

func (s *ReadStream) read(ctx context.Context) {
	defer s.emit(EventClose)

	file, err := os.Open(s.path)
	if err != nil {
		s.emitError(fault.Wrap(err))
		return
	}
	defer file.Close()

	s.emit(EventOpen, s.path)

	buf := make([]byte, s.highWaterMark)
	for ctx.Err() == nil {
		n, err := file.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.bytesRead.Add(int64(n))
			s.emit(EventData, chunk)
		}
		if errors.Is(err, io.EOF) {
			s.emit(EventEnd)
			return
		}
		if err != nil {
			s.emitError(fault.Resource("read", s.path, err))
			return
		}
	}
}

func (s *ReadStream) emit(event string, args ...any) {
	if err := s.loop.Submit(func() { s.Emit(event, args...) }); err != nil {
		s.loop.Logger().Debug().
			Str("event", event).
			Str("path", s.path).
			Err(err).
			Log("stream: dropped event")
	}
}

func (s *ReadStream) emitError(f *fault.Fault) {
	if err := s.loop.Submit(func() { s.EmitError(f) }); err != nil {
		s.loop.Logger().Err().
			Err(f).
			Str("path", s.path).
			Log("stream: dropped error event")
	}
}
