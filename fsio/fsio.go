// Package fsio reads files in the three styles a loop-based program uses:
// an error-first callback, a promise, and a guarded synchronous call.
//
// Every failure is a [*fault.Fault] of kind [fault.KindResource] naming the
// path and a reason such as "not found".
package fsio

import (
	"context"
	"os"

	"github.com/joeycumines/go-faultcatalog/eventloop"
	"github.com/joeycumines/go-faultcatalog/fault"
)

// Callback is an error-first continuation: exactly one of err and data is
// meaningful. Callers must check err before using data.
type Callback func(err error, data []byte)

// ReadFile reads path off the loop and invokes cb with the result as its own
// macrotask on the loop goroutine. A panic in cb is therefore an uncaught
// fault, as with any other task.
func ReadFile(js *eventloop.JS, path string, cb Callback) {
	deliver(js.Loop(), ReadFilePromise(js, path), cb)
}

// deliver settles cb from p. A rejection reason that is not already a fault
// is converted the way a recovered panic would be, so err is never a nil
// *fault.Fault.
func deliver(loop *eventloop.Loop, p *eventloop.ChainedPromise, cb Callback) {
	p.Then(
		func(v eventloop.Result) eventloop.Result {
			submit(loop, func() { cb(nil, v.([]byte)) })
			return nil
		},
		func(r eventloop.Result) eventloop.Result {
			f := fault.FromPanic(r)
			submit(loop, func() { cb(f, nil) })
			return nil
		},
	)
}

func submit(loop *eventloop.Loop, task eventloop.Task) {
	if err := loop.Submit(task); err != nil {
		loop.Logger().Err().
			Err(err).
			Log("fsio: dropped read continuation")
	}
}

// ReadFilePromise reads path off the loop, returning a promise for its
// contents ([]byte).
func ReadFilePromise(js *eventloop.JS, path string) *eventloop.ChainedPromise {
	return js.Promisify(context.Background(), func(context.Context) (eventloop.Result, error) {
		data, err := ReadFileSync(path)
		if err != nil {
			return nil, err
		}
		return data, nil
	})
}

// ReadFileSync reads path on the calling goroutine. The error, if any, is a
// [*fault.Fault] of kind [fault.KindResource].
func ReadFileSync(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if f := fault.Wrap(err); f.Kind() == fault.KindResource {
			return nil, f
		}
		return nil, fault.Resource("read", path, err)
	}
	return data, nil
}
