package eventloop

import (
	"context"

	"github.com/joeycumines/go-faultcatalog/fault"
)

// Promisify executes fn in a new goroutine and returns a promise for its
// result. This is how blocking work (file I/O and the like) is bridged onto
// the loop.
//
// It ensures:
//   - Single owner: settlement is submitted as a task, so it happens on the
//     loop goroutine, and reactions run in a later turn than the call
//   - Liveness: the loop does not go idle while fn is in flight
//   - Faults: a returned error or recovered panic rejects the promise with a
//     [*fault.Fault]; runtime.Goexit rejects with [ErrGoexit]
//   - Fallback: if the loop can no longer accept tasks, the promise is
//     settled directly so it always settles
func (js *JS) Promisify(ctx context.Context, fn func(ctx context.Context) (Result, error)) *ChainedPromise {
	l := js.loop
	p := js.newPromise()

	if err := l.addRef(); err != nil {
		p.reject(fault.Wrap(err))
		return p
	}

	settle := func(value Result, reason *fault.Fault) {
		apply := func() {
			l.releaseRef()
			if reason != nil {
				p.reject(reason)
			} else {
				p.resolve(value)
			}
		}
		if err := l.Submit(apply); err != nil {
			apply()
			l.wakeup()
		}
	}

	go func() {
		// distinguishes normal return from Goexit
		completed := false

		if err := ctx.Err(); err != nil {
			completed = true
			settle(nil, fault.Wrap(err))
			return
		}

		defer func() {
			if r := recover(); r != nil {
				settle(nil, fault.FromPanic(r))
			} else if !completed {
				settle(nil, fault.Wrap(ErrGoexit))
			}
		}()

		res, err := fn(ctx)
		completed = true
		settle(res, fault.Wrap(err))
	}()

	return p
}
