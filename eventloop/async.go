package eventloop

import (
	"runtime"

	"github.com/joeycumines/go-faultcatalog/fault"
)

// AsyncFunc is the body of an async function, see [JS.Async].
type AsyncFunc func(a *Awaiter) (Result, error)

// Awaiter suspends an async function body until a promise settles.
//
// The body runs on its own goroutine, but only ever while the loop goroutine
// is blocked handing control to it, so it never runs concurrently with other
// loop callbacks. If the loop terminates while the body is suspended on a
// pending promise, the body is unwound with [runtime.Goexit]: its deferred
// calls run, but nothing after the suspension point does.
type Awaiter struct {
	js     *JS
	resume chan settlement
	yield  chan asyncStep
}

type settlement struct {
	value    Result
	rejected bool
}

// asyncStep is sent by the body: either a promise to await, or completion.
type asyncStep struct {
	await *ChainedPromise
	value Result
	fault *fault.Fault
	done  bool
}

// Async runs body as an async function and returns the promise for its
// result.
//
// Like an async function, body runs synchronously until its first
// [Awaiter.Await], each resumption happens in a microtask after the awaited
// promise settles, and a returned error or raised fault rejects the returned
// promise instead of escaping to the caller.
//
// Async must be called on the loop goroutine.
func (js *JS) Async(body AsyncFunc) *ChainedPromise {
	p := js.newPromise()
	a := &Awaiter{
		js:     js,
		resume: make(chan settlement),
		yield:  make(chan asyncStep),
	}

	go func() {
		completed := false
		defer func() {
			if completed {
				return
			}
			if r := recover(); r != nil {
				a.send(asyncStep{done: true, fault: fault.FromPanic(r)})
			} else {
				a.send(asyncStep{done: true, fault: fault.Wrap(ErrGoexit)})
			}
		}()
		v, err := body(a)
		completed = true
		a.send(asyncStep{done: true, value: v, fault: fault.Wrap(err)})
	}()

	js.drive(a, p)
	return p
}

// drive blocks until the body yields, then settles p or arranges for the
// body to resume once the awaited promise settles.
func (js *JS) drive(a *Awaiter, p *ChainedPromise) {
	step := <-a.yield
	if step.done {
		if step.fault != nil {
			p.reject(step.fault)
		} else {
			p.resolve(step.value)
		}
		return
	}

	step.await.Then(
		func(v Result) Result {
			a.resume <- settlement{value: v}
			js.drive(a, p)
			return nil
		},
		func(r Result) Result {
			a.resume <- settlement{value: r, rejected: true}
			js.drive(a, p)
			return nil
		},
	)
}

// Await suspends the body until v settles. A non-promise v is treated as an
// already fulfilled promise. A rejection is returned as a [*fault.Fault]
// error, for the body to handle or return.
func (a *Awaiter) Await(v Result) (Result, error) {
	s := a.await(v)
	if s.rejected {
		return nil, reasonFault(s.value)
	}
	return s.value, nil
}

// AwaitOutcome is [Awaiter.Await] returning an outcome value.
func (a *Awaiter) AwaitOutcome(v Result) fault.Outcome[Result] {
	s := a.await(v)
	if s.rejected {
		return fault.Failure[Result](reasonFault(s.value))
	}
	return fault.Success(s.value)
}

// MustAwait is [Awaiter.Await], raising a rejection as a fault with
// [fault.Throw]. Within the body, this rejects the async function's promise.
func (a *Awaiter) MustAwait(v Result) Result {
	r, err := a.Await(v)
	fault.Throw(err)
	return r
}

func (a *Awaiter) await(v Result) settlement {
	pr, ok := v.(*ChainedPromise)
	if !ok {
		pr = a.js.Resolve(v)
	}
	if a.send(asyncStep{await: pr}) {
		select {
		case s := <-a.resume:
			return s
		case <-a.js.loop.Done():
		}
	}
	// the loop is gone, pr can never settle
	runtime.Goexit()
	return settlement{}
}

// send hands step to the loop goroutine, reporting false if the loop has
// terminated instead.
func (a *Awaiter) send(step asyncStep) bool {
	select {
	case a.yield <- step:
		return true
	case <-a.js.loop.Done():
		return false
	}
}
