package eventloop

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/joeycumines/go-faultcatalog/fault"
)

// Result represents the value of a resolved or rejected promise.
// For rejected promises, this typically holds a [*fault.Fault] or other error.
type Result = any

// PromiseID identifies a promise within a [JS] adapter, e.g. in
// unhandled rejection reports.
type PromiseID uint64

// PromiseState represents the lifecycle state of a [ChainedPromise].
// A promise starts in [Pending] state and transitions to either
// [Fulfilled] or [Rejected], exactly once.
type PromiseState int32

const (
	// Pending indicates the promise has not settled.
	Pending PromiseState = iota

	// Fulfilled indicates the promise completed successfully with a value.
	Fulfilled

	// Rejected indicates the promise failed with a reason.
	Rejected
)

func (s PromiseState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Fulfilled:
		return "fulfilled"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// ChainedPromise is a promise with Then/Catch/Finally chaining.
//
// Handlers always execute as microtasks on the loop goroutine, in the order
// they were attached. Settlement may be triggered from any goroutine, but
// the first settlement wins and later calls are ignored.
//
// Attaching any handler marks the promise as handled for the purposes of
// unhandled rejection detection. The promise returned by Then is itself a
// new promise, which must be handled in turn.
type ChainedPromise struct {
	result   Result
	js       *JS
	handlers []handler
	channels []chan Result

	id       PromiseID
	state    atomic.Int32
	handled  bool
	reported bool

	mu sync.Mutex
}

// handler represents a reaction to promise settlement.
type handler struct {
	onFulfilled func(Result) Result
	onRejected  func(Result) Result
	target      *ChainedPromise
}

// ResolveFunc fulfills (or adopts) a promise. Only the first call to either
// function of a pair has an effect. Safe to call from any goroutine.
type ResolveFunc func(Result)

// RejectFunc rejects a promise with a reason.
type RejectFunc func(Result)

// NewChainedPromise creates a new pending promise along with resolve and
// reject functions.
//
// Example:
//
//	p, resolve, reject := js.NewChainedPromise()
//	_, _ = js.SetTimeout(func() {
//	    if v, err := doWork(); err != nil {
//	        reject(err)
//	    } else {
//	        resolve(v)
//	    }
//	}, 10)
func (js *JS) NewChainedPromise() (*ChainedPromise, ResolveFunc, RejectFunc) {
	p := js.newPromise()
	return p, p.resolve, p.reject
}

func (js *JS) newPromise() *ChainedPromise {
	return &ChainedPromise{
		id: PromiseID(js.nextPromiseID.Add(1)),
		js: js,
	}
}

// ID returns the promise's identifier.
func (p *ChainedPromise) ID() PromiseID {
	return p.id
}

// State returns the current [PromiseState] of this promise.
func (p *ChainedPromise) State() PromiseState {
	return PromiseState(p.state.Load())
}

// Value returns the fulfillment value, or nil unless fulfilled.
func (p *ChainedPromise) Value() Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.State() == Fulfilled {
		return p.result
	}
	return nil
}

// Reason returns the rejection reason, or nil unless rejected.
func (p *ChainedPromise) Reason() Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.State() == Rejected {
		return p.result
	}
	return nil
}

// Fault returns the rejection reason as a fault, or nil unless rejected.
// A reason that already is a fault is returned as-is.
func (p *ChainedPromise) Fault() *fault.Fault {
	if r := p.Reason(); r != nil || p.State() == Rejected {
		return reasonFault(r)
	}
	return nil
}

// Handled reports whether any handler has been attached.
func (p *ChainedPromise) Handled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handled
}

// addHandler attaches h, scheduling it right away if already settled.
func (p *ChainedPromise) addHandler(h handler) {
	p.mu.Lock()
	late := p.reported && !p.handled
	p.handled = true
	state := p.State()
	if state == Pending {
		p.handlers = append(p.handlers, h)
		p.mu.Unlock()
		return
	}
	result := p.result
	p.mu.Unlock()

	if late {
		p.js.rejectionHandledLate(p)
	}
	p.scheduleHandler(h, state, result)
}

func (p *ChainedPromise) scheduleHandler(h handler, state PromiseState, result Result) {
	err := p.js.loop.ScheduleMicrotask(func() {
		executeHandler(h, state, result)
	})
	if err != nil {
		p.js.loop.logger.Debug().
			Int("promise_id", int(p.id)).
			Err(err).
			Log("dropped promise reaction")
	}
}

// executeHandler runs a single reaction. A nil callback passes the
// settlement through; a panicking callback rejects the target.
func executeHandler(h handler, state PromiseState, result Result) {
	var fn func(Result) Result
	if state == Fulfilled {
		fn = h.onFulfilled
	} else {
		fn = h.onRejected
	}

	if fn == nil {
		if h.target == nil {
			return
		}
		if state == Fulfilled {
			h.target.resolve(result)
		} else {
			h.target.reject(result)
		}
		return
	}

	defer func() {
		if r := recover(); r != nil {
			if h.target != nil {
				h.target.reject(fault.FromPanic(r))
			}
		}
	}()

	res := fn(result)
	if h.target == nil {
		return
	}
	if r, ok := res.(rethrown); ok {
		h.target.reject(r.reason)
		return
	}
	h.target.resolve(res)
}

func (p *ChainedPromise) resolve(value Result) {
	if pr, ok := value.(*ChainedPromise); ok {
		if pr == p {
			p.reject(fault.Newf(fault.KindUnknown, "chaining cycle detected for promise #%d", p.id))
			return
		}
		// adopt; the adopted promise is now observed by p
		pr.addHandler(handler{target: p})
		return
	}
	p.settle(Fulfilled, value)
}

func (p *ChainedPromise) reject(reason Result) {
	if p.settle(Rejected, reason) {
		p.js.trackRejection(p)
	}
}

func (p *ChainedPromise) settle(state PromiseState, result Result) bool {
	p.mu.Lock()
	if p.State() != Pending {
		p.mu.Unlock()
		return false
	}
	p.result = result
	p.state.Store(int32(state))
	handlers := p.handlers
	p.handlers = nil
	channels := p.channels
	p.channels = nil

	// schedule under lock so reactions keep attachment order relative to
	// concurrent addHandler calls
	for _, h := range handlers {
		p.scheduleHandler(h, state, result)
	}
	p.mu.Unlock()

	for _, ch := range channels {
		ch <- result
		close(ch)
	}
	return true
}

// Then attaches reactions and returns a new promise settled with the
// reaction's result. A nil reaction passes the settlement through; a
// panicking reaction rejects the returned promise with the recovered fault.
func (p *ChainedPromise) Then(onFulfilled, onRejected func(Result) Result) *ChainedPromise {
	child := p.js.newPromise()
	p.addHandler(handler{
		onFulfilled: onFulfilled,
		onRejected:  onRejected,
		target:      child,
	})
	return child
}

// Catch is equivalent to Then(nil, onRejected).
func (p *ChainedPromise) Catch(onRejected func(Result) Result) *ChainedPromise {
	return p.Then(nil, onRejected)
}

// Finally runs onFinally on either settlement, and returns a promise that
// preserves the original settlement. If onFinally panics, the returned
// promise rejects with the recovered fault instead.
func (p *ChainedPromise) Finally(onFinally func()) *ChainedPromise {
	if onFinally == nil {
		onFinally = func() {}
	}
	return p.Then(
		func(v Result) Result {
			onFinally()
			return v
		},
		func(r Result) Result {
			onFinally()
			return rethrown{reason: r}
		},
	)
}

// rethrown is returned by a reaction to reject its target with reason.
type rethrown struct {
	reason Result
}

// ToChannel returns a channel that receives the result (value or reason)
// once the promise settles. The channel is buffered and closed after send.
func (p *ChainedPromise) ToChannel() <-chan Result {
	ch := make(chan Result, 1)
	p.mu.Lock()
	if p.State() == Pending {
		p.channels = append(p.channels, ch)
		p.mu.Unlock()
		return ch
	}
	result := p.result
	p.mu.Unlock()
	ch <- result
	close(ch)
	return ch
}

// String implements [fmt.Stringer].
func (p *ChainedPromise) String() string {
	return fmt.Sprintf("Promise#%d<%s>", p.id, p.State())
}

// SettledResult is the per-input outcome produced by [JS.AllSettled].
type SettledResult struct {
	Value  Result
	Reason Result
	Status PromiseState
}

// Resolve returns a promise resolved with val. A *ChainedPromise is
// returned unchanged.
func (js *JS) Resolve(val Result) *ChainedPromise {
	if pr, ok := val.(*ChainedPromise); ok {
		return pr
	}
	p := js.newPromise()
	p.resolve(val)
	return p
}

// Reject returns a promise rejected with reason.
func (js *JS) Reject(reason Result) *ChainedPromise {
	p := js.newPromise()
	p.reject(reason)
	return p
}

// Try calls fn synchronously, returning a promise resolved with its result,
// or rejected with the returned error or recovered panic as a fault.
func (js *JS) Try(fn func() (Result, error)) *ChainedPromise {
	p := js.newPromise()
	fault.Try(fn).Match(p.resolve, func(f *fault.Fault) {
		p.reject(f)
	})
	return p
}

// PromiseWithResolvers bundles a promise with its settle functions.
type PromiseWithResolvers struct {
	Promise *ChainedPromise
	Resolve ResolveFunc
	Reject  RejectFunc
}

// WithResolvers is the struct form of [JS.NewChainedPromise].
func (js *JS) WithResolvers() *PromiseWithResolvers {
	p, resolve, reject := js.NewChainedPromise()
	return &PromiseWithResolvers{Promise: p, Resolve: resolve, Reject: reject}
}

// All resolves with every input's value, in input order, or rejects with
// the first rejection reason. An empty input resolves with an empty slice.
func (js *JS) All(promises []*ChainedPromise) *ChainedPromise {
	result, resolve, reject := js.NewChainedPromise()
	if len(promises) == 0 {
		resolve(make([]Result, 0))
		return result
	}

	// reactions run on the loop goroutine, one at a time
	values := make([]Result, len(promises))
	remaining := len(promises)
	for i, p := range promises {
		p.Then(
			func(v Result) Result {
				values[i] = v
				remaining--
				if remaining == 0 {
					resolve(values)
				}
				return nil
			},
			func(r Result) Result {
				reject(r)
				return nil
			},
		)
	}
	return result
}

// Race settles like the first input to settle. An empty input never settles.
func (js *JS) Race(promises []*ChainedPromise) *ChainedPromise {
	result, resolve, reject := js.NewChainedPromise()
	for _, p := range promises {
		p.Then(
			func(v Result) Result {
				resolve(v)
				return nil
			},
			func(r Result) Result {
				reject(r)
				return nil
			},
		)
	}
	return result
}

// AllSettled resolves, never rejects, once every input has settled, with a
// []SettledResult in input order.
func (js *JS) AllSettled(promises []*ChainedPromise) *ChainedPromise {
	result, resolve, _ := js.NewChainedPromise()
	results := make([]SettledResult, len(promises))
	if len(promises) == 0 {
		resolve(results)
		return result
	}

	remaining := len(promises)
	done := func() {
		remaining--
		if remaining == 0 {
			resolve(results)
		}
	}
	for i, p := range promises {
		p.Then(
			func(v Result) Result {
				results[i] = SettledResult{Status: Fulfilled, Value: v}
				done()
				return nil
			},
			func(r Result) Result {
				results[i] = SettledResult{Status: Rejected, Reason: r}
				done()
				return nil
			},
		)
	}
	return result
}

// Any resolves with the first fulfillment, or rejects with an
// [*AggregateError] once every input has rejected (immediately, if empty).
func (js *JS) Any(promises []*ChainedPromise) *ChainedPromise {
	result, resolve, reject := js.NewChainedPromise()
	if len(promises) == 0 {
		reject(&AggregateError{Message: "All promises were rejected"})
		return result
	}

	errs := make([]error, len(promises))
	remaining := len(promises)
	for i, p := range promises {
		p.Then(
			func(v Result) Result {
				resolve(v)
				return nil
			},
			func(r Result) Result {
				errs[i] = reasonError(r)
				remaining--
				if remaining == 0 {
					reject(&AggregateError{Message: "All promises were rejected", Errors: errs})
				}
				return nil
			},
		)
	}
	return result
}
