// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// maxSafeInteger is `2^53 - 1`, the maximum safe integer in JavaScript
const maxSafeInteger = 9007199254740991

// RejectionHandler is notified of each rejection reported as unhandled, in
// addition to the [HookUnhandledRejection] hook.
type RejectionHandler func(p *ChainedPromise, reason Result)

// JSOption configures a [JS] adapter instance.
// Options are applied in order during [NewJS] construction.
type JSOption func(*jsOptions)

type jsOptions struct {
	onUnhandled RejectionHandler
}

func resolveJSOptions(opts []JSOption) (*jsOptions, error) {
	o := &jsOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o, nil
}

// WithUnhandledRejection configures an observer that is invoked when a
// rejected promise has no handler attached by the end of the turn.
func WithUnhandledRejection(handler RejectionHandler) JSOption {
	return func(o *jsOptions) {
		o.onUnhandled = handler
	}
}

// JS provides JavaScript-compatible timer, microtask and promise operations
// on top of [Loop].
//
// Timer Semantics:
//   - [JS.SetTimeout] schedules a one-time callback after a delay
//   - [JS.ClearTimeout] cancels it
//   - [JS.SetImmediate] schedules a callback as the next macrotask
//
// Microtask Semantics:
//   - [JS.QueueMicrotask] schedules a callback that runs before any timer
//   - Microtasks are processed in FIFO order within each tick
//
// Unhandled Rejections:
//
// Every rejection is recorded in arrival order. At the end of each turn
// (after the microtask queue drains) any recorded promise that still has no
// handler is reported, exactly once, to the loop's [HookUnhandledRejection]
// hook. A handler attached after the report is logged as handled late.
//
// Thread Safety:
//   - JS is safe for concurrent use from multiple goroutines
//   - Callbacks are always executed on the event loop thread
type JS struct {
	onUnhandled RejectionHandler
	loop        *Loop

	// guarded by mu, in arrival order
	rejections []*ChainedPromise

	nextPromiseID atomic.Uint64
	mu            sync.Mutex
}

// SetTimeoutFunc is a callback function for [JS.SetTimeout].
// The callback is always invoked on the event loop thread.
type SetTimeoutFunc func()

// NewJS creates a new [JS] adapter for the given event loop.
//
// Example:
//
//	loop, _ := eventloop.New(eventloop.WithHooks(hooks))
//	js, err := eventloop.NewJS(loop)
//	if err != nil {
//	    return err
//	}
//	js.Reject(fault.Simulated("boom")) // reported at the end of the turn
func NewJS(loop *Loop, opts ...JSOption) (*JS, error) {
	if loop == nil {
		return nil, errors.New("eventloop: nil loop")
	}
	options, err := resolveJSOptions(opts)
	if err != nil {
		return nil, err
	}

	js := &JS{
		loop:        loop,
		onUnhandled: options.onUnhandled,
	}
	loop.onTickEnd(js.checkUnhandledRejections)

	return js, nil
}

// Loop returns the underlying [Loop] that this JS adapter is bound to.
func (js *JS) Loop() *Loop {
	return js.loop
}

// SetTimeout schedules fn to run after delayMs milliseconds. Values < 0 are
// treated as 0. A nil fn returns 0 without scheduling.
//
// The callback runs as a macrotask, so even a zero delay never executes
// synchronously.
func (js *JS) SetTimeout(fn SetTimeoutFunc, delayMs int) (uint64, error) {
	if fn == nil {
		return 0, nil
	}

	delay := time.Duration(delayMs) * time.Millisecond

	loopTimerID, err := js.loop.ScheduleTimer(delay, fn)
	if err != nil {
		return 0, err
	}

	// Safety check for JS integer limits
	if uint64(loopTimerID) > maxSafeInteger {
		_ = js.loop.CancelTimer(loopTimerID)
		panic("eventloop: timer ID exceeded MAX_SAFE_INTEGER")
	}

	return uint64(loopTimerID), nil
}

// ClearTimeout cancels a scheduled timeout timer by its ID.
//
// Returns [ErrTimerNotFound] if the timer ID is invalid or has already fired.
func (js *JS) ClearTimeout(id uint64) error {
	return js.loop.CancelTimer(TimerID(id))
}

// SetImmediate schedules fn as a macrotask, after already-queued tasks.
func (js *JS) SetImmediate(fn SetTimeoutFunc) error {
	if fn == nil {
		return nil
	}
	return js.loop.Submit(Task(fn))
}

// MicrotaskFunc is a callback function for [JS.QueueMicrotask].
type MicrotaskFunc func()

// QueueMicrotask schedules a microtask to run before any pending timer
// callbacks. A microtask scheduled from within another microtask runs in the
// same tick.
func (js *JS) QueueMicrotask(fn MicrotaskFunc) error {
	if fn == nil {
		return nil
	}
	return js.loop.ScheduleMicrotask(fn)
}

// trackRejection records a newly rejected promise.
func (js *JS) trackRejection(p *ChainedPromise) {
	js.mu.Lock()
	js.rejections = append(js.rejections, p)
	js.mu.Unlock()

	if m := js.loop.metrics; m != nil {
		m.promisesRejected.Add(1)
	}

	js.loop.requestTickEnd()
}

// checkUnhandledRejections reports, in arrival order, every recorded
// rejection that still has no handler.
func (js *JS) checkUnhandledRejections() {
	js.mu.Lock()
	pending := js.rejections
	js.rejections = nil
	js.mu.Unlock()

	for _, p := range pending {
		p.mu.Lock()
		if p.handled || p.reported {
			p.mu.Unlock()
			continue
		}
		p.reported = true
		reason := p.result
		p.mu.Unlock()

		if m := js.loop.metrics; m != nil {
			m.unhandledRejections.Add(1)
		}
		if js.onUnhandled != nil {
			js.onUnhandled(p, reason)
		}
		js.loop.hooks.unhandledRejection(js.loop.logger, reasonFault(reason), p.id)
	}
}

// rejectionHandledLate records that a handler was attached to a promise
// whose rejection had already been reported.
func (js *JS) rejectionHandledLate(p *ChainedPromise) {
	if m := js.loop.metrics; m != nil {
		m.lateHandledRejections.Add(1)
	}
	js.loop.logger.Notice().
		Int("promise_id", int(p.id)).
		Log("promise rejection handled asynchronously")
}
