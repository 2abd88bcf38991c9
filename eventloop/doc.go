// Package eventloop provides a single-threaded, cooperative event loop with
// JavaScript-style promises, async functions, fault emitters, and last-resort
// fault hooks.
//
// # Architecture
//
// The [Loop] core schedules macrotasks (submitted tasks and timers) and
// microtasks. A [JS] adapter layers promise semantics on top:
// [ChainedPromise] with Then/Catch/Finally, the combinators [JS.All],
// [JS.Race], [JS.AllSettled] and [JS.Any], async functions via [JS.Async],
// and blocking work bridged onto the loop via [JS.Promisify]. [Emitter]
// provides named events with a distinguished [EventError] event.
//
// # Execution Model
//
// Each turn runs one macrotask to completion, then drains the microtask
// queue, then performs end-of-turn checks. Callbacks never run in parallel
// and are never preempted.
//
// # Fault Pathways
//
// Every fault reaches either a handler or a hook, never nothing:
//   - A panic (e.g. [fault.Throw]) escaping a task is an uncaught fault. The
//     [HookUncaughtException] hook runs, the loop terminates, and
//     [Loop.Run] returns a [*FatalError].
//   - A rejected promise with no handler attached by the end of its turn is
//     reported to the [HookUnhandledRejection] hook. This is not fatal.
//   - An [EventError] emitted with no listener throws, and so becomes an
//     uncaught fault.
//
// [Hooks] are explicit configuration, shared between loops with
// [WithHooks], not package-level state.
//
// # Thread Safety
//
//   - [Loop.Submit], [Loop.ScheduleMicrotask] and the timer methods are safe
//     to call from any goroutine
//   - Promise settlement functions are safe to call from any goroutine;
//     reactions always run on the loop goroutine
//
// # Usage
//
//	hooks := eventloop.NewHooks()
//	_ = hooks.OnUnhandledRejection(func(f *fault.Fault, id eventloop.PromiseID) {
//	    fmt.Println("Unhandled Rejection:", f)
//	})
//	loop, _ := eventloop.New(eventloop.WithHooks(hooks))
//	js, _ := eventloop.NewJS(loop)
//	_ = loop.Submit(func() {
//	    js.Reject(fault.Simulated("Unhandled promise rejection"))
//	})
//	err := loop.Run(context.Background())
package eventloop
