// Package fault models error values for code that mixes synchronous and
// deferred execution.
//
// A [Fault] is an error with a message and a discriminant: a closed [Kind]
// (parse, resource, simulated, custom, or the catch-all unknown) plus, for
// custom faults, a Name chosen by the caller. Handlers branch on Kind or Name
// rather than matching on message text.
//
// # Guarded Execution
//
// [Try] and [Guard] run a unit of work and intercept any fault raised before
// it returns, whether returned as an error or raised via [Throw] (a panic).
// The result is an [Outcome], a sum type over Success(value) and
// Failure(fault):
//
//	out := fault.Try(func() (any, error) {
//	    return codec.ParseJSON("{ malformed json }")
//	})
//	out.Match(
//	    func(v any) { fmt.Println("parsed", v) },
//	    func(f *fault.Fault) { fmt.Println("caught", f.Kind(), f.Message) },
//	)
//
// Guards intercept only faults raised on the calling goroutine before they
// return. Failures surfacing later from deferred work must be handled by the
// mechanism that delivers them (a callback's error argument, or a promise
// rejection handler).
//
// # Classification
//
// [Wrap] converts arbitrary errors into faults: [io/fs.ErrNotExist] and
// friends become resource faults, JSON syntax errors become parse faults, and
// anything else is wrapped as [KindUnknown] with the original as its cause.
package fault
