package catalog

import (
	"strconv"

	"github.com/joeycumines/go-faultcatalog/codec"
	"github.com/joeycumines/go-faultcatalog/eventloop"
	"github.com/joeycumines/go-faultcatalog/fault"
	"github.com/joeycumines/go-faultcatalog/fsio"
	"github.com/joeycumines/go-faultcatalog/stream"
)

// MissingFile is the file the resource scenarios attempt to read.
const MissingFile = "non_existent_file.txt"

var registry = []*Scenario{
	{
		ID:          1,
		Name:        "sync-parse",
		Description: "Guarded synchronous decode of malformed JSON",
		Run:         syncParse,
	},
	{
		ID:          2,
		Name:        "callback-read",
		Description: "Error-first callback from reading a missing file",
		Run:         callbackRead,
	},
	{
		ID:          3,
		Name:        "promise-reject",
		Description: "Promise rejection handled with Catch",
		Run:         promiseReject,
	},
	{
		ID:          4,
		Name:        "async-await",
		Description: "Awaited rejection caught by an enclosing guard",
		Run:         asyncAwait,
	},
	{
		ID:          5,
		Name:        "emitter-error",
		Description: "Error event delivered to a listener",
		Run:         emitterError,
	},
	{
		ID:          6,
		Name:        "unhandled-rejection",
		Description: "Rejection with no handler reported to the global hook",
		Run:         unhandledRejection,
	},
	{
		ID:          7,
		Name:        "uncaught-exception",
		Description: "Top-level throw reported to the global hook, then terminate",
		Fatal:       true,
		Run:         uncaughtException,
	},
	{
		ID:          8,
		Name:        "stream-error",
		Description: "Read stream on a missing file with an error listener",
		Run:         streamError,
	},
	{
		ID:          9,
		Name:        "custom-error",
		Description: "Custom fault kind branched on without matching the message",
		Run:         customError,
	},
	{
		ID:          10,
		Name:        "mixed-mode",
		Description: "Guard around a sync throw, with a deferred rejection handled separately",
		Run:         mixedMode,
	},
	{
		ID:          11,
		Name:        "emitter-no-listener",
		Description: "Error event with no listener escalates to the uncaught pathway",
		Fatal:       true,
		Run:         emitterNoListener,
	},
	{
		ID:          12,
		Name:        "uncaught-no-hook",
		Description: "Top-level throw with no hook registered",
		Fatal:       true,
		Run:         uncaughtNoHook,
	},
	{
		ID:          13,
		Name:        "yaml-parse",
		Description: "Guarded decode of malformed YAML, reporting the line",
		Run:         yamlParse,
	},
}

func syncParse(env *Env) {
	fault.Guard(func() (any, error) {
		return codec.ParseJSON("{ malformed json }")
	}, func(f *fault.Fault) {
		env.Report(PathwayGuard, f, "Caught synchronous error")
	})
}

func callbackRead(env *Env) {
	fsio.ReadFile(env.JS, env.Path(MissingFile), func(err error, data []byte) {
		if err != nil {
			env.Report(PathwayCallback, fault.Wrap(err), "Error in callback")
			return
		}
		env.Printf("%s", data)
	})
}

func promiseReject(env *Env) {
	p, _, reject := env.JS.NewChainedPromise()
	_, _ = env.JS.SetTimeout(func() {
		reject(fault.Simulated("Promise rejection error"))
	}, 0)
	p.Then(func(v eventloop.Result) eventloop.Result {
		env.Printf("%v", v)
		return nil
	}, nil).Catch(func(r eventloop.Result) eventloop.Result {
		env.Report(PathwayRejection, fault.FromPanic(r), "Caught promise rejection")
		return nil
	})
}

func asyncAwait(env *Env) {
	env.JS.Async(func(a *eventloop.Awaiter) (eventloop.Result, error) {
		fault.Guard(func() (any, error) {
			v := a.MustAwait(env.JS.Reject(fault.Simulated("Async/await error")))
			env.Printf("%v", v)
			return v, nil
		}, func(f *fault.Fault) {
			env.Report(PathwayAwait, f, "Caught async error")
		})
		return nil, nil
	})
}

func emitterError(env *Env) {
	em := eventloop.NewEmitter()
	em.On(eventloop.EventError, func(args ...any) {
		env.Report(PathwayListener, fault.FromPanic(args[0]), "Caught emitter error")
	})
	em.EmitError(fault.Simulated("Simulated emitter error"))
}

func unhandledRejection(env *Env) {
	_ = env.Hooks.OnUnhandledRejection(func(f *fault.Fault, id eventloop.PromiseID) {
		env.Report(PathwayUnhandledHook, f, "Unhandled Rejection at promise #"+strconv.FormatUint(uint64(id), 10))
	})
	env.JS.Reject(fault.Simulated("Unhandled promise rejection"))
}

func uncaughtException(env *Env) {
	_ = env.Hooks.OnUncaughtException(func(f *fault.Fault) {
		env.Report(PathwayUncaughtHook, f, "Uncaught Exception")
	})
	fault.Throw(fault.Simulated("Uncaught exception"))
}

func streamError(env *Env) {
	s := stream.CreateReadStream(env.JS, env.Path(MissingFile))
	s.On(stream.EventError, func(args ...any) {
		env.Report(PathwayListener, fault.FromPanic(args[0]), "Stream error")
	})
}

// ValidationError is the name of the custom fault raised by the
// custom-error scenario.
const ValidationError = "ValidationError"

func customError(env *Env) {
	raised := fault.Custom(ValidationError, "Invalid input")
	fault.Do(func() error {
		fault.Throw(raised)
		return nil
	}, func(f *fault.Fault) {
		switch f.Kind() {
		case fault.KindCustom:
			if f.Name() == ValidationError {
				env.Report(PathwayGuard, f, "Caught custom error")
				return
			}
			env.Report(PathwayGuard, f, "Caught other custom error")
		case fault.KindParse, fault.KindResource, fault.KindSimulated:
			env.Report(PathwayGuard, f, "Caught built-in fault")
		default:
			env.Report(PathwayGuard, f, "Caught unexpected error")
		}
	})
}

func mixedMode(env *Env) {
	fault.Do(func() error {
		p, _, reject := env.JS.NewChainedPromise()
		_, _ = env.JS.SetTimeout(func() {
			reject(fault.Simulated("Deferred error in mixed mode"))
		}, 0)
		// the guard below cannot see this rejection; it needs its own handler
		p.Catch(func(r eventloop.Result) eventloop.Result {
			env.Report(PathwayRejection, fault.FromPanic(r), "Caught deferred error")
			return nil
		})
		fault.Throw(fault.Simulated("Synchronous error in mixed mode"))
		return nil
	}, func(f *fault.Fault) {
		env.Report(PathwayGuard, f, "Caught synchronous error in mixed mode")
	})
}

func emitterNoListener(env *Env) {
	_ = env.Hooks.OnUncaughtException(func(f *fault.Fault) {
		env.Report(PathwayUncaughtHook, f, "Uncaught Exception")
	})
	eventloop.NewEmitter().EmitError(fault.Simulated("Emitter error with no listener"))
}

func uncaughtNoHook(*Env) {
	fault.Throw(fault.Simulated("Uncaught exception without hook"))
}

func yamlParse(env *Env) {
	fault.Do(func() error {
		var v map[string]any
		return codec.YAML.Decode([]byte("scenarios:\n  - sync-parse\n bad: [indent\n"), &v)
	}, func(f *fault.Fault) {
		env.Report(PathwayGuard, f, "Caught configuration error")
	})
}
