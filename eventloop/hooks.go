package eventloop

import (
	"os"
	"sync"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/go-faultcatalog/fault"
	"github.com/joeycumines/logiface"
)

// HookCategory identifies a last-resort fault hook.
type HookCategory int

const (
	// HookUncaughtException receives synchronous faults that escaped every
	// guard. Invocation is followed by termination.
	HookUncaughtException HookCategory = iota
	// HookUnhandledRejection receives rejections that had no rejection
	// handler attached by the end of the turn. Invocation is non-fatal.
	HookUnhandledRejection
)

func (c HookCategory) String() string {
	switch c {
	case HookUncaughtException:
		return "uncaughtException"
	case HookUnhandledRejection:
		return "unhandledRejection"
	default:
		return "unknown"
	}
}

// HookState is the registration state of a hook category.
type HookState int

const (
	HookUnregistered HookState = iota
	HookRegistered
)

// HookPolicy decides what happens when a hook is registered for a category
// that already has one.
type HookPolicy int

const (
	// PolicyReplace silently replaces the existing hook (last registration wins).
	PolicyReplace HookPolicy = iota
	// PolicyReject refuses the new hook with [ErrHookRegistered].
	PolicyReject
)

// UncaughtExceptionHandler handles a fault that escaped to the top of a task.
type UncaughtExceptionHandler func(f *fault.Fault)

// UnhandledRejectionHandler handles an unobserved promise rejection, along
// with the ID of the rejected promise.
type UnhandledRejectionHandler func(f *fault.Fault, id PromiseID)

// HookOption configures [NewHooks].
type HookOption func(*Hooks)

// WithHookPolicy sets the re-registration policy. The default is
// [PolicyReplace].
func WithHookPolicy(policy HookPolicy) HookOption {
	return func(h *Hooks) {
		h.policy = policy
	}
}

// WithTerminate sets the function called with the exit status after an
// uncaught fault. The default is [os.Exit].
func WithTerminate(terminate func(code int)) HookOption {
	return func(h *Hooks) {
		h.terminate = terminate
	}
}

// WithWarningRate limits the warnings logged for unhandled rejections while
// no [HookUnhandledRejection] hook is registered, per fault name, e.g.
// {time.Second: 5, time.Minute: 50}. Rates must satisfy [catrate.NewLimiter].
// Suppressed warnings are still counted by [Metrics].
func WithWarningRate(rates map[time.Duration]int) HookOption {
	return func(h *Hooks) {
		h.warnings = catrate.NewLimiter(rates)
	}
}

// Hooks holds the process-wide last-resort fault handlers: at most one per
// [HookCategory]. It is explicit configuration, passed to loops with
// [WithHooks], rather than ambient global state.
//
// Hooks is safe for concurrent use.
type Hooks struct {
	uncaught  UncaughtExceptionHandler
	unhandled UnhandledRejectionHandler
	terminate func(code int)
	warnings  *catrate.Limiter
	policy    HookPolicy
	mu        sync.Mutex
}

// NewHooks returns hooks with no handlers registered.
func NewHooks(opts ...HookOption) *Hooks {
	h := &Hooks{terminate: os.Exit}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.terminate == nil {
		h.terminate = func(int) {}
	}
	return h
}

// OnUncaughtException registers the uncaught synchronous fault hook.
func (h *Hooks) OnUncaughtException(handler UncaughtExceptionHandler) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.uncaught != nil && h.policy == PolicyReject {
		return ErrHookRegistered
	}
	h.uncaught = handler
	return nil
}

// OnUnhandledRejection registers the unobserved rejection hook.
func (h *Hooks) OnUnhandledRejection(handler UnhandledRejectionHandler) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.unhandled != nil && h.policy == PolicyReject {
		return ErrHookRegistered
	}
	h.unhandled = handler
	return nil
}

// Clear unregisters the hook for category.
func (h *Hooks) Clear(category HookCategory) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch category {
	case HookUncaughtException:
		h.uncaught = nil
	case HookUnhandledRejection:
		h.unhandled = nil
	}
}

// State reports whether a hook is registered for category.
func (h *Hooks) State(category HookCategory) HookState {
	h.mu.Lock()
	defer h.mu.Unlock()
	var registered bool
	switch category {
	case HookUncaughtException:
		registered = h.uncaught != nil
	case HookUnhandledRejection:
		registered = h.unhandled != nil
	}
	if registered {
		return HookRegistered
	}
	return HookUnregistered
}

// Policy returns the re-registration policy.
func (h *Hooks) Policy() HookPolicy {
	return h.policy
}

// uncaughtException invokes the hook (or the default report) and then the
// terminate function. A panicking hook is logged and does not prevent
// termination.
func (h *Hooks) uncaughtException(logger *logiface.Logger[logiface.Event], f *fault.Fault, code int) {
	h.mu.Lock()
	handler := h.uncaught
	terminate := h.terminate
	h.mu.Unlock()

	if handler == nil {
		faultFields(logger.Crit(), f).
			Log("uncaught exception")
	} else {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Crit().
						Err(fault.FromPanic(r)).
						Str("hook", HookUncaughtException.String()).
						Log("hook panicked")
				}
			}()
			handler(f)
		}()
	}

	terminate(code)
}

// unhandledRejection invokes the hook, or logs a warning when none is
// registered.
func (h *Hooks) unhandledRejection(logger *logiface.Logger[logiface.Event], f *fault.Fault, id PromiseID) {
	h.mu.Lock()
	handler := h.unhandled
	h.mu.Unlock()

	if handler == nil {
		if _, ok := h.warnings.Allow(f.Name()); !ok {
			return
		}
		faultFields(logger.Warning(), f).
			Int("promise_id", int(id)).
			Log("unhandled promise rejection")
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Err().
				Err(fault.FromPanic(r)).
				Str("hook", HookUnhandledRejection.String()).
				Log("hook panicked")
		}
	}()
	handler(f, id)
}
