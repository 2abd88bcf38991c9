package fault

// Throw raises err as a synchronous fault, unwinding the stack until a
// [Try] or [Guard] intercepts it. Outside of any guard, the panic reaches
// whatever runs the current task (an event loop treats it as uncaught).
//
// A nil err is a no-op.
func Throw(err error) {
	if err == nil {
		return
	}
	panic(Wrap(err))
}

// Try runs fn, intercepting a returned error or a panic raised before fn
// returns. Panics with non-error values become [KindUnknown] faults.
func Try[T any](fn func() (T, error)) (out Outcome[T]) {
	defer func() {
		if r := recover(); r != nil {
			out = Failure[T](FromPanic(r))
		}
	}()
	v, err := fn()
	return OutcomeOf(v, err)
}

// Guard runs fn and, if it raises a fault, calls onFault with it (if
// non-nil). It returns fn's value and true on success, or T's zero value and
// false after recovery.
func Guard[T any](fn func() (T, error), onFault func(*Fault)) (T, bool) {
	out := Try(fn)
	if f := out.Fault(); f != nil {
		if onFault != nil {
			onFault(f)
		}
		var zero T
		return zero, false
	}
	return out.Value(), true
}

// Do is [Guard] for work with no result.
func Do(fn func() error, onFault func(*Fault)) bool {
	_, ok := Guard(func() (struct{}, error) {
		return struct{}{}, fn()
	}, onFault)
	return ok
}
