package fault

// Outcome is the result of an operation that either succeeded with a value
// or failed with a [Fault]. The zero value is a success with T's zero value.
type Outcome[T any] struct {
	value T
	fault *Fault
}

// Success returns a successful outcome.
func Success[T any](value T) Outcome[T] {
	return Outcome[T]{value: value}
}

// Failure returns a failed outcome. A nil fault is replaced with an unknown
// fault, so a Failure is never mistaken for a Success.
func Failure[T any](f *Fault) Outcome[T] {
	if f == nil {
		f = New(KindUnknown, "failure without fault")
	}
	return Outcome[T]{fault: f}
}

// OutcomeOf adapts a conventional (value, error) pair.
func OutcomeOf[T any](value T, err error) Outcome[T] {
	if err != nil {
		return Failure[T](Wrap(err))
	}
	return Success(value)
}

// Ok reports whether the outcome is a success.
func (o Outcome[T]) Ok() bool { return o.fault == nil }

// Value returns the success value, or T's zero value on failure.
func (o Outcome[T]) Value() T { return o.value }

// Fault returns the failure, or nil on success.
func (o Outcome[T]) Fault() *Fault { return o.fault }

// Get returns the outcome as a conventional (value, error) pair.
func (o Outcome[T]) Get() (T, error) {
	if o.fault != nil {
		var zero T
		return zero, o.fault
	}
	return o.value, nil
}

// Match calls exactly one of onSuccess or onFailure. Nil functions are
// skipped.
func (o Outcome[T]) Match(onSuccess func(T), onFailure func(*Fault)) {
	if o.fault != nil {
		if onFailure != nil {
			onFailure(o.fault)
		}
		return
	}
	if onSuccess != nil {
		onSuccess(o.value)
	}
}
