package fault

import (
	"errors"
	"testing"
)

func TestTry_success(t *testing.T) {
	out := Try(func() (int, error) { return 42, nil })
	if !out.Ok() || out.Value() != 42 || out.Fault() != nil {
		t.Errorf("unexpected outcome: %+v", out)
	}
}

func TestTry_returnedError(t *testing.T) {
	out := Try(func() (int, error) { return 0, errors.New("nope") })
	if out.Ok() {
		t.Fatal("expected failure")
	}
	if out.Fault().Kind() != KindUnknown || out.Fault().Message != "nope" {
		t.Errorf("fault = %+v", out.Fault())
	}
}

func TestTry_thrownFaultIdentity(t *testing.T) {
	thrown := Custom("ValidationError", "bad")
	out := Try(func() (string, error) {
		Throw(thrown)
		return "unreachable", nil
	})
	if out.Fault() != thrown {
		t.Fatalf("expected the thrown fault to round-trip, got %v", out.Fault())
	}
	if out.Fault().Name() != "ValidationError" || out.Fault().Message != "bad" {
		t.Error("kind/message changed during propagation")
	}
	if out.Value() != "" {
		t.Error("value should be zero on failure")
	}
}

func TestTry_nonErrorPanic(t *testing.T) {
	out := Try(func() (int, error) { panic(7) })
	if out.Fault().Kind() != KindUnknown || out.Fault().Message != "7" {
		t.Errorf("fault = %+v", out.Fault())
	}
}

func TestThrow_nil(t *testing.T) {
	out := Try(func() (int, error) {
		Throw(nil)
		return 1, nil
	})
	if !out.Ok() {
		t.Error("Throw(nil) should be a no-op")
	}
}

func TestGuard(t *testing.T) {
	var caught []*Fault
	v, ok := Guard(func() (int, error) { return 3, nil }, func(f *Fault) { caught = append(caught, f) })
	if !ok || v != 3 || len(caught) != 0 {
		t.Errorf("success path: v=%d ok=%v caught=%d", v, ok, len(caught))
	}

	v, ok = Guard(func() (int, error) {
		Throw(Simulated("sync"))
		return 3, nil
	}, func(f *Fault) { caught = append(caught, f) })
	if ok || v != 0 {
		t.Errorf("failure path: v=%d ok=%v", v, ok)
	}
	if len(caught) != 1 || caught[0].Kind() != KindSimulated {
		t.Errorf("recovery should run exactly once, got %v", caught)
	}

	// nested guards: only the innermost intercepts
	outer := 0
	inner := 0
	Do(func() error {
		Do(func() error { return Simulated("inner") }, func(*Fault) { inner++ })
		return nil
	}, func(*Fault) { outer++ })
	if inner != 1 || outer != 0 {
		t.Errorf("inner=%d outer=%d", inner, outer)
	}
}

func TestOutcome(t *testing.T) {
	s := Success("v")
	if got, err := s.Get(); got != "v" || err != nil {
		t.Error("success Get")
	}
	f := Failure[string](nil)
	if f.Ok() || f.Fault() == nil {
		t.Error("Failure(nil) must still be a failure")
	}
	if _, err := f.Get(); err == nil {
		t.Error("failure Get should return an error")
	}

	var matched string
	Success(1).Match(func(int) { matched = "success" }, func(*Fault) { matched = "failure" })
	if matched != "success" {
		t.Error(matched)
	}
	Failure[int](Simulated("x")).Match(func(int) { matched = "success" }, func(*Fault) { matched = "failure" })
	if matched != "failure" {
		t.Error(matched)
	}
	Failure[int](Simulated("x")).Match(nil, nil)

	var zero Outcome[int]
	if !zero.Ok() {
		t.Error("zero outcome should be a success")
	}
}
