package eventloop

import (
	"reflect"
	"testing"

	"github.com/joeycumines/go-faultcatalog/fault"
)

type rejectionReport struct {
	fault *fault.Fault
	id    PromiseID
}

func recordRejections(t *testing.T, hooks *Hooks) *[]rejectionReport {
	t.Helper()
	var reports []rejectionReport
	if err := hooks.OnUnhandledRejection(func(f *fault.Fault, id PromiseID) {
		reports = append(reports, rejectionReport{f, id})
	}); err != nil {
		t.Fatal(err)
	}
	return &reports
}

func TestJS_unhandledRejectionReportedOnce(t *testing.T) {
	loop, js, hooks, exits := newTestLoop(t)
	reports := recordRejections(t, hooks)

	rejection := fault.Simulated("Unhandled promise rejection")
	var p *ChainedPromise
	_ = loop.Submit(func() {
		p = js.Reject(rejection)
	})
	// later turns must not re-report
	_ = loop.Submit(func() {})

	if err := runLoop(t, loop); err != nil {
		t.Fatalf("unhandled rejection must not be fatal: %v", err)
	}
	want := []rejectionReport{{rejection, p.ID()}}
	if !reflect.DeepEqual(*reports, want) {
		t.Errorf("reports = %v, want %v", *reports, want)
	}
	if len(exits.Codes()) != 0 {
		t.Errorf("terminate called: %v", exits.Codes())
	}
	if m := loop.Metrics(); m.UnhandledRejections != 1 || m.PromisesRejected != 1 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestJS_handledWithinTurnNotReported(t *testing.T) {
	loop, js, hooks, _ := newTestLoop(t)
	reports := recordRejections(t, hooks)

	var caught []Result
	_ = loop.Submit(func() {
		js.Reject(fault.Simulated("sync catch")).Catch(func(r Result) Result {
			caught = append(caught, r)
			return nil
		})
		p := js.Reject(fault.Simulated("microtask catch"))
		_ = js.QueueMicrotask(func() {
			p.Catch(func(r Result) Result {
				caught = append(caught, r)
				return nil
			})
		})
	})

	if err := runLoop(t, loop); err != nil {
		t.Fatal(err)
	}
	if len(*reports) != 0 {
		t.Errorf("reports = %v", *reports)
	}
	if len(caught) != 2 {
		t.Errorf("caught = %v", caught)
	}
}

func TestJS_arrivalOrder(t *testing.T) {
	loop, js, hooks, _ := newTestLoop(t)
	reports := recordRejections(t, hooks)

	var ids []PromiseID
	_ = loop.Submit(func() {
		for _, msg := range []string{"first", "second", "third"} {
			ids = append(ids, js.Reject(fault.Simulated(msg)).ID())
		}
	})

	if err := runLoop(t, loop); err != nil {
		t.Fatal(err)
	}
	var got []PromiseID
	for _, r := range *reports {
		got = append(got, r.id)
	}
	if !reflect.DeepEqual(got, ids) {
		t.Errorf("reported %v, want %v", got, ids)
	}
}

func TestJS_lateHandler(t *testing.T) {
	loop, js, hooks, _ := newTestLoop(t)
	reports := recordRejections(t, hooks)

	var caught Result
	_ = loop.Submit(func() {
		p := js.Reject(fault.Simulated("late"))
		_, _ = js.SetTimeout(func() {
			p.Catch(func(r Result) Result {
				caught = r
				return nil
			})
		}, 1)
	})

	if err := runLoop(t, loop); err != nil {
		t.Fatal(err)
	}
	if len(*reports) != 1 {
		t.Errorf("reports = %v", *reports)
	}
	if caught == nil {
		t.Error("late handler did not run")
	}
	if m := loop.Metrics(); m.LateHandledRejections != 1 {
		t.Errorf("LateHandledRejections = %d", m.LateHandledRejections)
	}
}

func TestJS_thenWithoutRejectionHandler(t *testing.T) {
	loop, js, hooks, _ := newTestLoop(t)
	reports := recordRejections(t, hooks)

	rejection := fault.Simulated("passes through")
	var child *ChainedPromise
	_ = loop.Submit(func() {
		child = js.Reject(rejection).Then(func(v Result) Result { return v }, nil)
	})

	if err := runLoop(t, loop); err != nil {
		t.Fatal(err)
	}
	// the parent is observed; the derived promise is the unhandled one
	want := []rejectionReport{{rejection, child.ID()}}
	if !reflect.DeepEqual(*reports, want) {
		t.Errorf("reports = %v, want %v", *reports, want)
	}
}

func TestJS_rejectBeforeRun(t *testing.T) {
	loop, js, hooks, _ := newTestLoop(t)
	reports := recordRejections(t, hooks)

	js.Reject(fault.Simulated("before run"))

	if err := runLoop(t, loop); err != nil {
		t.Fatal(err)
	}
	if len(*reports) != 1 {
		t.Errorf("reports = %v", *reports)
	}
}

func TestJS_WithUnhandledRejection(t *testing.T) {
	exits := &exitRecorder{}
	loop, err := New(WithHooks(NewHooks(WithTerminate(exits.terminate))))
	if err != nil {
		t.Fatal(err)
	}
	var observed []PromiseID
	js, err := NewJS(loop, WithUnhandledRejection(func(p *ChainedPromise, reason Result) {
		observed = append(observed, p.ID())
	}))
	if err != nil {
		t.Fatal(err)
	}

	var p *ChainedPromise
	_ = loop.Submit(func() { p = js.Reject("not an error") })

	if err := runLoop(t, loop); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(observed, []PromiseID{p.ID()}) {
		t.Errorf("observed = %v", observed)
	}
	if f := p.Fault(); f.Message != "not an error" {
		t.Errorf("Fault() = %v", f)
	}
}

func TestJS_SetTimeoutClearTimeout(t *testing.T) {
	loop, js, _, _ := newTestLoop(t)

	var order []string
	_ = loop.Submit(func() {
		id, _ := js.SetTimeout(func() { order = append(order, "cleared") }, 1)
		_, _ = js.SetTimeout(func() { order = append(order, "timeout") }, 0)
		_ = js.SetImmediate(func() { order = append(order, "immediate") })
		if err := js.ClearTimeout(id); err != nil {
			t.Errorf("ClearTimeout() = %v", err)
		}
	})

	if err := runLoop(t, loop); err != nil {
		t.Fatal(err)
	}
	if len(order) != 2 {
		t.Errorf("order = %v", order)
	}
}

func TestJS_rejectionRaisedByHookIsReported(t *testing.T) {
	loop, js, hooks, _ := newTestLoop(t)
	var messages []string
	if err := hooks.OnUnhandledRejection(func(f *fault.Fault, id PromiseID) {
		messages = append(messages, f.Message)
		if f.Message == "first" {
			js.Reject(fault.Simulated("second"))
		}
	}); err != nil {
		t.Fatal(err)
	}

	_ = loop.Submit(func() {
		js.Reject(fault.Simulated("first"))
	})

	if err := runLoop(t, loop); err != nil {
		t.Fatal(err)
	}
	if want := []string{"first", "second"}; !reflect.DeepEqual(messages, want) {
		t.Errorf("reported = %v, want %v", messages, want)
	}
	if m := loop.Metrics(); m.UnhandledRejections != 2 || m.PromisesRejected != 2 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestJS_rejectionRaisedByObserverHandledInMicrotask(t *testing.T) {
	var caught []Result
	var js *JS
	exits := &exitRecorder{}
	hooks := NewHooks(WithTerminate(exits.terminate))
	reports := recordRejections(t, hooks)
	loop, err := New(WithHooks(hooks), WithMetrics(true))
	if err != nil {
		t.Fatal(err)
	}
	js, err = NewJS(loop, WithUnhandledRejection(func(p *ChainedPromise, reason Result) {
		inner := js.Reject(fault.Simulated("from observer"))
		_ = js.QueueMicrotask(func() {
			inner.Catch(func(r Result) Result {
				caught = append(caught, r)
				return nil
			})
		})
	}))
	if err != nil {
		t.Fatal(err)
	}

	_ = loop.Submit(func() {
		js.Reject(fault.Simulated("outer"))
	})

	if err := runLoop(t, loop); err != nil {
		t.Fatal(err)
	}
	if len(*reports) != 1 || (*reports)[0].fault.Message != "outer" {
		t.Errorf("reports = %v", *reports)
	}
	if len(caught) != 1 {
		t.Errorf("caught = %v", caught)
	}
}
