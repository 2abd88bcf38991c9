package eventloop

import (
	"context"
	"errors"
	"io/fs"
	"reflect"
	"runtime"
	"testing"

	"github.com/joeycumines/go-faultcatalog/fault"
)

func TestChainedPromise_reactionsAreMicrotasks(t *testing.T) {
	loop, js, _, _ := newTestLoop(t)

	var order []string
	_ = loop.Submit(func() {
		js.Resolve(1).Then(func(v Result) Result {
			order = append(order, "then")
			return nil
		}, nil)
		order = append(order, "sync")
	})

	if err := runLoop(t, loop); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(order, []string{"sync", "then"}) {
		t.Errorf("order = %v", order)
	}
}

func TestChainedPromise_attachmentOrder(t *testing.T) {
	loop, js, _, _ := newTestLoop(t)

	var order []int
	_ = loop.Submit(func() {
		p, resolve, _ := js.NewChainedPromise()
		for i := 1; i <= 3; i++ {
			p.Then(func(Result) Result {
				order = append(order, i)
				return nil
			}, nil)
		}
		_, _ = js.SetTimeout(func() { resolve("done") }, 1)
	})

	if err := runLoop(t, loop); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(order, []int{1, 2, 3}) {
		t.Errorf("order = %v", order)
	}
}

func TestChainedPromise_chain(t *testing.T) {
	loop, js, _, _ := newTestLoop(t)

	var final *ChainedPromise
	_ = loop.Submit(func() {
		final = js.Resolve(1).
			Then(func(v Result) Result { return v.(int) + 1 }, nil).
			Then(func(v Result) Result { return v.(int) * 10 }, nil)
	})

	if err := runLoop(t, loop); err != nil {
		t.Fatal(err)
	}
	if final.State() != Fulfilled || final.Value() != 20 {
		t.Errorf("final = %v %v", final, final.Value())
	}
}

func TestChainedPromise_settlesOnce(t *testing.T) {
	loop, js, _, _ := newTestLoop(t)

	var p *ChainedPromise
	_ = loop.Submit(func() {
		var resolve ResolveFunc
		var reject RejectFunc
		p, resolve, reject = js.NewChainedPromise()
		resolve("first")
		reject(fault.Simulated("ignored"))
		resolve("ignored")
	})

	if err := runLoop(t, loop); err != nil {
		t.Fatal(err)
	}
	if p.State() != Fulfilled || p.Value() != "first" || p.Reason() != nil {
		t.Errorf("p = %v value=%v reason=%v", p, p.Value(), p.Reason())
	}
}

func TestChainedPromise_handlerPanicRejectsChild(t *testing.T) {
	loop, js, _, _ := newTestLoop(t)

	thrown := fault.Simulated("from handler")
	var caught Result
	_ = loop.Submit(func() {
		js.Resolve(1).
			Then(func(Result) Result { panic(thrown) }, nil).
			Catch(func(r Result) Result {
				caught = r
				return nil
			})
	})

	if err := runLoop(t, loop); err != nil {
		t.Fatal(err)
	}
	if caught != thrown {
		t.Errorf("caught = %v, want the thrown fault", caught)
	}
}

func TestChainedPromise_Finally(t *testing.T) {
	loop, js, _, _ := newTestLoop(t)

	original := fault.Simulated("original")
	var (
		finallyRan bool
		caught     Result
		fromPanic  Result
	)
	_ = loop.Submit(func() {
		js.Reject(original).
			Finally(func() { finallyRan = true }).
			Catch(func(r Result) Result {
				caught = r
				return nil
			})
		js.Resolve(1).
			Finally(func() { panic("cleanup failed") }).
			Catch(func(r Result) Result {
				fromPanic = r
				return nil
			})
	})

	if err := runLoop(t, loop); err != nil {
		t.Fatal(err)
	}
	if !finallyRan {
		t.Error("finally did not run")
	}
	if caught != original {
		t.Errorf("caught = %v", caught)
	}
	if f, ok := fromPanic.(*fault.Fault); !ok || f.Message != "cleanup failed" {
		t.Errorf("fromPanic = %v", fromPanic)
	}
}

func TestChainedPromise_selfResolution(t *testing.T) {
	loop, js, _, _ := newTestLoop(t)

	var p *ChainedPromise
	_ = loop.Submit(func() {
		var resolve ResolveFunc
		p, resolve, _ = js.NewChainedPromise()
		p.Catch(func(Result) Result { return nil })
		resolve(p)
	})

	if err := runLoop(t, loop); err != nil {
		t.Fatal(err)
	}
	if p.State() != Rejected {
		t.Errorf("state = %v", p.State())
	}
}

func TestChainedPromise_adoption(t *testing.T) {
	loop, js, _, _ := newTestLoop(t)

	var outer *ChainedPromise
	_ = loop.Submit(func() {
		inner, resolveInner, _ := js.NewChainedPromise()
		var resolveOuter ResolveFunc
		outer, resolveOuter, _ = js.NewChainedPromise()
		resolveOuter(inner)
		if outer.State() != Pending {
			t.Error("outer settled before inner")
		}
		resolveInner("adopted")
	})

	if err := runLoop(t, loop); err != nil {
		t.Fatal(err)
	}
	if outer.Value() != "adopted" {
		t.Errorf("outer = %v", outer.Value())
	}
}

func TestChainedPromise_ToChannel(t *testing.T) {
	loop, js, _, _ := newTestLoop(t)

	p, resolve, _ := js.NewChainedPromise()
	ch := p.ToChannel()
	_ = loop.Submit(func() { resolve("value") })

	if err := runLoop(t, loop); err != nil {
		t.Fatal(err)
	}
	if got := <-ch; got != "value" {
		t.Errorf("ToChannel() = %v", got)
	}
	if got := <-p.ToChannel(); got != "value" {
		t.Errorf("late ToChannel() = %v", got)
	}
}

func TestJS_combinators(t *testing.T) {
	loop, js, _, _ := newTestLoop(t)

	boom := fault.Simulated("boom")
	var all, allRejected, race, settled, anyOK, anyFail *ChainedPromise
	_ = loop.Submit(func() {
		all = js.All([]*ChainedPromise{js.Resolve(1), js.Resolve(2)})
		allRejected = js.All([]*ChainedPromise{js.Resolve(1), js.Reject(boom)})
		allRejected.Catch(func(Result) Result { return nil })
		race = js.Race([]*ChainedPromise{js.Resolve("a"), js.Resolve("b")})
		settled = js.AllSettled([]*ChainedPromise{js.Resolve(1), js.Reject(boom)})
		anyOK = js.Any([]*ChainedPromise{js.Reject(boom), js.Resolve("ok")})
		anyFail = js.Any([]*ChainedPromise{js.Reject(boom), js.Reject(boom)})
		anyFail.Catch(func(Result) Result { return nil })
	})

	if err := runLoop(t, loop); err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(all.Value(), []Result{1, 2}) {
		t.Errorf("All = %v", all.Value())
	}
	if allRejected.Reason() != boom {
		t.Errorf("All rejected = %v", allRejected.Reason())
	}
	if race.Value() != "a" {
		t.Errorf("Race = %v", race.Value())
	}
	wantSettled := []SettledResult{{Status: Fulfilled, Value: 1}, {Status: Rejected, Reason: boom}}
	if !reflect.DeepEqual(settled.Value(), wantSettled) {
		t.Errorf("AllSettled = %v", settled.Value())
	}
	if anyOK.Value() != "ok" {
		t.Errorf("Any = %v", anyOK.Value())
	}
	var agg *AggregateError
	if err, _ := anyFail.Reason().(error); !errors.As(err, &agg) || len(agg.Errors) != 2 {
		t.Errorf("Any rejected = %v", anyFail.Reason())
	}
}

func TestJS_Try(t *testing.T) {
	loop, js, _, _ := newTestLoop(t)

	var returned, panicked *ChainedPromise
	_ = loop.Submit(func() {
		returned = js.Try(func() (Result, error) { return nil, fault.Simulated("returned") })
		panicked = js.Try(func() (Result, error) { panic("raised") })
		returned.Catch(func(Result) Result { return nil })
		panicked.Catch(func(Result) Result { return nil })
	})

	if err := runLoop(t, loop); err != nil {
		t.Fatal(err)
	}
	if f := returned.Fault(); f.Kind() != fault.KindSimulated {
		t.Errorf("returned = %v", f)
	}
	if f := panicked.Fault(); f.Kind() != fault.KindUnknown || f.Message != "raised" {
		t.Errorf("panicked = %v", f)
	}
}

func TestJS_Promisify(t *testing.T) {
	loop, js, _, _ := newTestLoop(t)

	var ok, failed, panicked, exited *ChainedPromise
	_ = loop.Submit(func() {
		ctx := context.Background()
		ok = js.Promisify(ctx, func(context.Context) (Result, error) { return "data", nil })
		failed = js.Promisify(ctx, func(context.Context) (Result, error) {
			return nil, &fs.PathError{Op: "open", Path: "missing.txt", Err: fs.ErrNotExist}
		})
		panicked = js.Promisify(ctx, func(context.Context) (Result, error) { panic("worker") })
		exited = js.Promisify(ctx, func(context.Context) (Result, error) {
			runtime.Goexit()
			return nil, nil
		})
		for _, p := range []*ChainedPromise{failed, panicked, exited} {
			p.Catch(func(Result) Result { return nil })
		}
	})

	// Run only returns once every in-flight call has settled
	if err := runLoop(t, loop); err != nil {
		t.Fatal(err)
	}
	if ok.Value() != "data" {
		t.Errorf("ok = %v", ok.Value())
	}
	if f := failed.Fault(); f.Kind() != fault.KindResource || f.Reason != fault.ReasonNotFound {
		t.Errorf("failed = %+v", f)
	}
	if f := panicked.Fault(); f.Message != "worker" {
		t.Errorf("panicked = %v", f)
	}
	if f := exited.Fault(); !errors.Is(f, ErrGoexit) {
		t.Errorf("exited = %v", f)
	}
}

func TestJS_PromisifyCancelledContext(t *testing.T) {
	loop, js, _, _ := newTestLoop(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var p *ChainedPromise
	called := false
	_ = loop.Submit(func() {
		p = js.Promisify(ctx, func(context.Context) (Result, error) {
			called = true
			return nil, nil
		})
		p.Catch(func(Result) Result { return nil })
	})

	if err := runLoop(t, loop); err != nil {
		t.Fatal(err)
	}
	if called {
		t.Error("fn called with cancelled context")
	}
	if !errors.Is(p.Fault(), context.Canceled) {
		t.Errorf("p = %v", p.Fault())
	}
}
