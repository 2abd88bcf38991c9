package eventloop

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/joeycumines/go-faultcatalog/fault"
)

func TestLoop_turnOrdering(t *testing.T) {
	loop, _, _, _ := newTestLoop(t)

	var order []string
	_ = loop.Submit(func() {
		order = append(order, "task1")
		_ = loop.ScheduleMicrotask(func() {
			order = append(order, "micro1")
			_ = loop.ScheduleMicrotask(func() {
				order = append(order, "micro2")
			})
		})
		_ = loop.Submit(func() {
			order = append(order, "task3")
		})
		order = append(order, "task1-end")
	})
	_ = loop.Submit(func() {
		order = append(order, "task2")
	})

	if err := runLoop(t, loop); err != nil {
		t.Fatalf("Run() = %v", err)
	}

	want := []string{"task1", "task1-end", "micro1", "micro2", "task2", "task3"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
	if loop.State() != StateTerminated {
		t.Errorf("state = %v, want Terminated", loop.State())
	}
}

func TestLoop_timersByDeadline(t *testing.T) {
	loop, _, _, _ := newTestLoop(t)

	var order []int
	_ = loop.Submit(func() {
		_, _ = loop.ScheduleTimer(20*time.Millisecond, func() { order = append(order, 3) })
		_, _ = loop.ScheduleTimer(5*time.Millisecond, func() { order = append(order, 1) })
		_, _ = loop.ScheduleTimer(5*time.Millisecond, func() { order = append(order, 2) })
	})

	if err := runLoop(t, loop); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if !reflect.DeepEqual(order, []int{1, 2, 3}) {
		t.Errorf("order = %v", order)
	}
	if m := loop.Metrics(); m.TimersFired != 3 {
		t.Errorf("TimersFired = %d, want 3", m.TimersFired)
	}
}

func TestLoop_CancelTimer(t *testing.T) {
	loop, _, _, _ := newTestLoop(t)

	fired := false
	_ = loop.Submit(func() {
		id, err := loop.ScheduleTimer(time.Millisecond, func() { fired = true })
		if err != nil {
			t.Errorf("ScheduleTimer() = %v", err)
		}
		if err := loop.CancelTimer(id); err != nil {
			t.Errorf("CancelTimer() = %v", err)
		}
		if err := loop.CancelTimer(id); !errors.Is(err, ErrTimerNotFound) {
			t.Errorf("second CancelTimer() = %v, want ErrTimerNotFound", err)
		}
	})

	if err := runLoop(t, loop); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if fired {
		t.Error("cancelled timer fired")
	}
}

func TestLoop_ScheduleTimer_nilFunc(t *testing.T) {
	loop, _, _, exits := newTestLoop(t)

	_ = loop.Submit(func() {
		id, err := loop.ScheduleTimer(0, nil)
		if id != 0 || err != nil {
			t.Errorf("ScheduleTimer(nil) = %v, %v", id, err)
		}
	})

	if err := runLoop(t, loop); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if codes := exits.Codes(); len(codes) != 0 {
		t.Errorf("terminate called: %v", codes)
	}
}

func TestLoop_uncaughtFaultTerminates(t *testing.T) {
	loop, _, hooks, exits := newTestLoop(t)

	var got []*fault.Fault
	if err := hooks.OnUncaughtException(func(f *fault.Fault) {
		got = append(got, f)
	}); err != nil {
		t.Fatal(err)
	}

	thrown := fault.Simulated("Uncaught exception")
	ranAfter := false
	_ = loop.Submit(func() {
		fault.Throw(thrown)
	})
	_ = loop.Submit(func() {
		ranAfter = true
	})

	err := runLoop(t, loop)
	var fatal *FatalError
	if !errors.As(err, &fatal) {
		t.Fatalf("Run() = %v, want *FatalError", err)
	}
	if fatal.Fault != thrown || fatal.ExitCode != 1 {
		t.Errorf("fatal = %+v", fatal)
	}
	if !errors.Is(err, fault.ErrSimulated) {
		t.Error("FatalError should unwrap to the fault")
	}
	if len(got) != 1 || got[0] != thrown {
		t.Errorf("hook calls = %v", got)
	}
	if codes := exits.Codes(); !reflect.DeepEqual(codes, []int{1}) {
		t.Errorf("exit codes = %v", codes)
	}
	if ranAfter {
		t.Error("task after uncaught fault should not run")
	}
	if err := loop.Submit(func() {}); !errors.Is(err, ErrLoopTerminated) {
		t.Errorf("Submit() after fatal = %v", err)
	}
	if m := loop.Metrics(); m.UncaughtFaults != 1 {
		t.Errorf("UncaughtFaults = %d", m.UncaughtFaults)
	}
}

func TestLoop_microtaskPanicIsUncaught(t *testing.T) {
	loop, _, _, exits := newTestLoop(t)

	_ = loop.Submit(func() {
		_ = loop.ScheduleMicrotask(func() {
			panic("not an error")
		})
	})

	err := runLoop(t, loop)
	var fatal *FatalError
	if !errors.As(err, &fatal) {
		t.Fatalf("Run() = %v, want *FatalError", err)
	}
	if fatal.Fault.Kind() != fault.KindUnknown || fatal.Fault.Message != "not an error" {
		t.Errorf("fault = %+v", fatal.Fault)
	}
	if len(exits.Codes()) != 1 {
		t.Errorf("exit codes = %v", exits.Codes())
	}
}

func TestLoop_Shutdown(t *testing.T) {
	loop, _, _, _ := newTestLoop(t)

	// a far timer keeps the loop alive
	if _, err := loop.ScheduleTimer(time.Hour, func() {}); err != nil {
		t.Fatal(err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- loop.Run(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for loop.State() != StateRunning {
		time.Sleep(time.Millisecond)
	}
	if err := loop.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() = %v", err)
	}
	if err := <-errCh; err != nil {
		t.Errorf("Run() = %v", err)
	}
	if err := loop.Shutdown(ctx); !errors.Is(err, ErrLoopTerminated) {
		t.Errorf("second Shutdown() = %v", err)
	}
}

func TestLoop_ShutdownBeforeRun(t *testing.T) {
	loop, _, _, _ := newTestLoop(t)
	if err := loop.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := loop.Run(context.Background()); !errors.Is(err, ErrLoopTerminated) {
		t.Errorf("Run() = %v", err)
	}
	select {
	case <-loop.Done():
	default:
		t.Error("Done() not closed")
	}
}

func TestLoop_contextCancel(t *testing.T) {
	loop, _, _, _ := newTestLoop(t)
	if _, err := loop.ScheduleTimer(time.Hour, func() {}); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := loop.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() = %v", err)
	}
}

func TestLoop_RunTwice(t *testing.T) {
	loop, _, _, _ := newTestLoop(t)
	if err := runLoop(t, loop); err != nil {
		t.Fatal(err)
	}
	if err := loop.Run(context.Background()); !errors.Is(err, ErrLoopTerminated) {
		t.Errorf("second Run() = %v", err)
	}
}

func TestLoop_Throw(t *testing.T) {
	loop, _, _, _ := newTestLoop(t)
	if err := loop.Throw(fault.Custom("ValidationError", "bad")); err != nil {
		t.Fatal(err)
	}
	err := runLoop(t, loop)
	if !errors.Is(err, fault.ErrCustom) {
		t.Errorf("Run() = %v", err)
	}
}

func TestLoopState_String(t *testing.T) {
	for state, want := range map[LoopState]string{
		StateAwake:       "Awake",
		StateRunning:     "Running",
		StateTerminating: "Terminating",
		StateTerminated:  "Terminated",
		LoopState(99):    "Unknown",
	} {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", state, got, want)
		}
	}
}
