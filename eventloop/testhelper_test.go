package eventloop

import (
	"context"
	"sync"
	"testing"
	"time"
)

// exitRecorder captures terminate calls in place of os.Exit.
type exitRecorder struct {
	codes []int
	mu    sync.Mutex
}

func (r *exitRecorder) terminate(code int) {
	r.mu.Lock()
	r.codes = append(r.codes, code)
	r.mu.Unlock()
}

func (r *exitRecorder) Codes() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.codes...)
}

// newTestLoop creates a loop (with metrics) and JS adapter, with hooks that
// never exit the process.
func newTestLoop(t *testing.T, opts ...LoopOption) (*Loop, *JS, *Hooks, *exitRecorder) {
	t.Helper()
	exits := &exitRecorder{}
	hooks := NewHooks(WithTerminate(exits.terminate))
	loop, err := New(append([]LoopOption{WithHooks(hooks), WithMetrics(true)}, opts...)...)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	js, err := NewJS(loop)
	if err != nil {
		t.Fatalf("NewJS() failed: %v", err)
	}
	return loop, js, hooks, exits
}

// runLoop runs the loop to completion, failing the test on timeout.
func runLoop(t *testing.T, loop *Loop) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := loop.Run(ctx)
	if err == context.DeadlineExceeded {
		t.Fatal("loop did not become idle")
	}
	return err
}
