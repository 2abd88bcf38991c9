package eventloop

import (
	"container/heap"
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-faultcatalog/fault"
	"github.com/joeycumines/logiface"
)

// Task is a unit of work executed on the loop goroutine.
type Task func()

// TimerID identifies a timer scheduled with [Loop.ScheduleTimer].
type TimerID uint64

// loopIDCounter hands out Loop IDs, used to correlate log output.
var loopIDCounter atomic.Uint64

// Loop is a single-threaded, cooperative event loop.
//
// Every callback (tasks, timers, microtasks, promise handlers) runs on the
// goroutine that called [Loop.Run], one at a time, never preempted. Work
// arriving from other goroutines is queued via [Loop.Submit].
//
// Turn ordering:
//  1. One macrotask: a due timer (earliest deadline first), else the oldest
//     submitted task
//  2. All microtasks, FIFO, including those queued while draining
//  3. End-of-turn checks (unhandled rejection detection, see [JS])
//
// A panic escaping a task or microtask is an uncaught fault: the
// [HookUncaughtException] hook runs, the loop terminates, and Run returns a
// [*FatalError].
type Loop struct {
	// Prevent copying
	_ [0]func()

	hooks   *Hooks
	logger  *logiface.Logger[logiface.Event]
	metrics *metricsRecorder

	// fatal is only accessed on the loop goroutine
	fatal *FatalError

	// tickEndAgain requests another end-of-turn pass, loop goroutine only
	tickEndAgain bool

	wake chan struct{}
	done chan struct{}

	// Guarded by mu
	tasks      []Task
	microtasks []func()
	timers     timerHeap
	timerIndex map[TimerID]*timer
	tickEnd    []func()
	refs       int
	timerSeq   uint64

	nextTimerID     atomic.Uint64
	loopGoroutineID atomic.Uint64
	id              uint64
	state           loopState
	mu              sync.Mutex
}

// New creates a new event loop.
func New(opts ...LoopOption) (*Loop, error) {
	options, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}

	l := &Loop{
		hooks:      options.hooks,
		logger:     options.logger,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
		timerIndex: make(map[TimerID]*timer),
		id:         loopIDCounter.Add(1),
	}
	if l.hooks == nil {
		l.hooks = NewHooks()
	}
	if options.metricsEnabled {
		l.metrics = &metricsRecorder{}
	}

	return l, nil
}

// ID returns the loop's identifier, unique within the process.
func (l *Loop) ID() uint64 {
	return l.id
}

// Hooks returns the fault hooks consulted by the loop.
func (l *Loop) Hooks() *Hooks {
	return l.hooks
}

// Logger returns the loop's logger (may be nil).
func (l *Loop) Logger() *logiface.Logger[logiface.Event] {
	return l.logger
}

// State returns the current [LoopState].
func (l *Loop) State() LoopState {
	return l.state.Load()
}

// Metrics returns a snapshot of the loop's metrics, or nil if metrics are
// disabled (see [WithMetrics]).
func (l *Loop) Metrics() *Metrics {
	if l.metrics == nil {
		return nil
	}
	return l.metrics.snapshot()
}

// Done is closed once the loop has terminated.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Submit queues a macrotask. It is safe to call from any goroutine.
func (l *Loop) Submit(task Task) error {
	if task == nil {
		return nil
	}
	l.mu.Lock()
	if !l.state.CanAcceptWork() {
		l.mu.Unlock()
		return ErrLoopTerminated
	}
	l.tasks = append(l.tasks, task)
	l.mu.Unlock()
	l.wakeup()
	return nil
}

// ScheduleMicrotask queues fn to run after the current macrotask, before the
// next one. It is safe to call from any goroutine.
func (l *Loop) ScheduleMicrotask(fn func()) error {
	if fn == nil {
		return nil
	}
	l.mu.Lock()
	if state := l.state.Load(); state == StateTerminated {
		l.mu.Unlock()
		return ErrLoopTerminated
	}
	l.microtasks = append(l.microtasks, fn)
	n := len(l.microtasks)
	l.mu.Unlock()
	if l.metrics != nil {
		l.metrics.observeMicrotaskQueue(n)
	}
	l.wakeup()
	return nil
}

// ScheduleTimer schedules fn to run as a macrotask once delay has elapsed.
// Negative delays are treated as zero.
func (l *Loop) ScheduleTimer(delay time.Duration, fn func()) (TimerID, error) {
	if fn == nil {
		return 0, nil
	}
	if delay < 0 {
		delay = 0
	}
	l.mu.Lock()
	if !l.state.CanAcceptWork() {
		l.mu.Unlock()
		return 0, ErrLoopTerminated
	}
	l.timerSeq++
	t := &timer{
		when: time.Now().Add(delay),
		seq:  l.timerSeq,
		id:   TimerID(l.nextTimerID.Add(1)),
		fn:   fn,
	}
	heap.Push(&l.timers, t)
	l.timerIndex[t.id] = t
	l.mu.Unlock()
	l.wakeup()
	return t.id, nil
}

// CancelTimer cancels a pending timer.
func (l *Loop) CancelTimer(id TimerID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.timerIndex[id]
	if !ok {
		return ErrTimerNotFound
	}
	delete(l.timerIndex, id)
	heap.Remove(&l.timers, t.index)
	return nil
}

// addRef records in-flight external work. The loop does not consider itself
// idle while any reference is held.
func (l *Loop) addRef() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.state.CanAcceptWork() {
		return ErrLoopTerminated
	}
	l.refs++
	return nil
}

// releaseRef must be called on the loop goroutine, or followed by a wakeup.
func (l *Loop) releaseRef() {
	l.mu.Lock()
	l.refs--
	l.mu.Unlock()
}

// onTickEnd registers fn to run at the end of every turn, after the
// microtask queue has drained.
func (l *Loop) onTickEnd(fn func()) {
	l.mu.Lock()
	l.tickEnd = append(l.tickEnd, fn)
	l.mu.Unlock()
}

func (l *Loop) wakeup() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run runs the event loop on the calling goroutine.
//
// Run returns nil once the loop is idle (no queued tasks, microtasks, timers
// or in-flight work) or after [Loop.Shutdown]. It returns ctx.Err() if ctx is
// done first, and a [*FatalError] if an uncaught fault terminated the loop.
func (l *Loop) Run(ctx context.Context) error {
	if l.isLoopThread() {
		return ErrLoopAlreadyRunning
	}

	if !l.state.TryTransition(StateAwake, StateRunning) {
		if l.state.Load() == StateTerminated {
			return ErrLoopTerminated
		}
		return ErrLoopAlreadyRunning
	}

	// Close done when run exits to signal completion to Shutdown waiters
	defer close(l.done)

	l.loopGoroutineID.Store(getGoroutineID())
	defer l.loopGoroutineID.Store(0)

	l.logger.Debug().
		Int("loop_id", int(l.id)).
		Log("loop started")

	err := l.run(ctx)

	l.mu.Lock()
	l.state.Store(StateTerminated)
	l.tasks = nil
	l.microtasks = nil
	l.timers = nil
	l.timerIndex = make(map[TimerID]*timer)
	l.mu.Unlock()

	l.logger.Debug().
		Int("loop_id", int(l.id)).
		Err(err).
		Log("loop stopped")

	return err
}

func (l *Loop) run(ctx context.Context) error {
	var idleTimer *time.Timer
	defer func() {
		if idleTimer != nil {
			idleTimer.Stop()
		}
	}()

	for {
		// microtasks may arrive from other goroutines between turns
		if l.pendingMicrotasks() {
			l.drainMicrotasks()
			l.runTickEnd()
		}
		if l.fatal != nil {
			return l.fatal
		}

		task, wait, ok := l.next()
		if ok {
			l.runMacrotask(task)
			if l.fatal != nil {
				return l.fatal
			}
			continue
		}

		if l.terminateIfIdle() {
			return nil
		}

		var timerC <-chan time.Time
		if wait > 0 {
			if idleTimer == nil {
				idleTimer = time.NewTimer(wait)
			} else {
				idleTimer.Reset(wait)
			}
			timerC = idleTimer.C
		}

		select {
		case <-l.wake:
		case <-timerC:
		case <-ctx.Done():
			return ctx.Err()
		}

		if idleTimer != nil {
			idleTimer.Stop()
		}
	}
}

// next pops the next macrotask. If none is runnable, wait is the duration
// until the earliest timer (0 if there are no timers).
func (l *Loop) next() (task Task, wait time.Duration, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	terminating := l.state.Load() == StateTerminating

	if !terminating && len(l.timers) > 0 {
		t := l.timers[0]
		if d := time.Until(t.when); d <= 0 {
			heap.Pop(&l.timers)
			delete(l.timerIndex, t.id)
			if l.metrics != nil {
				l.metrics.timersFired.Add(1)
			}
			return t.fn, 0, true
		} else {
			wait = d
		}
	}

	if len(l.tasks) > 0 {
		task = l.tasks[0]
		l.tasks[0] = nil
		l.tasks = l.tasks[1:]
		return task, 0, true
	}

	return nil, wait, false
}

// terminateIfIdle atomically checks for remaining work and, if there is
// none, moves to StateTerminated so no further work is accepted.
func (l *Loop) terminateIfIdle() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.tasks) > 0 || len(l.microtasks) > 0 {
		return false
	}
	if l.state.Load() == StateTerminating {
		l.state.Store(StateTerminated)
		return true
	}
	if len(l.timers) > 0 || l.refs > 0 {
		return false
	}
	l.state.Store(StateTerminated)
	return true
}

func (l *Loop) pendingMicrotasks() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.microtasks) > 0
}

// runMacrotask runs one task, the microtask drain, and end-of-turn checks.
func (l *Loop) runMacrotask(task Task) {
	start := time.Now()

	l.safeExecute(task)
	if l.metrics != nil {
		l.metrics.tasks.Add(1)
	}
	if l.fatal != nil {
		return
	}

	l.drainMicrotasks()
	if l.fatal != nil {
		return
	}
	l.runTickEnd()

	if l.metrics != nil {
		l.metrics.latency.Record(time.Since(start))
	}
}

func (l *Loop) drainMicrotasks() {
	for l.fatal == nil {
		l.mu.Lock()
		if len(l.microtasks) == 0 {
			l.mu.Unlock()
			return
		}
		fn := l.microtasks[0]
		l.microtasks[0] = nil
		l.microtasks = l.microtasks[1:]
		l.mu.Unlock()

		l.safeExecute(fn)
		if l.metrics != nil {
			l.metrics.microtasks.Add(1)
		}
	}
}

// runTickEnd runs the end-of-turn checks, repeating them while a check (or
// the microtasks it queued) requests another pass, e.g. a rejection raised
// by an unhandled rejection hook.
func (l *Loop) runTickEnd() {
	l.mu.Lock()
	hooks := l.tickEnd
	l.mu.Unlock()
	for {
		l.tickEndAgain = false
		for _, fn := range hooks {
			if l.fatal != nil {
				return
			}
			l.safeExecute(fn)
			// end-of-turn hooks may queue microtasks (e.g. via user callbacks)
			l.drainMicrotasks()
		}
		if !l.tickEndAgain || l.fatal != nil {
			return
		}
	}
}

// requestTickEnd ensures the end-of-turn checks run (again) before the loop
// can go idle. It may be called from any goroutine.
func (l *Loop) requestTickEnd() {
	if l.isLoopThread() {
		l.tickEndAgain = true
		return
	}
	// another goroutine has no turn of its own; an empty microtask starts one
	_ = l.ScheduleMicrotask(func() {})
}

// safeExecute runs fn, converting an escaping panic into an uncaught fault.
func (l *Loop) safeExecute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.uncaught(fault.FromPanic(r))
		}
	}()
	fn()
}

// uncaught handles a synchronous fault that reached the top of a task.
// The hook runs at most once per loop: the first uncaught fault terminates it.
func (l *Loop) uncaught(f *fault.Fault) {
	if l.fatal != nil {
		return
	}
	const exitCode = 1
	l.fatal = &FatalError{Fault: f, ExitCode: exitCode}
	if l.metrics != nil {
		l.metrics.uncaughtFaults.Add(1)
	}
	l.mu.Lock()
	l.state.Store(StateTerminated)
	l.mu.Unlock()
	l.hooks.uncaughtException(l.logger, f, exitCode)
}

// Throw raises err as an uncaught fault from outside any task, e.g. a
// deliberate top-level throw. It is equivalent to submitting a task that
// calls [fault.Throw].
func (l *Loop) Throw(err error) error {
	return l.Submit(func() {
		fault.Throw(err)
	})
}

// Shutdown stops the loop after already-queued tasks and microtasks have run.
// Pending timers are discarded. Shutdown blocks until termination completes
// or ctx is done; called from the loop goroutine, it does not wait.
func (l *Loop) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	switch l.state.Load() {
	case StateAwake:
		l.state.Store(StateTerminated)
		l.mu.Unlock()
		close(l.done)
		return nil
	case StateRunning:
		l.state.Store(StateTerminating)
	default:
		l.mu.Unlock()
		return ErrLoopTerminated
	}
	l.mu.Unlock()
	l.wakeup()

	if l.isLoopThread() {
		return nil
	}

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// isLoopThread checks if we're on the loop goroutine.
func (l *Loop) isLoopThread() bool {
	loopID := l.loopGoroutineID.Load()
	if loopID == 0 {
		return false
	}
	return getGoroutineID() == loopID
}

// getGoroutineID returns the current goroutine's ID.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}

// timer is an entry in the timer heap.
type timer struct {
	when  time.Time
	fn    func()
	seq   uint64
	id    TimerID
	index int
}

// timerHeap orders timers by deadline, then by scheduling order.
type timerHeap []*timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
