package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/joeycumines/go-faultcatalog/eventloop"
	"github.com/joeycumines/go-faultcatalog/fault"
	"github.com/joeycumines/logiface"
)

// Recorder observes faults as scenarios handle them, e.g. for metrics.
type Recorder interface {
	RecordFault(scenario string, kind fault.Kind, pathway string)
	RecordLoop(scenario string, m *eventloop.Metrics)
}

// Result is the outcome of running one scenario.
type Result struct {
	Scenario    *Scenario
	Diagnostics []Diagnostic
	// Fault is the uncaught fault that terminated the loop, if any.
	Fault   *fault.Fault
	Metrics *eventloop.Metrics
	// Err is set if the scenario did not complete, e.g. timed out.
	Err      error
	Duration time.Duration
	ExitCode int
	Fatal    bool
}

// Expected reports whether the scenario completed and ended the way it is
// meant to, fatally or not.
func (r *Result) Expected() bool {
	return r.Err == nil && r.Fatal == r.Scenario.Fatal
}

// Report is the outcome of a [Runner.Run].
type Report struct {
	Started time.Time
	RunID   string
	Results []*Result
}

// ExitCode is the highest exit status requested by any scenario.
func (r *Report) ExitCode() int {
	code := 0
	for _, res := range r.Results {
		code = max(code, res.ExitCode)
	}
	return code
}

// Unexpected returns the results that did not end as expected.
func (r *Report) Unexpected() []*Result {
	var out []*Result
	for _, res := range r.Results {
		if !res.Expected() {
			out = append(out, res)
		}
	}
	return out
}

// RunnerOption configures a [Runner].
type RunnerOption func(*Runner)

// WithOutput sets where diagnostic lines are written. The default discards
// them.
func WithOutput(w io.Writer) RunnerOption {
	return func(r *Runner) {
		if w != nil {
			r.out = w
		}
	}
}

// WithLogger sets the structured logger, shared with each scenario's loop.
func WithLogger(logger *logiface.Logger[logiface.Event]) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithRecorder sets a fault [Recorder].
func WithRecorder(recorder Recorder) RunnerOption {
	return func(r *Runner) {
		r.recorder = recorder
	}
}

// WithTerminate sets a function called with the exit status after each fatal
// scenario, e.g. os.Exit to end the process there. By default the status is
// only recorded in the [Result].
func WithTerminate(terminate func(code int)) RunnerOption {
	return func(r *Runner) {
		r.terminate = terminate
	}
}

// WithHookPolicy sets the hook re-registration policy for each scenario.
func WithHookPolicy(policy eventloop.HookPolicy) RunnerOption {
	return func(r *Runner) {
		r.policy = policy
	}
}

// WithWorkdir sets the directory file paths are resolved against.
func WithWorkdir(dir string) RunnerOption {
	return func(r *Runner) {
		r.workdir = dir
	}
}

// WithTimeout bounds each scenario's run. Zero means no limit.
func WithTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.timeout = d
	}
}

// WithWarningRate rate limits each scenario's default unhandled rejection
// warnings, see [eventloop.WithWarningRate].
func WithWarningRate(rates map[time.Duration]int) RunnerOption {
	return func(r *Runner) {
		r.warningRate = rates
	}
}

// Runner runs scenarios, each on a fresh loop with fresh hooks.
type Runner struct {
	out         io.Writer
	logger      *logiface.Logger[logiface.Event]
	recorder    Recorder
	terminate   func(code int)
	workdir     string
	warningRate map[time.Duration]int
	timeout     time.Duration
	policy      eventloop.HookPolicy
}

// NewRunner creates a runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		out:     io.Discard,
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Run runs scenarios in order, or every scenario (see [Select]) if none are
// given. A scenario that does not complete does not stop the others; Run
// returns an error only if ctx is done.
func (r *Runner) Run(ctx context.Context, scenarios ...*Scenario) (*Report, error) {
	if len(scenarios) == 0 {
		scenarios, _ = Select()
	}

	report := &Report{
		Started: time.Now(),
		RunID:   uuid.NewString(),
	}

	r.logger.Info().
		Str("run_id", report.RunID).
		Int("scenarios", len(scenarios)).
		Log("catalog run started")

	for _, s := range scenarios {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Results = append(report.Results, r.runOne(ctx, s))
	}

	r.logger.Info().
		Str("run_id", report.RunID).
		Int("exit_code", report.ExitCode()).
		Int("unexpected", len(report.Unexpected())).
		Log("catalog run finished")

	return report, ctx.Err()
}

func (r *Runner) runOne(ctx context.Context, s *Scenario) *Result {
	res := &Result{Scenario: s}
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	_, _ = fmt.Fprintf(r.out, "== %s: %s\n", s, s.Description)

	hookOpts := []eventloop.HookOption{
		eventloop.WithHookPolicy(r.policy),
		eventloop.WithTerminate(func(code int) {
			res.ExitCode = code
		}),
	}
	if r.warningRate != nil {
		hookOpts = append(hookOpts, eventloop.WithWarningRate(r.warningRate))
	}
	hooks := eventloop.NewHooks(hookOpts...)
	loop, err := eventloop.New(
		eventloop.WithHooks(hooks),
		eventloop.WithLogger(r.logger),
		eventloop.WithMetrics(true),
	)
	if err != nil {
		res.Err = err
		return res
	}
	js, err := eventloop.NewJS(loop)
	if err != nil {
		res.Err = err
		return res
	}

	env := &Env{
		Loop:     loop,
		JS:       js,
		Hooks:    hooks,
		out:      r.out,
		logger:   r.logger,
		recorder: r.recorder,
		result:   res,
		workdir:  r.workdir,
	}
	if err := loop.Submit(func() { s.Run(env) }); err != nil {
		res.Err = err
		return res
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	err = loop.Run(ctx)
	res.Metrics = loop.Metrics()
	if r.recorder != nil {
		r.recorder.RecordLoop(s.Name, res.Metrics)
	}

	var fatal *eventloop.FatalError
	switch {
	case errors.As(err, &fatal):
		res.Fatal = true
		res.Fault = fatal.Fault
		if r.recorder != nil {
			r.recorder.RecordFault(s.Name, fatal.Fault.Kind(), string(PathwayFatal))
		}
		_, _ = fmt.Fprintf(r.out, "Process terminated: %s (exit status %d)\n", fatal.Fault, fatal.ExitCode)
		if r.terminate != nil {
			r.terminate(res.ExitCode)
		}
	case err != nil:
		res.Err = err
		r.logger.Err().
			Str("scenario", s.Name).
			Err(err).
			Log("scenario did not complete")
	}

	return res
}
