package catalog

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/joeycumines/go-faultcatalog/eventloop"
	"github.com/joeycumines/go-faultcatalog/fault"
	"github.com/joeycumines/logiface"
)

// Pathway names the mechanism that delivered a fault to its handler.
type Pathway string

const (
	PathwayGuard         Pathway = "guard"
	PathwayCallback      Pathway = "callback"
	PathwayRejection     Pathway = "rejection_handler"
	PathwayAwait         Pathway = "await"
	PathwayListener      Pathway = "listener"
	PathwayUnhandledHook Pathway = "unhandled_rejection_hook"
	PathwayUncaughtHook  Pathway = "uncaught_exception_hook"
	// PathwayFatal is recorded by the runner for the fault that terminated
	// a scenario's loop.
	PathwayFatal Pathway = "fatal"
)

// Diagnostic is one handled fault, as reported by a scenario.
type Diagnostic struct {
	Fault   *fault.Fault
	Pathway Pathway
	Label   string
}

// Line is the human-readable form written to the runner's output.
func (d Diagnostic) Line() string {
	return fmt.Sprintf("%s: %s (%s)", d.Label, d.Fault.Message, d.Fault.Name())
}

// Env is what a scenario runs against: a fresh loop with its own hooks, and
// somewhere to report what its handlers observed.
type Env struct {
	Loop  *eventloop.Loop
	JS    *eventloop.JS
	Hooks *eventloop.Hooks

	out      io.Writer
	logger   *logiface.Logger[logiface.Event]
	recorder Recorder
	result   *Result
	workdir  string
}

// Path resolves name against the runner's working directory.
func (e *Env) Path(name string) string {
	if e.workdir == "" {
		return name
	}
	return filepath.Join(e.workdir, name)
}

// Report records a fault delivered to a handler: a diagnostic line on the
// output, a structured log event, and a metric.
func (e *Env) Report(pathway Pathway, f *fault.Fault, label string) {
	if f == nil {
		f = fault.New(fault.KindUnknown, "<nil>")
	}
	d := Diagnostic{Fault: f, Pathway: pathway, Label: label}
	e.result.Diagnostics = append(e.result.Diagnostics, d)

	_, _ = fmt.Fprintln(e.out, d.Line())

	e.logger.Info().
		Str("scenario", e.result.Scenario.Name).
		Str("pathway", string(pathway)).
		Str("kind", f.Kind().String()).
		Str("name", f.Name()).
		Err(f).
		Log(label)

	if e.recorder != nil {
		e.recorder.RecordFault(e.result.Scenario.Name, f.Kind(), string(pathway))
	}
}

// Printf writes a non-fault line to the output.
func (e *Env) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(e.out, format+"\n", args...)
}
