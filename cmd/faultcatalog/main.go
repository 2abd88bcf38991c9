// Command faultcatalog runs the fault handling scenarios of the catalog,
// printing what each pathway observed.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/joeycumines/go-faultcatalog/catalog"
	"github.com/joeycumines/go-faultcatalog/internal/config"
	"github.com/joeycumines/go-faultcatalog/internal/faultmetrics"
	"github.com/joeycumines/go-faultcatalog/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	exitOK        = 0
	exitUsage     = 2
	exitInterrupt = 130
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, os.LookupEnv, os.Exit)
	stop()
	os.Exit(code)
}

// run executes the CLI and returns the exit status. Unless simulating,
// exit is called by the first fatal scenario.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, lookupEnv func(string) (string, bool), exit func(int)) int {
	cfg, opts, err := config.Resolve(args, lookupEnv)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return exitUsage
	}

	if opts.Help {
		_, _ = fmt.Fprintf(stdout, "Usage: faultcatalog [flags]\n\n%s", opts.Usage())
		return exitOK
	}
	if opts.List {
		for _, s := range catalog.All() {
			fatal := ""
			if s.Fatal {
				fatal = " (fatal)"
			}
			_, _ = fmt.Fprintf(stdout, "%2d  %-20s %s%s\n", s.ID, s.Name, s.Description, fatal)
		}
		return exitOK
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return exitUsage
	}
	logger, err := logging.New(logging.Options{
		Writer: stderr,
		Format: logging.Format(cfg.Log.Format),
		Level:  level,
	})
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return exitUsage
	}

	scenarios, err := catalog.Select(cfg.Scenarios...)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return exitUsage
	}

	policy, _ := cfg.Policy()
	reg := prometheus.NewRegistry()

	runnerOpts := []catalog.RunnerOption{
		catalog.WithOutput(stdout),
		catalog.WithLogger(logger),
		catalog.WithRecorder(faultmetrics.New(reg)),
		catalog.WithHookPolicy(policy),
		catalog.WithWorkdir(cfg.Workdir),
		catalog.WithTimeout(cfg.Timeout),
		catalog.WithWarningRate(map[time.Duration]int{
			time.Second: 10,
			time.Minute: 100,
		}),
	}
	if !cfg.SimulateExit {
		runnerOpts = append(runnerOpts, catalog.WithTerminate(func(code int) {
			if cfg.Metrics.Enabled {
				writeMetrics(cfg.Metrics.Output, stdout, stderr, reg)
			}
			exit(code)
		}))
	}

	report, err := catalog.NewRunner(runnerOpts...).Run(ctx, scenarios...)

	if cfg.Metrics.Enabled {
		writeMetrics(cfg.Metrics.Output, stdout, stderr, reg)
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return exitInterrupt
		}
		_, _ = fmt.Fprintln(stderr, err)
		return 1
	}

	code := report.ExitCode()
	for _, res := range report.Unexpected() {
		logger.Err().
			Str("scenario", res.Scenario.Name).
			Err(res.Err).
			Log("scenario ended unexpectedly")
		code = max(code, 1)
	}
	return code
}

func writeMetrics(dest string, stdout, stderr io.Writer, g prometheus.Gatherer) {
	w := stdout
	if dest != "" && dest != "-" {
		f, err := os.Create(dest)
		if err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return
		}
		defer f.Close()
		w = f
	}
	if err := faultmetrics.WriteText(w, g); err != nil {
		_, _ = fmt.Fprintln(stderr, err)
	}
}
