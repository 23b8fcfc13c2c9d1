// Package main implements the apicache CLI, which replays a recorded cache
// trace against the entity and search stores and reports their hit rates.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/electwix/apicache/internal/cli"
	"github.com/electwix/apicache/internal/clock"
	"github.com/electwix/apicache/internal/config"
	"github.com/electwix/apicache/internal/history"
	"github.com/electwix/apicache/internal/logging"
	"github.com/electwix/apicache/internal/registry"
	"github.com/electwix/apicache/internal/telemetry"
	"github.com/electwix/apicache/internal/trace"
)

func main() {
	code := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := cli.Parse(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			_, _ = fmt.Fprintln(stdout, err.Error())
			return 0
		}
		_, _ = fmt.Fprintln(stderr, err.Error())
		return 1
	}

	loaded, err := config.Load(opts.ConfigPath, config.LoadOptions{Strict: opts.StrictConfig})
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err.Error())
		return 1
	}
	for _, warning := range loaded.Warnings {
		_, _ = fmt.Fprintf(stderr, "%s [warning]\n", warning)
	}
	plan := loaded.Plan

	logger := logging.NewLogger(logging.Options{
		Verbose: opts.Verbose,
		Format:  opts.LogFormat,
		Writer:  stderr,
	})

	script, err := trace.ParseFile(opts.TracePath)
	if err != nil {
		printTraceError(stderr, err)
		return 1
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	clk := clock.NewManual(time.Now())
	reg := registry.New(plan.Registry,
		registry.WithClock(clk.Now),
		registry.WithLogger(logger),
	)

	observers := []telemetry.Observer{telemetry.LogObserver{Logger: logger}}
	if plan.Stats.Sink != config.SinkNone {
		rec, err := history.Open(ctx, history.Sink{Driver: string(plan.Stats.Sink), DSN: plan.Stats.DSN})
		if err != nil {
			_, _ = fmt.Fprintln(stderr, err.Error())
			return 2
		}
		defer func() {
			if err := rec.Close(); err != nil {
				logger.Warn("closing stats history failed", "err", err)
			}
		}()
		observers = append(observers, rec)
	}

	schedule := reg.ScheduleCleanup(ctx, plan.Cleanup.Interval, plan.Cleanup.Sweep)
	reporter := &telemetry.Reporter{
		Interval:  plan.Stats.Interval,
		Source:    reg.Report,
		Observers: observers,
		Logger:    logger,
	}
	reporterDone := make(chan struct{})
	go func() {
		defer close(reporterDone)
		reporter.Run(ctx)
	}()

	result, replayErr := trace.NewReplayer(reg, clk, stdout, logger).Run(ctx, script)

	cancel()
	schedule.Stop()
	<-reporterDone

	if replayErr != nil {
		_, _ = fmt.Fprintln(stderr, replayErr.Error())
		return 1
	}

	final := reporter.Publish(context.WithoutCancel(ctx))
	if opts.Report {
		if err := telemetry.NewJSONObserver(stdout).Observe(ctx, final); err != nil {
			_, _ = fmt.Fprintln(stderr, err.Error())
			return 1
		}
	}

	logger.Info("replay finished",
		"trace", opts.TracePath,
		"steps", result.Steps,
		"hits", result.Hits,
		"misses", result.Misses,
		"removed", result.Removed,
	)
	return 0
}

func printTraceError(w io.Writer, err error) {
	var perr *trace.ParseError
	if errors.As(err, &perr) {
		_, _ = fmt.Fprintf(w, "%s:%d:%d: %s [error]\n", perr.Path, perr.Line, perr.Column, perr.Message)
		return
	}
	_, _ = fmt.Fprintln(w, err.Error())
}
