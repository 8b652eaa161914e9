// calltrace-demo replays an order request through a controller, a service and
// a repository, each traced with calltrace, for several concurrent users.
//
// Usage:
//
//	calltrace-demo run [--users N] [--item ID] [--stateless] [--config FILE]
//
// Item id "ex" makes the repository fail, showing the exception markers.
// --stateless switches to the tracer that starts a new root on every call.
//
// Exit codes:
//
//	0: every request succeeded
//	1: at least one request failed, or setup failed
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/urfave/cli/v3"
	"github.com/zoobzio/calltrace"
)

// Version can be set with -ldflags "-X main.Version=...".
var Version = "0.1.0-dev"

func main() {
	os.Exit(run(os.Args, os.Stdout))
}

func createApp(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "calltrace-demo",
		Usage:   "trace nested order requests from concurrent users",
		Version: Version,
		Writer:  out,
		Commands: []*cli.Command{
			createRunCommand(out),
		},
		DefaultCommand: "run",
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
	}
}

func createRunCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "run order requests",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML or JSON tracer config",
			},
			&cli.IntFlag{
				Name:    "users",
				Aliases: []string{"u"},
				Usage:   "number of concurrent users",
				Value:   2,
			},
			&cli.StringFlag{
				Name:    "item",
				Aliases: []string{"i"},
				Usage:   `item id to order ("ex" fails)`,
				Value:   "itemA",
			},
			&cli.DurationFlag{
				Name:  "stagger",
				Usage: "delay between starting users",
				Value: 100 * time.Millisecond,
			},
			&cli.DurationFlag{
				Name:  "work",
				Usage: "time the repository takes to save",
				Value: time.Second,
			},
			&cli.BoolFlag{
				Name:  "stateless",
				Usage: "use the tracer without per-request state",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runOrders(ctx, out, runOptions{
				configPath: cmd.String("config"),
				users:      int(cmd.Int("users")),
				item:       cmd.String("item"),
				stagger:    cmd.Duration("stagger"),
				work:       cmd.Duration("work"),
				stateless:  cmd.Bool("stateless"),
			})
		},
	}
}

type runOptions struct {
	configPath string
	item       string
	users      int
	stagger    time.Duration
	work       time.Duration
	stateless  bool
}

func buildTracer(opts runOptions, out io.Writer) (calltrace.LogTrace, func(), error) {
	cfg := calltrace.DefaultConfig()
	if opts.configPath != "" {
		var err error
		if cfg, err = calltrace.LoadConfig(opts.configPath); err != nil {
			return nil, nil, err
		}
	}

	var extra []calltrace.Option
	if cfg.Sink.Kind == "" || cfg.Sink.Kind == calltrace.SinkStdout {
		extra = append(extra, calltrace.WithSink(calltrace.NewWriterSink(out, cfg.Sink.Encoding)))
	}

	if opts.stateless {
		cfgOpts, closeSink, err := cfg.Options()
		if err != nil {
			return nil, nil, err
		}
		return calltrace.NewStateless(append(cfgOpts, extra...)...), func() { _ = closeSink() }, nil
	}

	tracer, closeSink, err := calltrace.NewFromConfig(cfg, extra...)
	if err != nil {
		return nil, nil, err
	}
	return tracer, func() {
		tracer.Close()
		_ = closeSink()
	}, nil
}

func runOrders(ctx context.Context, out io.Writer, opts runOptions) error {
	if opts.users <= 0 {
		return fmt.Errorf("users must be > 0, got %d", opts.users)
	}

	trace, closeFn, err := buildTracer(opts, out)
	if err != nil {
		return err
	}
	defer closeFn()

	controller := newOrderController(trace, opts.work)

	var wg sync.WaitGroup
	errs := make([]error, opts.users)
	for u := 0; u < opts.users; u++ {
		if u > 0 && opts.stagger > 0 {
			time.Sleep(opts.stagger)
		}
		wg.Add(1)
		go func(u int) {
			defer wg.Done()
			// Each user starts from its own context, hence its own root.
			_, errs[u] = controller.request(ctx, opts.item)
		}(u)
	}
	wg.Wait()

	return errors.Join(errs...)
}

func run(args []string, out io.Writer) int {
	if err := createApp(out).Run(context.Background(), args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}
