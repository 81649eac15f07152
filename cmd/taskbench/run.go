package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/Swind/go-task-executor/core"
	obs "github.com/Swind/go-task-executor/observability/prometheus"
	"github.com/Swind/go-task-executor/workload"
)

func RunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run workloads and report time per iteration",

		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "workload",
				Aliases: []string{"w"},
				Usage:   "Workload to run (repeatable, default all)",
				EnvVars: []string{"TASKBENCH_WORKLOAD"},
			},
			&cli.IntFlag{
				Name:    "workers",
				Value:   runtime.NumCPU(),
				Usage:   "Number of executor workers",
				EnvVars: []string{"TASKBENCH_WORKERS"},
			},
			&cli.IntFlag{
				Name:    "iterations",
				Aliases: []string{"n"},
				Value:   10,
				Usage:   "Iterations per workload",
				EnvVars: []string{"TASKBENCH_ITERATIONS"},
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Value:   time.Minute,
				Usage:   "Upper bound for a single iteration",
				EnvVars: []string{"TASKBENCH_TIMEOUT"},
			},
			&cli.StringFlag{
				Name:    "metrics-addr",
				Usage:   "Serve Prometheus metrics on this address (e.g. :2112)",
				EnvVars: []string{"TASKBENCH_METRICS_ADDR"},
			},
			&cli.StringFlag{
				Name:    "shutdown",
				Value:   "drain",
				Usage:   "Shutdown mode: drain or abandon",
				EnvVars: []string{"TASKBENCH_SHUTDOWN"},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Log executor lifecycle at debug level",
				EnvVars: []string{"TASKBENCH_VERBOSE"},
			},
		},

		Action: RunAction,
	}
}

func RunAction(c *cli.Context) error {
	// 1. Get flags
	workers := c.Int("workers")
	iterations := c.Int("iterations")
	timeout := c.Duration("timeout")
	metricsAddr := c.String("metrics-addr")

	// 2. Validate (format only)
	if iterations < 1 {
		return cli.Exit("iterations must be at least 1", 1)
	}
	mode, err := core.ParseShutdownMode(c.String("shutdown"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	selected, err := selectWorkloads(c.StringSlice("workload"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	// 3. Build the executor and its metrics
	reg := prom.NewRegistry()
	exporter, err := obs.NewMetricsExporter("taskexec", reg, obs.ExporterOptions{})
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	poller, err := obs.NewSnapshotPoller(reg, 250*time.Millisecond)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}

	var logger core.Logger = core.NewDefaultLogger()
	if c.Bool("verbose") {
		logger = core.NewDebugLogger()
	}

	exec, err := core.NewExecutor(&core.ExecutorConfig{
		ID:           "taskbench",
		Workers:      workers,
		ShutdownMode: mode,
		Metrics:      exporter,
		Logger:       logger,
	})
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	poller.AddPool(exec.ID(), exec)

	// 4. Run workloads, metrics server and poller together
	g, ctx := errgroup.WithContext(c.Context)
	benchDone := make(chan struct{})

	poller.Start(ctx)
	defer poller.Stop()

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		server := &http.Server{Addr: metricsAddr, Handler: mux}

		g.Go(func() error {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			select {
			case <-ctx.Done():
			case <-benchDone:
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
		logger.Info("serving metrics", core.F("addr", metricsAddr))
	}

	params := workload.DefaultParams(workers)
	g.Go(func() error {
		defer close(benchDone)
		for _, w := range selected {
			res, err := runWorkload(ctx, exec, w, params, iterations, timeout)
			if err != nil {
				return fmt.Errorf("%s: %w", w.Name, err)
			}
			printResult(c, res)
		}
		return nil
	})

	runErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := exec.Shutdown(shutdownCtx); err != nil {
		logger.Warn("executor shutdown incomplete", core.F("error", err))
	}

	// 5. Format output
	stats := exec.Stats()
	fmt.Fprintf(c.App.Writer, "\n%s tasks spawned, %s completed, %s stolen, %d panicked\n",
		humanize.Comma(int64(stats.Spawned)),
		humanize.Comma(int64(stats.Completed)),
		humanize.Comma(int64(stats.Steals)),
		stats.Panicked)

	if runErr != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", runErr), 1)
	}
	return nil
}

func selectWorkloads(names []string) ([]workload.Workload, error) {
	if len(names) == 0 {
		return workload.All(), nil
	}
	out := make([]workload.Workload, 0, len(names))
	for _, name := range names {
		w, ok := workload.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown workload %q (see 'taskbench list')", name)
		}
		out = append(out, w)
	}
	return out, nil
}

type result struct {
	name       string
	iterations int
	total      time.Duration
	tasks      uint64
}

func runWorkload(ctx context.Context, exec *core.Executor, w workload.Workload, p workload.Params, iterations int, timeout time.Duration) (result, error) {
	res := result{name: w.Name, iterations: iterations}
	before := exec.Stats().Spawned

	for range iterations {
		iterCtx, cancel := context.WithTimeout(ctx, timeout)
		start := time.Now()
		err := w.Run(iterCtx, exec.Handle(), p)
		res.total += time.Since(start)
		cancel()
		if err != nil {
			return res, err
		}
	}
	res.tasks = exec.Stats().Spawned - before
	return res, nil
}

func printResult(c *cli.Context, r result) {
	perIter := r.total / time.Duration(r.iterations)
	rate := int64(float64(r.tasks) / r.total.Seconds())
	fmt.Fprintf(c.App.Writer, "%-14s %4d iters  %12s/iter  %s tasks/s\n",
		r.name, r.iterations, perIter, humanize.Comma(rate))
}
