package main

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/shopify-source/pkg/logging"
	"github.com/Sternrassler/shopify-source/pkg/pipeline"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Load resources on a cron schedule",
	Long: `Runs a load on every tick of schedule.cron until interrupted. A tick
that fires while the previous load is still running is skipped.

With metrics.addr set, /metrics and /health are served while scheduling.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		spec, err := cfg.ScheduleSpec()
		if err != nil {
			return err
		}

		shutdown := startMetricsServer(ctx, cfg.Metrics.Addr)
		defer shutdown()

		a, err := openApp(ctx, cfg, fullRefresh)
		if err != nil {
			return err
		}
		defer a.Close()

		return runSchedule(ctx, spec, a.runner, selectedResources(), cfg.Schedule.RunOnStart)
	},
}

// loader is the part of pipeline.Runner the scheduler drives.
type loader interface {
	Run(ctx context.Context, names ...string) ([]pipeline.Result, error)
}

// runSchedule blocks until ctx is done, then waits for a running load.
func runSchedule(ctx context.Context, spec cron.Schedule, l loader, names []string, runOnStart bool) error {
	logger := logging.NewLogger("scheduler")
	cronLog := cronLogger{logger: logger}

	c := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	job := c.Schedule(spec, cron.FuncJob(func() {
		load(ctx, l, names, logger)
	}))

	c.Start()
	logger.Info().Time("next", c.Entry(job).Next).Msg("Scheduler started")

	if runOnStart {
		c.Entry(job).WrappedJob.Run()
	}

	<-ctx.Done()
	logger.Info().Msg("Stopping scheduler")
	<-c.Stop().Done()
	return nil
}

func load(ctx context.Context, l loader, names []string, logger zerolog.Logger) {
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	results, err := l.Run(ctx, names...)

	items := 0
	for _, r := range results {
		items += r.Items
	}
	event := logger.Info()
	if err != nil {
		event = logger.Error().Err(err)
	}
	event.Int("resources", len(results)).Int("items", items).Dur("duration", time.Since(start)).Msg("Scheduled load finished")
}

// cronLogger routes cron's logs to zerolog.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

var _ cron.Logger = cronLogger{}
var _ loader = (*pipeline.Runner)(nil)
