package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/ethpandaops/seriesgraph/pkg/compute"
	"github.com/ethpandaops/seriesgraph/pkg/wire"
)

//nolint:gochecknoglobals // Cobra flags are typically global
var (
	watchSchedule string
	watchWindow   time.Duration
)

//nolint:gochecknoglobals // Cobra commands are typically global
var watchCmd = &cobra.Command{
	Use:   "watch EXPRESSION",
	Short: "Re-evaluate an expression on a cron schedule",
	Long: `Evaluate an expression over a trailing window every time the cron schedule fires,
until interrupted. Schedules use standard five-field cron syntax or descriptors
such as @every 30s.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	addEvaluationFlags(watchCmd)
	watchCmd.Flags().StringVar(&watchSchedule, "schedule", "@every 1m", "cron schedule")
	watchCmd.Flags().DurationVar(&watchWindow, "window", time.Hour, "trailing window evaluated on each run")
}

func runWatch(cmd *cobra.Command, args []string) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

	schedule, err := parser.Parse(watchSchedule)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	s, err := newSession(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := s.Close(); closeErr != nil {
			logger.WithError(closeErr).Error("Failed to close session")
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Channels are resolved once; each run only re-evaluates.
	e, err := s.expression(ctx, args[0])
	if err != nil {
		return err
	}

	log := logger.WithField("schedule", watchSchedule)

	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(schedule, cron.FuncJob(func() {
		end := time.Now()
		start := end.Add(-watchWindow)

		series, runErr := compute.ComputeBuckets(ctx, s.compute, e, wire.FromTime(start), wire.FromTime(end))
		if runErr != nil {
			log.WithError(runErr).Warn("Evaluation failed")
		}

		if printErr := printResult(cmd.OutOrStdout(), resultView{
			Label:      args[0],
			Expression: e,
			Start:      wire.FromTime(start),
			End:        wire.FromTime(end),
			Series:     series,
			Err:        runErr,
		}); printErr != nil {
			log.WithError(printErr).Error("Failed to print result")
		}
	}))

	log.WithField("next", schedule.Next(time.Now())).Info("Watching expression")

	c.Start()
	<-ctx.Done()

	<-c.Stop().Done()

	return nil
}
