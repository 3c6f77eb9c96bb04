package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ethpandaops/seriesgraph/pkg/ingest"
	"github.com/ethpandaops/seriesgraph/pkg/redis"
	"github.com/ethpandaops/seriesgraph/pkg/wire"
)

//nolint:gochecknoglobals // Cobra commands are typically global
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Stream points into a datasource",
	Long:  `Commands for writing points to the configured datasource, directly or through the redis-backed queue.`,
}

//nolint:gochecknoglobals // Cobra commands are typically global
var ingestWriteCmd = &cobra.Command{
	Use:   "write FILE",
	Short: "Write the batches of a JSON file",
	Long: `Write the points of a JSON file holding {"batches": [{"channel", "tags", "points"}]}.
Points are regrouped by channel and tags and flushed according to the ingest config.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngestWrite,
}

//nolint:gochecknoglobals // Cobra commands are typically global
var ingestWorkerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Deliver queued write requests to the platform",
	Args:  cobra.NoArgs,
	RunE:  runIngestWorker,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.AddCommand(ingestWriteCmd)
	ingestCmd.AddCommand(ingestWorkerCmd)
}

// ingestQueueConfig namespaces the queue with the redis prefix.
func ingestQueueConfig(cfg *CLIConfig) ingest.QueueConfig {
	q := cfg.Ingest.Queue
	q.Name = cfg.Redis.PrefixQueue(q.Name)

	return q
}

func runIngestWrite(cmd *cobra.Command, args []string) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	data, err := os.ReadFile(args[0]) //nolint:gosec // User-provided points file path
	if err != nil {
		return err
	}

	var req wire.WriteBatchesRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("failed to parse %s: %w", args[0], err)
	}

	if err := req.Validate(); err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if req.DataSourceRID != "" {
		cfg.Ingest.DataSourceRID = req.DataSourceRID
	}

	if err := cfg.ValidateIngest(); err != nil {
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

	var sink ingest.Sink = ingest.NewHTTPSink(s.client, cfg.Ingest.Path)

	if cfg.Ingest.Queue.Enabled {
		opt, optErr := cfg.Redis.Options()
		if optErr != nil {
			return optErr
		}

		queueCfg := ingestQueueConfig(cfg)
		queue := ingest.NewQueue(redis.NewAsynqRedisOptions(opt), &queueCfg)
		defer func() {
			if closeErr := queue.Close(); closeErr != nil {
				logger.WithError(closeErr).Error("Failed to close ingest queue")
			}
		}()
		sink = queue
	}

	w, err := ingest.NewWriter(logger, sink, &cfg.Ingest)
	if err != nil {
		return err
	}

	ctx := context.Background()
	points := 0

	for _, batch := range req.Batches {
		if err := writeBatch(ctx, w, batch); err != nil {
			return fmt.Errorf("channel %s: %w", batch.Channel, err)
		}
		points += batch.Points.Len()
	}

	if err := w.Close(ctx); err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"datasource": cfg.Ingest.DataSourceRID,
		"points":     points,
		"sink":       sink.Name(),
	}).Info("Points written")

	return nil
}

func writeBatch(ctx context.Context, w *ingest.Writer, b wire.RecordsBatch) error {
	p := b.Points

	for i, ts := range p.Timestamps {
		var err error

		switch p.Kind() {
		case wire.KindDouble:
			err = w.WriteDouble(ctx, b.Channel, b.Tags, ts, p.Double.Points[i])
		case wire.KindString:
			err = w.WriteString(ctx, b.Channel, b.Tags, ts, p.String.Points[i])
		case wire.KindInt:
			err = w.WriteInt(ctx, b.Channel, b.Tags, ts, p.Int.Points[i])
		case wire.KindUint64:
			err = w.WriteUint64(ctx, b.Channel, b.Tags, ts, p.Uint64.Points[i])
		}

		if err != nil {
			return err
		}
	}

	return nil
}

func runIngestWorker(cmd *cobra.Command, _ []string) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	cfg.Ingest.Queue.Enabled = true
	if cfg.Ingest.DataSourceRID == "" {
		// Queued requests carry their own datasource.
		cfg.Ingest.DataSourceRID = "queued"
	}

	if err := cfg.ValidateIngest(); err != nil {
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

	opt, err := cfg.Redis.Options()
	if err != nil {
		return err
	}

	queueCfg := ingestQueueConfig(cfg)

	handler := ingest.NewHandler(logger, ingest.NewHTTPSink(s.client, cfg.Ingest.Path))
	srv, mux := ingest.NewServer(redis.NewAsynqRedisOptions(opt), &queueCfg, handler)

	if err := srv.Start(mux); err != nil {
		return err
	}

	logger.WithField("queue", queueCfg.Name).Info("Ingest worker started")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	srv.Shutdown()

	logger.Info("Ingest worker stopped")

	return nil
}
