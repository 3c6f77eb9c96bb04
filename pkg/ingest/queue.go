package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/seriesgraph/pkg/observability"
	"github.com/ethpandaops/seriesgraph/pkg/wire"
)

const (
	// TypeWriteBatches is the task type carrying a protobuf-encoded WriteBatchesRequest
	TypeWriteBatches = "ingest:write_batches"
)

// Queue is a Sink that enqueues encoded write requests for a Handler to deliver.
type Queue struct {
	client   *asynq.Client
	queue    string
	maxRetry int
}

// NewQueue creates a queue sink.
func NewQueue(redisOpt *asynq.RedisClientOpt, cfg *QueueConfig) *Queue {
	return &Queue{
		client:   asynq.NewClient(*redisOpt),
		queue:    cfg.Name,
		maxRetry: cfg.MaxRetry,
	}
}

// Name implements Sink.
func (q *Queue) Name() string {
	return "queue"
}

// Write implements Sink.
func (q *Queue) Write(ctx context.Context, req *wire.WriteBatchesRequest) error {
	_, err := q.Enqueue(ctx, req)
	return err
}

// Enqueue stores req on the queue and returns the task info.
func (q *Queue) Enqueue(ctx context.Context, req *wire.WriteBatchesRequest, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	payload, err := req.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode write request: %w", err)
	}

	defaultOpts := []asynq.Option{
		asynq.Queue(q.queue),
		asynq.MaxRetry(q.maxRetry),
		asynq.Timeout(time.Minute),
	}

	allOpts := defaultOpts
	allOpts = append(allOpts, opts...)

	info, err := q.client.EnqueueContext(ctx, asynq.NewTask(TypeWriteBatches, payload), allOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue write request: %w", err)
	}

	return info, nil
}

// Close closes the queue client
func (q *Queue) Close() error {
	return q.client.Close()
}

// Handler delivers queued write requests to a downstream sink.
type Handler struct {
	sink Sink
	log  logrus.FieldLogger
}

// NewHandler creates a handler forwarding to sink.
func NewHandler(log logrus.FieldLogger, sink Sink) *Handler {
	return &Handler{
		sink: sink,
		log:  log.WithField("component", "ingest-handler"),
	}
}

// HandleWriteBatches decodes a task payload and writes it to the sink. Malformed payloads are
// not retried.
func (h *Handler) HandleWriteBatches(ctx context.Context, t *asynq.Task) error {
	var req wire.WriteBatchesRequest
	if err := req.UnmarshalBinary(t.Payload()); err != nil {
		observability.RecordError("ingest-handler", "unmarshal_error")
		return fmt.Errorf("failed to decode payload: %w: %w", err, asynq.SkipRetry)
	}

	if err := h.sink.Write(ctx, &req); err != nil {
		observability.RecordIngestFlush(h.sink.Name(), "error")
		return err
	}

	observability.RecordIngestFlush(h.sink.Name(), "success")

	h.log.WithFields(logrus.Fields{
		"batches":    len(req.Batches),
		"datasource": req.DataSourceRID,
	}).Debug("Delivered queued write request")

	return nil
}

// Routes returns the task handler routes for Asynq
func (h *Handler) Routes() map[string]asynq.HandlerFunc {
	return map[string]asynq.HandlerFunc{
		TypeWriteBatches: h.HandleWriteBatches,
	}
}

// NewServer creates an asynq server consuming the ingest queue with h.
func NewServer(redisOpt *asynq.RedisClientOpt, cfg *QueueConfig, h *Handler) (*asynq.Server, *asynq.ServeMux) {
	srv := asynq.NewServer(*redisOpt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      map[string]int{cfg.Name: 1},
	})

	mux := asynq.NewServeMux()
	for taskType, handlerFunc := range h.Routes() {
		mux.HandleFunc(taskType, handlerFunc)
	}

	return srv, mux
}
