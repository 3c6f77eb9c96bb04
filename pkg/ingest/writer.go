// Package ingest streams points to a platform datasource. A Writer groups points by channel and
// tag set into RecordsBatch columns and flushes them as one WriteBatchesRequest, either straight
// to the platform or through a durable redis queue.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/seriesgraph/pkg/observability"
	"github.com/ethpandaops/seriesgraph/pkg/wire"
)

var (
	// ErrKindMismatch is returned when a series receives points of a different kind than it holds.
	ErrKindMismatch = errors.New("point kind does not match buffered series")
	// ErrWriterClosed is returned by writes after Close.
	ErrWriterClosed = errors.New("writer is closed")
)

type seriesKey string

func keyOf(channel string, tags map[string]string) seriesKey {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(channel)
	for _, k := range keys {
		b.WriteByte(0)
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(tags[k])
	}

	return seriesKey(b.String())
}

type series struct {
	channel    string
	tags       map[string]string
	kind       wire.PointKind
	timestamps []wire.Timestamp
	doubles    []float64
	strings    []string
	ints       []int64
	uints      []uint64
}

func (s *series) points() wire.Points {
	p := wire.Points{Timestamps: s.timestamps}

	switch s.kind {
	case wire.KindDouble:
		p.Double = &wire.DoublePoints{Points: s.doubles}
	case wire.KindString:
		p.String = &wire.StringPoints{Points: s.strings}
	case wire.KindInt:
		p.Int = &wire.IntPoints{Points: s.ints}
	case wire.KindUint64:
		p.Uint64 = &wire.Uint64Points{Points: s.uints}
	}

	return p
}

// Writer buffers points and flushes them to a Sink. It is safe for concurrent use.
type Writer struct {
	log           logrus.FieldLogger
	sink          Sink
	dataSourceRID string
	maxBuffered   int

	mu       sync.Mutex
	buffered int
	order    []seriesKey
	series   map[seriesKey]*series
	closed   bool
}

// NewWriter creates a writer for the configured datasource.
func NewWriter(log logrus.FieldLogger, sink Sink, cfg *Config) (*Writer, error) {
	c := *cfg
	c.SetDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ingest config: %w", err)
	}

	return &Writer{
		log:           log.WithField("component", "ingest"),
		sink:          sink,
		dataSourceRID: c.DataSourceRID,
		maxBuffered:   c.MaxBufferedPoints,
		series:        map[seriesKey]*series{},
	}, nil
}

// WriteDouble buffers a double point.
func (w *Writer) WriteDouble(ctx context.Context, channel string, tags map[string]string, ts wire.Timestamp, v float64) error {
	return w.write(ctx, channel, tags, ts, wire.KindDouble, func(s *series) { s.doubles = append(s.doubles, v) })
}

// WriteString buffers a string point.
func (w *Writer) WriteString(ctx context.Context, channel string, tags map[string]string, ts wire.Timestamp, v string) error {
	return w.write(ctx, channel, tags, ts, wire.KindString, func(s *series) { s.strings = append(s.strings, v) })
}

// WriteInt buffers an int64 point.
func (w *Writer) WriteInt(ctx context.Context, channel string, tags map[string]string, ts wire.Timestamp, v int64) error {
	return w.write(ctx, channel, tags, ts, wire.KindInt, func(s *series) { s.ints = append(s.ints, v) })
}

// WriteUint64 buffers a uint64 point.
func (w *Writer) WriteUint64(ctx context.Context, channel string, tags map[string]string, ts wire.Timestamp, v uint64) error {
	return w.write(ctx, channel, tags, ts, wire.KindUint64, func(s *series) { s.uints = append(s.uints, v) })
}

func (w *Writer) write(ctx context.Context, channel string, tags map[string]string, ts wire.Timestamp, kind wire.PointKind, add func(*series)) error {
	if channel == "" {
		return wire.ErrEmptyChannel
	}

	if err := ts.Validate(); err != nil {
		return err
	}

	w.mu.Lock()

	if w.closed {
		w.mu.Unlock()
		return ErrWriterClosed
	}

	key := keyOf(channel, tags)

	s, ok := w.series[key]
	if !ok {
		s = &series{channel: channel, tags: copyTags(tags), kind: kind}
		w.series[key] = s
		w.order = append(w.order, key)
	}

	if s.kind != kind {
		w.mu.Unlock()
		return fmt.Errorf("%w: %s holds %s points, got %s", ErrKindMismatch, channel, s.kind, kind)
	}

	s.timestamps = append(s.timestamps, ts)
	add(s)
	w.buffered++

	full := w.buffered >= w.maxBuffered
	buffered := w.buffered

	w.mu.Unlock()

	observability.RecordIngestPoint(kind.String())
	observability.SetIngestBuffered(buffered)

	if full {
		return w.Flush(ctx)
	}

	return nil
}

func copyTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return nil
	}

	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[k] = v
	}

	return out
}

// Buffered is the number of points waiting for the next flush.
func (w *Writer) Buffered() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.buffered
}

// Flush sends all buffered points as one request, one RecordsBatch per series in first-write
// order. Points of a failed flush are dropped and the error is returned.
func (w *Writer) Flush(ctx context.Context) error {
	req := w.drain()
	if req == nil {
		return nil
	}

	started := time.Now()

	log := w.log.WithFields(logrus.Fields{
		"sink":    w.sink.Name(),
		"batches": len(req.Batches),
	})

	if err := w.sink.Write(ctx, req); err != nil {
		observability.RecordIngestFlush(w.sink.Name(), "error")
		log.WithError(err).Error("Failed to flush points")

		return err
	}

	observability.RecordIngestFlush(w.sink.Name(), "success")
	log.WithField("duration", time.Since(started)).Debug("Flushed points")

	return nil
}

func (w *Writer) drain() *wire.WriteBatchesRequest {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buffered == 0 {
		return nil
	}

	req := &wire.WriteBatchesRequest{
		DataSourceRID: w.dataSourceRID,
		Batches:       make([]wire.RecordsBatch, 0, len(w.order)),
	}

	for _, key := range w.order {
		s := w.series[key]
		req.Batches = append(req.Batches, wire.RecordsBatch{
			Channel: s.channel,
			Tags:    s.tags,
			Points:  s.points(),
		})
	}

	w.order = nil
	w.series = map[seriesKey]*series{}
	w.buffered = 0

	observability.SetIngestBuffered(0)

	return req
}

// Close flushes the remaining points. Later writes fail with ErrWriterClosed.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()

	return w.Flush(ctx)
}
