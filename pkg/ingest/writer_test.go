package ingest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/seriesgraph/internal/testutil"
	"github.com/ethpandaops/seriesgraph/pkg/transport"
	"github.com/ethpandaops/seriesgraph/pkg/wire"
)

const testDatasource = "ri.datasource.main.datasource.1"

var errSinkDown = errors.New("sink down")

type recordingSink struct {
	mu       sync.Mutex
	requests []*wire.WriteBatchesRequest
	err      error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Write(_ context.Context, req *wire.WriteBatchesRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	s.requests = append(s.requests, req)

	return nil
}

func (s *recordingSink) calls() []*wire.WriteBatchesRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]*wire.WriteBatchesRequest(nil), s.requests...)
}

func testLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return logger
}

func newTestWriter(t *testing.T, sink Sink, maxBuffered int) *Writer {
	t.Helper()

	w, err := NewWriter(testLogger(), sink, &Config{DataSourceRID: testDatasource, MaxBufferedPoints: maxBuffered})
	require.NoError(t, err)

	return w
}

func TestWriter_GroupsByChannelAndTags(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	w := newTestWriter(t, sink, 100)

	imu := map[string]string{"sensor": "imu", "vehicle": "a"}

	require.NoError(t, w.WriteDouble(ctx, "accel.x", imu, wire.FromNanos(1), 0.5))
	require.NoError(t, w.WriteString(ctx, "mode", nil, wire.FromNanos(1), "AUTO"))
	// Same tag set written in a different map order lands in the same series.
	require.NoError(t, w.WriteDouble(ctx, "accel.x", map[string]string{"vehicle": "a", "sensor": "imu"}, wire.FromNanos(2), 0.75))
	require.NoError(t, w.WriteDouble(ctx, "accel.x", map[string]string{"sensor": "gps"}, wire.FromNanos(2), 9))
	require.NoError(t, w.WriteInt(ctx, "satellites", nil, wire.FromNanos(3), 11))
	require.NoError(t, w.WriteUint64(ctx, "seq", nil, wire.FromNanos(3), 42))

	assert.Equal(t, 6, w.Buffered())
	require.NoError(t, w.Flush(ctx))
	assert.Zero(t, w.Buffered())

	calls := sink.calls()
	require.Len(t, calls, 1)

	req := calls[0]
	assert.Equal(t, testDatasource, req.DataSourceRID)
	require.NoError(t, req.Validate())
	require.Len(t, req.Batches, 5)

	assert.Equal(t, "accel.x", req.Batches[0].Channel)
	assert.Equal(t, imu, req.Batches[0].Tags)
	assert.Equal(t, []float64{0.5, 0.75}, req.Batches[0].Points.Double.Points)
	assert.Equal(t, []wire.Timestamp{wire.FromNanos(1), wire.FromNanos(2)}, req.Batches[0].Points.Timestamps)

	assert.Equal(t, wire.KindString, req.Batches[1].Points.Kind())
	assert.Equal(t, map[string]string{"sensor": "gps"}, req.Batches[2].Tags)
	assert.Equal(t, wire.KindInt, req.Batches[3].Points.Kind())
	assert.Equal(t, []uint64{42}, req.Batches[4].Points.Uint64.Points)

	require.NoError(t, w.Flush(ctx))
	assert.Len(t, sink.calls(), 1, "empty flush must not send")
}

func TestWriter_FlushesWhenFull(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	w := newTestWriter(t, sink, 3)

	for i := range 7 {
		require.NoError(t, w.WriteDouble(ctx, "altitude", nil, wire.FromNanos(int64(i)), float64(i)))
	}

	calls := sink.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, 3, calls[0].Batches[0].Points.Len())
	assert.Equal(t, 3, calls[1].Batches[0].Points.Len())
	assert.Equal(t, 1, w.Buffered())

	require.NoError(t, w.Close(ctx))
	assert.Len(t, sink.calls(), 3)

	require.ErrorIs(t, w.WriteDouble(ctx, "altitude", nil, wire.FromNanos(9), 1), ErrWriterClosed)
}

func TestWriter_Rejects(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	w := newTestWriter(t, sink, 100)

	require.ErrorIs(t, w.WriteDouble(ctx, "", nil, wire.FromNanos(1), 1), wire.ErrEmptyChannel)

	bad := wire.Timestamp{Seconds: 1, Nanos: 1_000_000_000}
	require.ErrorIs(t, w.WriteDouble(ctx, "altitude", nil, bad, 1), wire.ErrInvalidTimestamp)

	require.NoError(t, w.WriteDouble(ctx, "altitude", nil, wire.FromNanos(1), 1))
	require.ErrorIs(t, w.WriteString(ctx, "altitude", nil, wire.FromNanos(2), "high"), ErrKindMismatch)

	assert.Equal(t, 1, w.Buffered())
}

func TestWriter_FailedFlushDropsPoints(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{err: errSinkDown}
	w := newTestWriter(t, sink, 100)

	require.NoError(t, w.WriteDouble(ctx, "altitude", nil, wire.FromNanos(1), 1))
	require.ErrorIs(t, w.Flush(ctx), errSinkDown)
	assert.Zero(t, w.Buffered())
}

func TestNewWriter_InvalidConfig(t *testing.T) {
	_, err := NewWriter(testLogger(), &recordingSink{}, &Config{})
	require.ErrorIs(t, err, ErrDataSourceRequired)

	_, err = NewWriter(testLogger(), &recordingSink{}, &Config{DataSourceRID: testDatasource, MaxBufferedPoints: -1})
	require.ErrorIs(t, err, ErrInvalidBufferSize)
}

func TestHTTPSink_PostsProtobuf(t *testing.T) {
	ctx := context.Background()
	platform := testutil.NewPlatform(t)

	w := newTestWriter(t, NewHTTPSink(platform.NewClient(t), "/ingest/v1/write"), 100)

	require.NoError(t, w.WriteDouble(ctx, "altitude", map[string]string{"vehicle": "a"}, wire.FromNanos(1), 120.5))
	require.NoError(t, w.WriteDouble(ctx, "altitude", map[string]string{"vehicle": "a"}, wire.FromNanos(2), 121))
	require.NoError(t, w.Flush(ctx))

	writes := platform.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, testDatasource, writes[0].DataSourceRID)
	require.Len(t, writes[0].Batches, 1)
	assert.Equal(t, []float64{120.5, 121}, writes[0].Batches[0].Points.Double.Points)
}

func TestHTTPSink_Failure(t *testing.T) {
	platform := testutil.NewPlatform(t)
	platform.FailNext(1, http.StatusBadRequest)

	sink := NewHTTPSink(platform.NewClient(t), "/ingest/v1/write")

	points, err := wire.NewDoublePoints([]wire.Timestamp{wire.FromNanos(1)}, []float64{1})
	require.NoError(t, err)

	err = sink.Write(context.Background(), &wire.WriteBatchesRequest{
		DataSourceRID: testDatasource,
		Batches:       []wire.RecordsBatch{{Channel: "altitude", Points: points}},
	})
	require.ErrorIs(t, err, transport.ErrRemote)
	assert.Empty(t, platform.Writes())
}
