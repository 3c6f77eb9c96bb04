package ingest

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ethpandaops/seriesgraph/pkg/transport"
	"github.com/ethpandaops/seriesgraph/pkg/wire"
)

// ContentType is the media type of a binary WriteBatchesRequest.
const ContentType = "application/x-protobuf"

// Sink receives flushed write requests.
type Sink interface {
	Write(ctx context.Context, req *wire.WriteBatchesRequest) error
	// Name labels the sink in metrics and logs.
	Name() string
}

// HTTPSink posts protobuf-encoded write requests to the platform.
type HTTPSink struct {
	client transport.Client
	path   string
}

// NewHTTPSink creates a sink posting to path.
func NewHTTPSink(client transport.Client, path string) *HTTPSink {
	return &HTTPSink{client: client, path: path}
}

// Name implements Sink.
func (s *HTTPSink) Name() string {
	return "http"
}

// Write implements Sink.
func (s *HTTPSink) Write(ctx context.Context, req *wire.WriteBatchesRequest) error {
	body, err := req.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to encode write request: %w", err)
	}

	if _, err := s.client.Send(ctx, http.MethodPost, s.path, ContentType, body); err != nil {
		return fmt.Errorf("write batches: %w", err)
	}

	return nil
}
