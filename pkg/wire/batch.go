package wire

import (
	"fmt"
)

// RecordsBatch is a column of points for one channel and tag set.
type RecordsBatch struct {
	Channel string            `json:"channel"`
	Tags    map[string]string `json:"tags,omitempty"`
	Points  Points            `json:"points"`
}

// Validate checks the batch is encodable.
func (r RecordsBatch) Validate() error {
	if r.Channel == "" {
		return ErrEmptyChannel
	}

	return r.Points.Validate()
}

// WriteBatchesRequest is the ingestion envelope sent to a datasource.
type WriteBatchesRequest struct {
	Batches       []RecordsBatch `json:"batches"`
	DataSourceRID string         `json:"dataSourceRid"`
}

// Validate checks every batch.
func (w WriteBatchesRequest) Validate() error {
	for i, b := range w.Batches {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("batch %d (%s): %w", i, b.Channel, err)
		}
	}

	return nil
}
