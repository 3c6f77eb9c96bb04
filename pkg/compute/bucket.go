package compute

import (
	"fmt"

	"github.com/ethpandaops/seriesgraph/pkg/wire"
)

// Bucket is the summary of the points falling in one sub-interval of the requested range.
// Timestamp is the start of the sub-interval.
type Bucket struct {
	Timestamp wire.Timestamp `json:"timestamp"`
	Min       wire.Double    `json:"min"`
	Max       wire.Double    `json:"max"`
	Mean      wire.Double    `json:"mean"`
	Variance  wire.Double    `json:"variance"`
	Count     uint64         `json:"count"`
}

// Series is the result of one expression: bucket statistics, or the raw typed points when the
// range holds few enough points that the evaluator does not decimate.
type Series struct {
	Buckets []Bucket
	Points  *wire.Points
}

// Raw reports whether the evaluator returned undecimated points.
func (s *Series) Raw() bool {
	return s.Points != nil
}

// Len is the number of buckets or points.
func (s *Series) Len() int {
	if s.Points != nil {
		return s.Points.Len()
	}

	return len(s.Buckets)
}

// Timestamps returns the bucket or point timestamps in order.
func (s *Series) Timestamps() []wire.Timestamp {
	if s.Points != nil {
		return s.Points.Timestamps
	}

	out := make([]wire.Timestamp, len(s.Buckets))
	for i, b := range s.Buckets {
		out[i] = b.Timestamp
	}

	return out
}

// validate checks ordering and range: timestamps strictly increase and lie in [start, end].
func (s *Series) validate(start, end wire.Timestamp) error {
	if s.Points != nil {
		if err := s.Points.Validate(); err != nil {
			return err
		}
	}

	for i, ts := range s.Timestamps() {
		if err := ts.Validate(); err != nil {
			return fmt.Errorf("timestamp %d: %w", i, err)
		}

		if ts.Before(start) || ts.After(end) {
			return fmt.Errorf("timestamp %d (%s) outside [%s, %s]", i, ts, start, end)
		}

		if i > 0 && !s.timestampAt(i-1).Before(ts) {
			return fmt.Errorf("timestamp %d (%s) does not increase", i, ts)
		}
	}

	for i, b := range s.Buckets {
		if b.Count == 0 {
			return fmt.Errorf("bucket %d is empty", i)
		}
	}

	return nil
}

func (s *Series) timestampAt(i int) wire.Timestamp {
	if s.Points != nil {
		return s.Points.Timestamps[i]
	}

	return s.Buckets[i].Timestamp
}

// Result is the outcome of one expression in a batch. Exactly one of Series and Err is set.
type Result struct {
	Index  int
	Series *Series
	Err    error
}
