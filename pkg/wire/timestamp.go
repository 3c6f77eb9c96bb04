package wire

import (
	"fmt"
	"time"
)

const (
	nanosPerSecond = 1_000_000_000
	picosPerNano   = 1_000
)

// Timestamp is an instant with picosecond resolution: Seconds + Nanos*1e-9 + Picos*1e-12.
type Timestamp struct {
	Seconds int64 `json:"seconds" yaml:"seconds"`
	Nanos   int32 `json:"nanos" yaml:"nanos"`
	Picos   int32 `json:"picos" yaml:"picos"`
}

// NewTimestamp builds a validated timestamp.
func NewTimestamp(seconds int64, nanos, picos int32) (Timestamp, error) {
	ts := Timestamp{Seconds: seconds, Nanos: nanos, Picos: picos}
	if err := ts.Validate(); err != nil {
		return Timestamp{}, err
	}

	return ts, nil
}

// FromNanos converts integral nanoseconds since the epoch. Negative values floor towards the
// earlier second so that Nanos stays non-negative.
func FromNanos(ns int64) Timestamp {
	sec := ns / nanosPerSecond
	rem := ns % nanosPerSecond
	if rem < 0 {
		sec--
		rem += nanosPerSecond
	}

	return Timestamp{Seconds: sec, Nanos: int32(rem)}
}

// FromTime converts a time.Time.
func FromTime(t time.Time) Timestamp {
	return Timestamp{Seconds: t.Unix(), Nanos: int32(t.Nanosecond())}
}

// Validate checks the sub-second components are in range.
func (t Timestamp) Validate() error {
	if t.Nanos < 0 || t.Nanos >= nanosPerSecond {
		return fmt.Errorf("%w: nanos %d out of range [0, 1e9)", ErrInvalidTimestamp, t.Nanos)
	}

	if t.Picos < 0 || t.Picos >= picosPerNano {
		return fmt.Errorf("%w: picos %d out of range [0, 1e3)", ErrInvalidTimestamp, t.Picos)
	}

	return nil
}

// Compare returns -1, 0 or 1. Both timestamps are assumed valid.
func (t Timestamp) Compare(o Timestamp) int {
	switch {
	case t.Seconds != o.Seconds:
		return cmpInt(t.Seconds, o.Seconds)
	case t.Nanos != o.Nanos:
		return cmpInt(int64(t.Nanos), int64(o.Nanos))
	default:
		return cmpInt(int64(t.Picos), int64(o.Picos))
	}
}

// Before reports whether t is strictly earlier than o.
func (t Timestamp) Before(o Timestamp) bool {
	return t.Compare(o) < 0
}

// After reports whether t is strictly later than o.
func (t Timestamp) After(o Timestamp) bool {
	return t.Compare(o) > 0
}

// UnixNanos returns nanoseconds since the epoch, truncating picoseconds.
func (t Timestamp) UnixNanos() int64 {
	return t.Seconds*nanosPerSecond + int64(t.Nanos)
}

// Time converts to time.Time in UTC, truncating picoseconds.
func (t Timestamp) Time() time.Time {
	return time.Unix(t.Seconds, int64(t.Nanos)).UTC()
}

func (t Timestamp) String() string {
	if t.Picos == 0 {
		return t.Time().Format(time.RFC3339Nano)
	}

	return fmt.Sprintf("%s+%03dps", t.Time().Format(time.RFC3339Nano), t.Picos)
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
