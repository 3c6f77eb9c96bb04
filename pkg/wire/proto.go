package wire

import (
	"fmt"
	"math"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the protobuf messages.
const (
	fieldTimestampSeconds protowire.Number = 1
	fieldTimestampNanos   protowire.Number = 2
	fieldTimestampPicos   protowire.Number = 3

	fieldPointsTimestamps protowire.Number = 1
	fieldPointsDouble     protowire.Number = 2
	fieldPointsString     protowire.Number = 3
	fieldPointsInt        protowire.Number = 4
	fieldPointsUint64     protowire.Number = 5

	fieldValues protowire.Number = 1

	fieldBatchChannel protowire.Number = 1
	fieldBatchTags    protowire.Number = 2
	fieldBatchPoints  protowire.Number = 3

	fieldMapKey   protowire.Number = 1
	fieldMapValue protowire.Number = 2

	fieldRequestBatches       protowire.Number = 1
	fieldRequestDataSourceRID protowire.Number = 2
)

// MarshalBinary encodes the timestamp as a protobuf message.
func (t Timestamp) MarshalBinary() ([]byte, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	return appendTimestamp(nil, t), nil
}

// UnmarshalBinary decodes a protobuf timestamp.
func (t *Timestamp) UnmarshalBinary(b []byte) error {
	ts, err := consumeTimestamp(b)
	if err != nil {
		return err
	}

	*t = ts

	return nil
}

// MarshalBinary encodes points as a protobuf message.
func (p Points) MarshalBinary() ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	return appendPoints(nil, p), nil
}

// UnmarshalBinary decodes protobuf points, rejecting zero or multiple variants and length
// mismatches.
func (p *Points) UnmarshalBinary(b []byte) error {
	pts, err := consumePoints(b)
	if err != nil {
		return err
	}

	*p = pts

	return nil
}

// MarshalBinary encodes the batch. Tags are written in key order so output is deterministic.
func (r RecordsBatch) MarshalBinary() ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	return appendRecordsBatch(nil, r), nil
}

// UnmarshalBinary decodes a protobuf records batch.
func (r *RecordsBatch) UnmarshalBinary(b []byte) error {
	rb, err := consumeRecordsBatch(b)
	if err != nil {
		return err
	}

	*r = rb

	return nil
}

// MarshalBinary encodes the request.
func (w WriteBatchesRequest) MarshalBinary() ([]byte, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}

	var b []byte
	for _, batch := range w.Batches {
		b = appendMessage(b, fieldRequestBatches, appendRecordsBatch(nil, batch))
	}

	if w.DataSourceRID != "" {
		b = protowire.AppendTag(b, fieldRequestDataSourceRID, protowire.BytesType)
		b = protowire.AppendString(b, w.DataSourceRID)
	}

	return b, nil
}

// UnmarshalBinary decodes a protobuf write request.
func (w *WriteBatchesRequest) UnmarshalBinary(b []byte) error {
	var out WriteBatchesRequest

	err := consumeFields(b, "request", func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldRequestBatches && typ == protowire.BytesType:
			msg, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}

			batch, err := consumeRecordsBatch(msg)
			if err != nil {
				return 0, prefix(fmt.Sprintf("batches[%d]", len(out.Batches)), err)
			}
			out.Batches = append(out.Batches, batch)

			return n, nil
		case num == fieldRequestDataSourceRID && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(b)
			out.DataSourceRID = s

			return n, nil
		default:
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
	})
	if err != nil {
		return err
	}

	*w = out

	return nil
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func appendTimestamp(b []byte, t Timestamp) []byte {
	if t.Seconds != 0 {
		b = protowire.AppendTag(b, fieldTimestampSeconds, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(t.Seconds))
	}

	if t.Nanos != 0 {
		b = protowire.AppendTag(b, fieldTimestampNanos, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(t.Nanos)))
	}

	if t.Picos != 0 {
		b = protowire.AppendTag(b, fieldTimestampPicos, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(t.Picos)))
	}

	return b
}

func appendPoints(b []byte, p Points) []byte {
	for _, ts := range p.Timestamps {
		b = appendMessage(b, fieldPointsTimestamps, appendTimestamp(nil, ts))
	}

	var values []byte

	switch p.Kind() {
	case KindDouble:
		packed := make([]byte, 0, 8*len(p.Double.Points))
		for _, v := range p.Double.Points {
			packed = protowire.AppendFixed64(packed, math.Float64bits(v))
		}
		if len(packed) > 0 {
			values = appendMessage(values, fieldValues, packed)
		}
		b = appendMessage(b, fieldPointsDouble, values)
	case KindString:
		for _, v := range p.String.Points {
			values = protowire.AppendTag(values, fieldValues, protowire.BytesType)
			values = protowire.AppendString(values, v)
		}
		b = appendMessage(b, fieldPointsString, values)
	case KindInt:
		var packed []byte
		for _, v := range p.Int.Points {
			packed = protowire.AppendVarint(packed, uint64(v))
		}
		if len(packed) > 0 {
			values = appendMessage(values, fieldValues, packed)
		}
		b = appendMessage(b, fieldPointsInt, values)
	case KindUint64:
		var packed []byte
		for _, v := range p.Uint64.Points {
			packed = protowire.AppendVarint(packed, v)
		}
		if len(packed) > 0 {
			values = appendMessage(values, fieldValues, packed)
		}
		b = appendMessage(b, fieldPointsUint64, values)
	}

	return b
}

func appendRecordsBatch(b []byte, r RecordsBatch) []byte {
	b = protowire.AppendTag(b, fieldBatchChannel, protowire.BytesType)
	b = protowire.AppendString(b, r.Channel)

	keys := make([]string, 0, len(r.Tags))
	for k := range r.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		var entry []byte
		entry = protowire.AppendTag(entry, fieldMapKey, protowire.BytesType)
		entry = protowire.AppendString(entry, k)
		entry = protowire.AppendTag(entry, fieldMapValue, protowire.BytesType)
		entry = protowire.AppendString(entry, r.Tags[k])
		b = appendMessage(b, fieldBatchTags, entry)
	}

	return appendMessage(b, fieldBatchPoints, appendPoints(nil, r.Points))
}

// consumeFields walks the top-level fields of a message. fn returns the number of bytes it
// consumed, or a negative protowire length on malformed input.
func consumeFields(b []byte, field string, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return &DecodeError{Field: field, Reason: "malformed tag", Err: protowire.ParseError(n)}
		}
		b = b[n:]

		n, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if n < 0 {
			return &DecodeError{Field: fmt.Sprintf("%s.%d", field, num), Reason: "malformed value", Err: protowire.ParseError(n)}
		}
		b = b[n:]
	}

	return nil
}

func consumeTimestamp(b []byte) (Timestamp, error) {
	var ts Timestamp

	err := consumeFields(b, "timestamp", func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ != protowire.VarintType {
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}

		v, n := protowire.ConsumeVarint(b)
		switch num {
		case fieldTimestampSeconds:
			ts.Seconds = int64(v)
		case fieldTimestampNanos:
			ts.Nanos = int32(int64(v))
		case fieldTimestampPicos:
			ts.Picos = int32(int64(v))
		}

		return n, nil
	})
	if err != nil {
		return Timestamp{}, err
	}

	if err := ts.Validate(); err != nil {
		return Timestamp{}, &DecodeError{Field: "timestamp", Reason: "out of range", Err: err}
	}

	return ts, nil
}

func consumePoints(b []byte) (Points, error) {
	var p Points

	err := consumeFields(b, "points", func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ != protowire.BytesType {
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}

		msg, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return n, nil
		}

		var err error
		switch num {
		case fieldPointsTimestamps:
			var ts Timestamp
			ts, err = consumeTimestamp(msg)
			if err != nil {
				return 0, prefix(fmt.Sprintf("points.timestamps[%d]", len(p.Timestamps)), err)
			}
			p.Timestamps = append(p.Timestamps, ts)

			return n, nil
		case fieldPointsDouble:
			if p.Double == nil {
				p.Double = &DoublePoints{Points: []float64{}}
			}
			err = consumeValues(msg, "points.double_points", func(typ protowire.Type, b []byte) int {
				return consumeDoubles(typ, b, &p.Double.Points)
			})
		case fieldPointsString:
			if p.String == nil {
				p.String = &StringPoints{Points: []string{}}
			}
			err = consumeValues(msg, "points.string_points", func(typ protowire.Type, b []byte) int {
				if typ != protowire.BytesType {
					return -1
				}
				s, n := protowire.ConsumeString(b)
				if n >= 0 {
					p.String.Points = append(p.String.Points, s)
				}
				return n
			})
		case fieldPointsInt:
			if p.Int == nil {
				p.Int = &IntPoints{Points: []int64{}}
			}
			err = consumeValues(msg, "points.int_points", func(typ protowire.Type, b []byte) int {
				return consumeVarints(typ, b, func(v uint64) { p.Int.Points = append(p.Int.Points, int64(v)) })
			})
		case fieldPointsUint64:
			if p.Uint64 == nil {
				p.Uint64 = &Uint64Points{Points: []uint64{}}
			}
			err = consumeValues(msg, "points.uint64_points", func(typ protowire.Type, b []byte) int {
				return consumeVarints(typ, b, func(v uint64) { p.Uint64.Points = append(p.Uint64.Points, v) })
			})
		}

		return n, err
	})
	if err != nil {
		return Points{}, err
	}

	if err := p.Validate(); err != nil {
		return Points{}, err
	}

	return p, nil
}

// consumeValues walks the repeated values field of a typed points message.
func consumeValues(b []byte, field string, fn func(typ protowire.Type, b []byte) int) error {
	return consumeFields(b, field, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != fieldValues {
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}

		return fn(typ, b), nil
	})
}

// consumeDoubles accepts both packed and unpacked encodings.
func consumeDoubles(typ protowire.Type, b []byte, out *[]float64) int {
	switch typ {
	case protowire.Fixed64Type:
		v, n := protowire.ConsumeFixed64(b)
		if n >= 0 {
			*out = append(*out, math.Float64frombits(v))
		}
		return n
	case protowire.BytesType:
		packed, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return n
		}
		if len(packed)%8 != 0 {
			return -1
		}
		for len(packed) > 0 {
			v, m := protowire.ConsumeFixed64(packed)
			if m < 0 {
				return m
			}
			*out = append(*out, math.Float64frombits(v))
			packed = packed[m:]
		}
		return n
	default:
		return -1
	}
}

// consumeVarints accepts both packed and unpacked encodings.
func consumeVarints(typ protowire.Type, b []byte, add func(uint64)) int {
	switch typ {
	case protowire.VarintType:
		v, n := protowire.ConsumeVarint(b)
		if n >= 0 {
			add(v)
		}
		return n
	case protowire.BytesType:
		packed, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return n
		}
		for len(packed) > 0 {
			v, m := protowire.ConsumeVarint(packed)
			if m < 0 {
				return m
			}
			add(v)
			packed = packed[m:]
		}
		return n
	default:
		return -1
	}
}

func consumeRecordsBatch(b []byte) (RecordsBatch, error) {
	var (
		r         RecordsBatch
		hasPoints bool
	)

	err := consumeFields(b, "records_batch", func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ != protowire.BytesType {
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}

		msg, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return n, nil
		}

		switch num {
		case fieldBatchChannel:
			r.Channel = string(msg)
		case fieldBatchTags:
			k, v, err := consumeMapEntry(msg)
			if err != nil {
				return 0, err
			}
			if r.Tags == nil {
				r.Tags = map[string]string{}
			}
			if _, dup := r.Tags[k]; dup {
				return 0, decodeErr("records_batch.tags", fmt.Sprintf("duplicate tag key %q", k))
			}
			r.Tags[k] = v
		case fieldBatchPoints:
			p, err := consumePoints(msg)
			if err != nil {
				return 0, prefix("records_batch", err)
			}
			r.Points = p
			hasPoints = true
		}

		return n, nil
	})
	if err != nil {
		return RecordsBatch{}, err
	}

	if !hasPoints {
		return RecordsBatch{}, decodeErr("records_batch.points", "no value variant is set")
	}

	return r, nil
}

func consumeMapEntry(b []byte) (string, string, error) {
	var key, value string

	err := consumeFields(b, "records_batch.tags", func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ != protowire.BytesType {
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}

		s, n := protowire.ConsumeString(b)
		switch num {
		case fieldMapKey:
			key = s
		case fieldMapValue:
			value = s
		}

		return n, nil
	})

	return key, value, err
}
