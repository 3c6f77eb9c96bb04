package expr

import (
	"fmt"
	"time"

	"github.com/ethpandaops/seriesgraph/pkg/wire"
)

// LiteralKind discriminates parameter literals.
type LiteralKind string

const (
	KindScalar     LiteralKind = "scalar"
	KindTimeUnit   LiteralKind = "timeUnit"
	KindInstant    LiteralKind = "instant"
	KindDuration   LiteralKind = "duration"
	KindStat       LiteralKind = "stat"
	KindComparison LiteralKind = "comparison"
)

// Literal is a parameter of a Parametrized node.
type Literal interface {
	LiteralKind() LiteralKind
	value() any
}

// Scalar is a float parameter (scale factor, offset).
type Scalar float64

// Instant is a timestamp parameter (start of an integral or cumulative sum).
type Instant wire.Timestamp

// Duration is a window length parameter.
type Duration time.Duration

func (Scalar) LiteralKind() LiteralKind            { return KindScalar }
func (TimeUnit) LiteralKind() LiteralKind          { return KindTimeUnit }
func (Instant) LiteralKind() LiteralKind           { return KindInstant }
func (Duration) LiteralKind() LiteralKind          { return KindDuration }
func (RollingStat) LiteralKind() LiteralKind       { return KindStat }
func (ThresholdOperator) LiteralKind() LiteralKind { return KindComparison }

func (s Scalar) value() any   { return float64(s) }
func (u TimeUnit) value() any { return string(u) }
func (i Instant) value() any {
	return map[string]any{"seconds": i.Seconds, "nanos": int64(i.Nanos), "picos": int64(i.Picos)}
}
func (d Duration) value() any          { return int64(d) }
func (s RollingStat) value() any       { return string(s) }
func (o ThresholdOperator) value() any { return string(o) }

// validateParams checks literal count, kinds and values against the operator table. Trailing
// optional parameters may be left out.
func validateParams(op Op, params []Literal) error {
	spec := opSpecs[op]
	want := spec.params

	if required := len(want) - spec.optional; len(params) < required || len(params) > len(want) {
		reason := fmt.Sprintf("expected %d parameters, got %d", len(want), len(params))
		if spec.optional > 0 {
			reason = fmt.Sprintf("expected %d to %d parameters, got %d", required, len(want), len(params))
		}

		return &InvalidParameterError{Op: op, Index: len(params), Reason: reason}
	}

	for i, p := range params {
		if p == nil {
			return &InvalidParameterError{Op: op, Index: i, Reason: "nil parameter"}
		}

		if p.LiteralKind() != want[i] {
			return &InvalidParameterError{
				Op:     op,
				Index:  i,
				Reason: fmt.Sprintf("expected %s, got %s", want[i], p.LiteralKind()),
			}
		}

		if err := validateLiteral(op, i, p); err != nil {
			return err
		}
	}

	return nil
}

func validateLiteral(op Op, i int, p Literal) error {
	switch v := p.(type) {
	case TimeUnit:
		if !v.Valid() {
			return &InvalidTimeUnitError{Op: op, Unit: string(v)}
		}
	case Instant:
		if err := wire.Timestamp(v).Validate(); err != nil {
			return &InvalidParameterError{Op: op, Index: i, Reason: "invalid start timestamp", Err: err}
		}
	case Duration:
		if v <= 0 {
			return &InvalidParameterError{Op: op, Index: i, Reason: fmt.Sprintf("window must be positive, got %s", time.Duration(v))}
		}
	case RollingStat:
		if !v.Valid() {
			return &InvalidParameterError{Op: op, Index: i, Reason: fmt.Sprintf("unknown rolling statistic %q", string(v))}
		}
	case ThresholdOperator:
		if !v.Valid() {
			return &InvalidParameterError{Op: op, Index: i, Reason: fmt.Sprintf("unknown comparison %q", string(v))}
		}
	}

	return nil
}
