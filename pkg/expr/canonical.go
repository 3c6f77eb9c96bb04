package expr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethpandaops/seriesgraph/pkg/canonical"
	"github.com/ethpandaops/seriesgraph/pkg/channels"
	"github.com/ethpandaops/seriesgraph/pkg/wire"
)

// Value returns the canonical document for n. Equal trees produce equal documents.
func Value(n Node) map[string]any {
	switch v := n.(type) {
	case Leaf:
		doc := map[string]any{"type": string(KindLeaf), "channel": v.Channel.Value()}
		if v.Enum() {
			doc["series"] = string(SeriesEnum)
		}

		return doc
	case Variable:
		return map[string]any{"type": string(KindVariable), "name": v.Name}
	case Reference:
		return map[string]any{"type": string(KindReference), "name": v.Name}
	case Unary:
		return map[string]any{"type": string(KindUnary), "op": string(v.Op), "input": Value(v.Input)}
	case Binary:
		return map[string]any{"type": string(KindBinary), "op": string(v.Op), "left": Value(v.Left), "right": Value(v.Right)}
	case Parametrized:
		params := make([]any, len(v.Params))
		for i, p := range v.Params {
			params[i] = map[string]any{"type": string(p.LiteralKind()), "value": p.value()}
		}

		return map[string]any{"type": string(KindParametrized), "op": string(v.Op), "input": Value(v.Input), "params": params}
	case NAry:
		inputs := make([]any, len(v.Inputs))
		for i, in := range v.Inputs {
			inputs[i] = Value(in)
		}

		return map[string]any{"type": string(KindNAry), "op": string(v.Op), "inputs": inputs}
	default:
		panic(fmt.Sprintf("expr: unknown node type %T", n))
	}
}

// Marshal returns the canonical JSON encoding of n.
func Marshal(n Node) []byte {
	data, err := canonical.Marshal(Value(n))
	if err != nil {
		// Value only emits canonically encodable types
		panic(fmt.Sprintf("expr: canonical encoding failed: %v", err))
	}

	return data
}

// Hash is the content hash of n.
func Hash(n Node) string {
	return canonical.HashBytes(canonical.DomainExpr, Marshal(n))
}

// Equal reports structural equality: same variants, operators, parameters and channels in the
// same positions.
func Equal(a, b Node) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	return bytes.Equal(Marshal(a), Marshal(b))
}

// Unmarshal decodes a canonical (or any equivalent JSON) document back into a validated tree.
func Unmarshal(data []byte) (Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	return FromValue(doc)
}

// FromValue decodes a document produced by Value (after a JSON round trip with UseNumber).
func FromValue(doc map[string]any) (Node, error) {
	kind, _ := doc["type"].(string)
	op := Op(str(doc["op"]))

	switch NodeKind(kind) {
	case KindLeaf:
		obj, ok := doc["channel"].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: channel node without channel", ErrDecode)
		}

		ref, err := channelFromValue(obj)
		if err != nil {
			return nil, err
		}

		switch series := str(doc["series"]); SeriesType(series) {
		case "", SeriesNumeric:
			return NewLeaf(ref)
		case SeriesEnum:
			return NewEnumLeaf(ref)
		default:
			return nil, fmt.Errorf("%w: unknown channel series %q", ErrDecode, series)
		}
	case KindVariable:
		return NewVariable(str(doc["name"]))
	case KindReference:
		return NewReference(str(doc["name"]))
	case KindUnary:
		input, err := childFromValue(doc["input"])
		if err != nil {
			return nil, err
		}

		return NewUnary(op, input)
	case KindBinary:
		left, err := childFromValue(doc["left"])
		if err != nil {
			return nil, err
		}

		right, err := childFromValue(doc["right"])
		if err != nil {
			return nil, err
		}

		return NewBinary(op, left, right)
	case KindParametrized:
		input, err := childFromValue(doc["input"])
		if err != nil {
			return nil, err
		}

		raw, _ := doc["params"].([]any)
		params := make([]Literal, len(raw))
		for i, r := range raw {
			params[i], err = literalFromValue(r)
			if err != nil {
				return nil, fmt.Errorf("%s param %d: %w", op, i, err)
			}
		}

		return NewParametrized(op, input, params...)
	case KindNAry:
		raw, _ := doc["inputs"].([]any)
		inputs := make([]Node, len(raw))
		for i, r := range raw {
			in, err := childFromValue(r)
			if err != nil {
				return nil, err
			}
			inputs[i] = in
		}

		return NewNAry(op, inputs...)
	default:
		return nil, fmt.Errorf("%w: unknown node type %q", ErrDecode, kind)
	}
}

func childFromValue(v any) (Node, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected node object, got %T", ErrDecode, v)
	}

	return FromValue(obj)
}

func channelFromValue(obj map[string]any) (channels.ChannelRef, error) {
	ref := channels.ChannelRef{
		Origin:      channels.Origin(str(obj["origin"])),
		OriginID:    str(obj["originId"]),
		OriginParam: str(obj["originParam"]),
		Scope:       str(obj["scope"]),
		Name:        str(obj["name"]),
	}

	if raw, ok := obj["tags"].(map[string]any); ok {
		ref.Tags = make(map[string]string, len(raw))
		for k, v := range raw {
			s, ok := v.(string)
			if !ok {
				return channels.ChannelRef{}, fmt.Errorf("%w: tag %q is not a string", ErrDecode, k)
			}
			ref.Tags[k] = s
		}
	}

	return ref, nil
}

func literalFromValue(v any) (Literal, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected literal object, got %T", ErrDecode, v)
	}

	switch LiteralKind(str(obj["type"])) {
	case KindScalar:
		f, err := canonical.ParseFloat(obj["value"])
		if err != nil {
			return nil, fmt.Errorf("%w: scalar: %w", ErrDecode, err)
		}

		return Scalar(f), nil
	case KindTimeUnit:
		return TimeUnit(str(obj["value"])), nil
	case KindStat:
		return RollingStat(str(obj["value"])), nil
	case KindComparison:
		return ThresholdOperator(str(obj["value"])), nil
	case KindDuration:
		ns, err := integer(obj["value"])
		if err != nil {
			return nil, err
		}

		return Duration(time.Duration(ns)), nil
	case KindInstant:
		ts, ok := obj["value"].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: instant value must be an object", ErrDecode)
		}

		seconds, err := integer(ts["seconds"])
		if err != nil {
			return nil, err
		}

		nanos, err := integer(ts["nanos"])
		if err != nil {
			return nil, err
		}

		picos, err := integer(ts["picos"])
		if err != nil {
			return nil, err
		}

		return Instant(wire.Timestamp{Seconds: seconds, Nanos: int32(nanos), Picos: int32(picos)}), nil
	default:
		return nil, fmt.Errorf("%w: unknown literal type %q", ErrDecode, str(obj["type"]))
	}
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func integer(v any) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrDecode, err)
		}

		return i, nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("%w: expected integer, got %T", ErrDecode, v)
	}
}
