package wire

import (
	"encoding/json"
	"strconv"

	"github.com/ethpandaops/seriesgraph/pkg/canonical"
)

// Double is a float64 whose JSON form keeps non-finite values as "NaN", "Infinity" and
// "-Infinity" strings.
type Double float64

// MarshalJSON implements json.Marshaler.
func (d Double) MarshalJSON() ([]byte, error) {
	return canonical.Marshal(float64(d))
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Double) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}

		f, err := canonical.ParseFloat(s)
		if err != nil {
			return err
		}
		*d = Double(f)

		return nil
	}

	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	*d = Double(f)

	return nil
}

type doublesJSON struct {
	Points []Double `json:"points"`
}

type stringsJSON struct {
	Points []string `json:"points"`
}

type intsJSON struct {
	Points []int64 `json:"points"`
}

type uint64sJSON struct {
	Points []uint64 `json:"points"`
}

type pointsJSON struct {
	Timestamps []Timestamp  `json:"timestamps"`
	Double     *doublesJSON `json:"doublePoints,omitempty"`
	String     *stringsJSON `json:"stringPoints,omitempty"`
	Int        *intsJSON    `json:"intPoints,omitempty"`
	Uint64     *uint64sJSON `json:"uint64Points,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (p Points) MarshalJSON() ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	out := pointsJSON{Timestamps: p.Timestamps}
	if out.Timestamps == nil {
		out.Timestamps = []Timestamp{}
	}

	switch p.Kind() {
	case KindDouble:
		vals := make([]Double, len(p.Double.Points))
		for i, v := range p.Double.Points {
			vals[i] = Double(v)
		}
		out.Double = &doublesJSON{Points: vals}
	case KindString:
		out.String = &stringsJSON{Points: nonNil(p.String.Points)}
	case KindInt:
		out.Int = &intsJSON{Points: nonNil(p.Int.Points)}
	case KindUint64:
		out.Uint64 = &uint64sJSON{Points: nonNil(p.Uint64.Points)}
	}

	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler with the same validation as the binary decoder.
func (p *Points) UnmarshalJSON(b []byte) error {
	var in pointsJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return &DecodeError{Field: "points", Reason: "malformed json", Err: err}
	}

	out := Points{Timestamps: in.Timestamps}

	if in.Double != nil {
		vals := make([]float64, len(in.Double.Points))
		for i, v := range in.Double.Points {
			vals[i] = float64(v)
		}
		out.Double = &DoublePoints{Points: vals}
	}
	if in.String != nil {
		out.String = &StringPoints{Points: nonNil(in.String.Points)}
	}
	if in.Int != nil {
		out.Int = &IntPoints{Points: nonNil(in.Int.Points)}
	}
	if in.Uint64 != nil {
		out.Uint64 = &Uint64Points{Points: nonNil(in.Uint64.Points)}
	}

	if err := out.Validate(); err != nil {
		return err
	}

	*p = out

	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}

	return s
}
