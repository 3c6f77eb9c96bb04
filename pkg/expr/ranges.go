package expr

// RangeExpr builds range series: sets of time intervals, such as the spans where a numeric
// series is above a threshold. Like NumericExpr it is a value with sticky errors.
type RangeExpr struct {
	node Node
	err  error
}

// RangesFrom wraps an existing range tree.
func RangesFrom(n Node) RangeExpr {
	if n == nil {
		return RangeExpr{err: ErrNilNode}
	}

	if got := TypeOf(n); got != "" && got != SeriesRanges {
		return RangeExpr{err: &SeriesTypeError{Want: []SeriesType{SeriesRanges}, Got: got}}
	}

	return RangeExpr{node: n}
}

// Node returns the built tree, or the first error hit while building it.
func (r RangeExpr) Node() (Node, error) {
	if r.err != nil {
		return nil, r.err
	}

	if r.node == nil {
		return nil, ErrNilNode
	}

	return r.node, nil
}

// Err returns the sticky build error, if any.
func (r RangeExpr) Err() error {
	_, err := r.Node()
	return err
}

// Equal reports structural equality of two valid range expressions.
func (r RangeExpr) Equal(o RangeExpr) bool {
	a, errA := r.Node()
	b, errB := o.Node()

	return errA == nil && errB == nil && Equal(a, b)
}

// Hash is the content hash of the tree, empty for an invalid expression.
func (r RangeExpr) Hash() string {
	n, err := r.Node()
	if err != nil {
		return ""
	}

	return Hash(n)
}

func (r RangeExpr) String() string {
	n, err := r.Node()
	if err != nil {
		return "<invalid: " + err.Error() + ">"
	}

	return Format(n)
}

// Threshold is the set of intervals where the series compares true against value.
func (e NumericExpr) Threshold(value float64, op ThresholdOperator) (RangeExpr, error) {
	n, err := e.Node()
	if err != nil {
		return RangeExpr{err: err}, err
	}

	out, err := NewParametrized(OpThreshold, n, Scalar(value), op)
	if err != nil {
		return RangeExpr{err: err}, err
	}

	return RangeExpr{node: out}, nil
}

// Filter keeps the points that fall inside ranges.
func (e NumericExpr) Filter(ranges RangeExpr) NumericExpr {
	left, err := e.Node()
	if err != nil {
		return NumericExpr{err: err}
	}

	right, err := ranges.Node()
	if err != nil {
		return NumericExpr{err: err}
	}

	return wrap(NewBinary(OpFilter, left, right))
}

// Intersect keeps the intervals covered by the receiver and every other set. With no other
// sets the receiver is returned unchanged.
func (r RangeExpr) Intersect(others ...RangeExpr) RangeExpr {
	return r.combine(OpIntersect, others)
}

// Union covers every interval of the receiver or any other set. With no other sets the
// receiver is returned unchanged.
func (r RangeExpr) Union(others ...RangeExpr) RangeExpr {
	return r.combine(OpUnion, others)
}

// Invert is the complement of the receiver.
func (r RangeExpr) Invert() RangeExpr {
	n, err := r.Node()
	if err != nil {
		return RangeExpr{err: err}
	}

	out, err := NewUnary(OpInvert, n)

	return RangeExpr{node: out, err: err}
}

func (r RangeExpr) combine(op Op, others []RangeExpr) RangeExpr {
	first, err := r.Node()
	if err != nil {
		return RangeExpr{err: err}
	}

	if len(others) == 0 {
		return r
	}

	nodes := make([]Node, 0, len(others)+1)
	nodes = append(nodes, first)

	for _, o := range others {
		n, err := o.Node()
		if err != nil {
			return RangeExpr{err: err}
		}
		nodes = append(nodes, n)
	}

	out, err := NewNAry(op, nodes...)

	return RangeExpr{node: out, err: err}
}
