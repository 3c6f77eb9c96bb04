// Package expr is the compute expression algebra: an immutable tree of channel leaves and
// operators from a closed set, with structural equality, hashing and canonical serialization,
// and the fluent NumericExpr surface used to build trees.
package expr

import (
	"fmt"

	"github.com/ethpandaops/seriesgraph/pkg/channels"
)

// NodeKind discriminates node variants.
type NodeKind string

const (
	KindLeaf         NodeKind = "channel"
	KindVariable     NodeKind = "variable"
	KindReference    NodeKind = "reference"
	KindUnary        NodeKind = "unary"
	KindBinary       NodeKind = "binary"
	KindParametrized NodeKind = "parametrized"
	KindNAry         NodeKind = "nary"
)

// Node is one node of an expression tree. The variants are exactly the types in this file;
// nodes are never mutated after construction.
type Node interface {
	Kind() NodeKind
	isNode()
}

// Leaf reads a channel. Type is empty or SeriesNumeric for numeric channels and SeriesEnum
// for channels of categorical values.
type Leaf struct {
	Channel channels.ChannelRef
	Type    SeriesType
}

// WithChannel returns the leaf reading ref instead, keeping its series type.
func (l Leaf) WithChannel(ref channels.ChannelRef) Leaf {
	return Leaf{Channel: ref, Type: l.Type}
}

// Enum reports whether the leaf reads categorical values.
func (l Leaf) Enum() bool {
	return l.Type == SeriesEnum
}

// Variable is a module parameter placeholder bound to a whole series.
type Variable struct {
	Name string
}

// Reference names a variable defined in the request context.
type Reference struct {
	Name string
}

// Unary applies op to one input.
type Unary struct {
	Op    Op
	Input Node
}

// Binary applies op to two inputs. Order matters: atan2(Left, Right) is atan2(y, x).
type Binary struct {
	Op    Op
	Left  Node
	Right Node
}

// Parametrized applies op to one input with ordered literal parameters.
type Parametrized struct {
	Op     Op
	Input  Node
	Params []Literal
}

// NAry applies op to two or more inputs.
type NAry struct {
	Op     Op
	Inputs []Node
}

func (Leaf) Kind() NodeKind         { return KindLeaf }
func (Variable) Kind() NodeKind     { return KindVariable }
func (Reference) Kind() NodeKind    { return KindReference }
func (Unary) Kind() NodeKind        { return KindUnary }
func (Binary) Kind() NodeKind       { return KindBinary }
func (Parametrized) Kind() NodeKind { return KindParametrized }
func (NAry) Kind() NodeKind         { return KindNAry }

func (Leaf) isNode()         {}
func (Variable) isNode()     {}
func (Reference) isNode()    {}
func (Unary) isNode()        {}
func (Binary) isNode()       {}
func (Parametrized) isNode() {}
func (NAry) isNode()         {}

// NewLeaf validates ref and wraps it.
func NewLeaf(ref channels.ChannelRef) (Node, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	return Leaf{Channel: ref.WithTags(nil)}, nil
}

// NewEnumLeaf validates ref and wraps it as a categorical channel.
func NewEnumLeaf(ref channels.ChannelRef) (Node, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	return Leaf{Channel: ref.WithTags(nil), Type: SeriesEnum}, nil
}

// NewVariable builds a series placeholder.
func NewVariable(name string) (Node, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: variable name is required", ErrInvalidParameter)
	}

	return Variable{Name: name}, nil
}

// NewReference builds a context variable reference.
func NewReference(name string) (Node, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: reference name is required", ErrInvalidParameter)
	}

	return Reference{Name: name}, nil
}

// NewUnary builds a unary node.
func NewUnary(op Op, input Node) (Node, error) {
	if err := checkOp(op, ArityUnary); err != nil {
		return nil, err
	}

	if input == nil {
		return nil, fmt.Errorf("%w: %s input", ErrNilNode, op)
	}

	if err := checkInput(op, 0, input); err != nil {
		return nil, err
	}

	return Unary{Op: op, Input: input}, nil
}

// NewBinary builds a binary node.
func NewBinary(op Op, left, right Node) (Node, error) {
	if err := checkOp(op, ArityBinary); err != nil {
		return nil, err
	}

	if left == nil || right == nil {
		return nil, fmt.Errorf("%w: %s operand", ErrNilNode, op)
	}

	if err := checkInput(op, 0, left); err != nil {
		return nil, err
	}

	if err := checkInput(op, 1, right); err != nil {
		return nil, err
	}

	return Binary{Op: op, Left: left, Right: right}, nil
}

// NewParametrized builds a parametrized node, validating every literal.
func NewParametrized(op Op, input Node, params ...Literal) (Node, error) {
	if err := checkOp(op, ArityParametrized); err != nil {
		return nil, err
	}

	if input == nil {
		return nil, fmt.Errorf("%w: %s input", ErrNilNode, op)
	}

	if err := checkInput(op, 0, input); err != nil {
		return nil, err
	}

	if err := validateParams(op, params); err != nil {
		return nil, err
	}

	return Parametrized{Op: op, Input: input, Params: append([]Literal(nil), params...)}, nil
}

// NewNAry builds an n-ary node over at least two inputs.
func NewNAry(op Op, inputs ...Node) (Node, error) {
	if err := checkOp(op, ArityNAry); err != nil {
		return nil, err
	}

	if len(inputs) < 2 {
		return nil, &InvalidParameterError{Op: op, Index: len(inputs), Reason: fmt.Sprintf("needs at least 2 inputs, got %d", len(inputs))}
	}

	for i, in := range inputs {
		if in == nil {
			return nil, fmt.Errorf("%w: %s input %d", ErrNilNode, op, i)
		}

		if err := checkInput(op, i, in); err != nil {
			return nil, err
		}
	}

	return NAry{Op: op, Inputs: append([]Node(nil), inputs...)}, nil
}

// Children returns the direct inputs of n in order.
func Children(n Node) []Node {
	switch v := n.(type) {
	case Unary:
		return []Node{v.Input}
	case Binary:
		return []Node{v.Left, v.Right}
	case Parametrized:
		return []Node{v.Input}
	case NAry:
		return append([]Node(nil), v.Inputs...)
	default:
		return nil
	}
}

// withChildren rebuilds n over new inputs. len(children) must match Children(n).
func withChildren(n Node, children []Node) Node {
	switch v := n.(type) {
	case Unary:
		return Unary{Op: v.Op, Input: children[0]}
	case Binary:
		return Binary{Op: v.Op, Left: children[0], Right: children[1]}
	case Parametrized:
		return Parametrized{Op: v.Op, Input: children[0], Params: v.Params}
	case NAry:
		return NAry{Op: v.Op, Inputs: children}
	default:
		return n
	}
}
