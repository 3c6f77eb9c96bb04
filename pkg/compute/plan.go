package compute

import (
	"errors"
	"fmt"
	"sort"

	"github.com/heimdalr/dag"

	"github.com/ethpandaops/seriesgraph/pkg/expr"
)

// ErrInconsistentPlan is returned when context variables do not form a DAG.
var ErrInconsistentPlan = errors.New("context variables form an inconsistent graph")

// Variable is a context variable of a compute request.
type Variable struct {
	Name       string
	Expression expr.Node
}

// Plan is the set of expressions of one round trip after shared subexpressions were hoisted
// into context variables. Variables are ordered so that every variable only references
// variables before it.
type Plan struct {
	Expressions []expr.Node
	Variables   []Variable
}

const hoistPrefix = "_shared_"

// hoistable excludes nodes that are as cheap to send as a reference.
func hoistable(n expr.Node) bool {
	switch n.(type) {
	case expr.Leaf, expr.Variable, expr.Reference:
		return false
	default:
		return true
	}
}

// NewPlan returns a plan evaluating exprs with the given caller context variables. When hoist
// is set, any non-trivial subtree that occurs at least twice across the expressions and
// variables is replaced by a reference to a generated context variable, largest subtrees
// first, so shared work is evaluated once.
func NewPlan(exprs []expr.Node, hoist bool, vars ...Variable) (*Plan, error) {
	p := &Plan{Expressions: append([]expr.Node(nil), exprs...)}

	defs := make(map[string]expr.Node, len(vars))
	for _, v := range vars {
		defs[v.Name] = v.Expression
	}

	if !hoist {
		ordered, err := orderVariables(defs)
		if err != nil {
			return nil, err
		}
		p.Variables = ordered

		return p, nil
	}

	for {
		hash, node, ok := mostSharedSubtree(p.Expressions, defs)
		if !ok {
			break
		}

		name := hoistPrefix + hash[:16]
		ref := expr.Reference{Name: name}

		replace := func(n expr.Node) expr.Node {
			return expr.Rewrite(n, func(candidate expr.Node) (expr.Node, bool) {
				if !hoistable(candidate) || expr.Hash(candidate) != hash {
					return nil, false
				}

				return ref, true
			})
		}

		for i, e := range p.Expressions {
			p.Expressions[i] = replace(e)
		}

		for existing, body := range defs {
			defs[existing] = replace(body)
		}

		defs[name] = node
	}

	ordered, err := orderVariables(defs)
	if err != nil {
		return nil, err
	}
	p.Variables = ordered

	return p, nil
}

// mostSharedSubtree picks the largest hoistable subtree occurring at least twice in the forest.
// Ties are broken by hash for determinism.
func mostSharedSubtree(exprs []expr.Node, defs map[string]expr.Node) (string, expr.Node, bool) {
	counts := map[string]int{}
	nodes := map[string]expr.Node{}

	visit := func(root expr.Node) {
		expr.Walk(root, func(n expr.Node) bool {
			if hoistable(n) {
				h := expr.Hash(n)
				counts[h]++
				nodes[h] = n
			}
			return true
		})
	}

	for _, e := range exprs {
		visit(e)
	}

	for _, body := range defs {
		for _, c := range expr.Children(body) {
			visit(c)
		}
	}

	var (
		bestHash string
		bestSize int
	)

	for h, count := range counts {
		if count < 2 {
			continue
		}

		size := expr.Size(nodes[h])
		if size > bestSize || (size == bestSize && h < bestHash) {
			bestHash, bestSize = h, size
		}
	}

	if bestHash == "" {
		return "", nil, false
	}

	return bestHash, nodes[bestHash], true
}

// orderVariables sorts definitions so dependencies come first. The DAG rejects cycles, which
// would indicate a hoisting bug.
func orderVariables(defs map[string]expr.Node) ([]Variable, error) {
	if len(defs) == 0 {
		return nil, nil
	}

	d := dag.NewDAG()

	for name := range defs {
		if err := d.AddVertexByID(name, name); err != nil {
			return nil, fmt.Errorf("failed to add vertex %s: %w", name, err)
		}
	}

	for name, body := range defs {
		for _, dep := range expr.References(body) {
			if _, ok := defs[dep]; !ok {
				continue
			}

			// AddEdge returns error if it would create a cycle
			if err := d.AddEdge(dep, name); err != nil {
				return nil, fmt.Errorf("%w: %s -> %s: %w", ErrInconsistentPlan, dep, name, err)
			}
		}
	}

	depth := make(map[string]int, len(defs))
	for name := range defs {
		ancestors, err := d.GetAncestors(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInconsistentPlan, err)
		}
		depth[name] = len(ancestors)
	}

	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}

	// An ancestor always has strictly fewer ancestors than its descendants.
	sort.Slice(names, func(i, j int) bool {
		if depth[names[i]] != depth[names[j]] {
			return depth[names[i]] < depth[names[j]]
		}
		return names[i] < names[j]
	})

	out := make([]Variable, len(names))
	for i, name := range names {
		out[i] = Variable{Name: name, Expression: defs[name]}
	}

	return out, nil
}
