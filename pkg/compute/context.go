package compute

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethpandaops/seriesgraph/pkg/expr"
)

// Option configures a single compute call.
type Option func(*callOptions)

type callOptions struct {
	variables map[string]expr.NumericExpr
}

// WithVariable defines a request context variable. Expressions refer to it with expr.Ref(name)
// and the evaluator computes it once per round trip. Variables may reference each other but
// must not form a cycle.
func WithVariable(name string, e expr.NumericExpr) Option {
	return func(o *callOptions) {
		o.variables[name] = e
	}
}

func newCallOptions(opts []Option) *callOptions {
	o := &callOptions{variables: map[string]expr.NumericExpr{}}
	for _, opt := range opts {
		opt(o)
	}

	return o
}

// context validates the caller's variables and returns them by name.
func (o *callOptions) context() (map[string]expr.Node, error) {
	vars := make(map[string]expr.Node, len(o.variables))

	for name, e := range o.variables {
		if name == "" {
			return nil, fmt.Errorf("%w: name is required", ErrInvalidVariable)
		}

		if strings.HasPrefix(name, hoistPrefix) {
			return nil, fmt.Errorf("%w: %q uses the reserved prefix %s", ErrInvalidVariable, name, hoistPrefix)
		}

		n, err := e.Node()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidVariable, name, err)
		}
		vars[name] = n
	}

	for name, n := range vars {
		if err := checkBound(n, vars); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidVariable, name, err)
		}
	}

	return vars, nil
}

// checkBound rejects module placeholders and references to undefined variables in n.
func checkBound(n expr.Node, vars map[string]expr.Node) error {
	if names := expr.Variables(n); len(names) > 0 {
		return fmt.Errorf("%w: series placeholder %q", ErrUnboundParameter, names[0])
	}

	for _, ref := range expr.Channels(n) {
		if ref.Parametrized() {
			return fmt.Errorf("%w: channel %s reads parameter %q", ErrUnboundParameter, ref, ref.OriginParam)
		}
	}

	for _, name := range expr.References(n) {
		if _, ok := vars[name]; !ok {
			return fmt.Errorf("%w: %q", ErrUndefinedVar, name)
		}
	}

	return nil
}

// reachable returns the variables chunk references, directly or through other variables,
// sorted by name.
func reachable(chunk []expr.Node, vars map[string]expr.Node) []Variable {
	if len(vars) == 0 {
		return nil
	}

	seen := map[string]bool{}

	var visit func(n expr.Node)
	visit = func(n expr.Node) {
		for _, name := range expr.References(n) {
			if seen[name] {
				continue
			}
			seen[name] = true

			visit(vars[name])
		}
	}

	for _, n := range chunk {
		visit(n)
	}

	out := make([]Variable, 0, len(seen))
	for name := range seen {
		out = append(out, Variable{Name: name, Expression: vars[name]})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out
}
