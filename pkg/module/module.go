// Package module defines named, parameterized expression subgraphs: a parameter set, a function
// producing module variables from placeholder bindings, and exports derived from those
// variables. A built Module is pure data. Registration versions it on the platform; Apply binds
// concrete values and yields ordinary expression trees.
package module

import (
	"context"
	"fmt"
	"sort"

	"github.com/ethpandaops/seriesgraph/pkg/canonical"
	"github.com/ethpandaops/seriesgraph/pkg/channels"
	"github.com/ethpandaops/seriesgraph/pkg/expr"
)

// VariablesFunc produces the module variables from placeholder bindings.
type VariablesFunc func(p *Params) (map[string]expr.NumericExpr, error)

// Vars are the module variables handed to an export.
type Vars map[string]expr.NumericExpr

// Get returns the named variable. A missing variable poisons the expression with
// ErrUnknownVariable.
func (v Vars) Get(name string) expr.NumericExpr {
	e, ok := v[name]
	if !ok {
		return expr.Invalid(fmt.Errorf("%w: %s", ErrUnknownVariable, name))
	}

	return e
}

// ExportFunc derives an exported series from the module variables.
type ExportFunc func(v Vars) (expr.NumericExpr, error)

type exportSpec struct {
	name string
	doc  string
	fn   ExportFunc
}

// Builder collects a module definition. Methods record the first error; Build reports it.
type Builder struct {
	name      string
	doc       string
	params    []ParamSpec
	variables VariablesFunc
	exports   []exportSpec
	err       error
}

// New starts a module definition.
func New(name, doc string) *Builder {
	b := &Builder{name: name, doc: doc}
	if name == "" {
		b.err = fmt.Errorf("%w: module name is required", ErrInvalidModule)
	}

	return b
}

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}

	return b
}

// Param declares a parameter. Declaration order is preserved.
func (b *Builder) Param(name string, kind ParamKind, doc string) *Builder {
	if name == "" {
		return b.fail(fmt.Errorf("%w: parameter name is required", ErrInvalidModule))
	}

	if !kind.Valid() {
		return b.fail(fmt.Errorf("%w: parameter %q has unknown kind %q", ErrInvalidModule, name, kind))
	}

	for _, p := range b.params {
		if p.Name == name {
			return b.fail(fmt.Errorf("%w: parameter %q declared twice", ErrInvalidModule, name))
		}
	}

	b.params = append(b.params, ParamSpec{Name: name, Kind: kind, Doc: doc})

	return b
}

// Variables sets the function producing module variables.
func (b *Builder) Variables(fn VariablesFunc) *Builder {
	if b.variables != nil {
		return b.fail(fmt.Errorf("%w: variables already defined", ErrInvalidModule))
	}

	b.variables = fn

	return b
}

// Export adds an exported function.
func (b *Builder) Export(name, doc string, fn ExportFunc) *Builder {
	if name == "" || fn == nil {
		return b.fail(fmt.Errorf("%w: export needs a name and a function", ErrInvalidModule))
	}

	for _, e := range b.exports {
		if e.name == name {
			return b.fail(fmt.Errorf("%w: export %q defined twice", ErrInvalidModule, name))
		}
	}

	b.exports = append(b.exports, exportSpec{name: name, doc: doc, fn: fn})

	return b
}

// Build runs the definition against placeholders and freezes the result.
func (b *Builder) Build() (*Module, error) {
	if b.err != nil {
		return nil, b.err
	}

	if b.variables == nil {
		return nil, fmt.Errorf("%w: module %s has no variables", ErrInvalidModule, b.name)
	}

	specs := make(map[string]ParamSpec, len(b.params))
	for _, p := range b.params {
		specs[p.Name] = p
	}

	placeholders := &Params{specs: specs}

	built, err := b.variables(placeholders)
	if err != nil {
		return nil, fmt.Errorf("module %s variables: %w", b.name, err)
	}

	if placeholders.err != nil {
		return nil, fmt.Errorf("module %s variables: %w", b.name, placeholders.err)
	}

	m := &Module{
		name:       b.name,
		doc:        b.doc,
		params:     append([]ParamSpec(nil), b.params...),
		variables:  make(map[string]expr.Node, len(built)),
		exports:    make(map[string]expr.Node, len(b.exports)),
		exportDocs: make(map[string]string, len(b.exports)),
	}

	vars := make(Vars, len(built))
	for name, e := range built {
		n, err := e.Node()
		if err != nil {
			return nil, fmt.Errorf("module %s variable %s: %w", b.name, name, err)
		}

		m.variables[name] = n
		vars[name] = e
	}

	for _, spec := range b.exports {
		e, err := spec.fn(vars)
		if err == nil {
			err = e.Err()
		}

		if err != nil {
			return nil, fmt.Errorf("module %s export %s: %w", b.name, spec.name, err)
		}

		n, _ := e.Node()
		m.exports[spec.name] = n
		m.exportDocs[spec.name] = spec.doc
	}

	if err := m.checkPlaceholders(); err != nil {
		return nil, err
	}

	return m, nil
}

// checkPlaceholders verifies every placeholder in the templates belongs to a declared
// parameter of the matching kind, so Apply leaves none behind.
func (m *Module) checkPlaceholders() error {
	declared := make(map[string]ParamSpec, len(m.params))
	for _, p := range m.params {
		declared[p.Name] = p
	}

	check := func(what, name string, n expr.Node) error {
		for _, v := range expr.Variables(n) {
			if spec, ok := declared[v]; !ok || spec.Kind != ParamSeries {
				return fmt.Errorf("%w: module %s %s %s uses series placeholder %q with no series parameter", ErrInvalidModule, m.name, what, name, v)
			}
		}

		for _, ref := range expr.Channels(n) {
			if !ref.Parametrized() {
				continue
			}

			spec, ok := declared[ref.OriginParam]
			if !ok || spec.Kind.origin() != ref.Origin {
				return fmt.Errorf("%w: module %s %s %s reads %s channel %s through parameter %q with no matching %s parameter",
					ErrInvalidModule, m.name, what, name, ref.Origin, ref.Name, ref.OriginParam, ref.Origin)
			}
		}

		return nil
	}

	for _, name := range sortedKeys(m.variables) {
		if err := check("variable", name, m.variables[name]); err != nil {
			return err
		}
	}

	for _, name := range sortedKeys(m.exports) {
		if err := check("export", name, m.exports[name]); err != nil {
			return err
		}
	}

	return nil
}

// Module is a built definition: variable and export templates over parameter placeholders.
// It is immutable and safe to share.
type Module struct {
	name       string
	doc        string
	params     []ParamSpec
	variables  map[string]expr.Node
	exports    map[string]expr.Node
	exportDocs map[string]string
}

func (m *Module) Name() string { return m.name }
func (m *Module) Doc() string  { return m.doc }

// Params returns the declared parameters in declaration order.
func (m *Module) Params() []ParamSpec {
	return append([]ParamSpec(nil), m.params...)
}

// VariableNames returns the sorted module variable names.
func (m *Module) VariableNames() []string {
	return sortedKeys(m.variables)
}

// ExportNames returns the sorted export names.
func (m *Module) ExportNames() []string {
	return sortedKeys(m.exports)
}

// ExportDoc returns the doc string of an export.
func (m *Module) ExportDoc(name string) string {
	return m.exportDocs[name]
}

// Template returns the unbound tree of a variable or export, mainly for inspection.
func (m *Module) Template(name string) (expr.Node, bool) {
	if n, ok := m.exports[name]; ok {
		return n, true
	}

	n, ok := m.variables[name]

	return n, ok
}

// Value is the canonical definition document sent on registration.
func (m *Module) Value() map[string]any {
	params := make([]any, len(m.params))
	for i, p := range m.params {
		params[i] = map[string]any{"name": p.Name, "kind": string(p.Kind), "doc": p.Doc}
	}

	variables := make(map[string]any, len(m.variables))
	for name, n := range m.variables {
		variables[name] = expr.Value(n)
	}

	exports := make(map[string]any, len(m.exports))
	for name, n := range m.exports {
		exports[name] = map[string]any{"doc": m.exportDocs[name], "expression": expr.Value(n)}
	}

	return map[string]any{
		"name":       m.name,
		"doc":        m.doc,
		"parameters": params,
		"variables":  variables,
		"exports":    exports,
	}
}

// MarshalJSON returns the canonical definition document.
func (m *Module) MarshalJSON() ([]byte, error) {
	return canonical.Marshal(m.Value())
}

// Hash is the content hash of the definition. Any change to the definition changes it.
func (m *Module) Hash() string {
	h, err := canonical.Hash(canonical.DomainModule, m.Value())
	if err != nil {
		panic(fmt.Sprintf("module: canonical encoding failed: %v", err))
	}

	return h
}

// Apply binds values to the declared parameters. The supplied names and kinds must match the
// declaration exactly.
func (m *Module) Apply(values Values) (*Application, error) {
	perr := &ModuleParameterError{Module: m.name}
	declared := make(map[string]ParamSpec, len(m.params))

	for _, p := range m.params {
		declared[p.Name] = p

		v, ok := values[p.Name]
		if !ok {
			perr.Missing = append(perr.Missing, p.Name)
			continue
		}

		if v.Kind != p.Kind {
			perr.Mismatched = append(perr.Mismatched, ParameterError{Name: p.Name, Want: p.Kind, Got: v.Kind})
		}
	}

	for name := range values {
		if _, ok := declared[name]; !ok {
			perr.Unexpected = append(perr.Unexpected, name)
		}
	}

	if !perr.empty() {
		perr.sort()
		return nil, perr
	}

	for name, v := range values {
		if err := v.validate(name); err != nil {
			return nil, err
		}
	}

	app := &Application{
		module:    m,
		values:    cloneValues(values),
		variables: make(map[string]expr.Node, len(m.variables)),
		exports:   make(map[string]expr.Node, len(m.exports)),
	}

	for name, n := range m.variables {
		app.variables[name] = bind(n, values)
	}

	for name, n := range m.exports {
		app.exports[name] = bind(n, values)
	}

	return app, nil
}

// bind substitutes placeholders. Kinds were checked by Apply and origins by Params.
func bind(n expr.Node, values Values) expr.Node {
	return expr.Rewrite(n, func(node expr.Node) (expr.Node, bool) {
		switch v := node.(type) {
		case expr.Leaf:
			if !v.Channel.Parametrized() {
				return nil, false
			}

			return v.WithChannel(v.Channel.Bind(values[v.Channel.OriginParam].RID)), true
		case expr.Variable:
			val, ok := values[v.Name]
			if !ok || val.Kind != ParamSeries {
				return nil, false
			}

			series, _ := val.Series.Node()

			return series, true
		default:
			return nil, false
		}
	})
}

func cloneValues(values Values) Values {
	out := make(Values, len(values))
	for k, v := range values {
		out[k] = v
	}

	return out
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)

	return out
}

// Application is a module bound to concrete values. Its variables and exports are ordinary
// expressions with no placeholders left.
type Application struct {
	module     *Module
	registered *RegisteredModule
	values     Values
	variables  map[string]expr.Node
	exports    map[string]expr.Node
}

// Module returns the applied definition.
func (a *Application) Module() *Module { return a.module }

// Registration returns the registry handle the application came from, or nil.
func (a *Application) Registration() *RegisteredModule { return a.registered }

// Variable returns a bound module variable.
func (a *Application) Variable(name string) (expr.NumericExpr, error) {
	n, ok := a.variables[name]
	if !ok {
		return expr.NumericExpr{}, fmt.Errorf("%w: %s.%s", ErrUnknownVariable, a.module.name, name)
	}

	return expr.From(n), nil
}

// Export returns a bound export.
func (a *Application) Export(name string) (expr.NumericExpr, error) {
	n, ok := a.exports[name]
	if !ok {
		return expr.NumericExpr{}, fmt.Errorf("%w: %s.%s", ErrUnknownExport, a.module.name, name)
	}

	return expr.From(n), nil
}

// Exports returns every bound export keyed by name.
func (a *Application) Exports() map[string]expr.NumericExpr {
	out := make(map[string]expr.NumericExpr, len(a.exports))
	for name, n := range a.exports {
		out[name] = expr.From(n)
	}

	return out
}

// Resolve returns a copy whose channels are resolved against the catalog, applying scope
// default tags. The receiver is unchanged.
func (a *Application) Resolve(ctx context.Context, r expr.ChannelResolver) (*Application, error) {
	out := &Application{
		module:     a.module,
		registered: a.registered,
		values:     a.values,
		variables:  make(map[string]expr.Node, len(a.variables)),
		exports:    make(map[string]expr.Node, len(a.exports)),
	}

	for name, n := range a.variables {
		resolved, err := expr.ResolveChannels(ctx, r, n)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", a.module.name, name, err)
		}
		out.variables[name] = resolved
	}

	for name, n := range a.exports {
		resolved, err := expr.ResolveChannels(ctx, r, n)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", a.module.name, name, err)
		}
		out.exports[name] = resolved
	}

	return out, nil
}

// Channels lists the distinct channels read by any variable or export.
func (a *Application) Channels() []channels.ChannelRef {
	seen := map[string]channels.ChannelRef{}

	for _, group := range []map[string]expr.Node{a.variables, a.exports} {
		for _, n := range group {
			for _, ref := range expr.Channels(n) {
				seen[ref.String()] = ref
			}
		}
	}

	out := make([]channels.ChannelRef, 0, len(seen))
	for _, k := range sortedKeys(seen) {
		out = append(out, seen[k])
	}

	return out
}
