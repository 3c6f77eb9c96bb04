package module

import (
	"fmt"

	"github.com/ethpandaops/seriesgraph/pkg/channels"
	"github.com/ethpandaops/seriesgraph/pkg/expr"
)

// ParamKind is what a module parameter binds to.
type ParamKind string

const (
	ParamAsset      ParamKind = "asset"
	ParamRun        ParamKind = "run"
	ParamDatasource ParamKind = "datasource"
	ParamSeries     ParamKind = "series"
)

// Valid reports whether k is a known kind.
func (k ParamKind) Valid() bool {
	switch k {
	case ParamAsset, ParamRun, ParamDatasource, ParamSeries:
		return true
	default:
		return false
	}
}

func (k ParamKind) origin() channels.Origin {
	switch k {
	case ParamAsset:
		return channels.OriginAsset
	case ParamRun:
		return channels.OriginRun
	case ParamDatasource:
		return channels.OriginDatasource
	default:
		return ""
	}
}

// ParamSpec declares one parameter.
type ParamSpec struct {
	Name string    `json:"name"`
	Kind ParamKind `json:"kind"`
	Doc  string    `json:"doc,omitempty"`
}

// Params is handed to the variables function during definition. Its channel constructors build
// placeholder leaves whose origin identifier is bound on Apply.
type Params struct {
	specs map[string]ParamSpec
	err   error
}

func (p *Params) fail(err error) expr.NumericExpr {
	if p.err == nil {
		p.err = err
	}

	return expr.Invalid(err)
}

func (p *Params) channel(param string, kind ParamKind, build func() channels.ChannelRef) expr.NumericExpr {
	spec, ok := p.specs[param]
	if !ok {
		return p.fail(fmt.Errorf("%w: parameter %q is not declared", ErrInvalidModule, param))
	}

	if spec.Kind != kind {
		return p.fail(fmt.Errorf("%w: parameter %q is %s, used as %s", ErrInvalidModule, param, spec.Kind, kind))
	}

	ref := build()
	ref.OriginID = ""
	ref.OriginParam = param

	return expr.FromRef(ref)
}

// AssetChannel reads a channel of the asset bound to param.
func (p *Params) AssetChannel(param, scope, name string, additionalTags map[string]string) expr.NumericExpr {
	return p.channel(param, ParamAsset, func() channels.ChannelRef {
		return channels.AssetChannel("", scope, name, additionalTags)
	})
}

// RunChannel reads a channel of the run bound to param.
func (p *Params) RunChannel(param, scope, name string, additionalTags map[string]string) expr.NumericExpr {
	return p.channel(param, ParamRun, func() channels.ChannelRef {
		return channels.RunChannel("", scope, name, additionalTags)
	})
}

// DatasourceChannel reads a channel of the datasource bound to param.
func (p *Params) DatasourceChannel(param, name string, tags map[string]string) expr.NumericExpr {
	return p.channel(param, ParamDatasource, func() channels.ChannelRef {
		return channels.DatasourceChannel("", name, tags)
	})
}

// Series is the whole-series placeholder for param.
func (p *Params) Series(param string) expr.NumericExpr {
	spec, ok := p.specs[param]
	if !ok {
		return p.fail(fmt.Errorf("%w: parameter %q is not declared", ErrInvalidModule, param))
	}

	if spec.Kind != ParamSeries {
		return p.fail(fmt.Errorf("%w: parameter %q is %s, used as series", ErrInvalidModule, param, spec.Kind))
	}

	return expr.Var(param)
}

// Value is a concrete binding for one parameter.
type Value struct {
	Kind   ParamKind
	RID    string
	Series expr.NumericExpr
}

// Asset binds an asset parameter.
func Asset(rid string) Value { return Value{Kind: ParamAsset, RID: rid} }

// Run binds a run parameter.
func Run(rid string) Value { return Value{Kind: ParamRun, RID: rid} }

// Datasource binds a datasource parameter.
func Datasource(rid string) Value { return Value{Kind: ParamDatasource, RID: rid} }

// Series binds a series parameter to an expression.
func Series(e expr.NumericExpr) Value { return Value{Kind: ParamSeries, Series: e} }

// Values maps parameter names to bindings.
type Values map[string]Value

func (v Value) validate(name string) error {
	if v.Kind == ParamSeries {
		if err := v.Series.Err(); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrModuleParameter, name, err)
		}

		return nil
	}

	if v.RID == "" {
		return fmt.Errorf("%w: %s: empty %s identifier", ErrModuleParameter, name, v.Kind)
	}

	return nil
}
