package module

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/seriesgraph/pkg/channels"
	"github.com/ethpandaops/seriesgraph/pkg/expr"
)

const (
	assetA = "ri.asset.main.asset.a"
	assetB = "ri.asset.main.asset.b"
)

func attitudeModule(t *testing.T) *Module {
	t.Helper()

	m, err := New("attitude", "Euler angles from the attitude quaternion.").
		Param("vehicle", ParamAsset, "Vehicle asset").
		Param("bias", ParamSeries, "Roll bias series").
		Variables(func(p *Params) (map[string]expr.NumericExpr, error) {
			q := func(name string) expr.NumericExpr {
				return p.AssetChannel("vehicle", "mavlink", "attitude_quaternion."+name, nil)
			}

			return map[string]expr.NumericExpr{
				"w":    q("q1"),
				"x":    q("q2"),
				"y":    q("q3"),
				"z":    q("q4"),
				"bias": p.Series("bias"),
			}, nil
		}).
		Export("roll", "Roll angle in radians.", func(v Vars) (expr.NumericExpr, error) {
			w, x, y, z := v.Get("w"), v.Get("x"), v.Get("y"), v.Get("z")

			roll := w.Times(x).Plus(y.Times(z)).Scale(2).Atan2(x.Times(x).Plus(y.Times(y)).Scale(-2).Offset(1))

			return roll.Minus(v.Get("bias")), nil
		}).
		Export("pitch", "Pitch angle in radians.", func(v Vars) (expr.NumericExpr, error) {
			w, x, y, z := v.Get("w"), v.Get("x"), v.Get("y"), v.Get("z")

			return w.Times(y).Minus(z.Times(x)).Scale(2).Asin(), nil
		}).
		Build()
	require.NoError(t, err)

	return m
}

func bias() expr.NumericExpr {
	return expr.AssetChannel(assetA, "imu", "roll_bias", nil)
}

func TestBuild_TemplatesUsePlaceholders(t *testing.T) {
	m := attitudeModule(t)

	assert.Equal(t, []string{"pitch", "roll"}, m.ExportNames())
	assert.Equal(t, []string{"bias", "w", "x", "y", "z"}, m.VariableNames())

	roll, ok := m.Template("roll")
	require.True(t, ok)

	for _, ref := range expr.Channels(roll) {
		assert.True(t, ref.Parametrized())
		assert.Equal(t, "vehicle", ref.OriginParam)
	}

	assert.Equal(t, []string{"bias"}, expr.Variables(roll))
}

func TestBuild_Errors(t *testing.T) {
	noVars := func(p *Params) (map[string]expr.NumericExpr, error) { return nil, nil }

	tests := []struct {
		name    string
		build   func() (*Module, error)
		wantErr error
	}{
		{
			name:  "missing name",
			build: func() (*Module, error) { return New("", "").Variables(noVars).Build() },
		},
		{
			name: "duplicate parameter",
			build: func() (*Module, error) {
				return New("m", "").Param("a", ParamAsset, "").Param("a", ParamRun, "").Variables(noVars).Build()
			},
		},
		{
			name:  "unknown kind",
			build: func() (*Module, error) { return New("m", "").Param("a", "vehicle", "").Variables(noVars).Build() },
		},
		{
			name:  "no variables",
			build: func() (*Module, error) { return New("m", "").Build() },
		},
		{
			name: "undeclared parameter",
			build: func() (*Module, error) {
				return New("m", "").Variables(func(p *Params) (map[string]expr.NumericExpr, error) {
					return map[string]expr.NumericExpr{"x": p.AssetChannel("vehicle", "s", "x", nil)}, nil
				}).Build()
			},
		},
		{
			name: "parameter used with wrong kind",
			build: func() (*Module, error) {
				return New("m", "").Param("vehicle", ParamRun, "").Variables(func(p *Params) (map[string]expr.NumericExpr, error) {
					return map[string]expr.NumericExpr{"x": p.AssetChannel("vehicle", "s", "x", nil)}, nil
				}).Build()
			},
		},
		{
			name: "export reads unknown variable",
			build: func() (*Module, error) {
				return New("m", "").Param("v", ParamSeries, "").
					Variables(func(p *Params) (map[string]expr.NumericExpr, error) {
						return map[string]expr.NumericExpr{"v": p.Series("v")}, nil
					}).
					Export("e", "", func(v Vars) (expr.NumericExpr, error) { return v.Get("missing").Abs(), nil }).
					Build()
			},
		},
		{
			name: "variable uses undeclared series placeholder",
			build: func() (*Module, error) {
				return New("m", "").Param("vehicle", ParamAsset, "").
					Variables(func(p *Params) (map[string]expr.NumericExpr, error) {
						q1 := p.AssetChannel("vehicle", "mavlink", "q1", nil)
						return map[string]expr.NumericExpr{"x": q1.Plus(expr.Var("ghost"))}, nil
					}).
					Build()
			},
			wantErr: ErrInvalidModule,
		},
		{
			name: "export uses series placeholder of asset parameter",
			build: func() (*Module, error) {
				return New("m", "").Param("vehicle", ParamAsset, "").
					Variables(func(p *Params) (map[string]expr.NumericExpr, error) {
						return map[string]expr.NumericExpr{"x": p.AssetChannel("vehicle", "mavlink", "q1", nil)}, nil
					}).
					Export("e", "", func(v Vars) (expr.NumericExpr, error) {
						return v.Get("x").Minus(expr.Var("vehicle")), nil
					}).
					Build()
			},
			wantErr: ErrInvalidModule,
		},
		{
			name: "hand built channel placeholder",
			build: func() (*Module, error) {
				ref := channels.AssetChannel("", "mavlink", "q1", nil)
				ref.OriginParam = "asset"

				return New("m", "").Param("vehicle", ParamAsset, "").
					Variables(func(p *Params) (map[string]expr.NumericExpr, error) {
						return map[string]expr.NumericExpr{"x": expr.FromRef(ref)}, nil
					}).
					Build()
			},
			wantErr: ErrInvalidModule,
		},
		{
			name: "channel placeholder of the wrong origin",
			build: func() (*Module, error) {
				ref := channels.RunChannel("", "mavlink", "q1", nil)
				ref.OriginParam = "vehicle"

				return New("m", "").Param("vehicle", ParamAsset, "").
					Variables(func(p *Params) (map[string]expr.NumericExpr, error) {
						return map[string]expr.NumericExpr{"x": expr.FromRef(ref)}, nil
					}).
					Build()
			},
			wantErr: ErrInvalidModule,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build()
			require.Error(t, err)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestApply_Deterministic(t *testing.T) {
	m := attitudeModule(t)
	values := Values{"vehicle": Asset(assetA), "bias": Series(bias())}

	first, err := m.Apply(values)
	require.NoError(t, err)

	second, err := m.Apply(values)
	require.NoError(t, err)

	for _, name := range m.ExportNames() {
		a, err := first.Export(name)
		require.NoError(t, err)

		b, err := second.Export(name)
		require.NoError(t, err)

		assert.True(t, a.Equal(b), name)
	}
}

func TestApply_MatchesHandBuiltTree(t *testing.T) {
	m := attitudeModule(t)

	app, err := m.Apply(Values{"vehicle": Asset(assetB), "bias": Series(bias())})
	require.NoError(t, err)

	q := func(name string) expr.NumericExpr {
		return expr.AssetChannel(assetB, "mavlink", "attitude_quaternion."+name, nil)
	}
	w, x, y, z := q("q1"), q("q2"), q("q3"), q("q4")
	want := w.Times(x).Plus(y.Times(z)).Scale(2).Atan2(x.Times(x).Plus(y.Times(y)).Scale(-2).Offset(1)).Minus(bias())

	roll, err := app.Export("roll")
	require.NoError(t, err)
	assert.True(t, roll.Equal(want))

	n, err := roll.Node()
	require.NoError(t, err)
	assert.Empty(t, expr.Variables(n))

	// Bound exports compose like any other expression.
	composed := roll.Plus(q("q1"))
	require.NoError(t, composed.Err())

	refs := app.Channels()
	assert.Len(t, refs, 5)

	for _, ref := range refs {
		assert.False(t, ref.Parametrized())
	}
}

func TestApply_ParameterMismatch(t *testing.T) {
	m := attitudeModule(t)

	tests := []struct {
		name   string
		values Values
		check  func(t *testing.T, perr *ModuleParameterError)
	}{
		{
			name:   "missing",
			values: Values{"vehicle": Asset(assetA)},
			check: func(t *testing.T, perr *ModuleParameterError) {
				assert.Equal(t, []string{"bias"}, perr.Missing)
			},
		},
		{
			name:   "unexpected",
			values: Values{"vehicle": Asset(assetA), "bias": Series(bias()), "run": Run("ri.run.1")},
			check: func(t *testing.T, perr *ModuleParameterError) {
				assert.Equal(t, []string{"run"}, perr.Unexpected)
			},
		},
		{
			name:   "wrong kind",
			values: Values{"vehicle": Run("ri.run.1"), "bias": Series(bias())},
			check: func(t *testing.T, perr *ModuleParameterError) {
				require.Len(t, perr.Mismatched, 1)
				assert.Equal(t, ParameterError{Name: "vehicle", Want: ParamAsset, Got: ParamRun}, perr.Mismatched[0])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Apply(tt.values)
			require.ErrorIs(t, err, ErrModuleParameter)

			var perr *ModuleParameterError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, "attitude", perr.Module)
			tt.check(t, perr)
		})
	}

	_, err := m.Apply(Values{"vehicle": Asset(""), "bias": Series(bias())})
	require.ErrorIs(t, err, ErrModuleParameter)
}

func TestApplication_UnknownNames(t *testing.T) {
	app, err := attitudeModule(t).Apply(Values{"vehicle": Asset(assetA), "bias": Series(bias())})
	require.NoError(t, err)

	_, err = app.Export("yaw")
	require.ErrorIs(t, err, ErrUnknownExport)

	_, err = app.Variable("q")
	require.ErrorIs(t, err, ErrUnknownVariable)

	w, err := app.Variable("w")
	require.NoError(t, err)
	assert.True(t, w.Equal(expr.AssetChannel(assetA, "mavlink", "attitude_quaternion.q1", nil)))
}

func TestHash_ChangesWithDefinition(t *testing.T) {
	a := attitudeModule(t)
	b := attitudeModule(t)
	assert.Equal(t, a.Hash(), b.Hash())

	other, err := New("attitude", "Euler angles from the attitude quaternion.").
		Param("vehicle", ParamAsset, "Vehicle asset").
		Variables(func(p *Params) (map[string]expr.NumericExpr, error) {
			return map[string]expr.NumericExpr{"w": p.AssetChannel("vehicle", "mavlink", "attitude_quaternion.q1", nil)}, nil
		}).
		Build()
	require.NoError(t, err)
	assert.NotEqual(t, a.Hash(), other.Hash())
}

func TestUnmarshal_RebuildsTemplates(t *testing.T) {
	m := attitudeModule(t)

	data, err := m.MarshalJSON()
	require.NoError(t, err)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, m.Hash(), decoded.Hash())
	assert.Equal(t, m.Params(), decoded.Params())

	app, err := decoded.Apply(Values{"vehicle": Asset(assetA), "bias": Series(bias())})
	require.NoError(t, err)

	orig, err := m.Apply(Values{"vehicle": Asset(assetA), "bias": Series(bias())})
	require.NoError(t, err)

	a, _ := app.Export("roll")
	b, _ := orig.Export("roll")
	assert.True(t, a.Equal(b))
}

func TestUnmarshal_RejectsUnownedPlaceholders(t *testing.T) {
	data, err := attitudeModule(t).MarshalJSON()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))

	var kept []any
	for _, p := range doc["parameters"].([]any) {
		if p.(map[string]any)["name"] != "bias" {
			kept = append(kept, p)
		}
	}
	doc["parameters"] = kept

	tampered, err := json.Marshal(doc)
	require.NoError(t, err)

	_, err = Unmarshal(tampered)
	require.ErrorIs(t, err, ErrInvalidModule)
	assert.Contains(t, err.Error(), `"bias"`)
}

func TestApply_LeavesNoPlaceholders(t *testing.T) {
	app, err := attitudeModule(t).Apply(Values{"vehicle": Asset(assetA), "bias": Series(bias())})
	require.NoError(t, err)

	for name, e := range app.Exports() {
		n, err := e.Node()
		require.NoError(t, err)

		assert.Empty(t, expr.Variables(n), name)

		for _, ref := range expr.Channels(n) {
			assert.False(t, ref.Parametrized(), "%s reads %s", name, ref)
		}
	}
}

func TestDescribe(t *testing.T) {
	doc, err := Describe(attitudeModule(t))
	require.NoError(t, err)

	assert.Contains(t, doc, "# attitude")
	assert.Contains(t, doc, "- `vehicle` (asset): Vehicle asset")
	assert.Contains(t, doc, "- `roll`: Roll angle in radians.")
	assert.Contains(t, doc, "atan2(")
}
