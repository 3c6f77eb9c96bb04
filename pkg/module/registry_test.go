package module

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/seriesgraph/internal/testutil"
	"github.com/ethpandaops/seriesgraph/pkg/expr"
)

func TestRegister_Versioning(t *testing.T) {
	platform := testutil.NewPlatform(t)
	reg := NewHTTPRegistry(platform.NewClient(t))
	ctx := context.Background()

	m := attitudeModule(t)

	first, err := m.Register(ctx, reg)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Version)
	assert.Equal(t, m.Hash(), first.ContentHash)
	assert.Equal(t, "attitude", first.Name)

	again, err := attitudeModule(t).Register(ctx, reg)
	require.NoError(t, err)
	assert.Equal(t, first.Summary, again.Summary)

	changed, err := New("attitude", "Only roll.").
		Param("vehicle", ParamAsset, "").
		Variables(func(p *Params) (map[string]expr.NumericExpr, error) {
			return map[string]expr.NumericExpr{"w": p.AssetChannel("vehicle", "mavlink", "attitude_quaternion.q1", nil)}, nil
		}).
		Build()
	require.NoError(t, err)

	second, err := changed.Register(ctx, reg)
	require.NoError(t, err)
	assert.Equal(t, first.RID, second.RID)
	assert.Equal(t, 2, second.Version)

	// The first version is untouched.
	v1, err := reg.Get(ctx, first.RID, 1)
	require.NoError(t, err)
	assert.Equal(t, m.Hash(), v1.Module().Hash())

	latest, err := reg.Get(ctx, first.RID, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)
	assert.Equal(t, changed.Hash(), latest.Module().Hash())
}

func TestRegisteredModule_Apply(t *testing.T) {
	platform := testutil.NewPlatform(t)
	reg := NewHTTPRegistry(platform.NewClient(t))

	registered, err := attitudeModule(t).Register(context.Background(), reg)
	require.NoError(t, err)

	fetched, err := reg.Get(context.Background(), registered.RID, registered.Version)
	require.NoError(t, err)

	app, err := fetched.Apply(Values{"vehicle": Asset(assetA), "bias": Series(bias())})
	require.NoError(t, err)
	assert.Equal(t, registered.RID, app.Registration().RID)

	local, err := registered.Apply(Values{"vehicle": Asset(assetA), "bias": Series(bias())})
	require.NoError(t, err)

	a, _ := app.Export("pitch")
	b, _ := local.Export("pitch")
	assert.True(t, a.Equal(b))
}

func TestRegistry_GetMissing(t *testing.T) {
	platform := testutil.NewPlatform(t)
	reg := NewHTTPRegistry(platform.NewClient(t))

	_, err := reg.Get(context.Background(), "ri.module.main.module.missing", 0)
	require.ErrorIs(t, err, ErrNotRegistered)
}

func TestListAll_Pages(t *testing.T) {
	platform := testutil.NewPlatform(t)
	reg := NewHTTPRegistry(platform.NewClient(t))
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c", "d", "e"} {
		m, err := New(name, "").
			Param("s", ParamSeries, "").
			Variables(func(p *Params) (map[string]expr.NumericExpr, error) {
				return map[string]expr.NumericExpr{"s": p.Series("s")}, nil
			}).
			Build()
		require.NoError(t, err)

		_, err = m.Register(ctx, reg)
		require.NoError(t, err)
	}

	page, err := reg.List(ctx, ListRequest{PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, page.Modules, 2)
	assert.NotEmpty(t, page.NextPageToken)

	all, err := ListAll(ctx, reg, 2)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "a", all[0].Name)
	assert.Equal(t, "e", all[4].Name)
}

type mismatchRegistry struct {
	Registry
}

func (mismatchRegistry) Register(context.Context, *Module) (Summary, error) {
	return Summary{RID: "ri.module.1", Version: 1, ContentHash: "other"}, nil
}

func TestRegister_HashMismatch(t *testing.T) {
	_, err := attitudeModule(t).Register(context.Background(), mismatchRegistry{})
	require.ErrorIs(t, err, ErrInvalidModule)
}

func TestRegister_TransientFailureRetried(t *testing.T) {
	platform := testutil.NewPlatform(t)
	reg := NewHTTPRegistry(platform.NewClient(t))

	platform.FailNext(1, http.StatusServiceUnavailable)

	registered, err := attitudeModule(t).Register(context.Background(), reg)
	require.NoError(t, err)
	assert.Equal(t, 1, registered.Version)
	assert.Equal(t, 2, platform.Requests())
}
