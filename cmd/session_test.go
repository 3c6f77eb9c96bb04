package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/seriesgraph/pkg/channels"
	"github.com/ethpandaops/seriesgraph/pkg/expr"
	"github.com/ethpandaops/seriesgraph/pkg/transport"
	"github.com/ethpandaops/seriesgraph/pkg/wire"
)

func TestParseBinding(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantRef channels.ChannelRef
		wantErr bool
	}{
		{
			name:    "asset",
			in:      "w=asset:ri.asset.main.asset.1:mavlink:attitude_quaternion.q1",
			want:    "w",
			wantRef: channels.AssetChannel("ri.asset.main.asset.1", "mavlink", "attitude_quaternion.q1", nil),
		},
		{
			name:    "run with tags",
			in:      "alt=run:ri.run.main.run.7:telemetry:altitude;vehicle=a;sensor=baro",
			want:    "alt",
			wantRef: channels.RunChannel("ri.run.main.run.7", "telemetry", "altitude", map[string]string{"vehicle": "a", "sensor": "baro"}),
		},
		{
			name:    "datasource",
			in:      "speed=datasource:ri.datasource.main.datasource.2:speed",
			want:    "speed",
			wantRef: channels.DatasourceChannel("ri.datasource.main.datasource.2", "speed", nil),
		},
		{name: "missing name", in: "=asset:a:b:c", wantErr: true},
		{name: "missing scope", in: "w=asset:ri.asset.1:q1", wantErr: true},
		{name: "unknown origin", in: "w=dataset:ri.x:q1", wantErr: true},
		{name: "malformed tag", in: "w=datasource:ri.ds:q1;vehicle", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, ref, err := parseBinding(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidBinding)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, name)
			assert.True(t, tt.wantRef.Equal(ref), "got %s", ref)
		})
	}
}

func TestParseInstant(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	got, err := parseInstant("now", now)
	require.NoError(t, err)
	assert.Equal(t, wire.FromTime(now), got)

	got, err = parseInstant("-90m", now)
	require.NoError(t, err)
	assert.Equal(t, wire.FromTime(now.Add(-90*time.Minute)), got)

	got, err = parseInstant("2024-05-01T10:00:00.5Z", now)
	require.NoError(t, err)
	assert.Equal(t, wire.FromTime(time.Date(2024, 5, 1, 10, 0, 0, 500_000_000, time.UTC)), got)

	_, err = parseInstant("yesterday", now)
	require.Error(t, err)
}

func TestLoadCLIConfig(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadCLIConfig(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Logging)
	assert.Equal(t, 5*time.Minute, cfg.Catalog.CacheTTL)
	assert.Equal(t, 1000, cfg.Compute.Buckets)
	require.ErrorIs(t, cfg.Validate(), transport.ErrURLRequired)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logging: debug
platform:
  baseUrl: https://platform.example.com/api
redis:
  address: localhost:6379
compute:
  maxBatchSize: 8
  disableHoisting: true
ingest:
  dataSourceRid: ri.datasource.main.datasource.2
  queue:
    enabled: true
`), 0o600))

	cfg, err = LoadCLIConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.NoError(t, cfg.ValidateIngest())

	assert.Equal(t, "debug", cfg.Logging)
	assert.Equal(t, 8, cfg.Compute.MaxBatchSize)
	assert.True(t, cfg.Compute.DisableHoisting)
	assert.Equal(t, 10, cfg.Platform.RateBurst)
	assert.Equal(t, userAgent(), cfg.Platform.UserAgent)
	assert.Equal(t, "seriesgraph:ingest", ingestQueueConfig(cfg).Name)
	assert.Equal(t, "seriesgraph:", cfg.Redis.KeyPrefix())
}

func TestLoadBatchFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "batch.yaml")

	require.NoError(t, os.WriteFile(path, []byte(`
start: -6h
expressions:
  - name: roll
    expression: atan2(scale(w*x + y*z, 2), offset(scale(x*x + y*y, -2), 1))
`), 0o600))

	f, err := LoadBatchFile(path)
	require.NoError(t, err)
	assert.Equal(t, "-6h", f.Start)
	assert.Equal(t, "now", f.End)
	require.Len(t, f.Expressions, 1)
	assert.Equal(t, "roll", f.Expressions[0].Name)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("start: -1h\n"), 0o600))

	_, err = LoadBatchFile(empty)
	require.ErrorIs(t, err, ErrNoExpressions)
}

func TestBatchFileContextVariables(t *testing.T) {
	x := expr.AssetChannel("ri.asset.main.asset.1", "mavlink", "speed", nil)

	f := &BatchFile{Variables: []BatchExpression{
		{Name: "speed", Expression: "abs(x)"},
		{Name: "fast", Expression: "speed * 2"},
	}}
	env := map[string]expr.NumericExpr{"x": x}

	opts, err := f.contextVariables(env)
	require.NoError(t, err)
	assert.Len(t, opts, 2)
	assert.True(t, env["speed"].Equal(expr.Ref("speed")))
	assert.True(t, env["fast"].Equal(expr.Ref("fast")))

	shadow := &BatchFile{Variables: []BatchExpression{{Name: "x", Expression: "abs(x)"}}}
	_, err = shadow.contextVariables(map[string]expr.NumericExpr{"x": x})
	require.ErrorIs(t, err, ErrInvalidBinding)
}
