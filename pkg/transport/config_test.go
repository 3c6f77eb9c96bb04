package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr error
	}{
		{name: "valid https", config: Config{BaseURL: "https://platform.example.com/api"}},
		{name: "valid http", config: Config{BaseURL: "http://localhost:8080"}},
		{name: "missing url", config: Config{}, wantErr: ErrURLRequired},
		{name: "relative url", config: Config{BaseURL: "/api"}, wantErr: ErrInvalidURL},
		{name: "bad scheme", config: Config{BaseURL: "ftp://host"}, wantErr: ErrInvalidURL},
		{
			name:    "inverted retry delays",
			config:  Config{BaseURL: "http://h", Retry: RetryConfig{InitialDelay: time.Second, MaxDelay: time.Millisecond}},
			wantErr: ErrInvalidRetryConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestConfig_SetDefaults(t *testing.T) {
	cfg := Config{BaseURL: "http://localhost"}
	cfg.SetDefaults()

	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 30*time.Second, cfg.KeepAlive)
	assert.Equal(t, "seriesgraph", cfg.UserAgent)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.Retry.InitialDelay)
	assert.InDelta(t, 2.0, cfg.Retry.Multiplier, 0)
}

func TestConfig_BearerToken(t *testing.T) {
	t.Setenv("TEST_PLATFORM_TOKEN", "from-env")

	cfg := Config{TokenEnv: "TEST_PLATFORM_TOKEN"}
	assert.Equal(t, "from-env", cfg.BearerToken())

	cfg.Token = "explicit"
	assert.Equal(t, "explicit", cfg.BearerToken())
}
