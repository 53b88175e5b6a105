package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/mkrupp/vidrio/internal/infra/config"
)

type testConfig struct {
	EnvConfig

	StringValue   string        `env:"STRING_VALUE"   default:"default"`
	IntValue      int           `env:"INT_VALUE"      default:"42"`
	BoolValue     bool          `env:"BOOL_VALUE"     default:"true"`
	DurationValue time.Duration `env:"DURATION_VALUE" default:"90s"`
	FloatValue    float64       `env:"FLOAT_VALUE"    default:"0.5"`
	NoEnvTag      string
	Nested        testNestedConfig `envPrefix:"NESTED_"`
}

type testNestedConfig struct {
	NestedString string `env:"STRING" default:"nested-default"`
}

func defaults() testConfig {
	return testConfig{
		StringValue:   "default",
		IntValue:      42,
		BoolValue:     true,
		DurationValue: 90 * time.Second,
		FloatValue:    0.5,
		Nested:        testNestedConfig{NestedString: "nested-default"},
	}
}

//nolint:paralleltest
func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		prefix  string
		envVars map[string]string
		want    func(*testConfig)
		wantErr bool
	}{
		{
			name:    "uses default values when env vars not set",
			envVars: map[string]string{},
		},
		{
			name: "reads environment variables",
			envVars: map[string]string{
				"STRING_VALUE":   "env-value",
				"INT_VALUE":      "123",
				"BOOL_VALUE":     "false",
				"DURATION_VALUE": "1h",
				"FLOAT_VALUE":    "2.25",
				"NESTED_STRING":  "env-nested",
			},
			want: func(c *testConfig) {
				c.StringValue = "env-value"
				c.IntValue = 123
				c.BoolValue = false
				c.DurationValue = time.Hour
				c.FloatValue = 2.25
				c.Nested.NestedString = "env-nested"
			},
		},
		{
			name:    "handles prefix correctly",
			prefix:  "APP",
			envVars: map[string]string{"APP_STRING_VALUE": "prefixed-value"},
			want:    func(c *testConfig) { c.StringValue = "prefixed-value" },
		},
		{
			name:    "handles multi-level prefixes",
			prefix:  "APP_SERVICE",
			envVars: map[string]string{"APP_SERVICE_STRING_VALUE": "multi-level-prefix"},
			want:    func(c *testConfig) { c.StringValue = "multi-level-prefix" },
		},
		{
			name:   "prefers more specific prefix",
			prefix: "APP_SERVICE",
			envVars: map[string]string{
				"APP_STRING_VALUE":         "less-specific",
				"APP_SERVICE_STRING_VALUE": "more-specific",
				"STRING_VALUE":             "bare",
			},
			want: func(c *testConfig) { c.StringValue = "more-specific" },
		},
		{
			name:    "falls back to the bare name",
			prefix:  "APP",
			envVars: map[string]string{"NESTED_STRING": "hosting-provided"},
			want:    func(c *testConfig) { c.Nested.NestedString = "hosting-provided" },
		},
		{
			name:    "handles empty string values",
			envVars: map[string]string{"STRING_VALUE": ""},
			want:    func(c *testConfig) { c.StringValue = "" },
		},
		{
			name:    "handles zero int values",
			envVars: map[string]string{"INT_VALUE": "0"},
			want:    func(c *testConfig) { c.IntValue = 0 },
		},
		{
			name:    "fails on invalid int value",
			envVars: map[string]string{"INT_VALUE": "not-a-number"},
			wantErr: true,
		},
		{
			name:    "fails on invalid bool value",
			envVars: map[string]string{"BOOL_VALUE": "not-a-bool"},
			wantErr: true,
		},
		{
			name:    "fails on invalid float value",
			envVars: map[string]string{"FLOAT_VALUE": "half"},
			wantErr: true,
		},
		{
			name:    "fails on invalid duration value",
			envVars: map[string]string{"DURATION_VALUE": "soon"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := &testConfig{}
			err := Parse(context.Background(), cfg, tt.prefix)

			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)

			want := defaults()
			if tt.want != nil {
				tt.want(&want)
			}

			assert.Equal(t, want.StringValue, cfg.StringValue)
			assert.Equal(t, want.IntValue, cfg.IntValue)
			assert.Equal(t, want.BoolValue, cfg.BoolValue)
			assert.Equal(t, want.DurationValue, cfg.DurationValue)
			assert.InDelta(t, want.FloatValue, cfg.FloatValue, 1e-9)
			assert.Empty(t, cfg.NoEnvTag)
			assert.Equal(t, want.Nested.NestedString, cfg.Nested.NestedString)
			assert.Equal(t, tt.prefix, cfg.Namespace())
		})
	}
}

//nolint:paralleltest
func TestParseRequiredVar(t *testing.T) {
	cfg := &struct {
		EnvConfig

		Required string `env:"REQUIRED_VALUE_WITHOUT_DEFAULT"`
	}{}

	err := Parse(context.Background(), cfg, "")
	require.ErrorIs(t, err, ErrVarNotSet)

	t.Setenv("REQUIRED_VALUE_WITHOUT_DEFAULT", "set")
	require.NoError(t, Parse(context.Background(), cfg, ""))
	assert.Equal(t, "set", cfg.Required)
}

func TestParseInvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  any
	}{
		{name: "non-pointer config", cfg: testConfig{}},
		{name: "non-struct pointer", cfg: new(string)},
		{name: "missing EnvConfig embedding", cfg: &struct {
			Value string `env:"VALUE"`
		}{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := Parse(context.Background(), tt.cfg, "")
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

//nolint:paralleltest
func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("VIDRIO_DOTENV_TEST=from-file\n"), 0o600))

	t.Setenv("VIDRIO_DOTENV_TEST", "")
	require.NoError(t, os.Unsetenv("VIDRIO_DOTENV_TEST"))

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), path))
	assert.Equal(t, "from-file", os.Getenv("VIDRIO_DOTENV_TEST"))
}
