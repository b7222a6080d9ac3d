package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "arbitrationd.toml")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8090", cfg.ListenAddress)
	require.Equal(t, defaultFeeUnit, cfg.FeeUnit)
	require.FileExists(t, path)

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.DataDir, reloaded.DataDir)
	require.Equal(t, cfg.Auth, reloaded.Auth)

	params, err := reloaded.ArbitrationParams()
	require.NoError(t, err)
	require.Equal(t, int64(300), params.ProcedureUnit)
	require.Equal(t, defaultFeeUnit, params.FeeUnit.String())
}

func TestLoadParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arbitrationd.toml")
	contents := `ListenAddress = "127.0.0.1:9000"
FeeUnit = "250"
ProcedureUnit = "90s"
Environment = "staging"

[Auth]
Issuer = "issuer"
Audience = "aud"

[RateLimit]
RequestsPerMinute = 30

[Telemetry]
Metrics = true
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.ListenAddress)
	require.Equal(t, "staging", cfg.Environment)
	require.Equal(t, "issuer", cfg.Auth.Issuer)
	require.Equal(t, "ARBITRATIOND_JWT_SECRET", cfg.Auth.HSSecretEnv)
	require.Equal(t, 30, cfg.RateLimit.RequestsPerMinute)
	require.Equal(t, 20, cfg.RateLimit.Burst)
	require.Equal(t, ":memory:", cfg.EventLogPath)
	require.Empty(t, cfg.DataDir)
	require.True(t, cfg.Telemetry.Metrics)

	params, err := cfg.ArbitrationParams()
	require.NoError(t, err)
	require.Equal(t, int64(90), params.ProcedureUnit)
	require.Equal(t, int64(250), params.FeeUnit.Int64())
}

func TestLoadRejectsInvalidUnits(t *testing.T) {
	cases := map[string]string{
		"zero fee":          "FeeUnit = \"0\"\n",
		"non-numeric fee":   "FeeUnit = \"1e18\"\n",
		"bad duration":      "ProcedureUnit = \"five minutes\"\n",
		"fractional second": "ProcedureUnit = \"1500ms\"\n",
		"negative duration": "ProcedureUnit = \"-5m\"\n",
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "arbitrationd.toml")
			require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arbitrationd.toml")
	require.NoError(t, os.WriteFile(path, []byte("ListenAddress = "), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}
