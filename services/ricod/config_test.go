package ricod

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ricod.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeYAML(t, `
vault: "0x00000000000000000000000000000000000000b0"
ticks:
  anchor: 2026-01-01T00:00:00Z
  base: 100
auth:
  hmac_secret: " secret "
http:
  read_timeout: 5s
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, ":7090", cfg.ListenAddress)
	require.Equal(t, "leveldb", cfg.Storage.Backend)
	require.Equal(t, 12*time.Second, cfg.Ticks.Interval.Duration)
	require.Equal(t, uint64(100), cfg.Ticks.Base)
	require.Equal(t, 5*time.Second, cfg.HTTP.ReadTimeout.Duration)
	require.Equal(t, 30*time.Second, cfg.HTTP.WriteTimeout.Duration)
	require.Equal(t, "secret", cfg.Auth.HMACSecret)
	require.Equal(t, float64(60), cfg.RateLimit.RequestsPerMinute)
}

func TestLoadConfigResolvesSecretSources(t *testing.T) {
	t.Setenv("RICOD_TEST_SECRET", "from-env")
	path := writeYAML(t, `
vault: "0x00000000000000000000000000000000000000b0"
ticks:
  anchor: 2026-01-01T00:00:00Z
auth:
  hmac_secret_env: RICOD_TEST_SECRET
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.Auth.HMACSecret)

	secretFile := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(secretFile, []byte("from-file\n"), 0o600))
	path = writeYAML(t, `
vault: "0x00000000000000000000000000000000000000b0"
ticks:
  anchor: 2026-01-01T00:00:00Z
auth:
  hmac_secret_file: `+secretFile+`
`)
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "from-file", cfg.Auth.HMACSecret)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"missing anchor": `
vault: "0x00000000000000000000000000000000000000b0"
auth: {disabled: true}
`,
		"bad vault": `
vault: "vault"
ticks: {anchor: 2026-01-01T00:00:00Z}
auth: {disabled: true}
`,
		"no secret": `
vault: "0x00000000000000000000000000000000000000b0"
ticks: {anchor: 2026-01-01T00:00:00Z}
`,
		"unknown backend": `
vault: "0x00000000000000000000000000000000000000b0"
ticks: {anchor: 2026-01-01T00:00:00Z}
auth: {disabled: true}
storage: {backend: postgres}
`,
		"unknown field": `
vault: "0x00000000000000000000000000000000000000b0"
ticks: {anchor: 2026-01-01T00:00:00Z}
auth: {disabled: true}
listen_port: 80
`,
		"bad duration": `
vault: "0x00000000000000000000000000000000000000b0"
ticks: {anchor: 2026-01-01T00:00:00Z, interval: soon}
auth: {disabled: true}
`,
		"empty secret env": `
vault: "0x00000000000000000000000000000000000000b0"
ticks: {anchor: 2026-01-01T00:00:00Z}
auth: {hmac_secret_env: RICOD_TEST_UNSET_SECRET}
`,
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeYAML(t, contents))
			require.Error(t, err)
		})
	}
}
