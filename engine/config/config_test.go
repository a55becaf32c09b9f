package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "localhost:8000", cfg.Server.Address)
	assert.Equal(t, time.Second, cfg.Server.ShutdownGrace.Std())
	assert.Equal(t, uint32(1280), cfg.Render.Width)
	assert.Equal(t, uint32(720), cfg.Render.Height)
	assert.Equal(t, uint32(4), cfg.Render.MaxBounces)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracey.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
address = "0.0.0.0:9000"
shutdown_grace = "250ms"

[render]
width = 64
backend = "wgpu"

[watch]
enabled = true
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Address)
	assert.Equal(t, 250*time.Millisecond, cfg.Server.ShutdownGrace.Std())
	assert.Equal(t, uint32(64), cfg.Render.Width)
	assert.Equal(t, uint32(720), cfg.Render.Height)
	assert.Equal(t, "wgpu", cfg.Render.Backend)
	assert.True(t, cfg.Watch.Enabled)
	assert.Equal(t, 200*time.Millisecond, cfg.Watch.Debounce.Std())
}

func TestLoadRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"unknown key":     "[render]\nresolution = 4\n",
		"zero width":      "[render]\nwidth = 0\n",
		"unknown backend": "[render]\nbackend = \"vulkan\"\n",
		"bad level":       "[log]\nlevel = \"loud\"\n",
		"bad duration":    "[server]\nshutdown_grace = \"soon\"\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".toml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
}

func TestValidateWrapsSentinel(t *testing.T) {
	cfg := Default()
	cfg.Render.Height = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestEncodeRoundTrips(t *testing.T) {
	cfg := Default()
	cfg.Render.Backend = "wgpu"
	data, err := cfg.Encode()
	require.NoError(t, err)
	assert.Contains(t, string(data), "shutdown_grace = '1s'")

	var back Config
	require.NoError(t, Decode(data, &back))
	assert.Equal(t, cfg, back)
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, l)
	_, err = ParseLevel("verbose")
	assert.Error(t, err)
}
