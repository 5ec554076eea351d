package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Source)
	assert.Equal(t, BackendSim, cfg.Radio.Backend)
	assert.Equal(t, 50*time.Millisecond, cfg.Debounce())
	assert.Equal(t, 3*time.Second, cfg.DetectTimeout())
	assert.Equal(t, 4, cfg.Card.TargetBlock)
	assert.Equal(t, filepath.Join("sd", "keys.txt"), cfg.KeyFilePath())

	uid, err := cfg.SimUID()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, uid)
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadYAMLResolvesPathsAndClamps(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "cardprobe.yaml", `
radio:
  backend: PN532
  serial_port: /dev/ttyUSB0
storage:
  root: card
  dump_ext: bin
input:
  debounce_ms: 1
card:
  target_block: 99
  detect_timeout_ms: 90000
  write_payload: "00 11 22 33 44 55 66 77 88 99 AA BB CC DD EE FF"
keys:
  capacity: 500
display:
  viewport: 10
log:
  file: out.log
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.Source)
	assert.Equal(t, BackendPN532, cfg.Radio.Backend)
	assert.Equal(t, filepath.Join(dir, "card"), cfg.Storage.Root)
	assert.Equal(t, filepath.Join(dir, "out.log"), cfg.Log.File)
	assert.Equal(t, ".bin", cfg.Storage.DumpExt)
	assert.Equal(t, 5, cfg.Input.DebounceMS)
	assert.Equal(t, 63, cfg.Card.TargetBlock)
	assert.Equal(t, 30*time.Second, cfg.DetectTimeout())
	assert.Equal(t, 50, cfg.Keys.Capacity)
	assert.Equal(t, 6, cfg.Display.Viewport)

	payload, err := cfg.Payload()
	require.NoError(t, err)
	assert.Equal(t, byte(0xFF), payload[15])
}

func TestLoadRejectsUnknownField(t *testing.T) {
	path := writeFile(t, t.TempDir(), "cardprobe.yaml", "radio:\n  speed: 9\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config yaml")
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"backend", func(c *Config) { c.Radio.Backend = "usb" }, "config.radio.backend"},
		{"serial port", func(c *Config) { c.Radio.Backend = BackendPN532 }, "serial_port"},
		{"payload", func(c *Config) { c.Card.WritePayload = "ABCD" }, "write_payload"},
		{"sim uid", func(c *Config) { c.Sim.UID = "0102" }, "config.sim.uid"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "config.log.level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "config.log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "cardprobe.yaml", "card:\n  target_block: 8\n")
	t.Setenv("CARDPROBE_TARGET_BLOCK", "12")
	t.Setenv("CARDPROBE_SIM_PRESENT", "off")
	t.Setenv("CARDPROBE_DEBOUNCE_MS", "junk")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Card.TargetBlock)
	assert.False(t, cfg.Sim.Present)
	assert.Equal(t, 50, cfg.Input.DebounceMS)
}

func TestLoadDotEnvKeepsExistingValues(t *testing.T) {
	path := writeFile(t, t.TempDir(), ".env", `
# comment
export CARDPROBE_TEST_A="quoted value"
CARDPROBE_TEST_B='single'
CARDPROBE_TEST_C=from-file
not a pair
`)
	t.Setenv("CARDPROBE_TEST_C", "from-env")
	t.Cleanup(func() {
		_ = os.Unsetenv("CARDPROBE_TEST_A")
		_ = os.Unsetenv("CARDPROBE_TEST_B")
	})

	n, err := LoadDotEnv(path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "quoted value", os.Getenv("CARDPROBE_TEST_A"))
	assert.Equal(t, "single", os.Getenv("CARDPROBE_TEST_B"))
	assert.Equal(t, "from-env", os.Getenv("CARDPROBE_TEST_C"))

	n, err = LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Zero(t, n)
}
