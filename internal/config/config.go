package config

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Radio backends.
const (
	BackendSim    = "sim"
	BackendPN532  = "pn532"
	BackendPCSC   = "pcsc"
	BackendLibNFC = "libnfc"
)

// DefaultFile is read from the working directory when no path is given.
const DefaultFile = "cardprobe.yaml"

type Config struct {
	Radio   RadioConfig   `yaml:"radio"`
	Storage StorageConfig `yaml:"storage"`
	Input   InputConfig   `yaml:"input"`
	Card    CardConfig    `yaml:"card"`
	Keys    KeysConfig    `yaml:"keys"`
	Display DisplayConfig `yaml:"display"`
	Sim     SimConfig     `yaml:"sim"`
	Log     LogConfig     `yaml:"log"`

	// Source is the file the values were read from, empty for defaults.
	Source string `yaml:"-"`
}

type RadioConfig struct {
	Backend          string `yaml:"backend"`
	SerialPort       string `yaml:"serial_port"`
	BaudRate         int    `yaml:"baud_rate"`
	ReaderIndex      int    `yaml:"reader_index"`
	Connstring       string `yaml:"connstring"`
	CommandTimeoutMS int    `yaml:"command_timeout_ms"`
}

type StorageConfig struct {
	Root        string `yaml:"root"`
	KeyFile     string `yaml:"key_file"`
	DumpExt     string `yaml:"dump_ext"`
	ListPattern string `yaml:"list_pattern"`
	MaxEntries  int    `yaml:"max_entries"`
}

type InputConfig struct {
	DebounceMS int `yaml:"debounce_ms"`
	HoldMS     int `yaml:"hold_ms"`
	TickMS     int `yaml:"tick_ms"`
}

type CardConfig struct {
	TargetBlock     int    `yaml:"target_block"`
	DetectTimeoutMS int    `yaml:"detect_timeout_ms"`
	DetectPollMS    int    `yaml:"detect_poll_ms"`
	WritePayload    string `yaml:"write_payload"`
}

type KeysConfig struct {
	Capacity int `yaml:"capacity"`
}

type DisplayConfig struct {
	Viewport int `yaml:"viewport"`
}

type SimConfig struct {
	UID     string `yaml:"uid"`
	Present bool   `yaml:"present"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Radio: RadioConfig{
			Backend:          BackendSim,
			BaudRate:         115200,
			CommandTimeoutMS: 500,
		},
		Storage: StorageConfig{
			Root:        "sd",
			KeyFile:     "keys.txt",
			DumpExt:     ".mfd",
			ListPattern: "*",
			MaxEntries:  64,
		},
		Input: InputConfig{
			DebounceMS: 50,
			HoldMS:     120,
			TickMS:     10,
		},
		Card: CardConfig{
			TargetBlock:     4,
			DetectTimeoutMS: 3000,
			DetectPollMS:    100,
			WritePayload:    "DEADBEEFCAFEBABE0011223344556677",
		},
		Keys:    KeysConfig{Capacity: 50},
		Display: DisplayConfig{Viewport: 5},
		Sim:     SimConfig{UID: "DEADBEEF", Present: true},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			File:   "logs/cardprobe.log",
		},
	}
}

// Load reads path over the defaults, applies CARDPROBE_* environment
// overrides, normalizes and validates. An empty path tries DefaultFile and
// falls back to defaults when it does not exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = DefaultFile
	}
	content, err := os.ReadFile(path)
	switch {
	case err == nil:
		dec := yaml.NewDecoder(bytes.NewReader(content))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse config yaml: %w", err)
		}
		cfg.Source = path
		cfg.resolvePaths(path)
	case explicit || !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg.applyEnv()
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) resolvePaths(configPath string) {
	configDir := filepath.Dir(configPath)
	c.Storage.Root = resolvePath(configDir, c.Storage.Root)
	c.Log.File = resolvePath(configDir, c.Log.File)
}

func resolvePath(baseDir, path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Clean(filepath.Join(baseDir, trimmed))
}

func (c *Config) normalize() {
	c.Radio.Backend = strings.ToLower(strings.TrimSpace(c.Radio.Backend))
	if c.Radio.BaudRate <= 0 {
		c.Radio.BaudRate = 115200
	}
	if c.Radio.ReaderIndex < 0 {
		c.Radio.ReaderIndex = 0
	}
	if c.Radio.CommandTimeoutMS < 50 {
		c.Radio.CommandTimeoutMS = 50
	}

	if c.Storage.KeyFile == "" {
		c.Storage.KeyFile = "keys.txt"
	}
	if c.Storage.DumpExt != "" && !strings.HasPrefix(c.Storage.DumpExt, ".") {
		c.Storage.DumpExt = "." + c.Storage.DumpExt
	}
	if c.Storage.ListPattern == "" {
		c.Storage.ListPattern = "*"
	}
	if c.Storage.MaxEntries < 1 {
		c.Storage.MaxEntries = 64
	}

	if c.Input.DebounceMS < 5 {
		c.Input.DebounceMS = 5
	}
	if c.Input.HoldMS < c.Input.DebounceMS*2 {
		c.Input.HoldMS = c.Input.DebounceMS * 2
	}
	if c.Input.TickMS < 1 {
		c.Input.TickMS = 10
	}

	c.Card.TargetBlock = clamp(c.Card.TargetBlock, 0, 63)
	c.Card.DetectTimeoutMS = clamp(c.Card.DetectTimeoutMS, 500, 30_000)
	if c.Card.DetectPollMS < 10 {
		c.Card.DetectPollMS = 10
	}
	c.Card.WritePayload = strings.ReplaceAll(strings.TrimSpace(c.Card.WritePayload), " ", "")

	c.Keys.Capacity = clamp(c.Keys.Capacity, 1, 50)
	c.Display.Viewport = clamp(c.Display.Viewport, 3, 6)

	c.Sim.UID = strings.ReplaceAll(strings.TrimSpace(c.Sim.UID), " ", "")
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

func (c *Config) Validate() error {
	switch c.Radio.Backend {
	case BackendSim, BackendPCSC, BackendLibNFC:
	case BackendPN532:
		if strings.TrimSpace(c.Radio.SerialPort) == "" {
			return fmt.Errorf("config.radio.serial_port is required for the pn532 backend")
		}
	default:
		return fmt.Errorf("config.radio.backend must be one of sim, pn532, pcsc, libnfc (got %q)", c.Radio.Backend)
	}
	if strings.TrimSpace(c.Storage.Root) == "" {
		return fmt.Errorf("config.storage.root is required")
	}
	if _, err := c.Payload(); err != nil {
		return err
	}
	if c.Radio.Backend == BackendSim {
		if _, err := c.SimUID(); err != nil {
			return err
		}
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config.log.level: %w", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config.log.format must be text or json")
	}
	return nil
}

// Payload decodes the fixed write payload.
func (c *Config) Payload() ([16]byte, error) {
	var out [16]byte
	raw, err := hex.DecodeString(c.Card.WritePayload)
	if err != nil {
		return out, fmt.Errorf("config.card.write_payload: %w", err)
	}
	if len(raw) != len(out) {
		return out, fmt.Errorf("config.card.write_payload must be 16 bytes, got %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

// SimUID decodes the simulated card UID (4 or 7 bytes).
func (c *Config) SimUID() ([]byte, error) {
	raw, err := hex.DecodeString(c.Sim.UID)
	if err != nil {
		return nil, fmt.Errorf("config.sim.uid: %w", err)
	}
	if len(raw) != 4 && len(raw) != 7 {
		return nil, fmt.Errorf("config.sim.uid must be 4 or 7 bytes, got %d", len(raw))
	}
	return raw, nil
}

// KeyFilePath is the key file inside the storage root.
func (c *Config) KeyFilePath() string {
	return filepath.Join(c.Storage.Root, c.Storage.KeyFile)
}

func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Input.DebounceMS) * time.Millisecond
}

func (c *Config) Hold() time.Duration {
	return time.Duration(c.Input.HoldMS) * time.Millisecond
}

func (c *Config) Tick() time.Duration {
	return time.Duration(c.Input.TickMS) * time.Millisecond
}

func (c *Config) DetectTimeout() time.Duration {
	return time.Duration(c.Card.DetectTimeoutMS) * time.Millisecond
}

func (c *Config) DetectPoll() time.Duration {
	return time.Duration(c.Card.DetectPollMS) * time.Millisecond
}

func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.Radio.CommandTimeoutMS) * time.Millisecond
}
