package config

import (
	"os"
	"strconv"
	"strings"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "CARDPROBE_"

func (c *Config) applyEnv() {
	c.Radio.Backend = envOr("RADIO", c.Radio.Backend)
	c.Radio.SerialPort = envOr("SERIAL_PORT", c.Radio.SerialPort)
	c.Radio.BaudRate = envInt("BAUD_RATE", c.Radio.BaudRate)
	c.Radio.ReaderIndex = envInt("READER_INDEX", c.Radio.ReaderIndex)
	c.Radio.Connstring = envOr("CONNSTRING", c.Radio.Connstring)
	c.Radio.CommandTimeoutMS = envInt("COMMAND_TIMEOUT_MS", c.Radio.CommandTimeoutMS)

	c.Storage.Root = envOr("STORAGE_ROOT", c.Storage.Root)
	c.Storage.KeyFile = envOr("KEY_FILE", c.Storage.KeyFile)
	c.Storage.DumpExt = envOr("DUMP_EXT", c.Storage.DumpExt)

	c.Input.DebounceMS = envInt("DEBOUNCE_MS", c.Input.DebounceMS)
	c.Input.HoldMS = envInt("HOLD_MS", c.Input.HoldMS)

	c.Card.TargetBlock = envInt("TARGET_BLOCK", c.Card.TargetBlock)
	c.Card.DetectTimeoutMS = envInt("DETECT_TIMEOUT_MS", c.Card.DetectTimeoutMS)
	c.Card.WritePayload = envOr("WRITE_PAYLOAD", c.Card.WritePayload)

	c.Sim.UID = envOr("SIM_UID", c.Sim.UID)
	c.Sim.Present = envBool("SIM_PRESENT", c.Sim.Present)

	c.Log.Level = envOr("LOG_LEVEL", c.Log.Level)
	c.Log.Format = envOr("LOG_FORMAT", c.Log.Format)
	c.Log.File = envOr("LOG_FILE", c.Log.File)
}

func envOr(key, fallback string) string {
	val := strings.TrimSpace(os.Getenv(EnvPrefix + key))
	if val == "" {
		return fallback
	}
	return val
}

func envInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(EnvPrefix + key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(EnvPrefix + key)))
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
