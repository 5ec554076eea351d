package sdk

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Config selects the radio and the storage root a Client works with.
type Config struct {
	Backend        string
	SerialPort     string
	BaudRate       int
	ReaderIndex    int
	Connstring     string
	CommandTimeout time.Duration
	SimUID         []byte
	SimPresent     bool

	StorageRoot string
	KeyFile     string
	KeyCapacity int
	DumpExt     string

	DetectTimeout time.Duration
	DetectPoll    time.Duration

	Log logrus.FieldLogger
}

// DefaultConfig is a simulated card in the field and ./sd as storage.
func DefaultConfig() Config {
	return Config{
		Backend:        "sim",
		BaudRate:       115200,
		CommandTimeout: 500 * time.Millisecond,
		SimUID:         []byte{0xDE, 0xAD, 0xBE, 0xEF},
		SimPresent:     true,
		StorageRoot:    "sd",
		KeyFile:        "keys.txt",
		KeyCapacity:    50,
		DumpExt:        ".mfd",
		DetectTimeout:  3 * time.Second,
		DetectPoll:     100 * time.Millisecond,
	}
}

func normalizeConfig(cfg Config) Config {
	cfg.SimUID = append([]byte(nil), cfg.SimUID...)
	if cfg.Backend == "" {
		cfg.Backend = "sim"
	}
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = 115200
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 500 * time.Millisecond
	}
	if cfg.KeyFile == "" {
		cfg.KeyFile = "keys.txt"
	}
	if cfg.KeyCapacity <= 0 || cfg.KeyCapacity > 50 {
		cfg.KeyCapacity = 50
	}
	if cfg.DetectTimeout <= 0 {
		cfg.DetectTimeout = 3 * time.Second
	}
	if cfg.DetectPoll <= 0 {
		cfg.DetectPoll = 100 * time.Millisecond
	}
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	return cfg
}

// Card is what detection learned about the card in the field.
type Card struct {
	UID    string
	ATQA   [2]byte
	SAK    byte
	HasSAK bool
	Family string
	Hint   string
}

// BlockEvent is emitted once per block while dumping.
type BlockEvent struct {
	When  time.Time
	Block int
	// Read is false when the block was stored as zeros.
	Read  bool
	Done  int
	Total int
}

// StatusEvent is a lightweight progress signal.
type StatusEvent struct {
	When    time.Time
	Message string
}

// DumpResult describes a saved card image.
type DumpResult struct {
	Card       Card
	File       string
	BlocksRead int
	Total      int
}

// KeyInfo summarizes the key dictionary the client authenticates with.
type KeyInfo struct {
	File      string
	Keys      int
	Valid     int
	Malformed int
	Dropped   int
	Defaults  bool
}
