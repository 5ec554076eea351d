// Package radio opens the configured contactless front-end.
package radio

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"cardprobe/internal/mifare"
	"cardprobe/internal/radio/pcsc"
	"cardprobe/internal/radio/sim"
	"cardprobe/internal/reader"
)

// Backends.
const (
	Sim    = "sim"
	PN532  = "pn532"
	PCSC   = "pcsc"
	LibNFC = "libnfc"
)

type Options struct {
	Backend        string
	SerialPort     string
	BaudRate       int
	ReaderIndex    int
	Connstring     string
	CommandTimeout time.Duration
	SimUID         []byte
	SimPresent     bool
}

// CloseFunc releases a radio. It is always safe to call.
type CloseFunc func() error

func noClose() error { return nil }

func Open(opts Options, log logrus.FieldLogger) (mifare.Radio, CloseFunc, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	switch opts.Backend {
	case Sim:
		if !opts.SimPresent {
			return sim.New(), noClose, nil
		}
		if len(opts.SimUID) != 4 && len(opts.SimUID) != 7 {
			return nil, noClose, fmt.Errorf("sim uid must be 4 or 7 bytes, got %d", len(opts.SimUID))
		}
		return sim.WithCard(sim.NewClassic1K(opts.SimUID)), noClose, nil

	case PN532:
		client := reader.NewClient(log)
		if err := client.Open(opts.SerialPort, opts.BaudRate); err != nil {
			return nil, noClose, err
		}
		r := reader.NewPN532(client, opts.CommandTimeout, log)
		return r, r.Close, nil

	case PCSC:
		r, err := pcsc.Open(opts.ReaderIndex, log)
		if err != nil {
			return nil, noClose, err
		}
		return r, r.Close, nil

	case LibNFC:
		return openLibNFC(opts, log)

	default:
		return nil, noClose, fmt.Errorf("unknown radio backend %q", opts.Backend)
	}
}

// Name is a short label for status lines.
func Name(opts Options) string {
	switch opts.Backend {
	case PN532:
		return "pn532 " + opts.SerialPort
	case PCSC:
		return fmt.Sprintf("pcsc #%d", opts.ReaderIndex)
	case LibNFC:
		if opts.Connstring == "" {
			return LibNFC
		}
		return "libnfc " + opts.Connstring
	default:
		return opts.Backend
	}
}
