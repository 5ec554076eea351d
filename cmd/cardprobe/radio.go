package main

import (
	"cardprobe/internal/config"
	"cardprobe/internal/radio"
)

func radioOptions(cfg *config.Config) (radio.Options, error) {
	opts := radio.Options{
		Backend:        cfg.Radio.Backend,
		SerialPort:     cfg.Radio.SerialPort,
		BaudRate:       cfg.Radio.BaudRate,
		ReaderIndex:    cfg.Radio.ReaderIndex,
		Connstring:     cfg.Radio.Connstring,
		CommandTimeout: cfg.CommandTimeout(),
		SimPresent:     cfg.Sim.Present,
	}
	if cfg.Radio.Backend == config.BackendSim {
		uid, err := cfg.SimUID()
		if err != nil {
			return opts, err
		}
		opts.SimUID = uid
	}
	return opts, nil
}
