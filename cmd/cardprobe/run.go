package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"cardprobe/internal/device"
	"cardprobe/internal/display"
	"cardprobe/internal/keys"
	"cardprobe/internal/mifare"
	"cardprobe/internal/ops"
	"cardprobe/internal/radio"
	"cardprobe/internal/storage"
	"cardprobe/internal/tui"
)

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the handheld UI in the terminal (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevice(cmd.Context(), a)
		},
	}
}

func openStore(a *app) (*storage.Dir, error) {
	return storage.NewDir(a.cfg.Storage.Root, storage.Options{
		Pattern:    a.cfg.Storage.ListPattern,
		MaxEntries: a.cfg.Storage.MaxEntries,
	})
}

func sequencerSettings(a *app) ops.Settings {
	return ops.Settings{
		DetectTimeout: a.cfg.DetectTimeout(),
		DetectPoll:    a.cfg.DetectPoll(),
		DumpExt:       a.cfg.Storage.DumpExt,
	}
}

func runDevice(ctx context.Context, a *app) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("the device UI needs a terminal; use identify or dump for scripted runs")
	}
	cfg := a.cfg
	log := a.log

	payload, err := cfg.Payload()
	if err != nil {
		return err
	}
	store, err := openStore(a)
	if err != nil {
		return err
	}

	// A radio that fails to open still reaches the engine so the panel can
	// show it as the failed peripheral.
	radioOpts, err := radioOptions(cfg)
	if err != nil {
		return err
	}
	front, closeRadio, err := radio.Open(radioOpts, log)
	if err != nil {
		log.WithError(err).Error("radio open failed")
		front = brokenRadio{err: err}
	}
	defer func() {
		if err := closeRadio(); err != nil {
			log.WithError(err).Warn("radio close failed")
		}
	}()

	canvas := display.NewCanvas()
	engine := device.New(device.Deps{
		Display: canvas,
		Radio:   front,
		Store:   store,
		Log:     log,
	}, device.Options{
		Debounce:    cfg.Debounce(),
		TargetBlock: cfg.Card.TargetBlock,
		Payload:     mifare.Block(payload),
		Viewport:    cfg.Display.Viewport,
		KeyFile:     cfg.Storage.KeyFile,
		KeyCapacity: cfg.Keys.Capacity,
		Sequencer:   sequencerSettings(a),
	})
	if err := engine.Start(ctx); err != nil {
		log.WithError(err).Error("device halted")
	}

	opts := tui.Options{
		Engine: engine,
		Canvas: canvas,
		Radio:  radio.Name(radioOpts),
		Tick:   cfg.Tick(),
		Hold:   cfg.Hold(),
		Log:    log,
	}
	if _, halted := engine.Halted(); halted == nil {
		watcher, err := storage.Watch(store.Root(), log)
		if err != nil {
			log.WithError(err).Warn("storage watch unavailable")
		} else {
			defer watcher.Close()
			opts.Changes = watcher.Changes()
		}
	}
	return tui.Run(ctx, opts)
}

// brokenRadio stands in for a front-end that could not be opened.
type brokenRadio struct {
	err error
}

func (b brokenRadio) Ready() error {
	return b.err
}

func (b brokenRadio) Detect(context.Context, time.Duration) (mifare.CardID, error) {
	return mifare.CardID{}, b.err
}

func (b brokenRadio) Authenticate(context.Context, mifare.CardID, int, mifare.KeySlot, keys.Key) error {
	return b.err
}

func (b brokenRadio) ReadBlock(context.Context, int) (mifare.Block, error) {
	return mifare.Block{}, b.err
}

func (b brokenRadio) WriteBlock(context.Context, int, mifare.Block) error {
	return b.err
}
