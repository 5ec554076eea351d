// Package device is the handheld's control core: it debounces the four
// buttons, routes presses through the view state machine and drives card
// jobs one step per tick.
package device

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"cardprobe/internal/buttons"
	"cardprobe/internal/display"
	"cardprobe/internal/keys"
	"cardprobe/internal/mifare"
	"cardprobe/internal/ops"
	"cardprobe/internal/storage"
)

// DefaultViewport is how many list rows fit between title and hint.
const DefaultViewport = 5

// Deps are the peripherals the engine drives.
type Deps struct {
	Display display.Display
	Radio   mifare.Radio
	Store   storage.Store
	Log     logrus.FieldLogger
}

type Options struct {
	Debounce    time.Duration
	TargetBlock int
	Payload     mifare.Block
	Viewport    int
	KeyFile     string
	KeyCapacity int
	Sequencer   ops.Settings
}

func (o Options) normalized() Options {
	if o.Viewport < 1 {
		o.Viewport = DefaultViewport
	}
	if o.Viewport > display.Rows-2 {
		o.Viewport = display.Rows - 2
	}
	if !mifare.ValidBlock(o.TargetBlock) {
		o.TargetBlock = mifare.DefaultBlock
	}
	if o.KeyFile == "" {
		o.KeyFile = keys.DefaultFile
	}
	if o.KeyCapacity <= 0 {
		o.KeyCapacity = keys.MaxKeys
	}
	return o
}

// Engine holds all device state. Every method runs on one goroutine.
type Engine struct {
	deps    Deps
	opts    Options
	log     logrus.FieldLogger
	buttons *buttons.Debouncer

	ctx      context.Context
	started  bool
	dict     *keys.Dictionary
	keyStats keys.LoadStats
	seq      *ops.Sequencer

	view       View
	main       cursor
	sd         cursor
	fileAction FileAction
	files      fileList
	msg        message
	gate       gate
	gateFrom   View
	draining   bool
	dirty      bool
	halt       string
	haltErr    error
}

func New(deps Deps, opts Options) *Engine {
	if deps.Log == nil {
		deps.Log = logrus.StandardLogger()
	}
	opts = opts.normalized()
	return &Engine{
		deps:    deps,
		opts:    opts,
		log:     deps.Log,
		buttons: buttons.New(opts.Debounce),
		view:    ViewMainMenu,
		main:    cursor{viewport: opts.Viewport},
		sd:      cursor{viewport: opts.Viewport},
		files:   fileList{cursor: cursor{viewport: opts.Viewport}},
		dirty:   true,
	}
}

type readiness interface {
	Ready() error
}

func ready(name string, v any) error {
	if v == nil {
		return fmt.Errorf("%s missing", name)
	}
	if r, ok := v.(readiness); ok {
		if err := r.Ready(); err != nil {
			return err
		}
	}
	return nil
}

// Start checks every peripheral once, loads the key dictionary from the
// store and draws the first frame. A peripheral that is not ready halts the
// engine on a FATAL screen and the error is returned.
func (e *Engine) Start(ctx context.Context) error {
	e.ctx = ctx
	e.started = true

	checks := []struct {
		name string
		dev  any
	}{
		{"DISPLAY", e.deps.Display},
		{"RADIO", e.deps.Radio},
		{"SD CARD", e.deps.Store},
	}
	for _, c := range checks {
		if err := ready(c.name, c.dev); err != nil {
			e.halted(c.name, err)
			if c.name != "DISPLAY" {
				e.render()
			}
			return fmt.Errorf("%s not ready: %w", c.name, err)
		}
	}

	dict, stats, err := keys.Load(e.deps.Store.FS(), e.opts.KeyFile, e.opts.KeyCapacity)
	if err != nil {
		e.log.WithError(err).Warn("key file unreadable, using defaults")
	}
	e.dict = dict
	e.keyStats = stats
	e.logKeyStats(stats)

	auth := mifare.NewAuthenticator(e.deps.Radio, dict, e.log)
	e.seq = ops.NewSequencer(e.deps.Radio, auth, e.deps.Store, e.opts.Sequencer, e.log)

	if stats.Defaults == keys.NoValidKeys {
		e.showMessage("KEYS", []string{
			"No valid keys",
			fmt.Sprintf("Using %d defaults", dict.Len()),
		}, ViewMainMenu)
	}
	e.render()
	return nil
}

func (e *Engine) logKeyStats(stats keys.LoadStats) {
	entry := e.log.WithFields(logrus.Fields{
		"file":      stats.Source,
		"valid":     stats.ValidLines,
		"malformed": stats.MalformedLines,
		"dropped":   stats.DroppedKeys,
		"keys":      e.dict.Len(),
	})
	for _, bad := range stats.Malformed {
		e.log.WithField("file", stats.Source).Warn("malformed key " + bad.String())
	}
	if stats.UsedDefaults() {
		entry.WithField("reason", stats.Defaults.String()).Info("using default keys")
		return
	}
	entry.Info("key dictionary loaded")
}

func (e *Engine) halted(name string, err error) {
	e.halt = name
	e.haltErr = err
	e.view = ViewHalted
	e.msg = message{}
	e.dirty = true
	e.log.WithError(err).WithField("peripheral", name).Error("fatal init failure")
}

// Tick runs one scheduler cycle: debounce, then either one job step or at
// most one input edge, then render when something changed.
func (e *Engine) Tick(now time.Time, levels buttons.Levels) {
	if !e.started || e.view == ViewHalted {
		return
	}

	edges := e.buttons.PollAll(levels, now)
	if e.draining {
		if !e.buttons.AnyPressed() {
			e.draining = false
		}
		edges = buttons.Edges{}
	}

	if e.view == ViewActionMessage && e.msg.busy() {
		e.stepJob(now)
	} else if id, ok := edges.First(); ok {
		e.dispatch(id)
	}

	if e.dirty {
		e.render()
	}
}

// StorageChanged re-lists an open file list. Other views ignore it.
func (e *Engine) StorageChanged() {
	if e.view != ViewFileList {
		return
	}
	e.refreshFiles()
}

func (e *Engine) View() View {
	return e.view
}

func (e *Engine) Halted() (string, error) {
	return e.halt, e.haltErr
}

// Dictionary is the key dictionary loaded by Start.
func (e *Engine) Dictionary() *keys.Dictionary {
	return e.dict
}

func (e *Engine) KeyStats() keys.LoadStats {
	return e.keyStats
}

// Busy reports whether a card job is running.
func (e *Engine) Busy() bool {
	return e.view == ViewActionMessage && e.msg.busy()
}

// Dirty reports whether the next tick will redraw.
func (e *Engine) Dirty() bool {
	return e.dirty
}

func (e *Engine) context() context.Context {
	if e.ctx == nil {
		return context.Background()
	}
	return e.ctx
}
