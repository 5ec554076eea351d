package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/sirupsen/logrus"

	"cardprobe/internal/buttons"
	"cardprobe/internal/device"
	"cardprobe/internal/display"
	"cardprobe/internal/storage"
)

const (
	defaultTick = 10 * time.Millisecond
	defaultHold = 120 * time.Millisecond
	maxLogs     = 6
)

// Options wire a started engine to the terminal.
type Options struct {
	Engine *device.Engine
	Canvas *display.Canvas
	// Changes is optional; each value re-lists an open file list.
	Changes <-chan storage.Change
	Radio   string
	Tick    time.Duration
	// Hold is how long a key press keeps its button level closed.
	Hold time.Duration
	Log  logrus.FieldLogger
}

type tickMsg time.Time

type storageChangeMsg struct {
	Change storage.Change
}

type storageClosedMsg struct{}

// Model is the app state.
type Model struct {
	engine  *device.Engine
	canvas  *display.Canvas
	changes <-chan storage.Change
	radio   string
	log     logrus.FieldLogger

	tick time.Duration
	hold time.Duration
	// held is when each button's simulated contact opens again.
	held  [buttons.Count]time.Time
	clock func() time.Time

	keys     keyMap
	help     help.Model
	showHelp bool

	status string
	logs   []string

	width  int
	height int
}

func NewModel(opts Options) Model {
	if opts.Tick <= 0 {
		opts.Tick = defaultTick
	}
	if opts.Hold <= 0 {
		opts.Hold = defaultHold
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	if opts.Canvas == nil {
		opts.Canvas = display.NewCanvas()
	}
	return Model{
		engine:  opts.Engine,
		canvas:  opts.Canvas,
		changes: opts.Changes,
		radio:   opts.Radio,
		log:     opts.Log,
		tick:    opts.Tick,
		hold:    opts.Hold,
		clock:   time.Now,
		keys:    newKeyMap(),
		help:    help.New(),
		status:  "Ready",
	}
}
