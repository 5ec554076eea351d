package buttons

import "time"

// ID names one of the four momentary buttons.
type ID int

const (
	Up ID = iota
	Down
	Select
	Back
)

// Count is the number of buttons the debouncer tracks.
const Count = 4

// DefaultWindow is how long a level must hold before it is accepted.
const DefaultWindow = 50 * time.Millisecond

// All lists the buttons in dispatch priority order.
var All = [Count]ID{Select, Back, Up, Down}

func (id ID) String() string {
	switch id {
	case Up:
		return "up"
	case Down:
		return "down"
	case Select:
		return "select"
	case Back:
		return "back"
	default:
		return "unknown"
	}
}

// Levels holds one raw electrical level per button, indexed by ID.
// Buttons are active-low: false means the contact is closed.
type Levels [Count]bool

// Released returns levels with every button open.
func Released() Levels {
	return Levels{true, true, true, true}
}

// Edges marks which buttons produced a press edge during one poll.
type Edges [Count]bool

// First returns the highest-priority edge, if any.
func (e Edges) First() (ID, bool) {
	for _, id := range All {
		if e[id] {
			return id, true
		}
	}
	return 0, false
}

// Any reports whether at least one edge is set.
func (e Edges) Any() bool {
	_, ok := e.First()
	return ok
}

// State is the debouncer's view of one button.
type State struct {
	Raw         bool
	Level       bool
	Changed     time.Time
	JustPressed bool
}

// Pressed reports whether the accepted level is the active one.
func (s State) Pressed() bool {
	return !s.Level
}

// Debouncer turns noisy raw levels into single press edges.
type Debouncer struct {
	window time.Duration
	states [Count]State
}

func New(window time.Duration) *Debouncer {
	if window <= 0 {
		window = DefaultWindow
	}
	d := &Debouncer{window: window}
	for i := range d.states {
		d.states[i].Raw = true
		d.states[i].Level = true
	}
	return d
}

func (d *Debouncer) Window() time.Duration {
	return d.window
}

// Poll feeds one raw sample for a button and reports whether a press edge
// was accepted on this call. The previous edge flag is always cleared.
func (d *Debouncer) Poll(id ID, raw bool, now time.Time) bool {
	if id < 0 || int(id) >= Count {
		return false
	}
	s := &d.states[id]
	s.JustPressed = false

	if raw != s.Raw {
		s.Raw = raw
		s.Changed = now
	}
	if s.Raw == s.Level {
		return false
	}
	if now.Sub(s.Changed) < d.window {
		return false
	}

	s.Level = s.Raw
	if s.Pressed() {
		s.JustPressed = true
	}
	return s.JustPressed
}

// PollAll samples every button once.
func (d *Debouncer) PollAll(levels Levels, now time.Time) Edges {
	var edges Edges
	for i := 0; i < Count; i++ {
		edges[i] = d.Poll(ID(i), levels[i], now)
	}
	return edges
}

func (d *Debouncer) State(id ID) State {
	if id < 0 || int(id) >= Count {
		return State{}
	}
	return d.states[id]
}

func (d *Debouncer) JustPressed(id ID) bool {
	return d.State(id).JustPressed
}

// AnyPressed reports whether any accepted level is still active.
func (d *Debouncer) AnyPressed() bool {
	for _, s := range d.states {
		if s.Pressed() {
			return true
		}
	}
	return false
}
