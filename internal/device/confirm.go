package device

import "cardprobe/internal/buttons"

// confirm suspends the current operation behind a yes/no prompt. The press
// that led here is drained before the gate reads input.
func (e *Engine) confirm(prompt string, onAccept, onDecline func()) {
	e.gate = gate{prompt: prompt, onAccept: onAccept, onDecline: onDecline}
	e.gateFrom = e.view
	e.draining = true
	e.setView(ViewConfirm)
	e.log.WithField("prompt", prompt).Debug("confirmation requested")
}

func (e *Engine) updateConfirm(id buttons.ID) {
	var next func()
	switch id {
	case buttons.Select:
		next = e.gate.onAccept
	case buttons.Back, buttons.Down:
		next = e.gate.onDecline
	default:
		return
	}
	accepted := id == buttons.Select
	e.log.WithField("accepted", accepted).Debug("confirmation resolved")

	e.gate = gate{}
	e.setView(e.gateFrom)
	if next != nil {
		next()
	}
}
