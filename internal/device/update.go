package device

import (
	"fmt"

	"cardprobe/internal/buttons"
	"cardprobe/internal/mifare"
)

func (e *Engine) dispatch(id buttons.ID) {
	switch e.view {
	case ViewMainMenu:
		e.updateMainMenu(id)
	case ViewSdMenu:
		e.updateSdMenu(id)
	case ViewFileList:
		e.updateFileList(id)
	case ViewConfirm:
		e.updateConfirm(id)
	case ViewActionMessage:
		// Any button dismisses a finished report.
		e.setView(e.msg.returnTo)
	}
}

func (e *Engine) setView(v View) {
	e.view = v
	e.dirty = true
}

func wrapIndex(i, delta, n int) int {
	if n <= 0 {
		return 0
	}
	return (i + delta + n) % n
}

func (e *Engine) updateMainMenu(id buttons.ID) {
	switch id {
	case buttons.Up:
		e.main.move(-1, len(mainMenu))
		e.dirty = true
	case buttons.Down:
		e.main.move(1, len(mainMenu))
		e.dirty = true
	case buttons.Select:
		e.runMainAction(e.main.index)
	}
}

func (e *Engine) runMainAction(index int) {
	block := e.opts.TargetBlock
	switch index {
	case mainReadUID:
		e.startJob(e.seq.Identify(), ViewMainMenu)
	case mainDump:
		e.startJob(e.seq.Dump(), ViewMainMenu)
	case mainCardType:
		e.startJob(e.seq.Classify(), ViewMainMenu)
	case mainWriteBlock:
		payload := e.opts.Payload
		e.confirm(blockPrompt("Write", block), func() {
			e.startJob(e.seq.WriteBlock(block, payload, ""), ViewMainMenu)
		}, func() {
			e.setView(ViewMainMenu)
		})
	case mainEraseBlock:
		e.confirm(blockPrompt("Erase", block), func() {
			e.startJob(e.seq.EraseBlock(block), ViewMainMenu)
		}, func() {
			e.setView(ViewMainMenu)
		})
	case mainSdCard:
		e.sd = cursor{viewport: e.opts.Viewport}
		e.setView(ViewSdMenu)
	case mainReadBlock:
		e.startJob(e.seq.ReadBlock(block), ViewMainMenu)
	}
}

func (e *Engine) updateSdMenu(id buttons.ID) {
	switch id {
	case buttons.Up:
		e.sd.move(-1, len(sdMenu))
		e.dirty = true
	case buttons.Down:
		e.sd.move(1, len(sdMenu))
		e.dirty = true
	case buttons.Back:
		e.setView(ViewMainMenu)
	case buttons.Select:
		e.openFiles(sdActions[e.sd.index])
	}
}

// showMessage shows a finished report that any button dismisses.
func (e *Engine) showMessage(title string, lines []string, returnTo View) {
	e.msg = message{title: title, lines: lines, returnTo: returnTo}
	e.draining = true
	e.setView(ViewActionMessage)
}

// blockPrompt calls out sector trailers, which hold the keys.
func blockPrompt(verb string, block int) string {
	if mifare.IsTrailer(block) {
		return fmt.Sprintf("%s trailer %d?", verb, block)
	}
	return fmt.Sprintf("%s block %d?", verb, block)
}
