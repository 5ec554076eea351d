package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"cardprobe/internal/buttons"
	"cardprobe/internal/storage"
)

func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(m.tick), waitChangeCmd(m.changes))
}

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitChangeCmd(ch <-chan storage.Change) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		change, ok := <-ch
		if !ok {
			return storageClosedMsg{}
		}
		return storageChangeMsg{Change: change}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.updateKey(msg)

	case tickMsg:
		m.step(time.Time(msg))
		return m, tickCmd(m.tick)

	case storageChangeMsg:
		m.pushLog("sd: " + msg.Change.Op.String() + " " + msg.Change.Name)
		if m.engine != nil {
			m.engine.StorageChanged()
		}
		return m, waitChangeCmd(m.changes)

	case storageClosedMsg:
		m.pushLog("sd watcher stopped")
		m.changes = nil
		return m, nil
	}
	return m, nil
}

func (m Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.help.ShowAll = m.showHelp
		return m, nil
	}

	id, ok := m.keys.button(msg)
	if !ok {
		return m, nil
	}
	m.press(id, m.clock())
	return m, nil
}

// press closes the button's contact for the hold time. Terminal key repeat
// extends the hold instead of producing new edges.
func (m *Model) press(id buttons.ID, now time.Time) {
	m.held[id] = now.Add(m.hold)
}

// levels samples the simulated contacts. Buttons are active-low.
func (m Model) levels(now time.Time) buttons.Levels {
	out := buttons.Released()
	for id, until := range m.held {
		if now.Before(until) {
			out[id] = false
		}
	}
	return out
}

func (m *Model) step(now time.Time) {
	if m.engine == nil {
		return
	}
	before := m.engine.View()
	m.engine.Tick(now, m.levels(now))
	if after := m.engine.View(); after != before {
		m.status = "View: " + after.String()
		m.log.WithField("view", after.String()).Debug("view changed")
	}
}

func (m *Model) pushLog(line string) {
	m.logs = append(m.logs, time.Now().Format("15:04:05")+" "+line)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}
