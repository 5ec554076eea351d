package device

import (
	"time"

	"cardprobe/internal/ops"
)

// View is the screen the engine is showing and routing input to.
type View int

const (
	ViewMainMenu View = iota
	ViewSdMenu
	ViewFileList
	ViewActionMessage
	ViewConfirm
	ViewHalted
)

func (v View) String() string {
	switch v {
	case ViewMainMenu:
		return "main-menu"
	case ViewSdMenu:
		return "sd-menu"
	case ViewFileList:
		return "file-list"
	case ViewActionMessage:
		return "action-message"
	case ViewConfirm:
		return "confirm"
	case ViewHalted:
		return "halted"
	default:
		return "unknown"
	}
}

// FileAction is what selecting a file list entry does.
type FileAction int

const (
	FileView FileAction = iota
	FileWrite
	FileDelete
)

func (a FileAction) title() string {
	switch a {
	case FileWrite:
		return "WRITE FILE"
	case FileDelete:
		return "DELETE FILE"
	default:
		return "VIEW FILES"
	}
}

type menuItem struct {
	Label string
	Desc  string
}

// Main menu indices.
const (
	mainReadUID = iota
	mainDump
	mainCardType
	mainWriteBlock
	mainEraseBlock
	mainSdCard
	mainReadBlock
)

var mainMenu = []menuItem{
	{Label: "Read UID", Desc: "Detect card and show its UID"},
	{Label: "Dump Card", Desc: "Save all 64 blocks to SD"},
	{Label: "Card Type", Desc: "Guess family from UID length"},
	{Label: "Write Block", Desc: "Write the fixed payload"},
	{Label: "Erase Block", Desc: "Zero the target block"},
	{Label: "SD Card", Desc: "Browse stored files"},
	{Label: "Read Block", Desc: "Show the target block"},
}

var sdMenu = []menuItem{
	{Label: "View Files", Desc: "List stored files"},
	{Label: "Write File To Card", Desc: "First 16 bytes to target block"},
	{Label: "Delete File", Desc: "Remove a stored file"},
}

var sdActions = [...]FileAction{FileView, FileWrite, FileDelete}

// message is the ActionMessage state: a running job or a finished report.
type message struct {
	title    string
	lines    []string
	job      ops.Job
	progress ops.Progress
	started  time.Time
	returnTo View
}

func (m *message) busy() bool {
	return m.job != nil
}

// gate is a pending Confirm: the suspended operation continues through one
// of the two callbacks.
type gate struct {
	prompt    string
	onAccept  func()
	onDecline func()
}
