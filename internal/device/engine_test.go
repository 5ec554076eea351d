package device

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardprobe/internal/buttons"
	"cardprobe/internal/display"
	"cardprobe/internal/mifare"
	"cardprobe/internal/ops"
	"cardprobe/internal/radio/sim"
	"cardprobe/internal/storage"
)

const window = 20 * time.Millisecond

type rig struct {
	t      *testing.T
	engine *Engine
	canvas *display.Canvas
	radio  *sim.Radio
	card   *sim.Card
	root   string
	now    time.Time
}

func newRig(t *testing.T, files map[string][]byte) *rig {
	t.Helper()
	root := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), body, 0o644))
	}
	store, err := storage.NewDir(root, storage.Options{})
	require.NoError(t, err)
	log, _ := test.NewNullLogger()

	card := sim.NewClassic1K([]byte{0xDE, 0xAD, 0xBE, 0xEF})
	r := &rig{
		t:      t,
		canvas: display.NewCanvas(),
		radio:  sim.WithCard(card),
		card:   card,
		root:   root,
		now:    time.Unix(1_700_000_000, 0),
	}
	r.engine = New(Deps{Display: r.canvas, Radio: r.radio, Store: store, Log: log}, Options{
		Debounce:    window,
		TargetBlock: 4,
		Payload:     mifare.Block{0xCA, 0xFE},
		Sequencer:   ops.Settings{DetectTimeout: 200 * time.Millisecond, DetectPoll: 10 * time.Millisecond},
	})
	return r
}

func (r *rig) start() {
	r.t.Helper()
	require.NoError(r.t, r.engine.Start(context.Background()))
}

func (r *rig) tick(levels buttons.Levels) {
	r.engine.Tick(r.now, levels)
}

// press holds id down past the debounce window, then releases it the same
// way.
func (r *rig) press(id buttons.ID) {
	down := buttons.Released()
	down[id] = false
	r.tick(down)
	r.now = r.now.Add(window)
	r.tick(down)
	r.now = r.now.Add(window)
	r.tick(buttons.Released())
	r.now = r.now.Add(window)
	r.tick(buttons.Released())
	r.now = r.now.Add(window)
}

// settle ticks with every button released until no job is running.
func (r *rig) settle() {
	for i := 0; i < 100 && r.engine.Busy(); i++ {
		r.now = r.now.Add(10 * time.Millisecond)
		r.tick(buttons.Released())
	}
	r.tick(buttons.Released())
}

func (r *rig) line(row int) string {
	return r.canvas.Lines()[row]
}

func (r *rig) exists(name string) bool {
	_, err := os.Stat(filepath.Join(r.root, name))
	return err == nil
}

// openSd moves from the main menu into the SD card menu.
func (r *rig) openSd() {
	for range mainSdCard {
		r.press(buttons.Down)
	}
	r.press(buttons.Select)
	require.Equal(r.t, ViewSdMenu, r.engine.View())
}

func TestStartDrawsMainMenu(t *testing.T) {
	r := newRig(t, nil)
	r.start()

	assert.Equal(t, ViewMainMenu, r.engine.View())
	assert.Equal(t, "CARDPROBE", r.line(0))
	assert.Equal(t, "> Read UID", r.line(2))
	assert.Equal(t, "Detect card and show", r.line(7)[:20])
	assert.Equal(t, 1, r.canvas.Flushes())
	assert.Equal(t, 8, r.engine.Dictionary().Len())
}

func TestStartNoticeWhenKeyFileHasNoKeys(t *testing.T) {
	r := newRig(t, map[string][]byte{"keys.txt": []byte("# empty\nnot-a-key\n")})
	r.start()

	require.Equal(t, ViewActionMessage, r.engine.View())
	assert.Equal(t, "No valid keys", r.line(2))
	assert.Equal(t, 1, r.engine.KeyStats().MalformedLines)

	r.press(buttons.Up)
	assert.Equal(t, ViewMainMenu, r.engine.View())
}

func TestStartHaltsWhenRadioNotReady(t *testing.T) {
	r := newRig(t, nil)
	r.radio.SetNotReady(errors.New("no answer"))

	err := r.engine.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RADIO")

	name, cause := r.engine.Halted()
	assert.Equal(t, "RADIO", name)
	assert.EqualError(t, cause, "no answer")
	assert.Equal(t, "FATAL", r.line(0))
	assert.Equal(t, "RADIO not ready", r.line(2))

	r.press(buttons.Select)
	assert.Equal(t, ViewHalted, r.engine.View())
}

func TestMainMenuWrapsAndScrolls(t *testing.T) {
	r := newRig(t, nil)
	r.start()

	r.press(buttons.Up)
	assert.Equal(t, len(mainMenu)-1, r.engine.main.index)
	assert.Equal(t, 2, r.engine.main.top)
	assert.Equal(t, "  Card Type", r.line(2))
	assert.Equal(t, "> Read Block", r.line(6))

	r.press(buttons.Down)
	assert.Equal(t, 0, r.engine.main.index)
	assert.Equal(t, "> Read UID", r.line(2))
}

func TestOnePressOneEdge(t *testing.T) {
	r := newRig(t, nil)
	r.start()

	down := buttons.Released()
	down[buttons.Down] = false
	for range 10 {
		r.tick(down)
		r.now = r.now.Add(window)
	}
	assert.Equal(t, 1, r.engine.main.index)
}

func TestRenderOnlyWhenDirty(t *testing.T) {
	r := newRig(t, nil)
	r.start()
	before := r.canvas.Flushes()

	for range 5 {
		r.tick(buttons.Released())
		r.now = r.now.Add(window)
	}
	assert.Equal(t, before, r.canvas.Flushes())

	r.press(buttons.Down)
	assert.Equal(t, before+1, r.canvas.Flushes())
	assert.False(t, r.engine.Dirty())
}

func TestSdMenuBackReturnsToMain(t *testing.T) {
	r := newRig(t, nil)
	r.start()
	r.openSd()
	assert.Equal(t, "SD CARD", r.line(0))
	assert.Equal(t, "> View Files", r.line(2))

	r.press(buttons.Back)
	assert.Equal(t, ViewMainMenu, r.engine.View())
	assert.Equal(t, mainSdCard, r.engine.main.index)
}

func TestReadUIDShowsReport(t *testing.T) {
	r := newRig(t, nil)
	r.start()

	r.press(buttons.Select)
	r.settle()

	require.Equal(t, ViewActionMessage, r.engine.View())
	assert.Equal(t, "READ UID", r.line(0))
	assert.Equal(t, "DE AD BE EF", r.line(2))
	assert.Equal(t, "Press any key", r.line(7))

	r.press(buttons.Back)
	assert.Equal(t, ViewMainMenu, r.engine.View())
}

func TestReadUIDWithoutCardTimesOut(t *testing.T) {
	r := newRig(t, nil)
	r.radio.Remove()
	r.start()

	r.press(buttons.Select)
	assert.True(t, r.engine.Busy())
	assert.Equal(t, "Present card...", r.line(2))

	r.settle()
	assert.False(t, r.engine.Busy())
	assert.Equal(t, "Card not found", r.line(2))
}

func TestWriteBlockNeedsConfirmation(t *testing.T) {
	r := newRig(t, nil)
	r.start()
	for range mainWriteBlock {
		r.press(buttons.Down)
	}

	r.press(buttons.Select)
	require.Equal(t, ViewConfirm, r.engine.View())
	assert.Equal(t, "Write block 4?", r.line(2))

	r.press(buttons.Down)
	assert.Equal(t, ViewMainMenu, r.engine.View())
	assert.Equal(t, mifare.Block{}, r.card.Blocks[4])

	r.press(buttons.Select)
	r.press(buttons.Select)
	r.settle()
	assert.Equal(t, mifare.Block{0xCA, 0xFE}, r.card.Blocks[4])
	assert.Equal(t, "Block 4 written", r.line(2))
}

func TestConfirmDrainsPressHeldAtEntry(t *testing.T) {
	r := newRig(t, nil)
	r.start()
	for range mainWriteBlock {
		r.press(buttons.Down)
	}

	held := buttons.Released()
	held[buttons.Select] = false
	r.tick(held)
	r.now = r.now.Add(window)
	r.tick(held)
	require.Equal(t, ViewConfirm, r.engine.View())

	// Back goes down while Select from the menu is still held.
	held[buttons.Back] = false
	r.now = r.now.Add(window)
	r.tick(held)
	r.now = r.now.Add(window)
	r.tick(held)
	r.now = r.now.Add(window)
	r.tick(held)
	assert.Equal(t, ViewConfirm, r.engine.View())
	assert.Equal(t, "Write block 4?", r.line(2))

	r.now = r.now.Add(window)
	r.tick(buttons.Released())
	r.now = r.now.Add(window)
	r.tick(buttons.Released())
	r.now = r.now.Add(window)
	assert.Equal(t, ViewConfirm, r.engine.View())
	assert.Equal(t, mifare.Block{}, r.card.Blocks[4])

	r.press(buttons.Select)
	r.settle()
	assert.Equal(t, mifare.Block{0xCA, 0xFE}, r.card.Blocks[4])
	assert.Equal(t, "Block 4 written", r.line(2))
}

func TestDumpOverwriteDeclined(t *testing.T) {
	r := newRig(t, map[string][]byte{"DEADBEEF.mfd": []byte("old")})
	r.start()

	r.press(buttons.Down)
	r.press(buttons.Select)
	r.settle()
	require.Equal(t, ViewConfirm, r.engine.View())
	assert.Equal(t, "Overwrite", r.line(2))

	r.press(buttons.Back)
	r.settle()
	assert.Equal(t, ViewActionMessage, r.engine.View())
	assert.Equal(t, "Cancelled", r.line(2))

	body, err := os.ReadFile(filepath.Join(r.root, "DEADBEEF.mfd"))
	require.NoError(t, err)
	assert.Equal(t, "old", string(body))
}

func TestDeleteDeclineKeepsFile(t *testing.T) {
	r := newRig(t, map[string][]byte{"a.mfd": []byte("x")})
	r.start()
	r.openSd()

	r.press(buttons.Down)
	r.press(buttons.Down)
	r.press(buttons.Select)
	require.Equal(t, ViewFileList, r.engine.View())
	assert.Equal(t, "DELETE FILE", r.line(0))
	assert.Equal(t, "> a.mfd", r.line(2))

	r.press(buttons.Select)
	require.Equal(t, ViewConfirm, r.engine.View())
	assert.Equal(t, "Delete a.mfd?", r.line(2))

	r.press(buttons.Back)
	assert.Equal(t, ViewSdMenu, r.engine.View())
	assert.True(t, r.exists("a.mfd"))
}

func TestDeleteAcceptRemovesFile(t *testing.T) {
	r := newRig(t, map[string][]byte{"a.mfd": []byte("x")})
	r.start()
	r.openSd()
	r.press(buttons.Up)
	r.press(buttons.Select)
	r.press(buttons.Select)
	r.press(buttons.Select)

	assert.False(t, r.exists("a.mfd"))
	assert.Equal(t, "Deleted", r.line(2))

	r.press(buttons.Select)
	assert.Equal(t, ViewSdMenu, r.engine.View())
}

func TestEmptyFileListShowsPlaceholder(t *testing.T) {
	r := newRig(t, nil)
	r.start()
	r.openSd()
	r.press(buttons.Select)

	require.Equal(t, ViewFileList, r.engine.View())
	assert.Equal(t, "No files", r.line(2))

	r.press(buttons.Select)
	assert.Equal(t, ViewFileList, r.engine.View())
	r.press(buttons.Back)
	assert.Equal(t, ViewSdMenu, r.engine.View())
}

func TestStorageChangedRelistsOpenList(t *testing.T) {
	r := newRig(t, map[string][]byte{"a.mfd": []byte("x")})
	r.start()
	r.openSd()
	r.press(buttons.Select)
	require.Len(t, r.engine.files.entries, 1)

	require.NoError(t, os.WriteFile(filepath.Join(r.root, "b.mfd"), []byte("y"), 0o644))
	r.engine.StorageChanged()
	r.tick(buttons.Released())

	assert.Len(t, r.engine.files.entries, 2)
	assert.Equal(t, "  b.mfd", r.line(3))
	assert.Equal(t, "1/2", r.line(7))
}

func TestWriteFileTooSmall(t *testing.T) {
	r := newRig(t, map[string][]byte{"tiny.bin": {1, 2, 3}})
	r.start()
	r.openSd()
	r.press(buttons.Down)
	r.press(buttons.Select)
	r.press(buttons.Select)

	require.Equal(t, ViewActionMessage, r.engine.View())
	assert.Equal(t, "File too small", r.line(2))
	assert.Equal(t, mifare.Block{}, r.card.Blocks[4])
}

func TestWriteFileCopiesHeadToTargetBlock(t *testing.T) {
	src := bytes.Repeat([]byte{0x5A}, 40)
	r := newRig(t, map[string][]byte{"src.bin": src})
	r.start()
	r.openSd()
	r.press(buttons.Down)
	r.press(buttons.Select)
	r.press(buttons.Select)
	require.Equal(t, ViewConfirm, r.engine.View())

	r.press(buttons.Select)
	r.settle()

	var want mifare.Block
	copy(want[:], src)
	assert.Equal(t, want, r.card.Blocks[4])
	assert.Contains(t, r.engine.msg.lines, "From src.bin")

	r.press(buttons.Select)
	assert.Equal(t, ViewSdMenu, r.engine.View())
}

func TestWrapAndFit(t *testing.T) {
	assert.Equal(t, []string{"Write", "blk 4?"}, wrap("Write blk 4?", 6))
	assert.Equal(t, []string{"abcdef", "gh"}, wrap("abcdefgh", 6))
	assert.Equal(t, "abcd~", fit("abcdefgh", 5))
	assert.Equal(t, "abc", fit("abc", 5))
}
