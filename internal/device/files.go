package device

import (
	"errors"
	"fmt"

	"cardprobe/internal/buttons"
	"cardprobe/internal/mifare"
	"cardprobe/internal/storage"
)

// cursor is a wrapping selection over n rows with a scrolling window of
// viewport rows.
type cursor struct {
	index    int
	top      int
	viewport int
}

func (c *cursor) move(delta, n int) {
	c.index = wrapIndex(c.index, delta, n)
	c.scroll(n)
}

func (c *cursor) scroll(n int) {
	if c.index >= n {
		c.index = max(n-1, 0)
	}
	if c.index < c.top {
		c.top = c.index
	}
	if c.index >= c.top+c.viewport {
		c.top = c.index - c.viewport + 1
	}
	c.top = max(0, min(c.top, n-c.viewport))
}

// window returns the visible row range [from, to).
func (c cursor) window(n int) (int, int) {
	return c.top, min(c.top+c.viewport, n)
}

// fileList is the browser's selection over one fresh listing.
type fileList struct {
	cursor
	entries  []storage.Entry
	overflow int
}

func (f *fileList) set(l storage.Listing) {
	f.entries = l.Entries
	f.overflow = l.Overflow
	f.scroll(len(f.entries))
}

func (f *fileList) selected() (storage.Entry, bool) {
	if len(f.entries) == 0 {
		return storage.Entry{}, false
	}
	return f.entries[f.index], true
}

func (e *Engine) openFiles(action FileAction) {
	e.fileAction = action
	e.files = fileList{cursor: cursor{viewport: e.opts.Viewport}}
	if !e.listFiles() {
		return
	}
	e.setView(ViewFileList)
}

func (e *Engine) refreshFiles() {
	if e.listFiles() {
		e.dirty = true
	}
}

// listFiles reads the store again; entries are never cached across visits.
func (e *Engine) listFiles() bool {
	listing, err := e.deps.Store.List()
	if err != nil {
		e.log.WithError(err).Warn("list storage failed")
		e.showMessage("SD CARD", []string{"SD read failed"}, ViewSdMenu)
		return false
	}
	e.files.set(listing)
	return true
}

func (e *Engine) updateFileList(id buttons.ID) {
	switch id {
	case buttons.Up:
		e.files.move(-1, len(e.files.entries))
		e.dirty = true
	case buttons.Down:
		e.files.move(1, len(e.files.entries))
		e.dirty = true
	case buttons.Back:
		e.setView(ViewSdMenu)
	case buttons.Select:
		entry, ok := e.files.selected()
		if !ok {
			return
		}
		switch e.fileAction {
		case FileView:
			e.viewFile(entry)
		case FileDelete:
			e.deleteFile(entry)
		case FileWrite:
			e.writeFile(entry)
		}
	}
}

func (e *Engine) viewFile(entry storage.Entry) {
	e.showMessage("FILE", []string{entry.Name, fmt.Sprintf("%d bytes", entry.Size)}, ViewSdMenu)
}

func (e *Engine) deleteFile(entry storage.Entry) {
	log := e.log.WithField("file", entry.Name)
	e.confirm("Delete "+entry.Name+"?", func() {
		if err := e.deps.Store.Remove(entry.Name); err != nil {
			log.WithError(err).Warn("delete failed")
			e.showMessage("DELETE FILE", []string{"Delete failed", entry.Name}, ViewSdMenu)
			return
		}
		log.Info("file deleted")
		e.showMessage("DELETE FILE", []string{"Deleted", entry.Name}, ViewSdMenu)
	}, func() {
		e.setView(ViewSdMenu)
	})
}

func (e *Engine) writeFile(entry storage.Entry) {
	head, err := e.deps.Store.ReadHead(entry.Name, mifare.BlockSize)
	if err != nil {
		line := "SD read failed"
		if errors.Is(err, storage.ErrShortFile) {
			line = "File too small"
		}
		e.log.WithError(err).WithField("file", entry.Name).Warn("write source rejected")
		e.showMessage("WRITE FILE", []string{line, entry.Name}, ViewSdMenu)
		return
	}
	payload, err := mifare.BlockFrom(head)
	if err != nil {
		e.showMessage("WRITE FILE", []string{"File too small", entry.Name}, ViewSdMenu)
		return
	}

	block := e.opts.TargetBlock
	e.confirm(blockPrompt("Write "+entry.Name+" to", block), func() {
		e.startJob(e.seq.WriteBlock(block, payload, entry.Name), ViewSdMenu)
	}, func() {
		e.setView(ViewSdMenu)
	})
}
