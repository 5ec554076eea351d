package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDir(t *testing.T, opts Options) (*Dir, string) {
	t.Helper()
	root := t.TempDir()
	d, err := NewDir(root, opts)
	require.NoError(t, err)
	return d, root
}

func writeRaw(t *testing.T, root, name string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(root, name), data, 0o644))
}

func TestListSortsAndFiltersEntries(t *testing.T) {
	d, root := newDir(t, Options{Pattern: "*.mfd"})
	writeRaw(t, root, "B.mfd", make([]byte, 1024))
	writeRaw(t, root, "A.mfd", make([]byte, 16))
	writeRaw(t, root, "keys.txt", []byte("FF FF FF FF FF FF\n"))
	writeRaw(t, root, ".hidden.mfd", nil)
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub.mfd"), 0o755))

	listing, err := d.List()
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Name: "A.mfd", Size: 16}, {Name: "B.mfd", Size: 1024}}, listing.Entries)
	assert.Zero(t, listing.Overflow)
}

func TestListCountsOverflow(t *testing.T) {
	d, root := newDir(t, Options{MaxEntries: 3})
	for i := 0; i < 5; i++ {
		writeRaw(t, root, fmt.Sprintf("f%d.bin", i), []byte{1})
	}

	listing, err := d.List()
	require.NoError(t, err)
	assert.Len(t, listing.Entries, 3)
	assert.Equal(t, 2, listing.Overflow)
	assert.Equal(t, "f0.bin", listing.Entries[0].Name)
}

func TestReadHeadRejectsShortFiles(t *testing.T) {
	d, root := newDir(t, Options{})
	writeRaw(t, root, "short.bin", make([]byte, 15))
	writeRaw(t, root, "ok.bin", []byte("0123456789abcdefXYZ"))

	_, err := d.ReadHead("short.bin", 16)
	assert.True(t, errors.Is(err, ErrShortFile))

	head, err := d.ReadHead("ok.bin", 16)
	require.NoError(t, err)
	assert.Equal(t, []byte("0123456789abcdef"), head)

	_, err = d.ReadHead("missing.bin", 16)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestWriteFileReplacesAndRemoveDeletes(t *testing.T) {
	d, root := newDir(t, Options{})

	require.NoError(t, d.WriteFile("DEADBEEF.mfd", []byte{1, 2, 3}))
	require.NoError(t, d.WriteFile("DEADBEEF.mfd", []byte{4, 5}))
	data, err := os.ReadFile(filepath.Join(root, "DEADBEEF.mfd"))
	require.NoError(t, err)
	assert.Equal(t, []byte{4, 5}, data)

	exists, err := d.Exists("DEADBEEF.mfd")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, d.Remove("DEADBEEF.mfd"))
	exists, err = d.Exists("DEADBEEF.mfd")
	require.NoError(t, err)
	assert.False(t, exists)

	dirents, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, dirents, "temp files must not be left behind")
}

func TestNamesCannotEscapeRoot(t *testing.T) {
	d, _ := newDir(t, Options{})
	for _, name := range []string{"", "..", "../x", "a/b", "."} {
		err := d.WriteFile(name, []byte{1})
		assert.True(t, errors.Is(err, ErrInvalidName), "name %q", name)
	}
}

func TestReadyChecksRoot(t *testing.T) {
	d, root := newDir(t, Options{})
	assert.NoError(t, d.Ready())

	missing, err := NewDir(filepath.Join(root, "nope"), Options{})
	require.NoError(t, err)
	assert.Error(t, missing.Ready())

	_, err = NewDir(root, Options{Pattern: "[unterminated"})
	assert.Error(t, err)
}

func TestWatcherReportsNewFile(t *testing.T) {
	_, root := newDir(t, Options{})
	log, _ := test.NewNullLogger()
	w, err := Watch(root, log)
	require.NoError(t, err)
	defer w.Close()

	writeRaw(t, root, "new.bin", []byte{1})

	select {
	case change := <-w.Changes():
		assert.Equal(t, "new.bin", change.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for storage change")
	}
}
