package sdk

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestClient(t *testing.T, present bool) (*Client, string) {
	t.Helper()
	log, _ := test.NewNullLogger()
	root := t.TempDir()
	cfg := DefaultConfig()
	cfg.StorageRoot = root
	cfg.SimPresent = present
	cfg.DetectTimeout = 50 * time.Millisecond
	cfg.Log = log

	c, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, root
}

func TestOpenFailsWithoutStorage(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageRoot = filepath.Join(t.TempDir(), "missing")
	_, err := Open(cfg)
	assert.Error(t, err)
}

func TestIdentify(t *testing.T) {
	c, _ := openTestClient(t, true)

	card, err := c.Identify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "DEADBEEF", card.UID)
	assert.Equal(t, "MIFARE Classic", card.Family)
	assert.Equal(t, "sim", c.RadioName())
	assert.True(t, c.Keys().Defaults)
}

func TestIdentifyWithoutCard(t *testing.T) {
	c, _ := openTestClient(t, false)

	_, err := c.Identify(context.Background())
	assert.ErrorIs(t, err, ErrNoCard)

	select {
	case got := <-c.Errors():
		assert.ErrorIs(t, got, ErrNoCard)
	default:
		t.Fatal("expected an error event")
	}
}

func TestDumpEmitsBlocksAndSaves(t *testing.T) {
	c, root := openTestClient(t, true)

	res, err := c.Dump(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "DEADBEEF.mfd", res.File)
	assert.Equal(t, 64, res.BlocksRead)
	assert.Len(t, c.Blocks(), 64)

	info, err := os.Stat(filepath.Join(root, res.File))
	require.NoError(t, err)
	assert.EqualValues(t, 1024, info.Size())
}

func TestDumpOverwriteDeclined(t *testing.T) {
	c, root := openTestClient(t, true)
	require.NoError(t, os.WriteFile(filepath.Join(root, "DEADBEEF.mfd"), []byte("old"), 0o644))

	var asked string
	_, err := c.Dump(context.Background(), func(prompt string) bool {
		asked = prompt
		return false
	})
	assert.ErrorIs(t, err, ErrDeclined)
	assert.Equal(t, "Overwrite DEADBEEF.mfd?", asked)

	body, err := os.ReadFile(filepath.Join(root, "DEADBEEF.mfd"))
	require.NoError(t, err)
	assert.Equal(t, "old", string(body))
}

func TestWriteReadErase(t *testing.T) {
	c, _ := openTestClient(t, true)
	ctx := context.Background()
	data := [16]byte{0xCA, 0xFE, 0xBA, 0xBE}

	require.NoError(t, c.WriteBlock(ctx, 4, data))
	got, err := c.ReadBlock(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	require.NoError(t, c.EraseBlock(ctx, 4))
	got, err = c.ReadBlock(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, [16]byte{}, got)
}

func TestClosedClientRefusesWork(t *testing.T) {
	c, _ := openTestClient(t, true)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err := c.Identify(context.Background())
	assert.Error(t, err)
}
