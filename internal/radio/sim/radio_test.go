package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardprobe/internal/keys"
	"cardprobe/internal/mifare"
)

var uid = []byte{0xDE, 0xAD, 0xBE, 0xEF}

func TestEmptyFieldHasNoCard(t *testing.T) {
	_, err := New().Detect(context.Background(), time.Second)
	assert.ErrorIs(t, err, mifare.ErrNoCard)
}

func TestFactoryCardManufacturerBlock(t *testing.T) {
	c := NewClassic1K(uid)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x22, 0x08}, c.Blocks[0][:6])
	assert.Equal(t, [2]byte{0x00, 0x04}, c.ID.ATQA)
	assert.Equal(t, [2]byte{0x00, 0x44}, NewClassic1K([]byte{1, 2, 3, 4, 5, 6, 7}).ID.ATQA)
}

func TestReadNeedsSectorAuth(t *testing.T) {
	ctx := context.Background()
	r := WithCard(NewClassic1K(uid))
	id, err := r.Detect(ctx, time.Second)
	require.NoError(t, err)

	_, err = r.ReadBlock(ctx, 4)
	assert.ErrorIs(t, err, mifare.ErrNotAuthorized)

	require.NoError(t, r.Authenticate(ctx, id, 4, mifare.KeyA, keys.Defaults[0]))
	_, err = r.ReadBlock(ctx, 5)
	assert.NoError(t, err)
	_, err = r.ReadBlock(ctx, 8)
	assert.ErrorIs(t, err, mifare.ErrNotAuthorized)
}

func TestWrongKeyIsRecorded(t *testing.T) {
	ctx := context.Background()
	r := WithCard(NewClassic1K(uid))
	id, err := r.Detect(ctx, time.Second)
	require.NoError(t, err)

	bad := keys.Key{1, 2, 3, 4, 5, 6}
	assert.ErrorIs(t, r.Authenticate(ctx, id, 0, mifare.KeyB, bad), mifare.ErrAuthFailed)
	got := r.Attempts()
	require.Len(t, got, 1)
	assert.Equal(t, Attempt{Block: 0, Slot: mifare.KeyB, Key: bad}, got[0])
}

func TestTrailerWriteChangesKeys(t *testing.T) {
	ctx := context.Background()
	card := NewClassic1K(uid)
	r := WithCard(card)
	id, err := r.Detect(ctx, time.Second)
	require.NoError(t, err)
	require.NoError(t, r.Authenticate(ctx, id, 7, mifare.KeyA, keys.Defaults[0]))

	trailer := transportTrailer
	copy(trailer[0:6], []byte{1, 1, 1, 1, 1, 1})
	require.NoError(t, r.WriteBlock(ctx, 7, trailer))
	assert.Equal(t, keys.Key{1, 1, 1, 1, 1, 1}, card.Sectors[1].A)

	got, err := r.ReadBlock(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 6), got[0:6])
}

func TestManufacturerBlockIsReadOnly(t *testing.T) {
	ctx := context.Background()
	r := WithCard(NewClassic1K(uid))
	id, err := r.Detect(ctx, time.Second)
	require.NoError(t, err)
	require.NoError(t, r.Authenticate(ctx, id, 0, mifare.KeyA, keys.Defaults[0]))
	assert.ErrorIs(t, r.WriteBlock(ctx, 0, mifare.Block{}), mifare.ErrWriteRejected)
}
