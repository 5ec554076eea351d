package reader

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardprobe/internal/keys"
	"cardprobe/internal/mifare"
	"cardprobe/internal/protocol/pn532"
)

// fakeChip answers host frames on the far end of a pipe.
type fakeChip struct {
	mu      sync.Mutex
	conn    net.Conn
	handler func(cmd byte, data []byte) ([]byte, bool)
	seen    []byte
}

func (f *fakeChip) serve() {
	buf := make([]byte, 256)
	var pending []byte
	for {
		n, err := f.conn.Read(buf)
		if err != nil {
			return
		}
		pending = append(pending, buf[:n]...)
		frames, rest := pn532.ParseFrames(pending)
		pending = rest
		for _, fr := range frames {
			if fr.ACK || fr.TFI != pn532.HostToPN532 {
				continue
			}
			f.mu.Lock()
			f.seen = append(f.seen, fr.Command)
			f.mu.Unlock()

			payload, ok := f.handler(fr.Command, fr.Data)
			if !ok {
				continue
			}
			out := append([]byte(nil), pn532.ACKFrame...)
			out = append(out, pn532.BuildResponse(fr.Command, payload)...)
			if _, err := f.conn.Write(out); err != nil {
				return
			}
		}
	}
}

func (f *fakeChip) commands() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.seen...)
}

func newPipeClient(t *testing.T, handler func(cmd byte, data []byte) ([]byte, bool)) (*Client, *fakeChip) {
	t.Helper()
	host, chip := net.Pipe()
	fake := &fakeChip{conn: chip, handler: handler}
	go fake.serve()

	log, _ := test.NewNullLogger()
	c := NewClient(log)
	require.NoError(t, c.Attach(host, "pipe"))
	t.Cleanup(func() {
		_ = c.Close()
		_ = chip.Close()
	})
	return c, fake
}

// chipHandler emulates a PN532 with one 1K card carrying UID DEADBEEF whose
// only accepted key is FFFFFFFFFFFF.
func chipHandler(present bool) func(cmd byte, data []byte) ([]byte, bool) {
	var block4 [16]byte
	for i := range block4 {
		block4[i] = byte(i)
	}
	return func(cmd byte, data []byte) ([]byte, bool) {
		switch cmd {
		case pn532.CmdSAMConfiguration, pn532.CmdRFConfiguration, pn532.CmdInRelease:
			return []byte{0x00}, true
		case pn532.CmdGetFirmwareVersion:
			return []byte{0x32, 0x01, 0x06, 0x07}, true
		case pn532.CmdInListPassiveTarget:
			if !present {
				return []byte{0x00}, true
			}
			return []byte{0x01, 0x01, 0x00, 0x04, 0x08, 0x04, 0xDE, 0xAD, 0xBE, 0xEF}, true
		case pn532.CmdInDataExchange:
			if len(data) < 3 {
				return []byte{0x27}, true
			}
			switch data[1] {
			case pn532.MifareAuthA, pn532.MifareAuthB:
				for _, b := range data[3:9] {
					if b != 0xFF {
						return []byte{0x14}, true
					}
				}
				return []byte{0x00}, true
			case pn532.MifareRead:
				if data[2] != 4 {
					return []byte{0x13}, true
				}
				return append([]byte{0x00}, block4[:]...), true
			case pn532.MifareWrite:
				return []byte{0x00}, true
			}
		}
		return nil, false
	}
}

func TestExchangeSkipsAckAndMatchesResponse(t *testing.T) {
	c, _ := newPipeClient(t, chipHandler(true))

	frame, err := c.Exchange(context.Background(), pn532.GetFirmwareVersionCommand(), time.Second)
	require.NoError(t, err)
	fw, err := pn532.ParseFirmwareVersion(frame)
	require.NoError(t, err)
	assert.Equal(t, "PN532 v1.6", fw.String())
}

func TestExchangeTimesOutWithoutAnswer(t *testing.T) {
	c, _ := newPipeClient(t, func(byte, []byte) ([]byte, bool) { return nil, false })

	_, err := c.Exchange(context.Background(), pn532.GetFirmwareVersionCommand(), 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestExchangeRejectsMalformedFrame(t *testing.T) {
	c, _ := newPipeClient(t, chipHandler(true))

	_, err := c.Exchange(context.Background(), []byte{0x01, 0x02}, time.Second)
	assert.Error(t, err)
}

func TestExchangeWithoutSession(t *testing.T) {
	log, _ := test.NewNullLogger()
	c := NewClient(log)

	_, err := c.Exchange(context.Background(), pn532.GetFirmwareVersionCommand(), time.Second)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.False(t, c.IsConnected())
}

func TestPN532ReadyAndDetect(t *testing.T) {
	c, fake := newPipeClient(t, chipHandler(true))
	log, _ := test.NewNullLogger()
	r := NewPN532(c, 200*time.Millisecond, log)

	require.NoError(t, r.Ready())
	assert.Equal(t, "PN532 v1.6", r.Firmware().String())

	id, err := r.Detect(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "DEADBEEF", id.Hex())
	assert.Equal(t, byte(0x08), id.SAK)
	assert.True(t, id.HasSAK)

	assert.Equal(t, []byte{
		pn532.CmdSAMConfiguration,
		pn532.CmdGetFirmwareVersion,
		pn532.CmdRFConfiguration,
		pn532.CmdInListPassiveTarget,
	}, fake.commands())
}

func TestPN532DetectReportsNoCard(t *testing.T) {
	c, _ := newPipeClient(t, chipHandler(false))
	log, _ := test.NewNullLogger()
	r := NewPN532(c, 200*time.Millisecond, log)

	_, err := r.Detect(context.Background(), 100*time.Millisecond)
	assert.ErrorIs(t, err, mifare.ErrNoCard)
}

func TestPN532AuthenticateAndRead(t *testing.T) {
	c, _ := newPipeClient(t, chipHandler(true))
	log, _ := test.NewNullLogger()
	r := NewPN532(c, 200*time.Millisecond, log)
	ctx := context.Background()

	id, err := r.Detect(ctx, time.Second)
	require.NoError(t, err)

	wrong := keys.Key{0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5}
	err = r.Authenticate(ctx, id, 4, mifare.KeyA, wrong)
	assert.ErrorIs(t, err, mifare.ErrAuthFailed)

	require.NoError(t, r.Authenticate(ctx, id, 4, mifare.KeyB, keys.Defaults[0]))
	block, err := r.ReadBlock(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, byte(0x0F), block[15])

	_, err = r.ReadBlock(ctx, 5)
	assert.ErrorIs(t, err, mifare.ErrReadRejected)

	require.NoError(t, r.Authenticate(ctx, id, 4, mifare.KeyA, keys.Defaults[0]))
	require.NoError(t, r.WriteBlock(ctx, 4, mifare.Block{0x01}))

	assert.ErrorIs(t, r.Authenticate(ctx, id, 64, mifare.KeyA, keys.Defaults[0]), mifare.ErrBadBlock)
}
