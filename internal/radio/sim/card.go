package sim

import (
	"cardprobe/internal/keys"
	"cardprobe/internal/mifare"
)

// transport is the factory trailer: key A, access bits FF 07 80 69, key B.
var transportTrailer = mifare.Block{
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
	0xFF, 0x07, 0x80, 0x69,
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
}

// SectorKeys are the keys a simulated sector accepts.
type SectorKeys struct {
	A keys.Key
	B keys.Key
	// NoB disables key B, as when access bits make it readable.
	NoB bool
}

// Card is an in-memory MIFARE Classic 1K.
type Card struct {
	ID      mifare.CardID
	Blocks  [mifare.BlockCount]mifare.Block
	Sectors [mifare.SectorCount]SectorKeys
}

// NewClassic1K builds a factory-fresh card with the transport key on every
// sector and a manufacturer block derived from uid.
func NewClassic1K(uid []byte) *Card {
	c := &Card{
		ID: mifare.CardID{
			UID:    append([]byte(nil), uid...),
			ATQA:   [2]byte{0x00, 0x04},
			SAK:    0x08,
			HasSAK: true,
		},
	}
	if len(uid) == 7 {
		c.ID.ATQA = [2]byte{0x00, 0x44}
	}

	transport := keys.Defaults[0]
	for s := range c.Sectors {
		c.Sectors[s] = SectorKeys{A: transport, B: transport}
	}
	for b := range c.Blocks {
		if mifare.IsTrailer(b) {
			c.Blocks[b] = transportTrailer
		}
	}

	var bcc byte
	for i, v := range uid {
		if i < mifare.BlockSize {
			c.Blocks[0][i] = v
		}
		bcc ^= v
	}
	if len(uid) < mifare.BlockSize {
		c.Blocks[0][len(uid)] = bcc
	}
	if len(uid)+1 < mifare.BlockSize {
		c.Blocks[0][len(uid)+1] = c.ID.SAK
	}
	return c
}

// SetSectorKeys changes the keys a sector accepts and mirrors them into its
// trailer block.
func (c *Card) SetSectorKeys(sector int, k SectorKeys) {
	if sector < 0 || sector >= mifare.SectorCount {
		return
	}
	c.Sectors[sector] = k
	trailer := sector*mifare.BlocksPerSector + mifare.BlocksPerSector - 1
	copy(c.Blocks[trailer][0:6], k.A[:])
	copy(c.Blocks[trailer][10:16], k.B[:])
}

// Image returns what a reader holding every key would dump. Key A always
// reads back as zeros.
func (c *Card) Image() []byte {
	out := make([]byte, 0, mifare.ImageSize)
	for b := range c.Blocks {
		out = append(out, c.readable(b)...)
	}
	return out
}

func (c *Card) readable(block int) []byte {
	data := c.Blocks[block]
	if mifare.IsTrailer(block) {
		for i := 0; i < 6; i++ {
			data[i] = 0
		}
	}
	return data[:]
}

func (c *Card) accepts(sector int, slot mifare.KeySlot, key keys.Key) bool {
	k := c.Sectors[sector]
	switch slot {
	case mifare.KeyA:
		return k.A == key
	case mifare.KeyB:
		return !k.NoB && k.B == key
	default:
		return false
	}
}
