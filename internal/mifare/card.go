package mifare

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// MIFARE Classic 1K geometry.
const (
	BlockSize       = 16
	BlockCount      = 64
	BlocksPerSector = 4
	SectorCount     = BlockCount / BlocksPerSector
	ImageSize       = BlockCount * BlockSize

	// DefaultBlock is the first data block outside the manufacturer sector.
	DefaultBlock = 4
)

// KeySlot selects key A or key B. Values match the card command codes.
type KeySlot byte

const (
	KeyA KeySlot = 0x60
	KeyB KeySlot = 0x61
)

func (s KeySlot) String() string {
	switch s {
	case KeyA:
		return "A"
	case KeyB:
		return "B"
	default:
		return fmt.Sprintf("0x%02X", byte(s))
	}
}

// Block is one 16-byte card block.
type Block [BlockSize]byte

// Hex renders the block as space separated uppercase hex pairs.
func (b Block) Hex() string {
	return SpacedHex(b[:])
}

// BlockFrom copies the first BlockSize bytes of data into a Block.
func BlockFrom(data []byte) (Block, error) {
	var b Block
	if len(data) < BlockSize {
		return b, fmt.Errorf("block needs %d bytes, got %d", BlockSize, len(data))
	}
	copy(b[:], data[:BlockSize])
	return b, nil
}

func ValidBlock(block int) bool {
	return block >= 0 && block < BlockCount
}

func SectorOf(block int) int {
	return block / BlocksPerSector
}

// IsTrailer reports whether block holds a sector's keys and access bits.
func IsTrailer(block int) bool {
	return block%BlocksPerSector == BlocksPerSector-1
}

// CardID identifies the card in the field for one presence session.
type CardID struct {
	UID  []byte
	ATQA [2]byte
	SAK  byte
	// HasSAK is set when the backend reported selection data.
	HasSAK bool
}

func (c CardID) Len() int {
	return len(c.UID)
}

func (c CardID) Empty() bool {
	return len(c.UID) == 0
}

// Hex renders the UID as contiguous uppercase hex, used for dump names.
func (c CardID) Hex() string {
	return strings.ToUpper(hex.EncodeToString(c.UID))
}

// String renders the UID as space separated uppercase hex pairs.
func (c CardID) String() string {
	return SpacedHex(c.UID)
}

// AuthUID returns the four UID bytes the Crypto1 handshake uses. Seven byte
// UIDs authenticate with their last four bytes.
func (c CardID) AuthUID() []byte {
	if len(c.UID) <= 4 {
		return append([]byte(nil), c.UID...)
	}
	return append([]byte(nil), c.UID[len(c.UID)-4:]...)
}

func SpacedHex(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, " ")
}
