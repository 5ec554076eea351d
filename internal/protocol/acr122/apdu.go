// Package acr122 builds the PC/SC pseudo-APDUs that ACR122-class readers
// accept for MIFARE Classic cards and decodes their status words.
package acr122

import (
	"errors"
	"fmt"
)

// Status words returned by the reader.
const (
	SWSuccess        = 0x9000
	SWOperationError = 0x6300
	SWWrongLength    = 0x6700
	SWNotAllowed     = 0x6986
	SWWrongP1P2      = 0x6A86
	SWUnsupported    = 0x6A81
)

// Instruction bytes of the pseudo-APDUs.
const (
	InsGetData      byte = 0xCA
	InsLoadKey      byte = 0x82
	InsAuthenticate byte = 0x86
	InsReadBinary   byte = 0xB0
	InsUpdateBinary byte = 0xD6

	class     byte = 0xFF
	blockSize      = 16
)

// KeyLocation is the volatile reader slot the dictionary key is loaded into.
const KeyLocation byte = 0x00

// Key types for General Authenticate.
const (
	KeyTypeA byte = 0x60
	KeyTypeB byte = 0x61
)

var ErrShortResponse = errors.New("short response")

// Card abstracts card transmit behavior for real PC/SC cards and test doubles.
type Card interface {
	Transmit(apdu []byte) ([]byte, error)
}

// SWError represents a status word error from the reader.
type SWError struct {
	Ins byte
	SW  uint16
}

func (e *SWError) Error() string {
	return fmt.Sprintf("reader command 0x%02X failed with SW=0x%04X (%s)", e.Ins, e.SW, swDescription(e.SW))
}

func swDescription(sw uint16) string {
	switch sw {
	case SWSuccess:
		return "success"
	case SWOperationError:
		return "operation failed"
	case SWWrongLength:
		return "wrong length"
	case SWNotAllowed:
		return "command not allowed"
	case SWWrongP1P2:
		return "wrong P1/P2"
	case SWUnsupported:
		return "function not supported"
	default:
		return "unknown error"
	}
}

// IsOperationError reports a 63 00 answer: the card refused the
// authentication, read or write.
func IsOperationError(err error) bool {
	var swErr *SWError
	if errors.As(err, &swErr) {
		return swErr.SW == SWOperationError
	}
	return false
}

// Transmit sends an APDU and splits off the status word.
func Transmit(card Card, apdu []byte) ([]byte, uint16, error) {
	resp, err := card.Transmit(apdu)
	if err != nil {
		return nil, 0, err
	}
	if len(resp) < 2 {
		return nil, 0, fmt.Errorf("%w: %d bytes", ErrShortResponse, len(resp))
	}
	sw := uint16(resp[len(resp)-2])<<8 | uint16(resp[len(resp)-1])
	return resp[:len(resp)-2], sw, nil
}

func exec(card Card, apdu []byte) ([]byte, error) {
	data, sw, err := Transmit(card, apdu)
	if err != nil {
		return nil, err
	}
	if sw != SWSuccess {
		return nil, &SWError{Ins: apdu[1], SW: sw}
	}
	return data, nil
}

// GetUID retrieves the card UID via GET DATA (FF CA 00 00).
func GetUID(card Card) ([]byte, error) {
	data, err := exec(card, []byte{class, InsGetData, 0x00, 0x00, 0x00})
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("get uid: %w", ErrShortResponse)
	}
	return data, nil
}

// LoadKey stores a six byte key in the reader's volatile key slot.
func LoadKey(card Card, location byte, key [6]byte) error {
	apdu := make([]byte, 0, 11)
	apdu = append(apdu, class, InsLoadKey, 0x00, location, byte(len(key)))
	apdu = append(apdu, key[:]...)
	_, err := exec(card, apdu)
	return err
}

// Authenticate runs General Authenticate for block with the key previously
// loaded at location.
func Authenticate(card Card, block, keyType, location byte) error {
	_, err := exec(card, []byte{
		class, InsAuthenticate, 0x00, 0x00, 0x05,
		0x01, 0x00, block, keyType, location,
	})
	return err
}

func ReadBlock(card Card, block byte) ([16]byte, error) {
	var out [16]byte
	data, err := exec(card, []byte{class, InsReadBinary, 0x00, block, blockSize})
	if err != nil {
		return out, err
	}
	if len(data) != blockSize {
		return out, fmt.Errorf("read block %d: %w: %d bytes", block, ErrShortResponse, len(data))
	}
	copy(out[:], data)
	return out, nil
}

func WriteBlock(card Card, block byte, data [16]byte) error {
	apdu := make([]byte, 0, 5+blockSize)
	apdu = append(apdu, class, InsUpdateBinary, 0x00, block, blockSize)
	apdu = append(apdu, data[:]...)
	_, err := exec(card, apdu)
	return err
}

// Card names carried in the PC/SC part 3 ATR of storage cards.
const (
	NameClassic1K  uint16 = 0x0001
	NameClassic4K  uint16 = 0x0002
	NameUltralight uint16 = 0x0003
	NameMini       uint16 = 0x0026
)

// CardName extracts the two byte standard card name from a PC/SC storage
// card ATR: 3B 8F 80 01 80 4F 0C A0 00 00 03 06 SS NN NN ...
func CardName(atr []byte) (uint16, bool) {
	if len(atr) < 15 || atr[0] != 0x3B || atr[4] != 0x80 || atr[5] != 0x4F {
		return 0, false
	}
	return uint16(atr[13])<<8 | uint16(atr[14]), true
}

// SAKForName maps a card name to the SAK the card answers with.
func SAKForName(name uint16) (byte, bool) {
	switch name {
	case NameClassic1K:
		return 0x08, true
	case NameClassic4K:
		return 0x18, true
	case NameMini:
		return 0x09, true
	case NameUltralight:
		return 0x00, true
	}
	return 0, false
}
