package acr122

import (
	"cardprobe/internal/keys"
	"cardprobe/internal/mifare"
)

// Session runs MIFARE Classic operations against one connected card.
type Session struct {
	card Card
}

func NewSession(card Card) *Session {
	return &Session{card: card}
}

// Identify reads the UID and, when the ATR names the card, its SAK.
func (s *Session) Identify(atr []byte) (mifare.CardID, error) {
	uid, err := GetUID(s.card)
	if err != nil {
		return mifare.CardID{}, err
	}
	id := mifare.CardID{UID: uid}
	if name, ok := CardName(atr); ok {
		id.SAK, id.HasSAK = SAKForName(name)
	}
	return id, nil
}

// Authenticate loads key into the reader and authenticates block with it.
// A refused key maps to mifare.ErrAuthFailed.
func (s *Session) Authenticate(block int, slot mifare.KeySlot, key keys.Key) error {
	if !mifare.ValidBlock(block) {
		return mifare.ErrBadBlock
	}
	if err := LoadKey(s.card, KeyLocation, key); err != nil {
		return err
	}
	err := Authenticate(s.card, byte(block), byte(slot), KeyLocation)
	if IsOperationError(err) {
		return mifare.ErrAuthFailed
	}
	return err
}

func (s *Session) ReadBlock(block int) (mifare.Block, error) {
	if !mifare.ValidBlock(block) {
		return mifare.Block{}, mifare.ErrBadBlock
	}
	data, err := ReadBlock(s.card, byte(block))
	if IsOperationError(err) {
		err = mifare.ErrReadRejected
	}
	if err != nil {
		return mifare.Block{}, mifare.NewCardError("read", block, err)
	}
	return mifare.Block(data), nil
}

func (s *Session) WriteBlock(block int, data mifare.Block) error {
	if !mifare.ValidBlock(block) {
		return mifare.ErrBadBlock
	}
	err := WriteBlock(s.card, byte(block), data)
	if IsOperationError(err) {
		err = mifare.ErrWriteRejected
	}
	return mifare.NewCardError("write", block, err)
}
