package mifare

import (
	"context"

	"github.com/sirupsen/logrus"

	"cardprobe/internal/keys"
)

// Match records which key opened a block.
type Match struct {
	KeyIndex int
	Slot     KeySlot
	Key      keys.Key
	Attempts int
}

// Authenticator walks the key dictionary against a block. Every call starts
// over from the first key.
type Authenticator struct {
	radio Radio
	dict  *keys.Dictionary
	log   logrus.FieldLogger
}

func NewAuthenticator(radio Radio, dict *keys.Dictionary, log logrus.FieldLogger) *Authenticator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Authenticator{radio: radio, dict: dict, log: log}
}

func (a *Authenticator) Dictionary() *keys.Dictionary {
	return a.dict
}

// Authenticate tries each key in order, slot A before slot B, and stops at
// the first success. It fails after dictionary size x 2 attempts or when
// ctx is done.
func (a *Authenticator) Authenticate(ctx context.Context, id CardID, block int) (Match, bool) {
	attempts := 0
	for i := 0; i < a.dict.Len(); i++ {
		key := a.dict.At(i)
		for _, slot := range [2]KeySlot{KeyA, KeyB} {
			if ctx.Err() != nil {
				return Match{Attempts: attempts}, false
			}
			attempts++
			err := a.radio.Authenticate(ctx, id, block, slot, key)
			if err == nil {
				a.log.WithFields(logrus.Fields{
					"uid":       id.Hex(),
					"block":     block,
					"slot":      slot.String(),
					"key_index": i,
				}).Debug("block authenticated")
				return Match{KeyIndex: i, Slot: slot, Key: key, Attempts: attempts}, true
			}
		}
	}
	a.log.WithFields(logrus.Fields{
		"uid":      id.Hex(),
		"block":    block,
		"attempts": attempts,
	}).Debug("key dictionary exhausted")
	return Match{Attempts: attempts}, false
}
