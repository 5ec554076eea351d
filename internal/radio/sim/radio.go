// Package sim provides an in-memory radio with a simulated MIFARE Classic
// card, used by the demo backend and by tests.
package sim

import (
	"bytes"
	"context"
	"sync"
	"time"

	"cardprobe/internal/keys"
	"cardprobe/internal/mifare"
)

// Attempt is one recorded authentication try.
type Attempt struct {
	Block int
	Slot  mifare.KeySlot
	Key   keys.Key
	OK    bool
}

// Radio implements mifare.Radio over an optional in-field card.
type Radio struct {
	mu        sync.Mutex
	card      *Card
	authed    int
	attempts  []Attempt
	failRead  map[int]bool
	failWrite map[int]bool
	notReady  error
}

func New() *Radio {
	return &Radio{
		authed:    -1,
		failRead:  make(map[int]bool),
		failWrite: make(map[int]bool),
	}
}

// WithCard returns a radio with card already in the field.
func WithCard(card *Card) *Radio {
	r := New()
	r.Present(card)
	return r
}

// Present places card in the field. A nil card removes it.
func (r *Radio) Present(card *Card) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.card = card
	r.authed = -1
}

func (r *Radio) Remove() {
	r.Present(nil)
}

func (r *Radio) Card() *Card {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.card
}

// FailRead makes the card reject reads of block even after authentication.
func (r *Radio) FailRead(block int) {
	r.mu.Lock()
	r.failRead[block] = true
	r.mu.Unlock()
}

// FailWrite makes the card reject writes of block.
func (r *Radio) FailWrite(block int) {
	r.mu.Lock()
	r.failWrite[block] = true
	r.mu.Unlock()
}

// SetNotReady makes Ready report err, simulating an absent front-end.
func (r *Radio) SetNotReady(err error) {
	r.mu.Lock()
	r.notReady = err
	r.mu.Unlock()
}

func (r *Radio) Ready() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notReady
}

// Attempts returns a copy of every authentication try so far.
func (r *Radio) Attempts() []Attempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Attempt, len(r.attempts))
	copy(out, r.attempts)
	return out
}

func (r *Radio) ResetAttempts() {
	r.mu.Lock()
	r.attempts = nil
	r.mu.Unlock()
}

// Detect answers immediately; it never sleeps for the timeout.
func (r *Radio) Detect(ctx context.Context, timeout time.Duration) (mifare.CardID, error) {
	if err := ctx.Err(); err != nil {
		return mifare.CardID{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.card == nil {
		return mifare.CardID{}, mifare.ErrNoCard
	}
	r.authed = -1
	id := r.card.ID
	id.UID = append([]byte(nil), id.UID...)
	return id, nil
}

func (r *Radio) Authenticate(ctx context.Context, id mifare.CardID, block int, slot mifare.KeySlot, key keys.Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if !mifare.ValidBlock(block) {
		return mifare.ErrBadBlock
	}
	if r.card == nil || !bytes.Equal(r.card.ID.UID, id.UID) {
		r.attempts = append(r.attempts, Attempt{Block: block, Slot: slot, Key: key})
		return mifare.ErrNoCard
	}

	ok := r.card.accepts(mifare.SectorOf(block), slot, key)
	r.attempts = append(r.attempts, Attempt{Block: block, Slot: slot, Key: key, OK: ok})
	if !ok {
		r.authed = -1
		return mifare.ErrAuthFailed
	}
	r.authed = mifare.SectorOf(block)
	return nil
}

func (r *Radio) ReadBlock(ctx context.Context, block int) (mifare.Block, error) {
	if err := ctx.Err(); err != nil {
		return mifare.Block{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkAccess(block); err != nil {
		return mifare.Block{}, mifare.NewCardError("read", block, err)
	}
	if r.failRead[block] {
		return mifare.Block{}, mifare.NewCardError("read", block, mifare.ErrReadRejected)
	}
	var out mifare.Block
	copy(out[:], r.card.readable(block))
	return out, nil
}

func (r *Radio) WriteBlock(ctx context.Context, block int, data mifare.Block) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkAccess(block); err != nil {
		return mifare.NewCardError("write", block, err)
	}
	if r.failWrite[block] || block == 0 {
		return mifare.NewCardError("write", block, mifare.ErrWriteRejected)
	}
	r.card.Blocks[block] = data
	if mifare.IsTrailer(block) {
		sector := mifare.SectorOf(block)
		k := r.card.Sectors[sector]
		copy(k.A[:], data[0:6])
		copy(k.B[:], data[10:16])
		r.card.Sectors[sector] = k
	}
	return nil
}

func (r *Radio) checkAccess(block int) error {
	if !mifare.ValidBlock(block) {
		return mifare.ErrBadBlock
	}
	if r.card == nil {
		return mifare.ErrNoCard
	}
	if r.authed != mifare.SectorOf(block) {
		return mifare.ErrNotAuthorized
	}
	return nil
}
