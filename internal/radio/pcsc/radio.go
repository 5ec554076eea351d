// Package pcsc drives MIFARE Classic cards through a PC/SC reader such as
// the ACR122U.
package pcsc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ebfe/scard"
	"github.com/sirupsen/logrus"

	"cardprobe/internal/keys"
	"cardprobe/internal/mifare"
	"cardprobe/internal/protocol/acr122"
)

const statusPoll = 250 * time.Millisecond

// Radio implements mifare.Radio over one PC/SC reader.
type Radio struct {
	ctx     *scard.Context
	reader  string
	index   int
	card    *scard.Card
	session *acr122.Session
	state   scard.StateFlag
	log     logrus.FieldLogger
}

// Open establishes a PC/SC context and picks the reader at index.
func Open(index int, log logrus.FieldLogger) (*Radio, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("EstablishContext failed: %w", err)
	}

	readers, err := ctx.ListReaders()
	if err != nil || len(readers) == 0 {
		_ = ctx.Release()
		return nil, fmt.Errorf("no readers found: %v", err)
	}
	if index < 0 || index >= len(readers) {
		_ = ctx.Release()
		return nil, fmt.Errorf("reader index out of range (0..%d)", len(readers)-1)
	}

	r := &Radio{
		ctx:    ctx,
		reader: readers[index],
		index:  index,
		state:  scard.StateUnaware,
		log:    log.WithField("reader", readers[index]),
	}
	r.log.WithField("index", index).Info("pcsc reader selected")
	return r, nil
}

func (r *Radio) Reader() string {
	return r.reader
}

// Ready checks that the selected reader is still attached.
func (r *Radio) Ready() error {
	readers, err := r.ctx.ListReaders()
	if err != nil {
		return fmt.Errorf("list readers: %w", err)
	}
	for _, name := range readers {
		if name == r.reader {
			return nil
		}
	}
	return fmt.Errorf("reader %q detached", r.reader)
}

func (r *Radio) disconnect() {
	if r.card != nil {
		_ = r.card.Disconnect(scard.LeaveCard)
		r.card = nil
		r.session = nil
	}
}

// Detect waits for card presence, connects and reads the UID.
func (r *Radio) Detect(ctx context.Context, timeout time.Duration) (mifare.CardID, error) {
	r.disconnect()
	deadline := time.Now().Add(timeout)
	states := []scard.ReaderState{{Reader: r.reader, CurrentState: r.state}}

	for {
		if err := ctx.Err(); err != nil {
			return mifare.CardID{}, err
		}
		wait := min(time.Until(deadline), statusPoll)
		if wait < 0 {
			wait = 0
		}
		err := r.ctx.GetStatusChange(states, wait)
		switch {
		case err == nil:
			r.state = states[0].EventState
			states[0].CurrentState = r.state
		case errors.Is(err, scard.ErrTimeout):
		default:
			r.log.WithError(err).Debug("status change failed")
		}

		if states[0].EventState&scard.StatePresent != 0 {
			id, err := r.connect(states[0].Atr)
			if err == nil {
				return id, nil
			}
			r.log.WithError(err).Debug("card connect failed")
		}
		if !time.Now().Before(deadline) {
			return mifare.CardID{}, mifare.ErrNoCard
		}
	}
}

func (r *Radio) connect(atr []byte) (mifare.CardID, error) {
	card, err := r.ctx.Connect(r.reader, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		return mifare.CardID{}, fmt.Errorf("connect failed: %w", err)
	}
	session := acr122.NewSession(card)
	id, err := session.Identify(atr)
	if err != nil {
		_ = card.Disconnect(scard.LeaveCard)
		return mifare.CardID{}, err
	}
	r.card = card
	r.session = session
	return id, nil
}

func (r *Radio) Authenticate(ctx context.Context, id mifare.CardID, block int, slot mifare.KeySlot, key keys.Key) error {
	if r.session == nil {
		return mifare.ErrNoCard
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.session.Authenticate(block, slot, key)
}

func (r *Radio) ReadBlock(ctx context.Context, block int) (mifare.Block, error) {
	if r.session == nil {
		return mifare.Block{}, mifare.NewCardError("read", block, mifare.ErrNoCard)
	}
	return r.session.ReadBlock(block)
}

func (r *Radio) WriteBlock(ctx context.Context, block int, data mifare.Block) error {
	if r.session == nil {
		return mifare.NewCardError("write", block, mifare.ErrNoCard)
	}
	return r.session.WriteBlock(block, data)
}

// Close disconnects the card and releases the PC/SC context.
func (r *Radio) Close() error {
	r.disconnect()
	return r.ctx.Release()
}

// ListReaders names every PC/SC reader in index order.
func ListReaders() ([]string, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("EstablishContext failed: %w", err)
	}
	defer ctx.Release()
	return ctx.ListReaders()
}
