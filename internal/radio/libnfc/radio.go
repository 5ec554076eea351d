//go:build libnfc

// Package libnfc drives MIFARE Classic cards through any reader libnfc
// supports.
package libnfc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clausecker/nfc/v2"
	"github.com/sirupsen/logrus"

	"cardprobe/internal/keys"
	"cardprobe/internal/mifare"
)

const (
	pollGap          = 50 * time.Millisecond
	cmdRead     byte = 0x30
	cmdWrite    byte = 0xA0
	defaultWait      = 500 * time.Millisecond
)

var typeA = nfc.Modulation{Type: nfc.ISO14443a, BaudRate: nfc.Nbr106}

// Radio implements mifare.Radio over a libnfc device.
type Radio struct {
	dev      nfc.Device
	timeout  time.Duration
	card     mifare.CardID
	selected bool
	log      logrus.FieldLogger
}

// Open opens the device named by connstring ("" picks the first one) and
// puts it in initiator mode.
func Open(connstring string, timeout time.Duration, log logrus.FieldLogger) (*Radio, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if timeout <= 0 {
		timeout = defaultWait
	}
	dev, err := nfc.Open(connstring)
	if err != nil {
		return nil, fmt.Errorf("open nfc device: %w", err)
	}
	if err := dev.InitiatorInit(); err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("initiator init: %w", err)
	}
	r := &Radio{dev: dev, timeout: timeout, log: log.WithField("device", dev.String())}
	r.log.Info("libnfc device ready")
	return r, nil
}

func (r *Radio) Ready() error {
	if _, err := r.dev.Information(); err != nil {
		return fmt.Errorf("nfc device %s: %w", r.dev.Connection(), err)
	}
	return nil
}

func targetID(t nfc.Target) (mifare.CardID, bool) {
	card, ok := t.(*nfc.ISO14443aTarget)
	if !ok || card.UIDLen <= 0 {
		return mifare.CardID{}, false
	}
	return mifare.CardID{
		UID:    append([]byte(nil), card.UID[:card.UIDLen]...),
		ATQA:   card.Atqa,
		SAK:    card.Sak,
		HasSAK: true,
	}, true
}

func (r *Radio) Detect(ctx context.Context, timeout time.Duration) (mifare.CardID, error) {
	deadline := time.Now().Add(timeout)
	r.selected = false
	for {
		targets, err := r.dev.InitiatorListPassiveTargets(typeA)
		if err != nil {
			r.log.WithError(err).Debug("passive target poll failed")
		}
		for _, t := range targets {
			if id, ok := targetID(t); ok {
				r.card = id
				r.selected = true
				return id, nil
			}
		}
		if !time.Now().Before(deadline) {
			return mifare.CardID{}, mifare.ErrNoCard
		}
		select {
		case <-ctx.Done():
			return mifare.CardID{}, ctx.Err()
		case <-time.After(pollGap):
		}
	}
}

// reselect wakes the card by UID after a failed authentication halted it.
func (r *Radio) reselect(id mifare.CardID) error {
	t, err := r.dev.InitiatorSelectPassiveTarget(typeA, id.UID)
	if err != nil {
		return fmt.Errorf("%w: %v", mifare.ErrNoCard, err)
	}
	got, ok := targetID(t)
	if !ok || !bytes.Equal(got.UID, id.UID) {
		return mifare.ErrNoCard
	}
	r.selected = true
	return nil
}

func (r *Radio) transceive(tx []byte, rxLen int) ([]byte, error) {
	rx := make([]byte, rxLen)
	n, err := r.dev.InitiatorTransceiveBytes(tx, rx, int(r.timeout/time.Millisecond))
	if err != nil {
		return nil, err
	}
	return rx[:n], nil
}

func (r *Radio) Authenticate(ctx context.Context, id mifare.CardID, block int, slot mifare.KeySlot, key keys.Key) error {
	if !mifare.ValidBlock(block) {
		return mifare.ErrBadBlock
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !r.selected {
		if err := r.reselect(id); err != nil {
			return err
		}
	}
	tx := make([]byte, 0, 12)
	tx = append(tx, byte(slot), byte(block))
	tx = append(tx, key[:]...)
	tx = append(tx, id.AuthUID()...)
	if _, err := r.transceive(tx, 1); err != nil {
		r.selected = false
		return fmt.Errorf("%w: %v", mifare.ErrAuthFailed, err)
	}
	return nil
}

func (r *Radio) ReadBlock(ctx context.Context, block int) (mifare.Block, error) {
	if !mifare.ValidBlock(block) {
		return mifare.Block{}, mifare.ErrBadBlock
	}
	data, err := r.transceive([]byte{cmdRead, byte(block)}, mifare.BlockSize)
	if err != nil {
		r.selected = false
		return mifare.Block{}, mifare.NewCardError("read", block, errors.Join(mifare.ErrReadRejected, err))
	}
	out, err := mifare.BlockFrom(data)
	if err != nil {
		return mifare.Block{}, mifare.NewCardError("read", block, err)
	}
	return out, nil
}

func (r *Radio) WriteBlock(ctx context.Context, block int, data mifare.Block) error {
	if !mifare.ValidBlock(block) {
		return mifare.ErrBadBlock
	}
	tx := make([]byte, 0, 2+mifare.BlockSize)
	tx = append(tx, cmdWrite, byte(block))
	tx = append(tx, data[:]...)
	if _, err := r.transceive(tx, 1); err != nil {
		r.selected = false
		return mifare.NewCardError("write", block, errors.Join(mifare.ErrWriteRejected, err))
	}
	return nil
}

func (r *Radio) Close() error {
	_ = r.dev.InitiatorDeselectTarget()
	return r.dev.Close()
}
