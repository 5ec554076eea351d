package reader

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"cardprobe/internal/keys"
	"cardprobe/internal/mifare"
	"cardprobe/internal/protocol/pn532"
)

const (
	defaultCommandTimeout = 500 * time.Millisecond
	pollGap               = 20 * time.Millisecond
	// statusOK is the InDataExchange success status.
	statusOK byte = 0x00
)

// PN532 drives MIFARE Classic cards through a PN532 on a serial link.
type PN532 struct {
	client   *Client
	timeout  time.Duration
	log      logrus.FieldLogger
	firmware pn532.FirmwareVersion
	target   byte
	card     mifare.CardID
	selected bool
}

func NewPN532(client *Client, timeout time.Duration, log logrus.FieldLogger) *PN532 {
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &PN532{client: client, timeout: timeout, log: log}
}

func (r *PN532) Firmware() pn532.FirmwareVersion {
	return r.firmware
}

// Ready wakes the chip, configures the SAM and checks the firmware answer.
func (r *PN532) Ready() error {
	ctx, cancel := context.WithTimeout(context.Background(), 4*r.timeout)
	defer cancel()

	if err := r.client.SendRaw(pn532.WakeUp); err != nil {
		return fmt.Errorf("wake reader: %w", err)
	}
	if _, err := r.client.Exchange(ctx, pn532.SAMConfigurationCommand(), r.timeout); err != nil {
		return fmt.Errorf("configure SAM: %w", err)
	}
	frame, err := r.client.Exchange(ctx, pn532.GetFirmwareVersionCommand(), r.timeout)
	if err != nil {
		return fmt.Errorf("query firmware: %w", err)
	}
	fw, err := pn532.ParseFirmwareVersion(frame)
	if err != nil {
		return err
	}
	r.firmware = fw
	if _, err := r.client.Exchange(ctx, pn532.MaxRetriesCommand(0x01), r.timeout); err != nil {
		return fmt.Errorf("limit passive retries: %w", err)
	}
	r.log.WithField("firmware", fw.String()).Info("pn532 ready")
	return nil
}

func (r *PN532) listTarget(ctx context.Context) (pn532.Target, bool, error) {
	frame, err := r.client.Exchange(ctx, pn532.InListPassiveTargetCommand(1), r.timeout)
	if err != nil {
		return pn532.Target{}, false, err
	}
	return pn532.ParseTargetList(frame)
}

func (r *PN532) Detect(ctx context.Context, timeout time.Duration) (mifare.CardID, error) {
	deadline := time.Now().Add(timeout)
	r.selected = false
	for {
		target, ok, err := r.listTarget(ctx)
		if err != nil && ctx.Err() != nil {
			return mifare.CardID{}, ctx.Err()
		}
		if err == nil && ok {
			r.target = target.Number
			r.card = mifare.CardID{UID: target.UID, ATQA: target.ATQA, SAK: target.SAK, HasSAK: true}
			r.selected = true
			return r.card, nil
		}
		if err != nil {
			r.log.WithError(err).Debug("passive target poll failed")
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

// reselect brings a halted card back after a failed authentication.
func (r *PN532) reselect(ctx context.Context, id mifare.CardID) error {
	target, ok, err := r.listTarget(ctx)
	if err != nil {
		return err
	}
	if !ok || !bytes.Equal(target.UID, id.UID) {
		return mifare.ErrNoCard
	}
	r.target = target.Number
	r.selected = true
	return nil
}

func (r *PN532) exchange(ctx context.Context, packet []byte) (byte, []byte, error) {
	frame, err := r.client.Exchange(ctx, packet, r.timeout)
	if err != nil {
		return 0, nil, err
	}
	return pn532.ParseDataExchange(frame)
}

func (r *PN532) Authenticate(ctx context.Context, id mifare.CardID, block int, slot mifare.KeySlot, key keys.Key) error {
	if !mifare.ValidBlock(block) {
		return mifare.ErrBadBlock
	}
	if !r.selected {
		if err := r.reselect(ctx, id); err != nil {
			return err
		}
	}

	status, _, err := r.exchange(ctx, pn532.MifareAuthCommand(r.target, byte(slot), byte(block), key, id.AuthUID()))
	if err != nil {
		r.selected = false
		return err
	}
	if status != statusOK {
		r.selected = false
		return mifare.ErrAuthFailed
	}
	return nil
}

func (r *PN532) ReadBlock(ctx context.Context, block int) (mifare.Block, error) {
	if !mifare.ValidBlock(block) {
		return mifare.Block{}, mifare.ErrBadBlock
	}
	status, data, err := r.exchange(ctx, pn532.MifareReadCommand(r.target, byte(block)))
	if err != nil {
		return mifare.Block{}, mifare.NewCardError("read", block, err)
	}
	if status != statusOK {
		r.selected = false
		return mifare.Block{}, mifare.NewCardError("read", block, mifare.ErrReadRejected)
	}
	out, err := mifare.BlockFrom(data)
	if err != nil {
		return mifare.Block{}, mifare.NewCardError("read", block, err)
	}
	return out, nil
}

func (r *PN532) WriteBlock(ctx context.Context, block int, data mifare.Block) error {
	if !mifare.ValidBlock(block) {
		return mifare.ErrBadBlock
	}
	status, _, err := r.exchange(ctx, pn532.MifareWriteCommand(r.target, byte(block), data))
	if err != nil {
		return mifare.NewCardError("write", block, err)
	}
	if status != statusOK {
		r.selected = false
		return mifare.NewCardError("write", block, mifare.ErrWriteRejected)
	}
	return nil
}

// Close releases the target and the serial session.
func (r *PN532) Close() error {
	if r.client.IsConnected() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		_, _ = r.client.Exchange(ctx, pn532.InReleaseCommand(0), r.timeout)
		cancel()
	}
	return r.client.Close()
}
