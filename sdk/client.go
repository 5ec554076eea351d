// Package sdk is a high-level MIFARE Classic client for Go applications:
// identify a card, dump it to storage, read and write single blocks.
package sdk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"cardprobe/internal/keys"
	"cardprobe/internal/mifare"
	"cardprobe/internal/ops"
	"cardprobe/internal/radio"
	"cardprobe/internal/storage"
)

var (
	ErrNoCard     = mifare.ErrNoCard
	ErrAuthFailed = mifare.ErrAuthFailed
	ErrDeclined   = errors.New("operation declined")
)

// Client owns one radio and one storage root. Operations are serialized.
type Client struct {
	cfg        Config
	radioName  string
	closeRadio radio.CloseFunc
	store      *storage.Dir
	seq        *ops.Sequencer
	keys       KeyInfo
	log        logrus.FieldLogger

	mu     sync.Mutex
	closed bool

	blocks   chan BlockEvent
	statuses chan StatusEvent
	errs     chan error
}

func Open(cfg Config) (*Client, error) {
	cfg = normalizeConfig(cfg)
	log := cfg.Log

	store, err := storage.NewDir(cfg.StorageRoot, storage.Options{})
	if err != nil {
		return nil, err
	}
	if err := store.Ready(); err != nil {
		return nil, err
	}

	radioOpts := radio.Options{
		Backend:        cfg.Backend,
		SerialPort:     cfg.SerialPort,
		BaudRate:       cfg.BaudRate,
		ReaderIndex:    cfg.ReaderIndex,
		Connstring:     cfg.Connstring,
		CommandTimeout: cfg.CommandTimeout,
		SimUID:         cfg.SimUID,
		SimPresent:     cfg.SimPresent,
	}
	front, closeRadio, err := radio.Open(radioOpts, log)
	if err != nil {
		return nil, err
	}
	if c, ok := front.(mifare.Checker); ok {
		if err := c.Ready(); err != nil {
			_ = closeRadio()
			return nil, fmt.Errorf("radio not ready: %w", err)
		}
	}

	dict, stats, err := keys.Load(store.FS(), cfg.KeyFile, cfg.KeyCapacity)
	if err != nil {
		log.WithError(err).Warn("key file unreadable, using defaults")
	}
	auth := mifare.NewAuthenticator(front, dict, log)

	c := &Client{
		cfg:        cfg,
		radioName:  radio.Name(radioOpts),
		closeRadio: closeRadio,
		store:      store,
		seq: ops.NewSequencer(front, auth, store, ops.Settings{
			DetectTimeout: cfg.DetectTimeout,
			DetectPoll:    cfg.DetectPoll,
			DumpExt:       cfg.DumpExt,
		}, log),
		keys: KeyInfo{
			File:      cfg.KeyFile,
			Keys:      dict.Len(),
			Valid:     stats.ValidLines,
			Malformed: stats.MalformedLines,
			Dropped:   stats.DroppedKeys,
			Defaults:  stats.UsedDefaults(),
		},
		log:      log,
		blocks:   make(chan BlockEvent, 64),
		statuses: make(chan StatusEvent, 32),
		errs:     make(chan error, 16),
	}
	c.emitStatus("opened " + c.radioName)
	return c, nil
}

// Blocks streams dump progress. Events are dropped when nobody reads.
func (c *Client) Blocks() <-chan BlockEvent {
	return c.blocks
}

func (c *Client) Statuses() <-chan StatusEvent {
	return c.statuses
}

func (c *Client) Errors() <-chan error {
	return c.errs
}

func (c *Client) RadioName() string {
	return c.radioName
}

func (c *Client) Keys() KeyInfo {
	return c.keys
}

func (c *Client) Identify(ctx context.Context) (Card, error) {
	r, err := c.run(ctx, c.seq.Classify(), nil)
	if err != nil {
		return Card{}, err
	}
	return cardFrom(r), nil
}

// Dump saves every block of the card in the field. overwrite answers the
// prompt shown when the dump file exists; nil declines. A dump where no
// block authenticated is still saved and reported with ErrAuthFailed.
func (c *Client) Dump(ctx context.Context, overwrite func(prompt string) bool) (DumpResult, error) {
	r, err := c.run(ctx, c.seq.Dump(), overwrite)
	res := DumpResult{Card: cardFrom(r), File: r.File, BlocksRead: r.Authenticated, Total: r.Total}
	return res, err
}

func (c *Client) ReadBlock(ctx context.Context, block int) ([16]byte, error) {
	r, err := c.run(ctx, c.seq.ReadBlock(block), nil)
	return r.Data, err
}

func (c *Client) WriteBlock(ctx context.Context, block int, data [16]byte) error {
	_, err := c.run(ctx, c.seq.WriteBlock(block, mifare.Block(data), ""), nil)
	return err
}

func (c *Client) EraseBlock(ctx context.Context, block int) error {
	_, err := c.run(ctx, c.seq.EraseBlock(block), nil)
	return err
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.emitStatus("closed")
	return c.closeRadio()
}

func (c *Client) run(ctx context.Context, job ops.Job, confirm ops.ConfirmFunc) (ops.Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ops.Report{}, errors.New("client closed")
	}
	c.emitStatus(job.Op().String() + " started")
	r := ops.Run(ctx, job, confirm, c.onProgress)
	err := reportErr(ctx, r)
	if err != nil {
		c.emitErr(err)
	}
	c.emitStatus(job.Op().String() + " " + r.Outcome.String())
	return r, err
}

func (c *Client) onProgress(p ops.Progress) {
	if p.Dump == nil {
		return
	}
	c.emitBlock(BlockEvent{
		When:  time.Now(),
		Block: p.Dump.Block,
		Read:  p.Dump.Outcome == ops.BlockRead,
		Done:  p.Done,
		Total: p.Total,
	})
}

func cardFrom(r ops.Report) Card {
	if r.Card.Empty() {
		return Card{}
	}
	class := r.Class
	if class.UIDLen == 0 {
		class = mifare.Classify(r.Card)
	}
	return Card{
		UID:    r.Card.Hex(),
		ATQA:   r.Card.ATQA,
		SAK:    r.Card.SAK,
		HasSAK: r.Card.HasSAK,
		Family: class.Family.String(),
		Hint:   class.Hint,
	}
}

func reportErr(ctx context.Context, r ops.Report) error {
	switch r.Outcome {
	case ops.OutcomeOK:
		return nil
	case ops.OutcomeNoCard:
		return ErrNoCard
	case ops.OutcomeAuthFailed:
		return ErrAuthFailed
	case ops.OutcomeCancelled:
		if err := ctx.Err(); err != nil {
			return err
		}
		return ErrDeclined
	case ops.OutcomeStorageFailed:
		return fmt.Errorf("save %s: %w", r.File, r.Err)
	default:
		if r.Err != nil {
			return r.Err
		}
		return errors.New(r.Outcome.String())
	}
}
