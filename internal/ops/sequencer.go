package ops

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"cardprobe/internal/mifare"
	"cardprobe/internal/storage"
)

// Default sequencing parameters.
const (
	DefaultDetectTimeout = 3 * time.Second
	DefaultDetectPoll    = 100 * time.Millisecond
	DefaultDumpExt       = ".mfd"
)

// Settings tune the sequencer.
type Settings struct {
	DetectTimeout time.Duration
	DetectPoll    time.Duration
	DumpExt       string
}

func (s Settings) normalized() Settings {
	if s.DetectTimeout <= 0 {
		s.DetectTimeout = DefaultDetectTimeout
	}
	if s.DetectPoll <= 0 {
		s.DetectPoll = DefaultDetectPoll
	}
	s.DumpExt = strings.TrimSpace(s.DumpExt)
	if s.DumpExt == "" {
		s.DumpExt = DefaultDumpExt
	}
	if !strings.HasPrefix(s.DumpExt, ".") {
		s.DumpExt = "." + s.DumpExt
	}
	return s
}

// Sequencer builds card operation jobs on top of the authenticator.
type Sequencer struct {
	radio    mifare.Radio
	auth     *mifare.Authenticator
	store    storage.Store
	settings Settings
	log      logrus.FieldLogger
}

func NewSequencer(radio mifare.Radio, auth *mifare.Authenticator, store storage.Store, settings Settings, log logrus.FieldLogger) *Sequencer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Sequencer{
		radio:    radio,
		auth:     auth,
		store:    store,
		settings: settings.normalized(),
		log:      log,
	}
}

func (s *Sequencer) Settings() Settings {
	return s.settings
}

// DumpName is the file a card's image is saved under.
func (s *Sequencer) DumpName(id mifare.CardID) string {
	return id.Hex() + s.settings.DumpExt
}

func (s *Sequencer) newJob(op Operation, block int) *job {
	return &job{
		seq:   s,
		op:    op,
		phase: PhaseDetect,
		block: block,
		log:   s.log.WithField("op", op.String()),
	}
}

// Identify reads the UID of the card in the field.
func (s *Sequencer) Identify() Job {
	return s.newJob(OpIdentify, 0)
}

// Classify guesses the card family from its UID length.
func (s *Sequencer) Classify() Job {
	return s.newJob(OpClassify, 0)
}

// ReadBlock authenticates and reads one block.
func (s *Sequencer) ReadBlock(block int) Job {
	return s.newJob(OpReadBlock, block)
}

// WriteBlock authenticates and writes data to one block. source names the
// file the payload came from, if any.
func (s *Sequencer) WriteBlock(block int, data mifare.Block, source string) Job {
	j := s.newJob(OpWriteBlock, block)
	j.payload = data
	j.source = source
	return j
}

// EraseBlock authenticates and writes 16 zero bytes to one block.
func (s *Sequencer) EraseBlock(block int) Job {
	return s.newJob(OpEraseBlock, block)
}

// Dump reads all 64 blocks into a 1024 byte image named after the UID.
// Blocks no key opens are stored as zeros.
func (s *Sequencer) Dump() Job {
	return s.newJob(OpDump, 0)
}

type dumpState struct {
	name          string
	next          int
	image         []byte
	authenticated int
}

func (j *job) startDump() {
	name := j.seq.DumpName(j.card)
	j.dump = &dumpState{
		name:  name,
		image: make([]byte, 0, mifare.ImageSize),
	}

	exists, err := j.seq.store.Exists(name)
	if err != nil {
		j.finish(Report{Outcome: OutcomeStorageFailed, File: name, Err: err})
		return
	}
	if exists {
		j.phase = PhaseConfirm
		return
	}
	j.phase = PhaseWork
}

func (j *job) stepDump(ctx context.Context) Progress {
	d := j.dump
	block := d.next
	outcome := BlockPlaceholder

	if _, ok := j.seq.auth.Authenticate(ctx, j.card, block); ok {
		d.authenticated++
		data, err := j.seq.radio.ReadBlock(ctx, block)
		if err == nil {
			d.image = append(d.image, data[:]...)
			outcome = BlockRead
		} else {
			j.log.WithError(err).WithField("block", block).Warn("read after auth failed")
		}
	}
	if outcome == BlockPlaceholder {
		var zero mifare.Block
		d.image = append(d.image, zero[:]...)
	}
	d.next++

	if d.next == mifare.BlockCount {
		j.finishDump()
	}

	p := j.progress()
	p.Dump = &DumpProgress{Block: block, Outcome: outcome}
	return p
}

func (j *job) finishDump() {
	d := j.dump
	r := Report{
		File:          d.name,
		Authenticated: d.authenticated,
		Total:         mifare.BlockCount,
	}
	if err := j.seq.store.WriteFile(d.name, d.image); err != nil {
		r.Outcome = OutcomeStorageFailed
		r.Err = err
		j.finish(r)
		return
	}
	if d.authenticated == 0 {
		r.Outcome = OutcomeAuthFailed
		j.finish(r)
		return
	}
	r.Outcome = OutcomeOK
	j.finish(r)
}
