package ops

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"cardprobe/internal/mifare"
)

// Phase is where a job is in its detect, act, report sequence.
type Phase int

const (
	PhaseDetect Phase = iota
	PhaseConfirm
	PhaseWork
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseDetect:
		return "detect"
	case PhaseConfirm:
		return "confirm"
	case PhaseWork:
		return "work"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// BlockOutcome records what a dump stored for one block.
type BlockOutcome int

const (
	BlockRead BlockOutcome = iota
	BlockPlaceholder
)

// DumpProgress is emitted once per dumped block.
type DumpProgress struct {
	Block   int
	Outcome BlockOutcome
}

// Progress is returned by every Step.
type Progress struct {
	Phase Phase
	// Prompt is set in PhaseConfirm.
	Prompt string
	Done   int
	Total  int
	Dump   *DumpProgress
}

// Job is one cooperative card operation. Each Step does a bounded amount of
// radio work and returns; the caller steps again until PhaseDone. In
// PhaseConfirm the job waits for Resolve and Step is a no-op.
type Job interface {
	Op() Operation
	Step(ctx context.Context, now time.Time) Progress
	Resolve(accept bool)
	Report() Report
}

type job struct {
	seq      *Sequencer
	op       Operation
	phase    Phase
	deadline time.Time
	card     mifare.CardID
	block    int
	payload  mifare.Block
	source   string
	report   Report
	lastErr  error
	dump     *dumpState
	log      logrus.FieldLogger
}

func (j *job) Op() Operation {
	return j.op
}

func (j *job) Report() Report {
	return j.report
}

func (j *job) Step(ctx context.Context, now time.Time) Progress {
	if j.phase != PhaseDone && j.phase != PhaseConfirm && ctx.Err() != nil {
		j.finish(Report{Outcome: OutcomeCancelled, Err: ctx.Err()})
		return j.progress()
	}

	switch j.phase {
	case PhaseDetect:
		j.stepDetect(ctx, now)
	case PhaseWork:
		if j.op == OpDump {
			return j.stepDump(ctx)
		}
		j.stepBlock(ctx)
	}
	return j.progress()
}

func (j *job) Resolve(accept bool) {
	if j.phase != PhaseConfirm {
		return
	}
	if !accept {
		j.log.WithField("file", j.dump.name).Info("dump overwrite declined")
		j.finish(Report{Outcome: OutcomeCancelled, File: j.dump.name})
		return
	}
	j.phase = PhaseWork
}

func (j *job) progress() Progress {
	p := Progress{Phase: j.phase}
	switch j.phase {
	case PhaseConfirm:
		p.Prompt = "Overwrite " + j.dump.name + "?"
	case PhaseWork, PhaseDone:
		if j.dump != nil {
			p.Done = len(j.dump.image) / mifare.BlockSize
			p.Total = mifare.BlockCount
		}
	}
	return p
}

func (j *job) stepDetect(ctx context.Context, now time.Time) {
	if j.deadline.IsZero() {
		j.deadline = now.Add(j.seq.settings.DetectTimeout)
	}

	id, err := j.seq.radio.Detect(ctx, j.seq.settings.DetectPoll)
	if err == nil && !id.Empty() {
		j.card = id
		j.log = j.log.WithField("uid", id.Hex())
		j.afterDetect()
		return
	}
	if err != nil && !errors.Is(err, mifare.ErrNoCard) {
		j.lastErr = err
	}
	if !now.Before(j.deadline) {
		j.finish(Report{Outcome: OutcomeNoCard, Err: j.lastErr})
	}
}

func (j *job) afterDetect() {
	switch j.op {
	case OpIdentify:
		j.finish(Report{Outcome: OutcomeOK})
	case OpClassify:
		j.finish(Report{Outcome: OutcomeOK, Class: mifare.Classify(j.card)})
	case OpDump:
		j.startDump()
	default:
		j.phase = PhaseWork
	}
}

func (j *job) stepBlock(ctx context.Context) {
	match, ok := j.seq.auth.Authenticate(ctx, j.card, j.block)
	if !ok {
		j.finish(Report{Outcome: OutcomeAuthFailed, Match: match})
		return
	}

	switch j.op {
	case OpReadBlock:
		data, err := j.seq.radio.ReadBlock(ctx, j.block)
		if err != nil {
			j.finish(Report{Outcome: OutcomeReadFailed, Match: match, Err: err})
			return
		}
		j.finish(Report{Outcome: OutcomeOK, Match: match, Data: data})
	case OpWriteBlock, OpEraseBlock:
		if err := j.seq.radio.WriteBlock(ctx, j.block, j.payload); err != nil {
			j.finish(Report{Outcome: OutcomeWriteFailed, Match: match, Data: j.payload, Err: err})
			return
		}
		j.finish(Report{Outcome: OutcomeOK, Match: match, Data: j.payload})
	}
}

func (j *job) finish(r Report) {
	r.Op = j.op
	r.Card = j.card
	r.Block = j.block
	if r.Source == "" {
		r.Source = j.source
	}
	j.report = r
	j.phase = PhaseDone

	entry := j.log.WithFields(logrus.Fields{
		"op":      j.op.String(),
		"outcome": r.Outcome.String(),
	})
	if r.Err != nil {
		entry = entry.WithError(r.Err)
	}
	if r.OK() {
		entry.Info("operation finished")
	} else {
		entry.Warn("operation finished")
	}
}
