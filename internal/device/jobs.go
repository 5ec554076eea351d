package device

import (
	"time"

	"cardprobe/internal/ops"
)

// startJob shows the busy screen and steps job from the next tick on.
func (e *Engine) startJob(job ops.Job, returnTo View) {
	e.msg = message{
		title:    ops.Report{Op: job.Op(), Block: e.opts.TargetBlock}.Title(),
		job:      job,
		progress: ops.Progress{Phase: ops.PhaseDetect},
		returnTo: returnTo,
	}
	e.setView(ViewActionMessage)
	e.log.WithField("op", job.Op().String()).Debug("operation started")
}

func (e *Engine) stepJob(now time.Time) {
	job := e.msg.job
	if e.msg.started.IsZero() {
		e.msg.started = now
	}
	p := job.Step(e.context(), now)
	if p.Phase != e.msg.progress.Phase || p.Done != e.msg.progress.Done {
		e.dirty = true
	}
	e.msg.progress = p

	switch p.Phase {
	case ops.PhaseConfirm:
		e.confirm(p.Prompt, func() { job.Resolve(true) }, func() { job.Resolve(false) })
	case ops.PhaseDone:
		r := job.Report()
		e.log.WithField("elapsed", now.Sub(e.msg.started).String()).Debug("operation report shown")
		e.showMessage(r.Title(), r.Lines(), e.msg.returnTo)
	}
}
