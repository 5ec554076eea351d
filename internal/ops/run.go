package ops

import (
	"context"
	"time"
)

// detectGap spaces out presence polls when the radio answers immediately.
const detectGap = 20 * time.Millisecond

// ConfirmFunc answers a job's confirmation prompt.
type ConfirmFunc func(prompt string) bool

// Run steps job to completion on the calling goroutine. confirm answers
// overwrite prompts; a nil confirm declines. progress may be nil.
func Run(ctx context.Context, job Job, confirm ConfirmFunc, progress func(Progress)) Report {
	for {
		p := job.Step(ctx, time.Now())
		if progress != nil {
			progress(p)
		}

		switch p.Phase {
		case PhaseDone:
			return job.Report()
		case PhaseConfirm:
			accept := false
			if confirm != nil {
				accept = confirm(p.Prompt)
			}
			job.Resolve(accept)
		case PhaseDetect:
			select {
			case <-ctx.Done():
			case <-time.After(detectGap):
			}
		}
	}
}
