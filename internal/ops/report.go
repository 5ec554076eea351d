package ops

import (
	"fmt"
	"strings"

	"cardprobe/internal/mifare"
)

// Operation names a card operation.
type Operation int

const (
	OpIdentify Operation = iota
	OpClassify
	OpDump
	OpReadBlock
	OpWriteBlock
	OpEraseBlock
)

func (o Operation) String() string {
	switch o {
	case OpIdentify:
		return "identify"
	case OpClassify:
		return "classify"
	case OpDump:
		return "dump"
	case OpReadBlock:
		return "read"
	case OpWriteBlock:
		return "write"
	case OpEraseBlock:
		return "erase"
	default:
		return "unknown"
	}
}

// Outcome is how an operation ended.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeNoCard
	OutcomeAuthFailed
	OutcomeReadFailed
	OutcomeWriteFailed
	OutcomeStorageFailed
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeNoCard:
		return "no card"
	case OutcomeAuthFailed:
		return "auth failed"
	case OutcomeReadFailed:
		return "read failed"
	case OutcomeWriteFailed:
		return "write failed"
	case OutcomeStorageFailed:
		return "storage failed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Report is the typed result of one operation. Title and Lines render it.
type Report struct {
	Op      Operation
	Outcome Outcome
	Card    mifare.CardID
	Class   mifare.Classification
	Block   int
	Data    mifare.Block
	Match   mifare.Match
	Source  string
	File    string
	// Authenticated counts dump blocks opened by some key.
	Authenticated int
	Total         int
	Err           error
}

func (r Report) OK() bool {
	return r.Outcome == OutcomeOK
}

func (r Report) Title() string {
	switch r.Op {
	case OpIdentify:
		return "READ UID"
	case OpClassify:
		return "CARD TYPE"
	case OpDump:
		return "DUMP CARD"
	case OpReadBlock:
		return fmt.Sprintf("READ BLOCK %d", r.Block)
	case OpWriteBlock:
		return fmt.Sprintf("WRITE BLOCK %d", r.Block)
	case OpEraseBlock:
		return fmt.Sprintf("ERASE BLOCK %d", r.Block)
	default:
		return "RESULT"
	}
}

// Lines renders the report body for a narrow text display.
func (r Report) Lines() []string {
	switch r.Outcome {
	case OutcomeNoCard:
		return []string{"Card not found"}
	case OutcomeCancelled:
		return []string{"Cancelled"}
	case OutcomeStorageFailed:
		lines := []string{"SD write failed"}
		if r.File != "" {
			lines = append(lines, r.File)
		}
		return lines
	case OutcomeAuthFailed:
		if r.Op == OpDump {
			return []string{
				"Auth failed",
				fmt.Sprintf("0/%d blocks read", r.Total),
				"Zeros saved:",
				r.File,
			}
		}
		return []string{"Auth failed", fmt.Sprintf("%d auth attempts", r.Match.Attempts)}
	case OutcomeReadFailed:
		return []string{"Read failed", r.keyLine()}
	case OutcomeWriteFailed:
		return []string{"Write failed", r.keyLine()}
	}

	switch r.Op {
	case OpIdentify:
		return []string{r.Card.String(), fmt.Sprintf("%d byte UID", r.Card.Len())}
	case OpClassify:
		lines := []string{r.Class.Family.String(), fmt.Sprintf("UID: %d bytes", r.Class.UIDLen)}
		if r.Class.Hint != "" {
			lines = append(lines, r.Class.Hint)
		}
		return lines
	case OpDump:
		return []string{
			"Saved:",
			r.File,
			fmt.Sprintf("%d/%d blocks read", r.Authenticated, r.Total),
		}
	case OpReadBlock:
		lines := chunkHex(r.Data[:], 6)
		return append(lines, r.keyLine())
	case OpWriteBlock:
		lines := []string{fmt.Sprintf("Block %d written", r.Block), r.keyLine()}
		if r.Source != "" {
			lines = append(lines, "From "+r.Source)
		}
		return lines
	case OpEraseBlock:
		return []string{fmt.Sprintf("Block %d erased", r.Block), r.keyLine()}
	default:
		return nil
	}
}

func (r Report) keyLine() string {
	return fmt.Sprintf("Key %s #%d", r.Match.Slot, r.Match.KeyIndex)
}

// String is a one-line rendering for logs and headless output.
func (r Report) String() string {
	return r.Title() + ": " + strings.Join(r.Lines(), " ")
}

func chunkHex(data []byte, per int) []string {
	out := make([]string, 0, (len(data)+per-1)/per)
	for start := 0; start < len(data); start += per {
		end := min(start+per, len(data))
		out = append(out, mifare.SpacedHex(data[start:end]))
	}
	return out
}
