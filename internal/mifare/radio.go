package mifare

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cardprobe/internal/keys"
)

var (
	ErrNoCard        = errors.New("card not found")
	ErrAuthFailed    = errors.New("authentication failed")
	ErrNotAuthorized = errors.New("sector not authenticated")
	ErrReadRejected  = errors.New("card rejected read")
	ErrWriteRejected = errors.New("card rejected write")
	ErrBadBlock      = errors.New("block out of range")
)

// Radio is the contactless front-end. Implementations keep the currently
// selected card as session state; Authenticate re-selects the card when a
// previous attempt left it halted.
type Radio interface {
	// Detect polls for a card for at most timeout. It returns ErrNoCard when
	// nothing answered in time.
	Detect(ctx context.Context, timeout time.Duration) (CardID, error)
	Authenticate(ctx context.Context, id CardID, block int, slot KeySlot, key keys.Key) error
	ReadBlock(ctx context.Context, block int) (Block, error)
	WriteBlock(ctx context.Context, block int, data Block) error
}

// Checker is implemented by collaborators that can report readiness at
// startup.
type Checker interface {
	Ready() error
}

// CardError wraps a card operation failure with its block address.
type CardError struct {
	Op    string
	Block int
	Err   error
}

func (e *CardError) Error() string {
	return fmt.Sprintf("%s block %d: %v", e.Op, e.Block, e.Err)
}

func (e *CardError) Unwrap() error {
	return e.Err
}

// NewCardError wraps err unless it is nil.
func NewCardError(op string, block int, err error) error {
	if err == nil {
		return nil
	}
	return &CardError{Op: op, Block: block, Err: err}
}
