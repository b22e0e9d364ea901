// Package gate suspends staff actions once the server has blocked the session.
package gate

import (
	"errors"
	"fmt"

	"waitboard/internal/store"
)

// ErrBlocked matches every BlockedError.
var ErrBlocked = errors.New("session blocked by server")

// BlockedError carries the latched block state.
type BlockedError struct {
	State store.BlockState
}

func (e *BlockedError) Error() string {
	if e.State.Reason == "" {
		return ErrBlocked.Error()
	}
	return fmt.Sprintf("%s: %s", ErrBlocked, e.State.Reason)
}

func (e *BlockedError) Is(target error) bool { return target == ErrBlocked }

// Source is the latch the gate reads.
type Source interface {
	Block() *store.BlockState
	Blocked() <-chan struct{}
}

// Gate is normal until the source latches a block, then blocked for the rest
// of the session.
type Gate struct {
	src Source
}

// New creates a gate over src.
func New(src Source) *Gate {
	return &Gate{src: src}
}

// Check returns a *BlockedError once the session is blocked.
func (g *Gate) Check() error {
	if st := g.src.Block(); st != nil {
		return &BlockedError{State: *st}
	}
	return nil
}

// Blocked reports whether interaction is suspended.
func (g *Gate) Blocked() bool {
	return g.src.Block() != nil
}

// Done returns a channel closed when the gate closes.
func (g *Gate) Done() <-chan struct{} {
	return g.src.Blocked()
}
