package race

import (
	"context"
	"sync"
)

// Broadcast is the cancellation channel shared by the attempts of one race.
// The first attempt to succeed wins the race and every other attempt is
// cancelled.
type Broadcast struct {
	sync.Mutex
	enabled  bool
	won      bool
	attempts []*Attempt
}

// Attempt is one branch of a race.
type Attempt struct {
	broadcast *Broadcast
	cancel    context.CancelFunc
	succeeded bool
	aborted   bool
}

// NewBroadcast creates the broadcast for a single race. With cancellation
// disabled attempts run on their parent context and are never cancelled.
func NewBroadcast(cancellation bool) *Broadcast {
	return &Broadcast{enabled: cancellation}
}

// Attempt registers a new attempt, returning the context it must run on.
func (b *Broadcast) Attempt(parent context.Context) (context.Context, *Attempt) {
	a := &Attempt{broadcast: b}

	if !b.enabled {
		return parent, a
	}

	ctx, cancel := context.WithCancel(parent)
	a.cancel = cancel

	b.Lock()
	b.attempts = append(b.attempts, a)
	b.Unlock()

	return ctx, a
}

// Succeed claims the win for the attempt and cancels all other attempts. It
// returns false when another attempt already won or this one was cancelled, in
// which case the caller must drop its result. The winner is never cancelled.
func (a *Attempt) Succeed() bool {
	b := a.broadcast

	b.Lock()
	defer b.Unlock()

	if b.won || a.aborted {
		return false
	}

	b.won = true
	a.succeeded = true

	for _, other := range b.attempts {
		if other == a || other.aborted {
			continue
		}

		other.aborted = true
		other.cancel()
	}

	return true
}

// Won reports whether the attempt won the race.
func (a *Attempt) Won() bool {
	a.broadcast.Lock()
	defer a.broadcast.Unlock()

	return a.succeeded
}

// Aborted reports whether the attempt was cancelled by another attempt's success.
func (a *Attempt) Aborted() bool {
	a.broadcast.Lock()
	defer a.broadcast.Unlock()

	return a.aborted
}

// Release frees the context of the attempt once its result is no longer in use.
func (a *Attempt) Release() {
	if a.cancel != nil {
		a.cancel()
	}
}
