package snapstream

import (
	"sync"

	"github.com/datasnap-io/snapstream/types"
)

// Subscription is one live consumption of a Stream. Snapshots arrive on
// Snapshots(); once that channel closes, Err reports why (nil for plain
// cancellation). Teardown, from whichever side it comes, seals the emitter
// first and then runs the controller release exactly once.
type Subscription struct {
	id         string
	controller *controller
	emitter    *emitter
	once       sync.Once
}

// ID is the subscription's ULID, shared with its log lines.
func (s *Subscription) ID() string {
	return s.id
}

// Snapshots is the emission channel. It closes on cancellation or on a
// terminal error; consumers own every snapshot they receive from it.
func (s *Subscription) Snapshots() <-chan types.Snapshot {
	return s.emitter.out
}

// Err returns the terminal error. It is meaningful once Snapshots is closed:
// nil after cancellation, the causing error otherwise.
func (s *Subscription) Err() error {
	return s.emitter.Err()
}

// State reports the subscription lifecycle state.
func (s *Subscription) State() types.SubscriptionState {
	return s.controller.State()
}

// Cancel tears the subscription down. Safe to call any number of times, from
// any goroutine.
func (s *Subscription) Cancel() {
	s.terminate(nil)
}

func (s *Subscription) terminate(err error) {
	s.once.Do(func() {
		s.emitter.close(err)
		s.controller.release()
	})
}
