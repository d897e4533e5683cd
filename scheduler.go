package snapstream

import (
	"sync"

	"github.com/piyushsingariya/relec/safego"
)

// Scheduler runs controller work off the store's notifier goroutine. The
// change-notification handler only enqueues work; Schedule must therefore
// never block its caller.
type Scheduler interface {
	Schedule(fn func())
}

// SerialScheduler runs tasks one at a time, FIFO, on a single goroutine. It
// is the recommended scheduler: with every load running on one goroutine,
// reloads can never overlap and snapshots are emitted in notification order.
type SerialScheduler struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	stopped bool
}

func NewSerialScheduler() *SerialScheduler {
	s := &SerialScheduler{}
	s.cond = sync.NewCond(&s.mu)
	go s.run()
	return s
}

func (s *SerialScheduler) Schedule(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.queue = append(s.queue, fn)
	s.cond.Signal()
}

func (s *SerialScheduler) run() {
	defer safego.Recovery(true)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.stopped {
			s.cond.Wait()
		}
		if s.stopped {
			s.mu.Unlock()
			return
		}
		fn := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		fn()
	}
}

// Stop shuts the worker down and discards queued tasks. It only signals, so
// it is safe to call from a task running on the worker itself.
func (s *SerialScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	s.queue = nil
	s.cond.Broadcast()
}

// ImmediateScheduler runs tasks inline on the calling goroutine. Loads then
// execute on whichever goroutine triggered them, including the store's
// notifier goroutine, so it is only suitable for stores that tolerate
// blocking callbacks (tests, single-threaded tooling).
type ImmediateScheduler struct{}

func (ImmediateScheduler) Schedule(fn func()) {
	fn()
}
