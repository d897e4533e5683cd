package snapstream

import (
	"sync"

	"github.com/piyushsingariya/relec/safego"

	"github.com/datasnap-io/snapstream/types"
)

// emitter sits between the controller (producer) and the subscription
// channel (consumer) and applies the stream's backpressure policy. Snapshots
// that never reach the consumer, whether dropped by policy or pending at
// teardown, are closed here since their ownership was never handed over.
type emitter struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    []types.Snapshot
	capacity int // <= 0 means unbounded
	policy   types.BackpressurePolicy
	closed   bool
	err      error

	out      chan types.Snapshot
	stopped  chan struct{}
	overflow func(error)
}

func newEmitter(policy types.BackpressurePolicy, capacity int) *emitter {
	if policy == types.BufferUnbounded {
		capacity = 0
	}
	e := &emitter{
		capacity: capacity,
		policy:   policy,
		out:      make(chan types.Snapshot),
		stopped:  make(chan struct{}),
	}
	e.cond = sync.NewCond(&e.mu)
	return e
}

func (e *emitter) start() {
	go e.pump()
}

// emit enqueues a snapshot for delivery, applying the backpressure policy
// when the queue is at capacity. Emitting into a closed emitter releases the
// snapshot and is otherwise a no-op.
func (e *emitter) emit(snapshot types.Snapshot) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		snapshot.Close()
		return
	}

	if e.capacity > 0 && len(e.queue) >= e.capacity {
		switch e.policy {
		case types.DropOldest:
			oldest := e.queue[0]
			e.queue = e.queue[1:]
			oldest.Close()
		case types.DropLatest:
			e.mu.Unlock()
			snapshot.Close()
			return
		case types.ErrorOnOverflow:
			e.mu.Unlock()
			snapshot.Close()
			e.overflow(types.ErrBufferOverflow.New("consumer fell behind a buffer of %d snapshots", e.capacity))
			return
		case types.BlockProducer:
			for !e.closed && len(e.queue) >= e.capacity {
				e.cond.Wait()
			}
			if e.closed {
				e.mu.Unlock()
				snapshot.Close()
				return
			}
		}
	}

	e.queue = append(e.queue, snapshot)
	e.cond.Broadcast()
	e.mu.Unlock()
}

// close seals the emitter with a terminal error (nil for plain cancellation).
// The pump drains and releases whatever is still queued, then closes out.
func (e *emitter) close(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	e.err = err
	close(e.stopped)
	e.cond.Broadcast()
}

func (e *emitter) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// pump owns the out channel exclusively: it is the only goroutine sending on
// it and the only one closing it, so producers never race a channel close.
func (e *emitter) pump() {
	defer safego.Recovery(true)
	for {
		e.mu.Lock()
		for len(e.queue) == 0 && !e.closed {
			e.cond.Wait()
		}
		if len(e.queue) == 0 {
			e.mu.Unlock()
			close(e.out)
			return
		}
		snapshot := e.queue[0]
		e.queue = e.queue[1:]
		closed := e.closed
		e.cond.Broadcast()
		e.mu.Unlock()

		if closed {
			snapshot.Close()
			continue
		}

		select {
		case <-e.stopped:
			snapshot.Close()
		default:
			select {
			case e.out <- snapshot:
			case <-e.stopped:
				snapshot.Close()
			}
		}
	}
}
