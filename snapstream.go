// Package snapstream turns a content-store query plus a change-watch
// registration into a stream of result snapshots: subscribe, get the current
// snapshot, then get a fresh one after every change notification until the
// subscription is cancelled or a load fails.
package snapstream

import (
	"context"

	"github.com/piyushsingariya/relec/safego"

	"github.com/datasnap-io/snapstream/constants"
	"github.com/datasnap-io/snapstream/types"
)

type streamOptions struct {
	logQueries bool
	bufferSize int
}

type Option func(*streamOptions)

// WithQueryLogging enables a debug log line for every executed query. Read
// once per controller at subscribe time.
func WithQueryLogging(enabled bool) Option {
	return func(o *streamOptions) {
		o.logQueries = enabled
	}
}

// WithBufferSize sets the emitter queue capacity used by the bounded
// backpressure policies.
func WithBufferSize(size int) Option {
	return func(o *streamOptions) {
		if size > 0 {
			o.bufferSize = size
		}
	}
}

// Stream is a cold watched-query stream: every Subscribe builds its own
// controller and watch registration, nothing is shared between subscriptions.
type Stream struct {
	store     types.Store
	query     *types.Query
	scheduler Scheduler
	policy    types.BackpressurePolicy
	opts      streamOptions
}

// Create validates the inputs and builds a cold stream over store for query.
// scheduler runs the initial load and every reload; passing nil gives each
// subscription a private SerialScheduler that is stopped on release. It
// fails fast with ErrInvalidArgument before any subscription side effect.
func Create(store types.Store, query *types.Query, scheduler Scheduler, policy types.BackpressurePolicy, opts ...Option) (*Stream, error) {
	if store == nil {
		return nil, types.ErrInvalidArgument.New("store must not be nil")
	}
	if query == nil {
		return nil, types.ErrInvalidArgument.New("query must not be nil")
	}
	if err := query.Validate(); err != nil {
		return nil, types.ErrInvalidArgument.Wrap(err, "invalid query")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	options := streamOptions{bufferSize: constants.DefaultBufferSize}
	for _, apply := range opts {
		apply(&options)
	}

	return &Stream{
		store:     store,
		query:     query,
		scheduler: scheduler,
		policy:    policy,
		opts:      options,
	}, nil
}

// Subscribe starts a fresh subscription: the watch registration and initial
// load happen asynchronously on the scheduler, snapshots and the terminal
// outcome are delivered through the returned Subscription. Cancelling ctx
// cancels the subscription.
func (s *Stream) Subscribe(ctx context.Context) *Subscription {
	if ctx == nil {
		ctx = context.Background()
	}

	scheduler := s.scheduler
	ownsSched := false
	if scheduler == nil {
		scheduler = NewSerialScheduler()
		ownsSched = true
	}

	em := newEmitter(s.policy, s.opts.bufferSize)
	ctrl := newController(ctx, s.store, s.query, scheduler, ownsSched, s.opts.logQueries)
	sub := &Subscription{
		id:         ctrl.id,
		controller: ctrl,
		emitter:    em,
	}
	em.overflow = sub.terminate
	em.start()

	scheduler.Schedule(func() {
		ctrl.subscribe(sub)
	})

	if ctx.Done() != nil {
		go func() {
			defer safego.Recovery(true)
			select {
			case <-ctx.Done():
				sub.terminate(ctx.Err())
			case <-em.stopped:
			}
		}()
	}

	return sub
}
