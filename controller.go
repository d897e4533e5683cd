package snapstream

import (
	"context"
	"sync"

	"github.com/datasnap-io/snapstream/logger"
	"github.com/datasnap-io/snapstream/types"
	"github.com/datasnap-io/snapstream/utils"
)

// controller owns the watch registration and emission logic for exactly one
// subscription. It is driven by two external triggers, the initial subscribe
// task and change notifications, and is never reused across subscriptions.
//
// The mutex guards the lifecycle fields (state, watch, sub) and is held
// across the unregister call; the store query itself always runs outside it.
type controller struct {
	id         string
	store      types.Store
	query      *types.Query
	scheduler  Scheduler
	ownsSched  bool
	logQueries bool
	ctx        context.Context

	mu           sync.Mutex
	state        types.SubscriptionState
	watch        *types.Watch
	sub          *Subscription
	reloadQueued bool
}

func newController(ctx context.Context, store types.Store, query *types.Query, scheduler Scheduler, ownsSched bool, logQueries bool) *controller {
	return &controller{
		id:         utils.ULID(),
		store:      store,
		query:      query,
		scheduler:  scheduler,
		ownsSched:  ownsSched,
		logQueries: logQueries,
		ctx:        ctx,
		state:      types.Unregistered,
	}
}

// subscribe records the emitter, registers the change-watch and runs the
// initial load. It executes as the first task on the subscription scheduler.
func (c *controller) subscribe(sub *Subscription) {
	watch := &types.Watch{
		Locator:            c.query.Locator,
		IncludeDescendants: true,
		OnChange:           c.onChange,
	}

	c.mu.Lock()
	if c.state == types.Released {
		c.mu.Unlock()
		return
	}
	c.sub = sub
	if err := c.store.RegisterWatch(watch); err != nil {
		c.mu.Unlock()
		sub.terminate(types.ErrStoreFailure.Wrap(err, "failed to register change watch on %s", c.query.Locator))
		return
	}
	c.watch = watch
	c.state = types.RegisteredIdle
	c.mu.Unlock()

	c.reload()
}

// onChange is invoked by the store on its own goroutine. It hands the reload
// to the scheduler and returns immediately; notifications arriving while a
// reload is already queued are coalesced into it.
func (c *controller) onChange() {
	c.mu.Lock()
	if c.state == types.Released || c.reloadQueued {
		c.mu.Unlock()
		return
	}
	c.reloadQueued = true
	c.mu.Unlock()

	c.scheduler.Schedule(c.reload)
}

// reload executes the query and emits the resulting snapshot. A nil snapshot
// (absent, as opposed to empty) and any store error are terminal for the
// stream. A reload that lost the race with release discards its result; the
// emitter's own closed check suppresses anything that slips past.
func (c *controller) reload() {
	c.mu.Lock()
	c.reloadQueued = false
	if c.state == types.Released {
		c.mu.Unlock()
		return
	}
	c.state = types.Reloading
	sub := c.sub
	c.mu.Unlock()

	if c.logQueries {
		logger.Debugf("subscription[%s] query[%d] executing: %s", c.id, c.query.Hash(), c.query)
	}

	snapshot, err := c.store.Query(c.ctx, c.query)

	c.mu.Lock()
	if c.state == types.Released {
		c.mu.Unlock()
		if snapshot != nil {
			snapshot.Close()
		}
		return
	}
	c.state = types.RegisteredIdle
	c.mu.Unlock()

	switch {
	case err != nil:
		sub.terminate(types.ErrStoreFailure.Wrap(err, "query against %s failed", c.query.Locator))
	case snapshot == nil:
		sub.terminate(types.ErrQueryReturnedNull.New("store returned no result for %s", c.query.Locator))
	default:
		sub.emitter.emit(snapshot)
	}
}

// release unregisters the watch, drops the emitter reference and stops an
// owned scheduler. Idempotent; an unregister failure is logged, never
// propagated to the consumer.
func (c *controller) release() {
	c.mu.Lock()
	if c.state == types.Released {
		c.mu.Unlock()
		return
	}
	c.state = types.Released
	if c.watch != nil {
		if err := c.store.UnregisterWatch(c.watch); err != nil {
			logger.Warnf("subscription[%s] failed to unregister watch on %s: %s", c.id, c.query.Locator, err)
		}
		c.watch = nil
	}
	c.sub = nil
	c.mu.Unlock()

	if c.ownsSched {
		if serial, ok := c.scheduler.(*SerialScheduler); ok {
			serial.Stop()
		}
	}
}

// State reports the controller lifecycle state.
func (c *controller) State() types.SubscriptionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
