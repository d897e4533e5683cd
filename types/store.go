package types

import "context"

// Watch is one change-watch registration against a locator. Stores track
// registrations by pointer identity: UnregisterWatch must be handed the same
// *Watch that RegisterWatch received.
type Watch struct {
	Locator string
	// IncludeDescendants requests notifications for descendant locators in
	// addition to the exact one.
	IncludeDescendants bool
	// OnChange is invoked by the store on its own goroutine for every change
	// to the watched locator. It must return quickly and must not block.
	OnChange func()
}

// Store is the narrow interface to the external watched resource.
//
// Implementations must not hold internal locks while invoking OnChange, and
// must never invoke OnChange synchronously from within RegisterWatch or
// UnregisterWatch.
type Store interface {
	// Query executes q and returns its snapshot. A nil snapshot with a nil
	// error means the locator is absent, which is distinct from an empty
	// result set.
	Query(ctx context.Context, query *Query) (Snapshot, error)
	RegisterWatch(watch *Watch) error
	// UnregisterWatch removes a registration. Unregistering a watch that is
	// not registered is a no-op.
	UnregisterWatch(watch *Watch) error
}
