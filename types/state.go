package types

// SubscriptionState is the lifecycle state of one subscription controller.
// A change-watch is registered if and only if the state is RegisteredIdle or
// Reloading.
type SubscriptionState string

const (
	Unregistered   SubscriptionState = "unregistered"
	RegisteredIdle SubscriptionState = "registered_idle"
	Reloading      SubscriptionState = "reloading"
	Released       SubscriptionState = "released"
)
