package memory

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datasnap-io/snapstream/types"
)

func testStore() *Store {
	store := New()
	store.CreateTable("shop/inventory", "id", "name", "qty")
	store.Insert("shop/inventory",
		types.Record{"id": 1, "name": "apples", "qty": 40},
		types.Record{"id": 2, "name": "bananas", "qty": 12},
		types.Record{"id": 3, "name": "coffee", "qty": 7},
	)
	return store
}

func drain(t *testing.T, snapshot types.Snapshot) []types.Record {
	t.Helper()
	require.NotNil(t, snapshot)
	records := []types.Record{}
	for snapshot.Next() {
		records = append(records, snapshot.Record())
	}
	require.NoError(t, snapshot.Close())
	return records
}

func TestQueryProjection(t *testing.T) {
	store := testStore()

	snapshot, err := store.Query(context.Background(), types.NewQuery("shop/inventory").WithProjection("name"))
	require.NoError(t, err)
	records := drain(t, snapshot)

	require.Len(t, records, 3)
	assert.Equal(t, types.Record{"name": "apples"}, records[0])

	_, err = store.Query(context.Background(), types.NewQuery("shop/inventory").WithProjection("price"))
	assert.Error(t, err, "unknown projection columns are store failures")
}

func TestQueryFilter(t *testing.T) {
	store := testStore()
	ctx := context.Background()

	records := drain(t, mustQuery(t, store, types.NewQuery("shop/inventory").WithFilter("name = ?", "coffee")))
	require.Len(t, records, 1)
	assert.Equal(t, 3, records[0]["id"])

	records = drain(t, mustQuery(t, store, types.NewQuery("shop/inventory").WithFilter("name != ?", "coffee")))
	assert.Len(t, records, 2)

	records = drain(t, mustQuery(t, store, types.NewQuery("shop/inventory").WithFilter("name LIKE ?", "%an%")))
	require.Len(t, records, 1)
	assert.Equal(t, "bananas", records[0]["name"])

	_, err := store.Query(ctx, types.NewQuery("shop/inventory").WithFilter("name BETWEEN ?", 1))
	assert.Error(t, err)

	_, err = store.Query(ctx, types.NewQuery("shop/inventory").WithFilter("name = ?"))
	assert.Error(t, err, "filter args must match placeholders")
}

func TestQuerySortOrder(t *testing.T) {
	store := testStore()

	records := drain(t, mustQuery(t, store, types.NewQuery("shop/inventory").WithSortOrder("qty")))
	assert.Equal(t, "coffee", records[0]["name"])

	records = drain(t, mustQuery(t, store, types.NewQuery("shop/inventory").WithSortOrder("qty DESC")))
	assert.Equal(t, "apples", records[0]["name"])

	_, err := store.Query(context.Background(), types.NewQuery("shop/inventory").WithSortOrder("qty SIDEWAYS"))
	assert.Error(t, err)
}

func TestAbsentVersusEmpty(t *testing.T) {
	store := testStore()
	store.CreateTable("shop/empty", "id")

	snapshot, err := store.Query(context.Background(), types.NewQuery("shop/empty"))
	require.NoError(t, err)
	require.NotNil(t, snapshot, "an empty table is a valid, empty snapshot")
	assert.Empty(t, drain(t, snapshot))

	snapshot, err = store.Query(context.Background(), types.NewQuery("shop/nowhere"))
	require.NoError(t, err)
	assert.Nil(t, snapshot, "a missing locator is absent, not empty")
}

func TestWatchDispatch(t *testing.T) {
	store := testStore()

	var exact, tree atomic.Int64
	exactWatch := &types.Watch{Locator: "shop/inventory", OnChange: func() { exact.Add(1) }}
	treeWatch := &types.Watch{Locator: "shop", IncludeDescendants: true, OnChange: func() { tree.Add(1) }}

	require.NoError(t, store.RegisterWatch(exactWatch))
	require.NoError(t, store.RegisterWatch(treeWatch))
	assert.Equal(t, 2, store.Watches())

	store.NotifyChange("shop/inventory")
	assert.Equal(t, int64(1), exact.Load())
	assert.Equal(t, int64(1), tree.Load())

	store.NotifyChange("shop/orders")
	assert.Equal(t, int64(1), exact.Load(), "exact watches ignore sibling locators")
	assert.Equal(t, int64(2), tree.Load())

	require.NoError(t, store.UnregisterWatch(exactWatch))
	store.NotifyChange("shop/inventory")
	assert.Equal(t, int64(1), exact.Load())

	// unregistering twice is a no-op
	require.NoError(t, store.UnregisterWatch(exactWatch))
	require.NoError(t, store.UnregisterWatch(treeWatch))
	assert.Equal(t, 0, store.Watches())
}

func TestRegisterWatchRequiresCallback(t *testing.T) {
	store := testStore()
	assert.Error(t, store.RegisterWatch(&types.Watch{Locator: "shop/inventory"}))
}

func mustQuery(t *testing.T, store *Store, query *types.Query) types.Snapshot {
	t.Helper()
	snapshot, err := store.Query(context.Background(), query)
	require.NoError(t, err)
	return snapshot
}
