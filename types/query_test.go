package types

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryBuilder(t *testing.T) {
	query := NewQuery("shop/inventory").
		WithProjection("id", "name").
		WithFilter("name = ?", "coffee").
		WithSortOrder("id DESC")

	require.NoError(t, query.Validate())
	assert.Equal(t, []string{"id", "name"}, query.Projection)
	assert.Equal(t, []any{"coffee"}, query.FilterArgs)
	assert.Contains(t, query.String(), "shop/inventory")
}

func TestQueryValidateRequiresLocator(t *testing.T) {
	assert.Error(t, (&Query{}).Validate())
	assert.NoError(t, NewQuery("t").Validate())
}

func TestQueryHash(t *testing.T) {
	a := NewQuery("a").WithFilter("id = ?", 1)
	same := NewQuery("a").WithFilter("id = ?", 1)
	other := NewQuery("a").WithFilter("id = ?", 2)

	assert.Equal(t, a.Hash(), same.Hash())
	assert.NotEqual(t, a.Hash(), other.Hash())
}

func TestQueryFromFile(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "query.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"locator":"shop/inventory","projection":["id"],"sort_order":"id"}`), 0644))

	query, err := QueryFromFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "shop/inventory", query.Locator)
	assert.Equal(t, []string{"id"}, query.Projection)

	yamlPath := filepath.Join(dir, "query.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("locator: shop/inventory\nfilter: \"name = ?\"\nfilter_args: [coffee]\n"), 0644))

	query, err = QueryFromFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "name = ?", query.Filter)

	invalidPath := filepath.Join(dir, "invalid.json")
	require.NoError(t, os.WriteFile(invalidPath, []byte(`{"projection":["id"]}`), 0644))
	_, err = QueryFromFile(invalidPath)
	assert.Error(t, err, "a query without a locator fails validation")

	_, err = QueryFromFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestBackpressurePolicyValidate(t *testing.T) {
	for _, policy := range backpressurePolicies {
		assert.NoError(t, policy.Validate())
	}
	assert.Error(t, BackpressurePolicy("firehose").Validate())
}
