package types

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/mitchellh/hashstructure"

	"github.com/datasnap-io/snapstream/utils"
)

var validate = validator.New()

// Query describes one watched-query against a store. It is a read-only
// input: build it once, hand it to the factory and never mutate it after.
type Query struct {
	// Locator identifies the watched resource; its meaning is store-defined
	// (a table, a directory, a URI).
	Locator string `json:"locator" validate:"required"`
	// Projection is the set of fields to materialize; empty means all.
	Projection []string `json:"projection,omitempty"`
	// Filter is a store-defined predicate with positional placeholders.
	Filter string `json:"filter,omitempty"`
	// FilterArgs are bound to the Filter placeholders in order.
	FilterArgs []any `json:"filter_args,omitempty"`
	// SortOrder is a store-defined sort expression, e.g. "name" or "size DESC".
	SortOrder string `json:"sort_order,omitempty"`
}

func NewQuery(locator string) *Query {
	return &Query{Locator: locator}
}

func (q *Query) WithProjection(fields ...string) *Query {
	q.Projection = append(q.Projection, fields...)
	return q
}

func (q *Query) WithFilter(filter string, args ...any) *Query {
	q.Filter = filter
	q.FilterArgs = args
	return q
}

func (q *Query) WithSortOrder(order string) *Query {
	q.SortOrder = order
	return q
}

// Validate checks the query for missing or invalid fields
func (q *Query) Validate() error {
	if err := validate.Struct(q); err != nil {
		return fmt.Errorf("failed to validate query: %s", err)
	}
	return nil
}

// Hash returns a stable fingerprint of the query, used to correlate
// query-trace log lines across reloads.
func (q *Query) Hash() uint64 {
	hash, err := hashstructure.Hash(q, nil)
	if err != nil {
		return 0
	}
	return hash
}

func (q *Query) String() string {
	b, err := json.Marshal(q)
	if err != nil {
		return fmt.Sprintf("query[%s]", q.Locator)
	}
	return string(b)
}

// QueryFromFile loads and validates a query from a JSON or YAML file.
func QueryFromFile(path string) (*Query, error) {
	query := &Query{}
	if err := utils.UnmarshalFile(path, query); err != nil {
		return nil, err
	}
	if err := query.Validate(); err != nil {
		return nil, err
	}
	return query, nil
}
