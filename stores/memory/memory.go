// Package memory provides an in-memory Store with explicit change
// notifications. It is the reference Store implementation and the fixture
// the stream tests run against.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/datasnap-io/snapstream/types"
	"github.com/datasnap-io/snapstream/utils"
)

type table struct {
	columns []string
	rows    []types.Record
}

// Store keeps one table per locator. Mutations never notify by themselves;
// callers drive notifications through NotifyChange, which keeps tests and
// simulations deterministic.
type Store struct {
	mu      sync.RWMutex
	tables  map[string]*table
	watches []*types.Watch
}

func New() *Store {
	return &Store{tables: map[string]*table{}}
}

// CreateTable registers an empty table under locator.
func (s *Store) CreateTable(locator string, columns ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[locator] = &table{columns: columns}
}

// Insert appends rows to the locator's table.
func (s *Store) Insert(locator string, rows ...types.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, found := s.tables[locator]; found {
		t.rows = append(t.rows, rows...)
	}
}

// Drop removes the locator entirely; subsequent queries return an absent
// (nil) snapshot.
func (s *Store) Drop(locator string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables, locator)
}

// NotifyChange fans a change on locator out to every matching watch. The
// callbacks run on the caller's goroutine, outside the store lock.
func (s *Store) NotifyChange(locator string) {
	s.mu.RLock()
	matched := make([]*types.Watch, 0, len(s.watches))
	for _, w := range s.watches {
		if w.Locator == locator || (w.IncludeDescendants && strings.HasPrefix(locator, w.Locator+"/")) {
			matched = append(matched, w)
		}
	}
	s.mu.RUnlock()

	for _, w := range matched {
		w.OnChange()
	}
}

func (s *Store) Query(ctx context.Context, query *types.Query) (types.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	t, found := s.tables[query.Locator]
	if !found {
		// absent, not empty
		return nil, nil
	}

	columns := query.Projection
	if len(columns) == 0 {
		columns = t.columns
	}
	for _, column := range columns {
		if !utils.ExistInArray(t.columns, column) {
			return nil, fmt.Errorf("unknown column [%s] in %s", column, query.Locator)
		}
	}

	records := make([]types.Record, 0, len(t.rows))
	for _, row := range t.rows {
		match, err := matchFilter(row, query.Filter, query.FilterArgs)
		if err != nil {
			return nil, err
		}
		if !match {
			continue
		}
		projected := types.Record{}
		for _, column := range columns {
			projected[column] = row[column]
		}
		records = append(records, projected)
	}

	if query.SortOrder != "" {
		if err := sortRecords(records, query.SortOrder); err != nil {
			return nil, err
		}
	}

	return types.NewRows(columns, records), nil
}

func (s *Store) RegisterWatch(watch *types.Watch) error {
	if watch == nil || watch.OnChange == nil {
		return fmt.Errorf("watch must carry an OnChange callback")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watches = append(s.watches, watch)
	return nil
}

func (s *Store) UnregisterWatch(watch *types.Watch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, found := utils.ArrayContains(s.watches, func(w *types.Watch) bool {
		return w == watch
	})
	if found {
		s.watches = append(s.watches[:idx], s.watches[idx+1:]...)
	}
	return nil
}

// Watches reports the number of live registrations.
func (s *Store) Watches() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.watches)
}

// matchFilter evaluates a single "field <op> ?" predicate; supported ops are
// =, != and LIKE (with % wildcards at either end).
func matchFilter(row types.Record, filter string, args []any) (bool, error) {
	if filter == "" {
		return true, nil
	}

	parts := strings.Fields(filter)
	if len(parts) != 3 || parts[2] != "?" {
		return false, fmt.Errorf("unsupported filter [%s]; expected \"field <op> ?\"", filter)
	}
	if len(args) != 1 {
		return false, fmt.Errorf("filter [%s] needs exactly one argument, got %d", filter, len(args))
	}

	value := fmt.Sprint(row[parts[0]])
	arg := fmt.Sprint(args[0])

	switch strings.ToUpper(parts[1]) {
	case "=":
		return value == arg, nil
	case "!=":
		return value != arg, nil
	case "LIKE":
		return matchLike(arg, value), nil
	default:
		return false, fmt.Errorf("unsupported filter operator [%s]", parts[1])
	}
}

func matchLike(pattern, value string) bool {
	leading := strings.HasPrefix(pattern, "%")
	trailing := strings.HasSuffix(pattern, "%")
	needle := strings.Trim(pattern, "%")
	switch {
	case leading && trailing:
		return strings.Contains(value, needle)
	case leading:
		return strings.HasSuffix(value, needle)
	case trailing:
		return strings.HasPrefix(value, needle)
	default:
		return value == pattern
	}
}

// sortRecords orders records by a single key, "field" or "field DESC".
func sortRecords(records []types.Record, order string) error {
	parts := strings.Fields(order)
	if len(parts) == 0 || len(parts) > 2 {
		return fmt.Errorf("unsupported sort order [%s]", order)
	}
	field := parts[0]
	direction := 1
	if len(parts) == 2 {
		if !strings.EqualFold(parts[1], "DESC") {
			return fmt.Errorf("unsupported sort direction [%s]", parts[1])
		}
		direction = -1
	}

	sort.SliceStable(records, func(i, j int) bool {
		return utils.CompareValues(records[i][field], records[j][field])*direction < 0
	})
	return nil
}
