// Package filesystem exposes directory trees as watched tables of file
// metadata, with change notifications backed by fsnotify.
package filesystem

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/piyushsingariya/relec/safego"

	"github.com/datasnap-io/snapstream/constants"
	"github.com/datasnap-io/snapstream/types"
	"github.com/datasnap-io/snapstream/utils"
)

// Columns every file record carries, in emission order.
var columns = []string{"name", "path", "size", "mod_time", "mode"}

// Store treats a query locator as a directory: rows are the files beneath
// it, the filter is a glob matched against the locator-relative path, and
// watches are fsnotify registrations over the tree.
type Store struct {
	mu       sync.Mutex
	watchers map[*types.Watch]*dirWatcher
}

type dirWatcher struct {
	fw   *fsnotify.Watcher
	done chan struct{}
}

func New() *Store {
	return &Store{watchers: map[*types.Watch]*dirWatcher{}}
}

func (s *Store) Query(ctx context.Context, query *types.Query) (types.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	root, err := filepath.Abs(query.Locator)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve locator %s: %s", query.Locator, err)
	}
	if _, err := os.Stat(root); os.IsNotExist(err) {
		// absent, not empty
		return nil, nil
	}

	projection := query.Projection
	if len(projection) == 0 {
		projection = columns
	}
	for _, column := range projection {
		if !utils.ExistInArray(columns, column) {
			return nil, fmt.Errorf("unknown column [%s]; filesystem columns are %s", column, strings.Join(columns, ", "))
		}
	}

	records := []types.Record{}
	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if query.Filter != "" {
			match, err := filepath.Match(query.Filter, rel)
			if err != nil {
				return fmt.Errorf("invalid filter glob [%s]: %s", query.Filter, err)
			}
			if !match {
				return nil
			}
		}
		info, err := entry.Info()
		if err != nil {
			return nil // raced with a delete, skip
		}
		row := types.Record{
			"name":     entry.Name(),
			"path":     rel,
			"size":     info.Size(),
			"mod_time": info.ModTime(),
			"mode":     info.Mode().String(),
		}
		projected := types.Record{}
		for _, column := range projection {
			projected[column] = row[column]
		}
		records = append(records, projected)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %s", root, err)
	}

	if query.SortOrder != "" {
		if err := sortRecords(records, query.SortOrder); err != nil {
			return nil, err
		}
	}

	return types.NewRows(projection, records), nil
}

func (s *Store) RegisterWatch(watch *types.Watch) error {
	if watch == nil || watch.OnChange == nil {
		return fmt.Errorf("watch must carry an OnChange callback")
	}

	root, err := filepath.Abs(watch.Locator)
	if err != nil {
		return fmt.Errorf("failed to resolve locator %s: %s", watch.Locator, err)
	}
	if err := utils.CheckIfFilesExists(root); err != nil {
		return fmt.Errorf("failed to watch %s: %s", root, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if watch.IncludeDescendants {
		err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return nil // skip inaccessible paths
			}
			if entry.IsDir() {
				return fw.Add(path)
			}
			return nil
		})
	} else {
		err = fw.Add(root)
	}
	if err != nil {
		fw.Close()
		return fmt.Errorf("failed to watch %s: %s", root, err)
	}

	dw := &dirWatcher{fw: fw, done: make(chan struct{})}
	s.mu.Lock()
	s.watchers[watch] = dw
	s.mu.Unlock()

	go s.dispatch(watch, dw)
	return nil
}

func (s *Store) UnregisterWatch(watch *types.Watch) error {
	s.mu.Lock()
	dw, found := s.watchers[watch]
	if found {
		delete(s.watchers, watch)
	}
	s.mu.Unlock()

	if !found {
		return nil
	}
	close(dw.done)
	return dw.fw.Close()
}

// Close drops every live registration.
func (s *Store) Close() error {
	s.mu.Lock()
	watchers := make([]*dirWatcher, 0, len(s.watchers))
	for watch, dw := range s.watchers {
		watchers = append(watchers, dw)
		delete(s.watchers, watch)
	}
	s.mu.Unlock()

	closers := make([]func() error, 0, len(watchers))
	for _, dw := range watchers {
		dw := dw
		close(dw.done)
		closers = append(closers, dw.fw.Close)
	}
	return utils.ErrExec(closers...)
}

// dispatch forwards debounced fsnotify events to the watch callback. New
// directories are added to the watch list as they appear.
func (s *Store) dispatch(watch *types.Watch, dw *dirWatcher) {
	defer safego.Recovery(true)

	debounce := map[string]time.Time{}
	for {
		select {
		case event, ok := <-dw.fw.Events:
			if !ok {
				return
			}
			if watch.IncludeDescendants && event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					dw.fw.Add(event.Name)
				}
			}

			now := time.Now()
			if last, seen := debounce[event.Name]; seen && now.Sub(last) < constants.DefaultDebounceInterval {
				continue
			}
			debounce[event.Name] = now

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				watch.OnChange()
			}

		case _, ok := <-dw.fw.Errors:
			if !ok {
				return
			}
			// fsnotify recovers on its own

		case <-dw.done:
			return
		}
	}
}

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
