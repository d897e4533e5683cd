// Package postgres implements a Store over a PostgreSQL database. Queries
// run through sqlx on the pgx driver; change watches ride LISTEN/NOTIFY
// channels fed by the trigger template in NotifyTriggerSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/piyushsingariya/relec/safego"

	"github.com/datasnap-io/snapstream/constants"
	"github.com/datasnap-io/snapstream/logger"
	"github.com/datasnap-io/snapstream/types"
	"github.com/datasnap-io/snapstream/utils"
)

// undefinedTable is the SQLSTATE a query against a missing relation returns;
// the store maps it to an absent (nil) snapshot.
const undefinedTable = "42P01"

// NotifyTriggerSQL is the trigger template to install per watched table. It
// notifies both the table channel and the schema channel, so a watch on the
// schema locator observes descendant tables as well.
const NotifyTriggerSQL = `
CREATE OR REPLACE FUNCTION %[1]s_notify() RETURNS trigger AS $$
BEGIN
	PERFORM pg_notify('%[1]s', TG_TABLE_NAME);
	PERFORM pg_notify('%[2]s', TG_TABLE_NAME);
	RETURN NULL;
END;
$$ LANGUAGE plpgsql;

CREATE TRIGGER %[1]s_watch
AFTER INSERT OR UPDATE OR DELETE ON %[3]s
FOR EACH STATEMENT EXECUTE FUNCTION %[1]s_notify();`

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type Config struct {
	// Connection is a libpq/pgx connection string or URL.
	Connection string `json:"connection"`
	// MaxOpenConns bounds the sqlx pool.
	MaxOpenConns int `json:"max_open_conns,omitempty"`
}

// Validate checks the configuration for any missing or invalid fields
func (c *Config) Validate() error {
	if c.Connection == "" {
		return fmt.Errorf("empty connection string")
	}
	c.MaxOpenConns = utils.Ternary(c.MaxOpenConns <= 0, constants.DefaultMaxOpenConns, c.MaxOpenConns).(int)
	return nil
}

// Store queries [schema.]table locators and listens for notifications on
// their channels through one shared pq listener.
type Store struct {
	db       *sqlx.DB
	listener *pq.Listener
	done     chan struct{}

	mu      sync.Mutex
	watches map[string][]*types.Watch // keyed by channel name
}

func Open(config *Config) (*Store, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %s", err)
	}

	db, err := sqlx.Open("pgx", config.Connection)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %s", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %s", err)
	}

	listener := pq.NewListener(config.Connection, constants.MinListenerReconnect, constants.MaxListenerReconnect, nil)
	store := &Store{
		db:       db,
		listener: listener,
		done:     make(chan struct{}),
		watches:  map[string][]*types.Watch{},
	}
	go store.dispatch()
	return store, nil
}

func (s *Store) Query(ctx context.Context, query *types.Query) (types.Snapshot, error) {
	stmt, err := buildQuery(query)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryxContext(ctx, stmt, query.FilterArgs...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == undefinedTable {
			// absent, not empty
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query %s: %s", query.Locator, err)
	}

	columns, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to read columns of %s: %s", query.Locator, err)
	}
	return &rowsSnapshot{rows: rows, columns: columns}, nil
}

func (s *Store) RegisterWatch(watch *types.Watch) error {
	if watch == nil || watch.OnChange == nil {
		return fmt.Errorf("watch must carry an OnChange callback")
	}
	channel, err := ChannelName(watch.Locator)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.listener.Listen(channel); err != nil && err != pq.ErrChannelAlreadyOpen {
		return fmt.Errorf("failed to listen on %s: %s", channel, err)
	}
	s.watches[channel] = append(s.watches[channel], watch)
	return nil
}

func (s *Store) UnregisterWatch(watch *types.Watch) error {
	channel, err := ChannelName(watch.Locator)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	registered := s.watches[channel]
	idx, found := utils.ArrayContains(registered, func(w *types.Watch) bool {
		return w == watch
	})
	if !found {
		return nil
	}
	s.watches[channel] = append(registered[:idx], registered[idx+1:]...)
	if len(s.watches[channel]) == 0 {
		delete(s.watches, channel)
		if err := s.listener.Unlisten(channel); err != nil {
			return fmt.Errorf("failed to unlisten %s: %s", channel, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	close(s.done)
	return utils.ErrExecSequential(s.listener.Close, s.db.Close)
}

// dispatch fans listener notifications out to the channel's watches. pq
// delivers a nil notification after a reconnect; treat it as a wildcard
// since events may have been missed while the connection was down.
func (s *Store) dispatch() {
	defer safego.Recovery(true)
	for {
		select {
		case notification := <-s.listener.Notify:
			s.mu.Lock()
			var matched []*types.Watch
			if notification == nil {
				for _, registered := range s.watches {
					matched = append(matched, registered...)
				}
			} else {
				matched = append(matched, s.watches[notification.Channel]...)
			}
			s.mu.Unlock()

			for _, w := range matched {
				w.OnChange()
			}

		case <-s.done:
			return
		}
	}
}

// TriggerSQL renders NotifyTriggerSQL for a table locator.
func TriggerSQL(locator string) (string, error) {
	channel, err := ChannelName(locator)
	if err != nil {
		return "", err
	}
	schema := "public"
	if parts := strings.Split(locator, "."); len(parts) == 2 {
		schema = parts[0]
	}
	schemaChannel, err := ChannelName(schema)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(NotifyTriggerSQL, channel, schemaChannel, locator), nil
}

// ChannelName derives the LISTEN/NOTIFY channel for a locator.
func ChannelName(locator string) (string, error) {
	if err := validateLocator(locator); err != nil {
		return "", err
	}
	return "snapstream_" + strings.ToLower(strings.ReplaceAll(locator, ".", "_")), nil
}

func validateLocator(locator string) error {
	parts := strings.Split(locator, ".")
	if len(parts) > 2 {
		return fmt.Errorf("invalid locator [%s]; expected table or schema.table", locator)
	}
	for _, part := range parts {
		if !identifier.MatchString(part) {
			return fmt.Errorf("invalid identifier [%s] in locator %s", part, locator)
		}
	}
	return nil
}

// buildQuery renders the SELECT for a query. Identifiers are validated
// against a strict pattern; the filter is passed through verbatim with $n
// placeholders bound to FilterArgs.
func buildQuery(query *types.Query) (string, error) {
	if err := validateLocator(query.Locator); err != nil {
		return "", err
	}

	projection := "*"
	if len(query.Projection) > 0 {
		quoted := make([]string, 0, len(query.Projection))
		for _, column := range query.Projection {
			if !identifier.MatchString(column) {
				return "", fmt.Errorf("invalid projection column [%s]", column)
			}
			quoted = append(quoted, fmt.Sprintf("%q", column))
		}
		projection = strings.Join(quoted, ", ")
	}

	stmt := fmt.Sprintf("SELECT %s FROM %s", projection, query.Locator)
	if query.Filter != "" {
		stmt += " WHERE " + query.Filter
	}
	if query.SortOrder != "" {
		clause, err := sortClause(query.SortOrder)
		if err != nil {
			return "", err
		}
		stmt += " ORDER BY " + clause
	}
	return stmt, nil
}

func sortClause(order string) (string, error) {
	parts := strings.Fields(order)
	if len(parts) == 0 || len(parts) > 2 {
		return "", fmt.Errorf("unsupported sort order [%s]", order)
	}
	if !identifier.MatchString(parts[0]) {
		return "", fmt.Errorf("invalid sort field [%s]", parts[0])
	}
	clause := fmt.Sprintf("%q", parts[0])
	if len(parts) == 2 {
		if !strings.EqualFold(parts[1], "DESC") {
			return "", fmt.Errorf("unsupported sort direction [%s]", parts[1])
		}
		clause += " DESC"
	}
	return clause, nil
}

// rowsSnapshot streams a live sqlx result set as a Snapshot; closing it
// releases the underlying connection.
type rowsSnapshot struct {
	rows    *sqlx.Rows
	columns []string
	current types.Record
	scanErr error
}

func (r *rowsSnapshot) Columns() []string {
	return r.columns
}

func (r *rowsSnapshot) Next() bool {
	if !r.rows.Next() {
		return false
	}
	r.current = types.Record{}
	if err := r.rows.MapScan(r.current); err != nil {
		logger.Errorf("failed to scan record: %s", err)
		r.scanErr = fmt.Errorf("failed to scan record: %s", err)
		return false
	}
	return true
}

func (r *rowsSnapshot) Record() types.Record {
	return r.current
}

func (r *rowsSnapshot) Err() error {
	if r.scanErr != nil {
		return r.scanErr
	}
	return r.rows.Err()
}

func (r *rowsSnapshot) Close() error {
	return r.rows.Close()
}
