package types

// Record is a single materialized row of a snapshot.
type Record = map[string]any

// Snapshot is the order-sensitive result of one query execution against the
// watched resource. Ownership passes to the consumer on emission: the
// consumer must Close it when done, and before the next snapshot arrives.
// A snapshot that never reaches the consumer is closed by the stream.
type Snapshot interface {
	// Columns returns the projected field names in store-defined order.
	Columns() []string
	// Next advances to the next record; false once exhausted or failed.
	Next() bool
	// Record returns the current record. Valid only after Next returned true.
	Record() Record
	// Err returns the first error encountered while iterating.
	Err() error
	Close() error
}

// Rows is a fully materialized Snapshot, used by stores that buffer their
// result set in memory.
type Rows struct {
	columns []string
	records []Record
	idx     int
	closed  bool
}

func NewRows(columns []string, records []Record) *Rows {
	return &Rows{columns: columns, records: records, idx: -1}
}

func (r *Rows) Columns() []string {
	return r.columns
}

func (r *Rows) Next() bool {
	if r.closed || r.idx+1 >= len(r.records) {
		return false
	}
	r.idx++
	return true
}

func (r *Rows) Record() Record {
	return r.records[r.idx]
}

func (r *Rows) Err() error {
	return nil
}

func (r *Rows) Len() int {
	return len(r.records)
}

func (r *Rows) Close() error {
	r.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (r *Rows) Closed() bool {
	return r.closed
}
