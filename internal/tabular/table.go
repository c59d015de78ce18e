package tabular

import "strings"

// Row is a single table row keyed by column name. Columns not present in
// the row are treated as the empty string.
type Row map[string]string

// Table is an ordered, in-memory view of one of the canonical tables.
// Row order is preserved across a load/save round trip when no upsert
// occurs (spec.md §4.2(i)).
type Table struct {
	Kind   Kind
	Schema Schema
	Rows   []Row
}

// New returns an empty table for kind, ready to accept rows via Upsert.
// Used by components (e.g. the curation walker on a fresh dataset) that
// regenerate a table that may not yet exist on disk.
func New(kind Kind) (*Table, error) {
	schema, err := SchemaFor(kind)
	if err != nil {
		return nil, err
	}
	return &Table{Kind: kind, Schema: schema}, nil
}

// Key renders row's key-column values as a single comparable string.
func (t *Table) Key(row Row) string {
	return keyString(t.Schema.Key, row)
}

func keyString(keyCols []string, row Row) string {
	parts := make([]string, len(keyCols))
	for i, c := range keyCols {
		parts[i] = row[c]
	}
	return strings.Join(parts, "\x1f")
}

// IndexByKey returns a map from key string to row slice index.
func (t *Table) IndexByKey() map[string]int {
	idx := make(map[string]int, len(t.Rows))
	for i, r := range t.Rows {
		idx[t.Key(r)] = i
	}
	return idx
}

// Find returns the row matching the given key column values, in the
// order t.Schema.Key declares them, and whether it was found.
func (t *Table) Find(keyValues ...string) (Row, bool) {
	if len(keyValues) != len(t.Schema.Key) {
		return nil, false
	}
	target := strings.Join(keyValues, "\x1f")
	for _, r := range t.Rows {
		if t.Key(r) == target {
			return r, true
		}
	}
	return nil, false
}

// Clone deep-copies the table (rows only; Schema/Kind are value types).
func (t *Table) Clone() *Table {
	out := &Table{Kind: t.Kind, Schema: t.Schema, Rows: make([]Row, len(t.Rows))}
	for i, r := range t.Rows {
		nr := make(Row, len(r))
		for k, v := range r {
			nr[k] = v
		}
		out.Rows[i] = nr
	}
	return out
}
