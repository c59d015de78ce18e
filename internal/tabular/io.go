package tabular

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	natomic "github.com/natefinch/atomic"
)

// ErrSchemaMismatch is returned when a loaded file is missing a column
// its schema requires.
type ErrSchemaMismatch struct {
	Kind    Kind
	Missing []string
}

func (e *ErrSchemaMismatch) Error() string {
	return fmt.Sprintf("tabular: %s is missing required column(s) %v", e.Kind, e.Missing)
}

// ErrDuplicateKey is returned when Load encounters two rows sharing the
// same key-column values.
type ErrDuplicateKey struct {
	Kind Kind
	Key  string
}

func (e *ErrDuplicateKey) Error() string {
	return fmt.Sprintf("tabular: %s has duplicate key %q", e.Kind, e.Key)
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return cr
}

// Load reads the tab-separated file at path into a Table of the given
// kind. Missing schema columns are a schema-mismatch error; a row whose
// key duplicates an earlier row is a duplicate-key error (spec.md §4.2).
func Load(path string, kind Kind) (*Table, error) {
	schema, err := SchemaFor(kind)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("tabular: open %s: %w", path, err)
	}
	defer f.Close()

	cr := newReader(f)
	header, err := cr.Read()
	if err == io.EOF {
		return &Table{Kind: kind, Schema: schema}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tabular: read header of %s: %w", path, err)
	}

	colIndex := make(map[string]int, len(header))
	for i, h := range header {
		colIndex[h] = i
	}
	var missing []string
	for _, c := range schema.Columns {
		if _, ok := colIndex[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, &ErrSchemaMismatch{Kind: kind, Missing: missing}
	}

	t := &Table{Kind: kind, Schema: schema}
	seen := make(map[string]struct{})
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("tabular: read row of %s: %w", path, err)
		}
		row := make(Row, len(schema.Columns))
		for _, c := range schema.Columns {
			idx := colIndex[c]
			if idx < len(record) {
				row[c] = record[idx]
			}
		}
		key := t.Key(row)
		if _, dup := seen[key]; dup {
			return nil, &ErrDuplicateKey{Kind: kind, Key: key}
		}
		seen[key] = struct{}{}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// LoadOrEmpty behaves like Load but returns a fresh empty table instead
// of an error when path does not exist, for the regenerable status
// tables (spec.md §3: curation/processing rows are "fully regenerable").
func LoadOrEmpty(path string, kind Kind) (*Table, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return New(kind)
		}
		return nil, err
	}
	return Load(path, kind)
}

// Save serializes t to path as tab-separated values with a header row,
// writing atomically: the new content is written to a temp file in the
// same directory and renamed over path, so a concurrent reader observes
// either the complete old file or the complete new one, never a partial
// write (spec.md §4.2(iii), §8 property 8).
func Save(path string, t *Table) error {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	cw.Comma = '\t'
	cw.UseCRLF = false

	if err := cw.Write(t.Schema.Columns); err != nil {
		return fmt.Errorf("tabular: write header: %w", err)
	}
	for _, row := range t.Rows {
		record := make([]string, len(t.Schema.Columns))
		for i, c := range t.Schema.Columns {
			record[i] = row[c]
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("tabular: write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("tabular: flush: %w", err)
	}

	if err := natomic.WriteFile(path, bytes.NewReader(buf.Bytes())); err != nil {
		return fmt.Errorf("tabular: atomic write %s: %w", path, err)
	}
	return nil
}
