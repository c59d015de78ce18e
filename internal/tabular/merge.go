package tabular

// Upsert merges rows into t, matching on t.Schema.Key. A row whose key
// matches an existing row replaces that row's fields in place, at the
// same position; all other existing rows are left byte-identical
// (spec.md §4.2(ii), §8 property 5). A row whose key is new is appended
// in the order given.
func Upsert(t *Table, rows []Row) *Table {
	out := t.Clone()
	idx := out.IndexByKey()
	for _, row := range rows {
		key := out.Key(row)
		if i, ok := idx[key]; ok {
			out.Rows[i] = cloneRow(row)
			continue
		}
		out.Rows = append(out.Rows, cloneRow(row))
		idx[key] = len(out.Rows) - 1
	}
	return out
}

func cloneRow(r Row) Row {
	nr := make(Row, len(r))
	for k, v := range r {
		nr[k] = v
	}
	return nr
}

// Diff compares base against updated by key, reporting rows present only
// in updated (added), rows whose key exists in both but whose fields
// differ (updated), and rows present only in base (removed).
func Diff(base, updated *Table) (added, changed, removed []Row) {
	baseIdx := base.IndexByKey()
	updIdx := updated.IndexByKey()

	for key, ui := range updIdx {
		urow := updated.Rows[ui]
		if bi, ok := baseIdx[key]; ok {
			if !rowsEqual(base.Rows[bi], urow) {
				changed = append(changed, urow)
			}
		} else {
			added = append(added, urow)
		}
	}
	for key, bi := range baseIdx {
		if _, ok := updIdx[key]; !ok {
			removed = append(removed, base.Rows[bi])
		}
	}
	return added, changed, removed
}

func rowsEqual(a, b Row) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
