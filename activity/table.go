package activity

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/lucasjlepore/training-report/artifact"
)

// ErrNoTable is returned by ReadTable when the table file does not exist.
var ErrNoTable = errors.New("raw activity table not found")

// MissingColumnsError lists required columns absent from a table header.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("raw activity table is missing required columns: %s", strings.Join(e.Columns, ", "))
}

// Table is the raw activity table. Rows are kept verbatim so columns this
// package does not know about survive an append.
type Table struct {
	Header []string
	Rows   [][]string

	index map[string]int
}

// NewTable returns an empty table with the given header.
func NewTable(header []string) *Table {
	t := &Table{Header: append([]string(nil), header...)}
	t.reindex()
	return t
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.Header))
	for i, name := range t.Header {
		name = headerName(name)
		if _, dup := t.index[name]; !dup {
			t.index[name] = i
		}
	}
}

// headerName strips a leading byte-order mark and surrounding spaces.
func headerName(name string) string {
	return strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
}

// ColumnIndex returns the position of a column, or -1.
func (t *Table) ColumnIndex(name string) int {
	if i, ok := t.index[name]; ok {
		return i
	}
	return -1
}

// Cell returns the value of column name in row, or "" if absent.
func (t *Table) Cell(row []string, name string) string {
	i := t.ColumnIndex(name)
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

// RequireColumns fails with *MissingColumnsError when any of cols is absent.
func (t *Table) RequireColumns(cols ...string) error {
	var missing []string
	for _, c := range cols {
		if t.ColumnIndex(c) < 0 {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return &MissingColumnsError{Columns: missing}
	}
	return nil
}

// IDs returns the set of identifiers present in the table.
func (t *Table) IDs() map[string]struct{} {
	return t.Keys(ColID)
}

// Keys is the set of non-empty identifiers in column col, normalized the same
// way as IDs.
func (t *Table) Keys(col string) map[string]struct{} {
	keys := make(map[string]struct{}, len(t.Rows))
	for _, row := range t.Rows {
		if k := NormalizeID(t.Cell(row, col)); k != "" {
			keys[k] = struct{}{}
		}
	}
	return keys
}

// Append adds rows whose identifier is not already present, in order, and
// returns how many were added. Rows without an identifier are skipped. Columns
// unknown to the table are added to the header.
func (t *Table) Append(rows []map[string]string) int {
	if t.index == nil {
		t.reindex()
	}
	seen := t.IDs()
	added := 0
	for _, r := range rows {
		id := NormalizeID(r[ColID])
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		t.extendHeader(r)
		row := make([]string, len(t.Header))
		for name, v := range r {
			if i := t.ColumnIndex(headerName(name)); i >= 0 {
				row[i] = v
			}
		}
		t.Rows = append(t.Rows, row)
		added++
	}
	return added
}

func (t *Table) extendHeader(r map[string]string) {
	var extra []string
	for name := range r {
		name = headerName(name)
		if name != "" && t.ColumnIndex(name) < 0 {
			extra = append(extra, name)
		}
	}
	if len(extra) == 0 {
		return
	}
	// deterministic order for new columns
	sort.Strings(extra)
	t.Header = append(t.Header, extra...)
	t.reindex()
	for i, row := range t.Rows {
		if len(row) < len(t.Header) {
			t.Rows[i] = append(row, make([]string, len(t.Header)-len(row))...)
		}
	}
}

// Activities returns the typed view of every row. Malformed numeric and
// boolean cells become nil.
func (t *Table) Activities() []Activity {
	out := make([]Activity, 0, len(t.Rows))
	for _, row := range t.Rows {
		a := Activity{
			ID:                 NormalizeID(t.Cell(row, ColID)),
			Name:               t.Cell(row, ColName),
			StartDateRaw:       t.Cell(row, ColStartDateLocal),
			SportType:          t.Cell(row, ColSportType),
			Distance:           ParseFloat(t.Cell(row, ColDistance)),
			MovingTime:         ParseFloat(t.Cell(row, ColMovingTime)),
			TotalElevationGain: ParseFloat(t.Cell(row, ColTotalElevationGain)),
			AverageHeartrate:   ParseFloat(t.Cell(row, ColAverageHeartrate)),
			MaxHeartrate:       ParseFloat(t.Cell(row, ColMaxHeartrate)),
			Manual:             ParseBool(t.Cell(row, ColManual)),
			HasHeartrate:       ParseBool(t.Cell(row, ColHasHeartrate)),
		}
		if ts, err := ParseTimestamp(a.StartDateRaw); err == nil {
			a.StartDateLocal = ts
		}
		out = append(out, a)
	}
	return out
}

// ReadTable loads a raw table. A missing file yields an error wrapping both
// ErrNoTable and fs.ErrNotExist.
func ReadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s: %w", ErrNoTable, path, err)
		}
		return nil, fmt.Errorf("open raw activity table: %w", err)
	}
	defer f.Close()

	t, err := DecodeTable(f)
	if err != nil {
		return nil, fmt.Errorf("read raw activity table %s: %w", path, err)
	}
	return t, nil
}

// ReadTableOrEmpty is ReadTable that starts a new table with Columns when the
// file does not exist yet.
func ReadTableOrEmpty(path string) (*Table, error) {
	t, err := ReadTable(path)
	if errors.Is(err, ErrNoTable) {
		return NewTable(Columns), nil
	}
	return t, err
}

// DecodeTable parses CSV with a header row.
func DecodeTable(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty table: no header row")
	}
	if err != nil {
		return nil, err
	}
	t := NewTable(header)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) < len(t.Header) {
			rec = append(rec, make([]string, len(t.Header)-len(rec))...)
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

// EncodeTable writes the header and all rows as CSV.
func EncodeTable(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	for _, row := range t.Rows {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTable replaces the table file atomically.
func WriteTable(path string, t *Table) error {
	return artifact.WriteFileAtomic(path, func(w io.Writer) error {
		return EncodeTable(w, t)
	})
}

// NormalizeID compares identifiers as strings; dataframe round-trips may
// render integer ids as "123.0".
func NormalizeID(id string) string {
	id = strings.TrimSpace(id)
	if strings.HasSuffix(id, ".0") && isDigits(strings.TrimSuffix(id, ".0")) {
		return strings.TrimSuffix(id, ".0")
	}
	return id
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
