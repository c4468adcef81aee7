package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Archercober/Heat-Stroke-Prediction/internal/series"
)

// Cell is a single table value. The zero Cell is empty.
type Cell struct {
	Value decimal.Decimal
	Valid bool
}

// Number builds a cell from a float. NaN and infinities produce an empty cell.
func Number(v float64) Cell {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Cell{}
	}
	return Cell{Value: decimal.NewFromFloat(v), Valid: true}
}

// Timestamp builds a cell holding t as unix seconds.
func Timestamp(t time.Time) Cell {
	return Cell{Value: decimal.New(t.UnixNano(), -9), Valid: true}
}

// String renders the cell for CSV output.
func (c Cell) String() string {
	if !c.Valid {
		return ""
	}
	return c.Value.String()
}

// Table is a column-oriented, row-aligned table. Columns keep insertion order
// and every column always has exactly Rows() cells.
type Table struct {
	columns []string
	index   map[string]int
	cells   [][]Cell
	rows    int
}

// New returns an empty table.
func New() *Table {
	return &Table{index: make(map[string]int)}
}

// Rows returns the row count.
func (t *Table) Rows() int {
	return t.rows
}

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// Column returns a copy of the named column.
func (t *Table) Column(name string) ([]Cell, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	out := make([]Cell, len(t.cells[i]))
	copy(out, t.cells[i])
	return out, true
}

// Pad grows every column to n rows with empty cells. It never truncates.
func (t *Table) Pad(n int) {
	if n <= t.rows {
		return
	}
	for i := range t.cells {
		t.cells[i] = append(t.cells[i], make([]Cell, n-t.rows)...)
	}
	t.rows = n
}

// SetColumn writes cells into rows 0..len(cells)-1 of the named column,
// creating it if needed. Rows past len(cells) are left empty.
func (t *Table) SetColumn(name string, cells []Cell) {
	t.Pad(len(cells))

	i, ok := t.index[name]
	if !ok {
		i = len(t.columns)
		t.columns = append(t.columns, name)
		t.index[name] = i
		t.cells = append(t.cells, make([]Cell, t.rows))
	}

	col := t.cells[i]
	for r := range col {
		if r < len(cells) {
			col[r] = cells[r]
		} else {
			col[r] = Cell{}
		}
	}
}

// SetSeries writes a series as the column pair "time <name>" and "<name>".
func (t *Table) SetSeries(name string, points []series.Point) {
	times := make([]Cell, len(points))
	values := make([]Cell, len(points))
	for i, p := range points {
		times[i] = Timestamp(p.Time)
		values[i] = Number(p.Value)
	}
	t.SetColumn(TimeColumn(name), times)
	t.SetColumn(name, values)
}

// TimeColumn returns the timestamp column name paired with a value column.
func TimeColumn(name string) string {
	return "time " + name
}

// WriteCSV writes the header followed by one record per row.
func (t *Table) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(t.columns); err != nil {
		return err
	}

	record := make([]string, len(t.columns))
	for r := 0; r < t.rows; r++ {
		for c := range t.columns {
			record[c] = t.cells[c][r].String()
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// SaveCSV replaces the file at path with the table contents. The data is
// written to a temporary file in the same directory and renamed into place.
func (t *Table) SaveCSV(path string) error {
	if err := EnsureDir(path); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := t.WriteCSV(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write csv: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// EnsureDir creates the parent directory of path when missing.
func EnsureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
