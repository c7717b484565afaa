package timeseries

import (
	"math"
	"sort"
	"time"

	"github.com/quantfolio/portfolio-backend/pkg/types"
	"go.uber.org/zap"
)

// Table is a dense date × instrument close-price (or return) matrix.
// Rows are trading dates in strictly ascending order; missing cells are NaN.
type Table struct {
	Dates  []time.Time
	Codes  []string
	values [][]float64 // row-major: values[dateIdx][codeIdx]
	colIdx map[string]int
}

// NewTable allocates an empty table over the given axes.
func NewTable(dates []time.Time, codes []string) *Table {
	t := &Table{
		Dates:  dates,
		Codes:  codes,
		values: make([][]float64, len(dates)),
		colIdx: make(map[string]int, len(codes)),
	}
	for i := range t.values {
		row := make([]float64, len(codes))
		for j := range row {
			row[j] = math.NaN()
		}
		t.values[i] = row
	}
	for j, c := range codes {
		t.colIdx[c] = j
	}
	return t
}

// BuildTable pivots raw (code, date, close) rows into a wide table and
// forward-fills interior gaps per instrument. Leading gaps before an
// instrument's first trade stay NaN; columns with unresolved gaps after the
// fill are logged but not fatal.
func BuildTable(rows []types.PriceRow, logger *zap.Logger) *Table {
	if len(rows) == 0 {
		return NewTable(nil, nil)
	}

	dateSet := make(map[string]time.Time)
	codeSet := make(map[string]bool)
	for _, r := range rows {
		dateSet[r.Date.Format(dateLayout)] = r.Date
		codeSet[r.Code] = true
	}

	dates := make([]time.Time, 0, len(dateSet))
	for _, d := range dateSet {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	codes := make([]string, 0, len(codeSet))
	for c := range codeSet {
		codes = append(codes, c)
	}
	sort.Strings(codes)

	t := NewTable(dates, codes)
	rowIdx := make(map[string]int, len(dates))
	for i, d := range dates {
		rowIdx[d.Format(dateLayout)] = i
	}
	for _, r := range rows {
		i := rowIdx[r.Date.Format(dateLayout)]
		j := t.colIdx[r.Code]
		if math.IsNaN(t.values[i][j]) { // first observation per cell wins
			t.values[i][j] = r.Close
		}
	}

	t.forwardFill(logger)
	return t
}

// forwardFill carries the last observed close forward per column.
func (t *Table) forwardFill(logger *zap.Logger) {
	var gappy []string
	for j, code := range t.Codes {
		last := math.NaN()
		sawValue := false
		for i := range t.Dates {
			v := t.values[i][j]
			if !math.IsNaN(v) {
				last = v
				sawValue = true
			} else if sawValue {
				t.values[i][j] = last
			}
		}
		if sawValue && math.IsNaN(t.values[0][j]) {
			gappy = append(gappy, code)
		}
	}
	if len(gappy) > 0 && logger != nil {
		logger.Warn("instruments missing leading price history after forward fill",
			zap.Strings("codes", gappy))
	}
}

// NumDates returns the number of trading dates.
func (t *Table) NumDates() int { return len(t.Dates) }

// NumCodes returns the number of instruments.
func (t *Table) NumCodes() int { return len(t.Codes) }

// IsEmpty reports whether the table has no cells.
func (t *Table) IsEmpty() bool { return len(t.Dates) == 0 || len(t.Codes) == 0 }

// HasCode reports whether the table has a column for code.
func (t *Table) HasCode(code string) bool {
	_, ok := t.colIdx[code]
	return ok
}

// At returns the value at (dateIdx, code); NaN when the code is unknown.
func (t *Table) At(dateIdx int, code string) float64 {
	j, ok := t.colIdx[code]
	if !ok {
		return math.NaN()
	}
	return t.values[dateIdx][j]
}

// Column extracts one instrument's series, including any NaN cells.
func (t *Table) Column(code string) Series {
	j, ok := t.colIdx[code]
	if !ok {
		return Series{}
	}
	vals := make([]float64, len(t.Dates))
	for i := range t.Dates {
		vals[i] = t.values[i][j]
	}
	return Series{Dates: append([]time.Time(nil), t.Dates...), Values: vals}
}

// ColumnObserved extracts one instrument's series with NaN cells dropped.
func (t *Table) ColumnObserved(code string) Series {
	full := t.Column(code)
	var out Series
	for i, v := range full.Values {
		if !math.IsNaN(v) {
			out.Dates = append(out.Dates, full.Dates[i])
			out.Values = append(out.Values, v)
		}
	}
	return out
}

// SliceRows returns a view of rows [from, to).
func (t *Table) SliceRows(from, to int) *Table {
	if from < 0 {
		from = 0
	}
	if to > len(t.Dates) {
		to = len(t.Dates)
	}
	if from >= to {
		return NewTable(nil, t.Codes)
	}
	return &Table{
		Dates:  t.Dates[from:to],
		Codes:  t.Codes,
		values: t.values[from:to],
		colIdx: t.colIdx,
	}
}

// Select restricts the table to the given columns, preserving their order.
// Unknown codes are skipped.
func (t *Table) Select(codes []string) *Table {
	var kept []string
	for _, c := range codes {
		if t.HasCode(c) {
			kept = append(kept, c)
		}
	}
	out := NewTable(t.Dates, kept)
	for i := range t.Dates {
		for jNew, c := range kept {
			out.values[i][jNew] = t.values[i][t.colIdx[c]]
		}
	}
	return out
}

// Returns computes per-column daily simple returns. The first row is 0 and
// NaN inputs produce 0, so no NaN flows downstream.
func (t *Table) Returns() *Table {
	out := NewTable(t.Dates, t.Codes)
	for i := range t.Dates {
		for j := range t.Codes {
			out.values[i][j] = 0
			if i == 0 {
				continue
			}
			prev := t.values[i-1][j]
			curr := t.values[i][j]
			if prev != 0 && !math.IsNaN(prev) && !math.IsNaN(curr) {
				out.values[i][j] = (curr - prev) / prev
			}
		}
	}
	return out
}

// Dot computes the weighted row sums (portfolio return series) for the
// given weight map. Codes absent from the map contribute zero.
func (t *Table) Dot(weights map[string]float64) Series {
	vals := make([]float64, len(t.Dates))
	for i := range t.Dates {
		var sum float64
		for j, c := range t.Codes {
			w := weights[c]
			v := t.values[i][j]
			if w != 0 && !math.IsNaN(v) {
				sum += w * v
			}
		}
		vals[i] = sum
	}
	return Series{Dates: append([]time.Time(nil), t.Dates...), Values: vals}
}

// AlignWithSeries restricts the table and the series to their common dates.
// An empty series passes the table through untouched with an empty
// counterpart, per the alignment contract.
func (t *Table) AlignWithSeries(s Series) (*Table, Series) {
	if t.IsEmpty() || s.IsEmpty() {
		return t, Series{}
	}
	inS := make(map[string]int, s.Len())
	for i, d := range s.Dates {
		inS[d.Format(dateLayout)] = i
	}
	var keepRows []int
	var outS Series
	for i, d := range t.Dates {
		if j, ok := inS[d.Format(dateLayout)]; ok {
			keepRows = append(keepRows, i)
			outS.Dates = append(outS.Dates, s.Dates[j])
			outS.Values = append(outS.Values, s.Values[j])
		}
	}
	out := &Table{
		Dates:  make([]time.Time, len(keepRows)),
		Codes:  t.Codes,
		values: make([][]float64, len(keepRows)),
		colIdx: t.colIdx,
	}
	for k, i := range keepRows {
		out.Dates[k] = t.Dates[i]
		out.values[k] = t.values[i]
	}
	return out, outS
}
