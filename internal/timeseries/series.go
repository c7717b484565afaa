// Package timeseries provides date-indexed series and table primitives used
// by the analytics engine. All series are strictly ascending on date.
package timeseries

import (
	"math"
	"time"
)

const dateLayout = "2006-01-02"

// Series is a date-indexed float64 sequence stored as parallel slices.
type Series struct {
	Dates  []time.Time
	Values []float64
}

// NewSeries builds a series from parallel slices. Caller guarantees
// ascending unique dates.
func NewSeries(dates []time.Time, values []float64) Series {
	return Series{Dates: dates, Values: values}
}

// Len returns the number of observations.
func (s Series) Len() int { return len(s.Values) }

// IsEmpty reports whether the series has no observations.
func (s Series) IsEmpty() bool { return len(s.Values) == 0 }

// First returns the first value, or 0 for an empty series.
func (s Series) First() float64 {
	if s.IsEmpty() {
		return 0
	}
	return s.Values[0]
}

// Last returns the last value, or 0 for an empty series.
func (s Series) Last() float64 {
	if s.IsEmpty() {
		return 0
	}
	return s.Values[len(s.Values)-1]
}

// Slice returns the sub-series over [from, to). Bounds are clamped.
func (s Series) Slice(from, to int) Series {
	if from < 0 {
		from = 0
	}
	if to > s.Len() {
		to = s.Len()
	}
	if from >= to {
		return Series{}
	}
	return Series{Dates: s.Dates[from:to], Values: s.Values[from:to]}
}

// PctChange returns the simple-return series of s. The first observation is
// kept with a return of 0, matching the preprocessing contract that no NaN
// survives downstream.
func (s Series) PctChange() Series {
	if s.Len() == 0 {
		return Series{}
	}
	out := Series{
		Dates:  append([]time.Time(nil), s.Dates...),
		Values: make([]float64, s.Len()),
	}
	for i := 1; i < s.Len(); i++ {
		prev := s.Values[i-1]
		if prev != 0 && !math.IsNaN(prev) && !math.IsNaN(s.Values[i]) {
			out.Values[i] = (s.Values[i] - prev) / prev
		}
	}
	return out
}

// Align restricts two series to their common dates, preserving order.
// If either side is empty the other is returned unmodified with an empty
// counterpart: callers must treat an empty result as "metric unavailable",
// never as zero.
func Align(a, b Series) (Series, Series) {
	if a.IsEmpty() || b.IsEmpty() {
		return a, b
	}
	inB := make(map[string]int, b.Len())
	for i, d := range b.Dates {
		inB[d.Format(dateLayout)] = i
	}
	var outA, outB Series
	for i, d := range a.Dates {
		if j, ok := inB[d.Format(dateLayout)]; ok {
			outA.Dates = append(outA.Dates, d)
			outA.Values = append(outA.Values, a.Values[i])
			outB.Dates = append(outB.Dates, b.Dates[j])
			outB.Values = append(outB.Values, b.Values[j])
		}
	}
	return outA, outB
}
