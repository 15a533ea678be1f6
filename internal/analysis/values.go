package analysis

import (
	"encoding/json"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/kalambet/deepskin/internal/tabular"
)

// Number is a sensor reading. NaN marks a missing or non-numeric cell and
// is encoded as JSON null.
type Number float64

// NaN is the "not a number" reading.
func NaN() Number { return Number(math.NaN()) }

// IsNaN reports whether n carries no value.
func (n Number) IsNaN() bool { return math.IsNaN(float64(n)) }

func (n Number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(f)
}

func (n *Number) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*n = NaN()
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*n = Number(f)
	return nil
}

// ParseNumber converts a cell to a Number. Empty and non-numeric cells are NaN.
func ParseNumber(s string) Number {
	s = strings.TrimSpace(s)
	if s == "" {
		return NaN()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return NaN()
	}
	return Number(f)
}

// ParseTime parses a timestamp cell. Strings without a zone are read in loc.
func ParseTime(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if loc == nil {
		loc = time.Local
	}
	t, err := dateparse.ParseIn(s, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// TimedRecord is a data row whose timestamp cell parsed.
type TimedRecord struct {
	At  time.Time
	Row []string
}

// timedRecords returns the rows of ds with a valid timestamp in column col,
// sorted ascending by instant. Rows with missing or unparseable timestamps
// are dropped.
func timedRecords(ds tabular.Dataset, col int, loc *time.Location) []TimedRecord {
	out := make([]TimedRecord, 0, ds.Len())
	for i := 0; i < ds.Len(); i++ {
		row := ds.Row(i)
		cell, ok := tabular.Cell(row, col)
		if !ok {
			continue
		}
		at, ok := ParseTime(cell, loc)
		if !ok {
			continue
		}
		out = append(out, TimedRecord{At: at.UTC(), Row: row})
	}
	slices.SortStableFunc(out, func(a, b TimedRecord) int {
		return a.At.Compare(b.At)
	})
	return out
}
