// Package tabular normalises the two source representations of a device
// file, flat delimited text and spreadsheet workbooks, into one row matrix.
package tabular

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kalambet/deepskin/internal/apperr"
	"github.com/kalambet/deepskin/internal/filestore"
)

// Dataset is a header row followed by data rows. Rows may be ragged; Cell
// reports out-of-range access as missing.
type Dataset struct {
	rows [][]string
}

// New wraps rows (header first). It fails with apperr.ErrEmptySource when
// there is no data row.
func New(rows [][]string) (Dataset, error) {
	if len(rows) < 2 {
		return Dataset{}, apperr.ErrEmptySource
	}
	return Dataset{rows: rows}, nil
}

// Header returns the header row.
func (d Dataset) Header() []string {
	if len(d.rows) == 0 {
		return nil
	}
	return d.rows[0]
}

// Len is the number of data rows.
func (d Dataset) Len() int {
	if len(d.rows) == 0 {
		return 0
	}
	return len(d.rows) - 1
}

// Row returns data row i (0-based, header excluded).
func (d Dataset) Row(i int) []string {
	return d.rows[i+1]
}

// Last returns the final data row.
func (d Dataset) Last() []string {
	return d.rows[len(d.rows)-1]
}

// Cell returns row[col], or false if col is negative or past the row end.
func Cell(row []string, col int) (string, bool) {
	if col < 0 || col >= len(row) {
		return "", false
	}
	return row[col], true
}

// Source is anything that can be materialised as a Dataset.
type Source interface {
	ReadAll() (Dataset, error)
}

// Open picks the Source for a file from its declared kind. Content is never
// sniffed.
func Open(file filestore.File, content []byte) (Source, error) {
	switch file.Kind() {
	case filestore.KindSpreadsheet:
		return SpreadsheetSource{r: bytes.NewReader(content)}, nil
	case filestore.KindDelimited:
		return DelimitedSource{r: bytes.NewReader(content)}, nil
	default:
		return nil, fmt.Errorf("unsupported content type %q for %s", file.ContentType, file.Name)
	}
}

// DelimitedSource reads RFC 4180 comma-separated text: quoted fields,
// doubled quotes, delimiters and newlines inside quotes.
type DelimitedSource struct {
	r io.Reader
}

func (s DelimitedSource) ReadAll() (Dataset, error) {
	cr := csv.NewReader(s.r)
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return Dataset{}, fmt.Errorf("parsing delimited text: %w", err)
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
	}
	return New(rows)
}

// SpreadsheetSource reads the first sheet of an XLSX workbook by stored
// value, not display text. Numbers keep full precision. Date-formatted
// serials become zone-less ISO 8601 strings ("2006-01-02T15:04:05") that
// the analysis reads in its configured location.
type SpreadsheetSource struct {
	r io.Reader
}

func (s SpreadsheetSource) ReadAll() (Dataset, error) {
	raw := excelize.Options{RawCellValue: true}
	f, err := excelize.OpenReader(s.r, raw)
	if err != nil {
		return Dataset{}, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Dataset{}, apperr.ErrEmptySource
	}
	rows, err := f.GetRows(sheets[0], raw)
	if err != nil {
		return Dataset{}, fmt.Errorf("reading sheet %q: %w", sheets[0], err)
	}
	rows = trimTrailingBlank(rows)
	if err := newCellDecoder(f, sheets[0]).decode(rows); err != nil {
		return Dataset{}, fmt.Errorf("reading sheet %q: %w", sheets[0], err)
	}
	return New(rows)
}

// trimTrailingBlank drops rows past the last one holding any value, matching
// the sheet's data range.
func trimTrailingBlank(rows [][]string) [][]string {
	for len(rows) > 0 && blank(rows[len(rows)-1]) {
		rows = rows[:len(rows)-1]
	}
	return rows
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
