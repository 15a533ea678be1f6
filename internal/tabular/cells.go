package tabular

import (
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

const serialTimeLayout = "2006-01-02T15:04:05"

// cellDecoder rewrites raw numeric cells of one sheet: serials under a date
// or time number format become timestamps, other numbers are printed in
// their shortest exact form.
type cellDecoder struct {
	f        *excelize.File
	sheet    string
	date1904 bool
	isDate   map[int]bool // by style index
}

func newCellDecoder(f *excelize.File, sheet string) *cellDecoder {
	d := &cellDecoder{f: f, sheet: sheet, isDate: map[int]bool{}}
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		d.date1904 = *props.Date1904
	}
	return d
}

func (d *cellDecoder) decode(rows [][]string) error {
	// The header row is always text.
	for i := 1; i < len(rows); i++ {
		for j, v := range rows[i] {
			out, err := d.cell(j+1, i+1, v)
			if err != nil {
				return err
			}
			rows[i][j] = out
		}
	}
	return nil
}

func (d *cellDecoder) cell(col, row int, v string) (string, error) {
	if v == "" {
		return v, nil
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return v, nil
	}
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return "", err
	}
	typ, err := d.f.GetCellType(d.sheet, name)
	if err != nil {
		return "", err
	}
	if typ != excelize.CellTypeUnset && typ != excelize.CellTypeNumber {
		return v, nil
	}

	date, err := d.dateStyled(name)
	if err != nil {
		return "", err
	}
	if date && n >= 0 {
		t, err := excelize.ExcelDateToTime(n, d.date1904)
		if err != nil {
			return "", err
		}
		return t.Format(serialTimeLayout), nil
	}
	return strconv.FormatFloat(n, 'f', -1, 64), nil
}

func (d *cellDecoder) dateStyled(cell string) (bool, error) {
	idx, err := d.f.GetCellStyle(d.sheet, cell)
	if err != nil {
		return false, err
	}
	if v, ok := d.isDate[idx]; ok {
		return v, nil
	}
	var v bool
	// A style id missing from the style sheet reads as General.
	if style, err := d.f.GetStyle(idx); err == nil {
		v = builtinDateFormat(style.NumFmt)
		if style.CustomNumFmt != nil {
			v = dateFormatCode(*style.CustomNumFmt)
		}
	}
	d.isDate[idx] = v
	return v, nil
}

// builtinDateFormat reports whether a built-in number format id renders a
// date or time, including the East Asian locale ids.
func builtinDateFormat(id int) bool {
	switch {
	case 14 <= id && id <= 22, 45 <= id && id <= 47:
		return true
	case 27 <= id && id <= 36, 50 <= id && id <= 58, 71 <= id && id <= 81:
		return true
	}
	return false
}

// dateFormatCode reports whether a custom format code contains date or time
// tokens outside quoted literals, escapes and bracketed sections.
func dateFormatCode(code string) bool {
	code = strings.ToLower(code)
	for i := 0; i < len(code); i++ {
		switch c := code[i]; c {
		case '"':
			if k := strings.IndexByte(code[i+1:], '"'); k >= 0 {
				i += k + 1
			} else {
				return false
			}
		case '[':
			if k := strings.IndexByte(code[i+1:], ']'); k >= 0 {
				i += k + 1
			} else {
				return false
			}
		case '\\', '_', '*':
			i++
		case 'y', 'm', 'd', 'h', 's':
			return true
		}
	}
	return false
}
