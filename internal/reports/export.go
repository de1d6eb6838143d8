package reports

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/beesaferoot/buildops/internal/records"
)

// Formats accepted by Export.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Export writes the tables in format. CSV output holds a single table.
func Export(w io.Writer, format string, tables ...*Table) error {
	switch format {
	case FormatCSV:
		if len(tables) != 1 {
			return fmt.Errorf("%w: csv export holds exactly one report", records.ErrInvalid)
		}
		return WriteCSV(w, tables[0])
	case FormatXLSX:
		return WriteXLSX(w, tables...)
	}
	return fmt.Errorf("%w: unknown export format %q", records.ErrInvalid, format)
}

// ContentType returns the MIME type of an export format.
func ContentType(format string) string {
	if format == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// WriteCSV writes a header row, the rows and the total, prefixed with a
// UTF-8 BOM so Excel detects the encoding.
func WriteCSV(w io.Writer, t *Table) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return fmt.Errorf("failed to write BOM: %w", err)
	}
	cw := csv.NewWriter(w)

	header := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c.Title
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}

	write := func(r Row) error {
		rec := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			rec[i] = format(c, r)
		}
		return cw.Write(rec)
	}
	for i, r := range t.Rows {
		if err := write(r); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	if t.Total != nil {
		if err := write(*t.Total); err != nil {
			return fmt.Errorf("failed to write total: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Excel built-in number formats.
const (
	numFmtMoney   = 4  // #,##0.00
	numFmtPercent = 10 // 0.00%
	numFmtDate    = 14 // m/d/yy
)

type xlsxStyles struct {
	header, money, percent, date             int
	boldText, boldMoney, boldPercent, boldInt int
}

func newStyles(f *excelize.File) (xlsxStyles, error) {
	var s xlsxStyles
	bold := &excelize.Font{Bold: true}
	defs := []struct {
		dst   *int
		style *excelize.Style
	}{
		{&s.header, &excelize.Style{Font: bold, Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDEBF7"}}}},
		{&s.money, &excelize.Style{NumFmt: numFmtMoney}},
		{&s.percent, &excelize.Style{NumFmt: numFmtPercent}},
		{&s.date, &excelize.Style{NumFmt: numFmtDate}},
		{&s.boldText, &excelize.Style{Font: bold}},
		{&s.boldMoney, &excelize.Style{Font: bold, NumFmt: numFmtMoney}},
		{&s.boldPercent, &excelize.Style{Font: bold, NumFmt: numFmtPercent}},
		{&s.boldInt, &excelize.Style{Font: bold, NumFmt: 1}},
	}
	for _, d := range defs {
		id, err := f.NewStyle(d.style)
		if err != nil {
			return s, fmt.Errorf("failed to create style: %w", err)
		}
		*d.dst = id
	}
	return s, nil
}

func (s xlsxStyles) cell(k Kind, subtotal bool) int {
	switch {
	case k == Money && subtotal:
		return s.boldMoney
	case k == Money:
		return s.money
	case k == Ratio && subtotal:
		return s.boldPercent
	case k == Ratio:
		return s.percent
	case k == Date:
		return s.date
	case k == Count && subtotal:
		return s.boldInt
	case subtotal:
		return s.boldText
	}
	return 0
}

// WriteXLSX writes one worksheet per table with a bold header row. Numeric
// cells are stored as numbers so they can be summed in Excel.
func WriteXLSX(w io.Writer, tables ...*Table) error {
	if len(tables) == 0 {
		return fmt.Errorf("%w: nothing to export", records.ErrInvalid)
	}
	f := excelize.NewFile()
	defer f.Close()

	styles, err := newStyles(f)
	if err != nil {
		return err
	}

	used := map[string]bool{}
	for i, t := range tables {
		name := sheetName(t, used)
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
				return fmt.Errorf("failed to name sheet: %w", err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to add sheet %s: %w", name, err)
		}
		if err := writeSheet(f, name, t, styles); err != nil {
			return fmt.Errorf("sheet %s: %w", name, err)
		}
	}
	return f.Write(w)
}

func writeSheet(f *excelize.File, sheet string, t *Table, styles xlsxStyles) error {
	header := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c.Title
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(t.Columns), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, styles.header); err != nil {
		return err
	}

	rows := t.Rows
	if t.Total != nil {
		rows = append(rows[:len(rows):len(rows)], *t.Total)
	}
	for i, r := range rows {
		for j, c := range t.Columns {
			cell, err := excelize.CoordinatesToCellName(j+1, i+2)
			if err != nil {
				return err
			}
			v, ok := r.Values[c.Key]
			if t, isTime := v.(time.Time); isTime && t.IsZero() {
				ok = false
			}
			if ok {
				if err := f.SetCellValue(sheet, cell, xlsxValue(c.Kind, v)); err != nil {
					return err
				}
			}
			if style := styles.cell(c.Kind, r.Subtotal); style != 0 {
				if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
					return err
				}
			}
		}
	}

	for j, c := range t.Columns {
		col, err := excelize.ColumnNumberToName(j + 1)
		if err != nil {
			return err
		}
		width := 14.0
		if c.Kind == Text {
			width = 28
		}
		if err := f.SetColWidth(sheet, col, col, width); err != nil {
			return err
		}
	}
	return f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func xlsxValue(k Kind, v any) any {
	d, ok := v.(decimal.Decimal)
	if !ok || !k.numeric() {
		return v
	}
	if k == Count {
		return d.IntPart()
	}
	return d.InexactFloat64()
}

// sheetName derives a unique worksheet name within Excel's limits.
func sheetName(t *Table, used map[string]bool) string {
	name := t.Title
	if name == "" {
		name = t.Name
	}
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`:\/?*[]`, r) {
			return '-'
		}
		return r
	}, name)
	if len([]rune(name)) > 31 {
		name = string([]rune(name)[:31])
	}
	if name == "" {
		name = "Report"
	}
	base, n := name, 2
	for used[strings.ToLower(name)] {
		suffix := fmt.Sprintf(" (%d)", n)
		r := []rune(base)
		if len(r)+len(suffix) > 31 {
			r = r[:31-len(suffix)]
		}
		name = string(r) + suffix
		n++
	}
	used[strings.ToLower(name)] = true
	return name
}
