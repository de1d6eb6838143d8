// Package reports builds tabular reports from the back office data and
// exports them as CSV or Excel workbooks.
package reports

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/beesaferoot/buildops/internal/records"
)

type Kind int

const (
	Text Kind = iota
	Money
	Ratio
	Count
	Date
)

func (k Kind) numeric() bool {
	return k == Money || k == Ratio || k == Count
}

type Column struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Kind  Kind   `json:"kind"`
}

// Row holds values by column key. Text and Date cells hold string and
// time.Time, numeric cells hold decimal.Decimal.
type Row struct {
	Values   map[string]any `json:"values"`
	Subtotal bool           `json:"subtotal,omitempty"`
}

func (r Row) Decimal(key string) decimal.Decimal {
	if d, ok := r.Values[key].(decimal.Decimal); ok {
		return d
	}
	return decimal.Zero
}

func (r Row) String(key string) string {
	switch v := r.Values[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case time.Time:
		if v.IsZero() {
			return ""
		}
		return v.Format("2006-01-02")
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Table is a titled set of rows. Total, when set, is written after the rows.
type Table struct {
	Name    string   `json:"name"`
	Title   string   `json:"title"`
	Columns []Column `json:"columns"`
	Rows    []Row    `json:"rows"`
	Total   *Row     `json:"total,omitempty"`
}

func NewTable(name, title string, columns ...Column) *Table {
	return &Table{Name: name, Title: title, Columns: columns, Rows: []Row{}}
}

// Add appends a row whose values are given in column order.
func (t *Table) Add(values ...any) {
	row := Row{Values: make(map[string]any, len(t.Columns))}
	for i, c := range t.Columns {
		if i < len(values) {
			row.Values[c.Key] = values[i]
		}
	}
	t.Rows = append(t.Rows, row)
}

func (t *Table) column(key string) (Column, error) {
	for _, c := range t.Columns {
		if c.Key == key {
			return c, nil
		}
	}
	return Column{}, fmt.Errorf("%w: unknown report column %q", records.ErrInvalid, key)
}

func (t *Table) numericColumns(keys []string) error {
	for _, key := range keys {
		c, err := t.column(key)
		if err != nil {
			return err
		}
		if !c.Kind.numeric() {
			return fmt.Errorf("%w: column %q is not numeric", records.ErrInvalid, key)
		}
	}
	return nil
}

// Filter returns a copy holding the detail rows pred accepts. Subtotals and
// the total are dropped.
func (t *Table) Filter(pred func(Row) bool) *Table {
	out := NewTable(t.Name, t.Title, t.Columns...)
	for _, r := range t.Rows {
		if !r.Subtotal && pred(r) {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// GroupBy orders the detail rows by group, in order of first appearance,
// and follows each group with a subtotal row summing the sums columns.
func (t *Table) GroupBy(keys []string, sums ...string) (*Table, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: group by needs at least one column", records.ErrInvalid)
	}
	for _, k := range keys {
		if _, err := t.column(k); err != nil {
			return nil, err
		}
	}
	if err := t.numericColumns(sums); err != nil {
		return nil, err
	}

	var order []string
	groups := map[string][]Row{}
	for _, r := range t.Rows {
		if r.Subtotal {
			continue
		}
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = r.String(k)
		}
		id := strings.Join(parts, "\x00")
		if _, ok := groups[id]; !ok {
			order = append(order, id)
		}
		groups[id] = append(groups[id], r)
	}

	out := NewTable(t.Name, t.Title, t.Columns...)
	for _, id := range order {
		members := groups[id]
		out.Rows = append(out.Rows, members...)

		sub := Row{Values: map[string]any{}, Subtotal: true}
		for _, k := range keys {
			sub.Values[k] = members[0].Values[k]
		}
		for _, k := range sums {
			sub.Values[k] = sum(members, k)
		}
		out.Rows = append(out.Rows, sub)
	}
	return out, nil
}

// Totals sums the given columns over the detail rows and records the result
// as the table total. The first text column is labelled "Total".
func (t *Table) Totals(columns ...string) (Row, error) {
	if err := t.numericColumns(columns); err != nil {
		return Row{}, err
	}
	detail := make([]Row, 0, len(t.Rows))
	for _, r := range t.Rows {
		if !r.Subtotal {
			detail = append(detail, r)
		}
	}

	total := Row{Values: map[string]any{}, Subtotal: true}
	for _, c := range t.Columns {
		if c.Kind == Text {
			total.Values[c.Key] = "Total"
			break
		}
	}
	for _, k := range columns {
		total.Values[k] = sum(detail, k)
	}
	t.Total = &total
	return total, nil
}

func sum(rows []Row, key string) decimal.Decimal {
	s := decimal.Zero
	for _, r := range rows {
		s = s.Add(r.Decimal(key))
	}
	return s
}

// format renders a cell for text output.
func format(c Column, r Row) string {
	switch c.Kind {
	case Money:
		if _, ok := r.Values[c.Key]; !ok {
			return ""
		}
		return r.Decimal(c.Key).StringFixed(2)
	case Ratio:
		if _, ok := r.Values[c.Key]; !ok {
			return ""
		}
		return r.Decimal(c.Key).StringFixed(4)
	case Count:
		if _, ok := r.Values[c.Key]; !ok {
			return ""
		}
		return r.Decimal(c.Key).String()
	}
	return r.String(c.Key)
}
