package migration

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// TableDrift describes how one model's table differs from the database.
type TableDrift struct {
	Table          string
	Missing        bool
	MissingColumns []string
	ExtraColumns   []string

	schema *schema.Schema
}

// Drift is the difference between the registered models and the live
// schema. Extra columns are reported but never dropped by Generate.
type Drift struct {
	Tables []TableDrift
}

// Empty reports whether the models and the database agree.
func (d *Drift) Empty() bool {
	for _, t := range d.Tables {
		if t.Missing || len(t.MissingColumns) > 0 {
			return false
		}
	}
	return true
}

func (d *Drift) String() string {
	if len(d.Tables) == 0 {
		return "no drift detected\n"
	}
	var b strings.Builder
	for _, t := range d.Tables {
		switch {
		case t.Missing:
			fmt.Fprintf(&b, "missing table %s\n", t.Table)
		default:
			for _, c := range t.MissingColumns {
				fmt.Fprintf(&b, "missing column %s.%s\n", t.Table, c)
			}
			for _, c := range t.ExtraColumns {
				fmt.Fprintf(&b, "extra column %s.%s\n", t.Table, c)
			}
		}
	}
	return b.String()
}

// DetectDrift compares each model with the database, in dependency order.
func DetectDrift(ctx context.Context, db *gorm.DB, models ...interface{}) (*Drift, error) {
	db = db.WithContext(ctx)
	schemas, err := parseModels(db, models...)
	if err != nil {
		return nil, err
	}

	drift := &Drift{}
	m := db.Migrator()
	for _, s := range schemas {
		if !m.HasTable(s.Table) {
			drift.Tables = append(drift.Tables, TableDrift{Table: s.Table, Missing: true, schema: s})
			continue
		}

		cols, err := m.ColumnTypes(s.Table)
		if err != nil {
			return nil, fmt.Errorf("failed to read columns of %s: %w", s.Table, err)
		}
		live := make(map[string]bool, len(cols))
		for _, c := range cols {
			live[strings.ToLower(c.Name())] = true
		}

		td := TableDrift{Table: s.Table, schema: s}
		declared := make(map[string]bool)
		for _, f := range columns(s) {
			declared[strings.ToLower(f.DBName)] = true
			if !live[strings.ToLower(f.DBName)] {
				td.MissingColumns = append(td.MissingColumns, f.DBName)
			}
		}
		for name := range live {
			if !declared[name] {
				td.ExtraColumns = append(td.ExtraColumns, name)
			}
		}
		sort.Strings(td.ExtraColumns)

		if len(td.MissingColumns) > 0 || len(td.ExtraColumns) > 0 {
			drift.Tables = append(drift.Tables, td)
		}
	}
	return drift, nil
}
