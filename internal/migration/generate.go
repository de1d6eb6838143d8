package migration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// ErrNoDrift is returned by Generate when there is nothing to write.
var ErrNoDrift = errors.New("no drift detected")

// Generated is a migration written by Generate.
type Generated struct {
	UpPath   string
	DownPath string
	Up       string
	Down     string
}

// Generate writes a migration pair that brings the database in line with
// the models: missing tables are created with their foreign keys and
// indexes, missing columns are added. Extra columns are left alone.
func Generate(ctx context.Context, db *gorm.DB, dir, name string, now time.Time, models ...interface{}) (*Generated, error) {
	drift, err := DetectDrift(ctx, db, models...)
	if err != nil {
		return nil, err
	}
	if drift.Empty() {
		return nil, ErrNoDrift
	}

	up, down := RenderSQL(db, drift)
	upPath, downPath, err := CreateFiles(dir, name, now, up, down)
	if err != nil {
		return nil, err
	}
	return &Generated{UpPath: upPath, DownPath: downPath, Up: up, Down: down}, nil
}

// RenderSQL returns the up and down scripts for drift. Column types come
// from the connected dialect.
func RenderSQL(db *gorm.DB, drift *Drift) (up, down string) {
	m := db.Migrator()
	var ups, downs []string

	for _, t := range drift.Tables {
		if t.Missing {
			ups = append(ups, createTableSQL(m, t.schema))
			for _, idx := range indexes(t.schema, nil) {
				ups = append(ups, createIndex(t.Table, idx))
			}
		}
	}
	for _, t := range drift.Tables {
		if t.Missing {
			continue
		}
		added := make(map[string]bool, len(t.MissingColumns))
		for _, name := range t.MissingColumns {
			added[name] = true
			f := t.schema.FieldsByDBName[name]
			ups = append(ups, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s;",
				quoteIdentifier(t.Table), quoteIdentifier(name), m.FullDataTypeOf(f).SQL))
		}
		for _, idx := range indexes(t.schema, added) {
			ups = append(ups, createIndex(t.Table, idx))
		}
	}

	// Reverse order: columns first, then tables children before parents.
	for i := len(drift.Tables) - 1; i >= 0; i-- {
		t := drift.Tables[i]
		if t.Missing {
			continue
		}
		added := make(map[string]bool, len(t.MissingColumns))
		for _, name := range t.MissingColumns {
			added[name] = true
		}
		for _, idx := range indexes(t.schema, added) {
			downs = append(downs, fmt.Sprintf("DROP INDEX IF EXISTS %s;", quoteIdentifier(idx.Name)))
		}
		for j := len(t.MissingColumns) - 1; j >= 0; j-- {
			downs = append(downs, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s;",
				quoteIdentifier(t.Table), quoteIdentifier(t.MissingColumns[j])))
		}
	}
	for i := len(drift.Tables) - 1; i >= 0; i-- {
		if t := drift.Tables[i]; t.Missing {
			downs = append(downs, fmt.Sprintf("DROP TABLE IF EXISTS %s;", quoteIdentifier(t.Table)))
		}
	}
	return strings.Join(ups, "\n\n"), strings.Join(downs, "\n")
}

func createTableSQL(m gorm.Migrator, s *schema.Schema) string {
	var lines []string
	hasPK := false
	for _, f := range columns(s) {
		typ := m.FullDataTypeOf(f).SQL
		if strings.Contains(strings.ToUpper(typ), "PRIMARY KEY") {
			hasPK = true
		}
		lines = append(lines, "    "+quoteIdentifier(f.DBName)+" "+typ)
	}
	if !hasPK && len(s.PrimaryFields) > 0 {
		pks := make([]string, len(s.PrimaryFields))
		for i, f := range s.PrimaryFields {
			pks[i] = quoteIdentifier(f.DBName)
		}
		lines = append(lines, "    PRIMARY KEY ("+strings.Join(pks, ", ")+")")
	}

	for _, c := range constraints(s) {
		fks := make([]string, len(c.ForeignKeys))
		for i, f := range c.ForeignKeys {
			fks[i] = quoteIdentifier(f.DBName)
		}
		refs := make([]string, len(c.References))
		for i, f := range c.References {
			refs[i] = quoteIdentifier(f.DBName)
		}
		def := fmt.Sprintf("    CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
			quoteIdentifier(c.Name), strings.Join(fks, ", "),
			quoteIdentifier(c.ReferenceSchema.Table), strings.Join(refs, ", "))
		if c.OnDelete != "" {
			def += " ON DELETE " + c.OnDelete
		}
		if c.OnUpdate != "" {
			def += " ON UPDATE " + c.OnUpdate
		}
		lines = append(lines, def)
	}

	return fmt.Sprintf("CREATE TABLE %s (\n%s\n);", quoteIdentifier(s.Table), strings.Join(lines, ",\n"))
}

// constraints collects the foreign keys stored on s, including those
// declared by has-one and has-many relations of other models.
func constraints(s *schema.Schema) []*schema.Constraint {
	seen := make(map[string]bool)
	var out []*schema.Constraint
	collect := func(rels map[string]*schema.Relationship) {
		for _, rel := range rels {
			c := rel.ParseConstraint()
			if c == nil || c.Schema == nil || c.ReferenceSchema == nil || c.Schema.Table != s.Table {
				continue
			}
			if seen[c.Name] {
				continue
			}
			seen[c.Name] = true
			out = append(out, c)
		}
	}
	collect(s.Relationships.Relations)
	for _, rel := range s.Relationships.Relations {
		if rel.FieldSchema != nil && rel.FieldSchema != s {
			collect(rel.FieldSchema.Relationships.Relations)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// indexes returns the indexes of s sorted by name. With only set, it keeps
// those touching at least one of the named columns.
func indexes(s *schema.Schema, only map[string]bool) []*schema.Index {
	parsed := s.ParseIndexes()
	names := make([]string, 0, len(parsed))
	for name := range parsed {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*schema.Index, 0, len(names))
	for _, name := range names {
		idx := parsed[name]
		if only != nil {
			touches := false
			for _, opt := range idx.Fields {
				if opt.Field != nil && only[opt.DBName] {
					touches = true
				}
			}
			if !touches {
				continue
			}
		}
		out = append(out, &idx)
	}
	return out
}

func createIndex(table string, idx *schema.Index) string {
	cols := make([]string, 0, len(idx.Fields))
	for _, opt := range idx.Fields {
		if opt.Expression != "" {
			cols = append(cols, opt.Expression)
			continue
		}
		cols = append(cols, quoteIdentifier(opt.DBName))
	}
	kind := "INDEX"
	if strings.EqualFold(idx.Class, "UNIQUE") {
		kind = "UNIQUE INDEX"
	}
	return fmt.Sprintf("CREATE %s IF NOT EXISTS %s ON %s (%s);",
		kind, quoteIdentifier(idx.Name), quoteIdentifier(table), strings.Join(cols, ", "))
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
