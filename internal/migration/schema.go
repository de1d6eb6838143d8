package migration

import (
	"fmt"
	"sort"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// parseModels parses every model and orders the schemas so that a table
// comes after the tables it references.
func parseModels(db *gorm.DB, models ...interface{}) ([]*schema.Schema, error) {
	byTable := make(map[string]*schema.Schema, len(models))
	for _, model := range models {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(model); err != nil {
			return nil, fmt.Errorf("failed to parse model %T: %w", model, err)
		}
		byTable[stmt.Schema.Table] = stmt.Schema
	}
	return orderTables(byTable)
}

// dependencies maps each table to the tables its foreign keys reference.
func dependencies(byTable map[string]*schema.Schema) map[string]map[string]bool {
	deps := make(map[string]map[string]bool, len(byTable))
	add := func(from, to string) {
		if from == to {
			return
		}
		if _, ok := byTable[from]; !ok {
			return
		}
		if _, ok := byTable[to]; !ok {
			return
		}
		if deps[from] == nil {
			deps[from] = make(map[string]bool)
		}
		deps[from][to] = true
	}
	for table, s := range byTable {
		for _, rel := range s.Relationships.Relations {
			if rel.FieldSchema == nil {
				continue
			}
			switch rel.Type {
			case schema.BelongsTo:
				add(table, rel.FieldSchema.Table)
			case schema.HasOne, schema.HasMany:
				add(rel.FieldSchema.Table, table)
			}
		}
	}
	return deps
}

// orderTables sorts tables topologically, breaking ties by name.
func orderTables(byTable map[string]*schema.Schema) ([]*schema.Schema, error) {
	names := make([]string, 0, len(byTable))
	for name := range byTable {
		names = append(names, name)
	}
	sort.Strings(names)
	deps := dependencies(byTable)

	visited := make(map[string]bool)
	visiting := make(map[string]bool)
	sorted := make([]*schema.Schema, 0, len(names))
	var visit func(string) error
	visit = func(name string) error {
		if visited[name] {
			return nil
		}
		if visiting[name] {
			return fmt.Errorf("circular dependency detected at table %s", name)
		}
		visiting[name] = true

		refs := make([]string, 0, len(deps[name]))
		for ref := range deps[name] {
			refs = append(refs, ref)
		}
		sort.Strings(refs)
		for _, ref := range refs {
			if err := visit(ref); err != nil {
				return err
			}
		}

		visiting[name] = false
		visited[name] = true
		sorted = append(sorted, byTable[name])
		return nil
	}
	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return sorted, nil
}

// columns lists the migrated columns of s in declaration order.
func columns(s *schema.Schema) []*schema.Field {
	out := make([]*schema.Field, 0, len(s.DBNames))
	for _, name := range s.DBNames {
		f := s.FieldsByDBName[name]
		if f == nil || f.IgnoreMigration {
			continue
		}
		out = append(out, f)
	}
	return out
}
