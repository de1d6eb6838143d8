package records

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

var schemaCache sync.Map

// immutable columns are never written by Update.
var immutable = map[string]bool{"id": true, "created_at": true, "updated_at": true, "deleted_at": true}

// Repository is a generic store for one model type. Only columns of the
// model's schema may be filtered, sorted or updated.
type Repository[T any] struct {
	db       *gorm.DB
	columns  map[string]*schema.Field
	search   []string
	preload  []string
	readOnly map[string]bool
}

type Option func(*options)

type options struct {
	search   []string
	preload  []string
	readOnly []string
}

// WithSearch names the columns ListQuery.Search is matched against.
func WithSearch(columns ...string) Option {
	return func(o *options) { o.search = append(o.search, columns...) }
}

// WithPreload names associations loaded by Get and List.
func WithPreload(assocs ...string) Option {
	return func(o *options) { o.preload = append(o.preload, assocs...) }
}

// WithReadOnly names columns that only domain operations may change, such
// as statuses driven by a transition table.
func WithReadOnly(columns ...string) Option {
	return func(o *options) { o.readOnly = append(o.readOnly, columns...) }
}

// NewRepository builds a repository for T, parsing its schema for the
// column allow-list.
func NewRepository[T any](db *gorm.DB, opts ...Option) (*Repository[T], error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	sch, err := schema.Parse(new(T), &schemaCache, db.NamingStrategy)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}

	columns := make(map[string]*schema.Field)
	for _, field := range sch.Fields {
		if field.DBName == "" {
			continue
		}
		columns[field.DBName] = field
		if name, _, _ := strings.Cut(field.Tag.Get("json"), ","); name != "" && name != "-" {
			columns[name] = field
		}
	}
	for _, col := range o.search {
		if _, ok := columns[col]; !ok {
			return nil, fmt.Errorf("search column %q is not a column of %s", col, sch.Table)
		}
	}

	readOnly := make(map[string]bool, len(o.readOnly))
	for _, col := range o.readOnly {
		field, ok := columns[col]
		if !ok {
			return nil, fmt.Errorf("read-only column %q is not a column of %s", col, sch.Table)
		}
		readOnly[field.DBName] = true
	}

	return &Repository[T]{db: db, columns: columns, search: o.search, preload: o.preload, readOnly: readOnly}, nil
}

// MustRepository is NewRepository for models known at compile time.
func MustRepository[T any](db *gorm.DB, opts ...Option) *Repository[T] {
	r, err := NewRepository[T](db, opts...)
	if err != nil {
		panic(err)
	}
	return r
}

// WithTx returns a copy of the repository bound to tx.
func (r *Repository[T]) WithTx(tx *gorm.DB) *Repository[T] {
	clone := *r
	clone.db = tx
	return &clone
}

func (r *Repository[T]) Create(ctx context.Context, rec *T) error {
	return Translate(r.db.WithContext(ctx).Create(rec).Error)
}

func (r *Repository[T]) Get(ctx context.Context, id uint) (*T, error) {
	rec := new(T)
	tx := r.db.WithContext(ctx)
	for _, p := range r.preload {
		tx = tx.Preload(p)
	}
	if err := tx.First(rec, id).Error; err != nil {
		return nil, Translate(err)
	}
	return rec, nil
}

// Update applies a partial update. Keys may be column or JSON names.
func (r *Repository[T]) Update(ctx context.Context, id uint, changes map[string]any) (*T, error) {
	if len(changes) == 0 {
		return nil, fmt.Errorf("%w: no changes", ErrInvalid)
	}
	cols := make(map[string]any, len(changes))
	for key, value := range changes {
		field, ok := r.columns[key]
		if !ok || immutable[field.DBName] || r.readOnly[field.DBName] {
			return nil, fmt.Errorf("%w: column %q cannot be updated", ErrInvalid, key)
		}
		cols[field.DBName] = value
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := new(T)
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(rec, id).Error; err != nil {
			return err
		}
		return tx.Model(rec).Updates(cols).Error
	})
	if err != nil {
		return nil, Translate(err)
	}
	return r.Get(ctx, id)
}

// Delete soft-deletes the record.
func (r *Repository[T]) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(new(T), id)
	if res.Error != nil {
		return Translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return nil
}

func (r *Repository[T]) List(ctx context.Context, q ListQuery) (Page[T], error) {
	page := Page[T]{Items: []T{}}
	if err := q.normalize(); err != nil {
		return page, err
	}
	page.Limit, page.Offset = q.Limit, q.Offset

	tx := r.db.WithContext(ctx).Model(new(T))
	tx, err := r.scope(tx, q)
	if err != nil {
		return page, err
	}
	tx = tx.Session(&gorm.Session{})

	if err := tx.Count(&page.Total).Error; err != nil {
		return page, Translate(err)
	}

	order, err := r.order(q.Sort)
	if err != nil {
		return page, err
	}
	for _, p := range r.preload {
		tx = tx.Preload(p)
	}
	err = tx.Order(order).Order("id").Limit(q.Limit).Offset(q.Offset).Find(&page.Items).Error
	return page, Translate(err)
}

func (r *Repository[T]) scope(tx *gorm.DB, q ListQuery) (*gorm.DB, error) {
	for key, raw := range q.Filters {
		field, ok := r.columns[key]
		if !ok {
			return nil, fmt.Errorf("%w: cannot filter on %q", ErrInvalid, key)
		}
		values := make([]any, 0)
		for _, part := range strings.Split(raw, ",") {
			v, err := convert(field, strings.TrimSpace(part))
			if err != nil {
				return nil, fmt.Errorf("%w: filter %s: %v", ErrInvalid, key, err)
			}
			values = append(values, v)
		}
		col := clause.Column{Name: field.DBName}
		if len(values) == 1 {
			tx = tx.Where(clause.Eq{Column: col, Value: values[0]})
		} else {
			tx = tx.Where(clause.IN{Column: col, Values: values})
		}
	}

	if q.Search != "" && len(r.search) > 0 {
		like := "%" + strings.ToLower(q.Search) + "%"
		conds := make([]string, len(r.search))
		args := make([]any, len(r.search))
		for i, col := range r.search {
			conds[i] = fmt.Sprintf("LOWER(%s) LIKE ?", r.columns[col].DBName)
			args[i] = like
		}
		tx = tx.Where(strings.Join(conds, " OR "), args...)
	}
	return tx, nil
}

func (r *Repository[T]) order(sort string) (clause.OrderByColumn, error) {
	if sort == "" {
		return clause.OrderByColumn{Column: clause.Column{Name: "id"}}, nil
	}
	desc := strings.HasPrefix(sort, "-")
	name := strings.TrimPrefix(sort, "-")
	field, ok := r.columns[name]
	if !ok {
		return clause.OrderByColumn{}, fmt.Errorf("%w: cannot sort on %q", ErrInvalid, name)
	}
	return clause.OrderByColumn{Column: clause.Column{Name: field.DBName}, Desc: desc}, nil
}

func convert(field *schema.Field, raw string) (any, error) {
	switch field.DataType {
	case schema.Bool:
		return strconv.ParseBool(raw)
	case schema.Int:
		return strconv.ParseInt(raw, 10, 64)
	case schema.Uint:
		return strconv.ParseUint(raw, 10, 64)
	case schema.Float:
		return strconv.ParseFloat(raw, 64)
	}
	return raw, nil
}
