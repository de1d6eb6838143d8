// Package migration manages the buildops schema: versioned SQL migrations on
// top of an in-code baseline, their applied history, and drift between the
// models and a live database.
package migration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrNoSource = errors.New("applied migration has no source")

// Migration represents a single schema change.
type Migration struct {
	Version string // 14-digit timestamp, e.g. 20260301120000
	Name    string
	Source  string // file path, or "builtin"
	Up      func(*gorm.DB) error
	Down    func(*gorm.DB) error
}

// MigrationRecord is a row of the history table.
type MigrationRecord struct {
	Version   string    `gorm:"primaryKey;size:32" json:"version"`
	Name      string    `gorm:"not null" json:"name"`
	AppliedAt time.Time `gorm:"not null" json:"applied_at"`
}

func (MigrationRecord) TableName() string {
	return "schema_migrations"
}

// Migrator handles the execution of migrations.
type Migrator struct {
	db         *gorm.DB
	log        *zap.Logger
	migrations []*Migration
	now        func() time.Time
}

// NewMigrator returns a migrator over the given migrations, applied in
// version order.
func NewMigrator(db *gorm.DB, log *zap.Logger, migrations ...*Migration) *Migrator {
	if log == nil {
		log = zap.NewNop()
	}
	sorted := make([]*Migration, len(migrations))
	copy(sorted, migrations)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })
	return &Migrator{db: db, log: log.Named("migration"), migrations: sorted, now: time.Now}
}

// Migrations returns the known migrations in version order.
func (m *Migrator) Migrations() []*Migration {
	return m.migrations
}

// Init creates the history table if it doesn't exist.
func (m *Migrator) Init(ctx context.Context) error {
	if err := m.db.WithContext(ctx).AutoMigrate(&MigrationRecord{}); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}
	return nil
}

// History returns the applied migrations, oldest first.
func (m *Migrator) History(ctx context.Context) ([]MigrationRecord, error) {
	if err := m.Init(ctx); err != nil {
		return nil, err
	}
	var records []MigrationRecord
	if err := m.db.WithContext(ctx).Order("applied_at").Order("version").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}
	return records, nil
}

func (m *Migrator) applied(ctx context.Context) (map[string]MigrationRecord, error) {
	records, err := m.History(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]MigrationRecord, len(records))
	for _, r := range records {
		out[r.Version] = r
	}
	return out, nil
}

// Pending returns the migrations not yet applied.
func (m *Migrator) Pending(ctx context.Context) ([]*Migration, error) {
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}
	var pending []*Migration
	for _, mig := range m.migrations {
		if _, ok := applied[mig.Version]; !ok {
			pending = append(pending, mig)
		}
	}
	return pending, nil
}

// Up applies all pending migrations, each in its own transaction, and
// returns the ones applied. It stops at the first failure.
func (m *Migrator) Up(ctx context.Context) ([]*Migration, error) {
	pending, err := m.Pending(ctx)
	if err != nil {
		return nil, err
	}

	var done []*Migration
	for _, mig := range pending {
		m.log.Info("applying migration", zap.String("version", mig.Version), zap.String("name", mig.Name))
		err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := mig.Up(tx); err != nil {
				return err
			}
			return tx.Create(&MigrationRecord{
				Version:   mig.Version,
				Name:      mig.Name,
				AppliedAt: m.now().UTC(),
			}).Error
		})
		if err != nil {
			return done, fmt.Errorf("failed to apply migration %s_%s: %w", mig.Version, mig.Name, err)
		}
		done = append(done, mig)
	}
	return done, nil
}

// Down reverts the most recent migration. It returns nil when nothing is
// applied.
func (m *Migrator) Down(ctx context.Context) (*Migration, error) {
	if err := m.Init(ctx); err != nil {
		return nil, err
	}
	var last []MigrationRecord
	if err := m.db.WithContext(ctx).Order("version DESC").Limit(1).Find(&last).Error; err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}
	if len(last) == 0 {
		return nil, nil
	}

	var target *Migration
	for _, mig := range m.migrations {
		if mig.Version == last[0].Version {
			target = mig
			break
		}
	}
	if target == nil {
		return nil, fmt.Errorf("%w: %s_%s", ErrNoSource, last[0].Version, last[0].Name)
	}

	m.log.Info("reverting migration", zap.String("version", target.Version), zap.String("name", target.Name))
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := target.Down(tx); err != nil {
			return err
		}
		return tx.Delete(&MigrationRecord{}, "version = ?", target.Version).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to revert migration %s_%s: %w", target.Version, target.Name, err)
	}
	return target, nil
}

// Migration states reported by Status.
const (
	StatusApplied = "Applied"
	StatusPending = "Pending"
	StatusMissing = "Missing"
)

type StatusRow struct {
	Version   string     `json:"version"`
	Name      string     `json:"name"`
	Status    string     `json:"status"`
	AppliedAt *time.Time `json:"applied_at,omitempty"`
}

// Status lists every known migration with its state. Applied versions whose
// source is gone are reported as missing.
func (m *Migrator) Status(ctx context.Context) ([]StatusRow, error) {
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]StatusRow, 0, len(m.migrations))
	known := make(map[string]bool, len(m.migrations))
	for _, mig := range m.migrations {
		known[mig.Version] = true
		row := StatusRow{Version: mig.Version, Name: mig.Name, Status: StatusPending}
		if rec, ok := applied[mig.Version]; ok {
			at := rec.AppliedAt
			row.Status, row.AppliedAt = StatusApplied, &at
		}
		rows = append(rows, row)
	}
	for _, rec := range applied {
		if !known[rec.Version] {
			at := rec.AppliedAt
			rows = append(rows, StatusRow{Version: rec.Version, Name: rec.Name, Status: StatusMissing, AppliedAt: &at})
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Version < rows[j].Version })
	return rows, nil
}
