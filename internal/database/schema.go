package database

import (
	"context"
	"fmt"

	"yatube/internal/config"

	"gorm.io/gorm"
)

// TableStatus reports one application table.
type TableStatus struct {
	Name    string
	Present bool
	Rows    int64
}

// SchemaStatus describes the schema plan, the migration ledger and the
// application tables without changing anything.
type SchemaStatus struct {
	Plan    SchemaPlan
	Applied []AppliedMigration
	Pending []Migration
	Tables  []TableStatus
}

// ApplySchema brings the database up to date according to DB_SCHEMA_MODE.
func ApplySchema(ctx context.Context, db *gorm.DB, cfg *config.Config) error {
	m, err := NewMigrator(db)
	if err != nil {
		return err
	}
	plan, err := m.Plan(cfg)
	if err != nil {
		return err
	}
	return m.Apply(ctx, plan)
}

// GetSchemaStatus reports the plan, applied and pending migrations and the
// row counts of users, groups, posts, comments and follows.
func GetSchemaStatus(ctx context.Context, db *gorm.DB, cfg *config.Config) (*SchemaStatus, error) {
	m, err := NewMigrator(db)
	if err != nil {
		return nil, err
	}
	plan, err := m.Plan(cfg)
	if err != nil {
		return nil, err
	}

	status := &SchemaStatus{Plan: plan}
	if status.Applied, err = m.Applied(ctx); err != nil {
		return nil, err
	}
	if status.Pending, err = m.Pending(ctx); err != nil {
		return nil, err
	}
	if status.Tables, err = tableStatuses(db.WithContext(ctx)); err != nil {
		return nil, err
	}
	return status, nil
}

func tableStatuses(db *gorm.DB) ([]TableStatus, error) {
	var out []TableStatus
	for _, model := range PersistentModels() {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(model); err != nil {
			return nil, err
		}
		ts := TableStatus{Name: stmt.Schema.Table}
		if db.Migrator().HasTable(model) {
			ts.Present = true
			if err := db.Model(model).Count(&ts.Rows).Error; err != nil {
				return nil, fmt.Errorf("count %s: %w", ts.Name, err)
			}
		}
		out = append(out, ts)
	}
	return out, nil
}
