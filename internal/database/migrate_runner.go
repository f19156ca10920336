package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"yatube/internal/config"
	"yatube/internal/middleware"

	"gorm.io/gorm"
)

// MigrationTable records which migrations ran against this database.
const MigrationTable = "yatube_schema_migrations"

// Schema modes accepted by DB_SCHEMA_MODE.
const (
	SchemaModeHybrid = "hybrid"
	SchemaModeSQL    = "sql"
	SchemaModeAuto   = "auto"
)

// AppliedMigration is a row of MigrationTable.
type AppliedMigration struct {
	Version   int       `gorm:"primaryKey;autoIncrement:false"`
	Name      string    `gorm:"size:255;not null"`
	Checksum  string    `gorm:"size:64;not null"`
	AppliedAt time.Time `gorm:"not null"`
}

// TableName returns MigrationTable.
func (AppliedMigration) TableName() string {
	return MigrationTable
}

// SchemaPlan is what ApplySchema will do for one database.
type SchemaPlan struct {
	Dialect        string
	Mode           string
	Env            string
	RunSQL         bool
	RunAutoMigrate bool
}

// Migrator applies and reverts the migration set matching the connection's dialect.
type Migrator struct {
	db  *gorm.DB
	set *MigrationSet
}

// NewMigrator picks the embedded migration set by the GORM dialector name.
func NewMigrator(db *gorm.DB) (*Migrator, error) {
	set, err := Migrations(db.Dialector.Name())
	if err != nil {
		return nil, err
	}
	return &Migrator{db: db, set: set}, nil
}

// Plan resolves DB_SCHEMA_MODE for this dialect and environment.
// SQLite never combines SQL with AutoMigrate: AutoMigrate rebuilds SQLite
// tables on column drift and drops the triggers the SQL set installs.
func (m *Migrator) Plan(cfg *config.Config) (SchemaPlan, error) {
	plan := SchemaPlan{
		Dialect: m.set.Dialect,
		Mode:    strings.ToLower(strings.TrimSpace(cfg.DBSchemaMode)),
		Env:     cfg.Env,
	}
	if plan.Mode == "" {
		plan.Mode = SchemaModeHybrid
	}
	prodLike := isProdLikeEnv(cfg.Env)

	switch plan.Mode {
	case SchemaModeSQL:
		plan.RunSQL = true
	case SchemaModeAuto:
		if prodLike && !cfg.DBAutoMigrateAllowDestructive {
			return plan, fmt.Errorf("refusing DB_SCHEMA_MODE=auto in %q without DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE=true", cfg.Env)
		}
		plan.RunAutoMigrate = true
	case SchemaModeHybrid:
		plan.RunSQL = true
		plan.RunAutoMigrate = !prodLike && m.set.Dialect != DialectSQLite
	default:
		return plan, fmt.Errorf("unsupported DB_SCHEMA_MODE %q", plan.Mode)
	}
	return plan, nil
}

// Apply executes plan.
func (m *Migrator) Apply(ctx context.Context, plan SchemaPlan) error {
	if plan.RunSQL {
		if _, err := m.Up(ctx); err != nil {
			return fmt.Errorf("run sql migrations: %w", err)
		}
	}
	if plan.RunAutoMigrate {
		if plan.Mode == SchemaModeAuto && isProdLikeEnv(plan.Env) {
			middleware.Logger.WarnContext(ctx, "DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE=true set for DB_SCHEMA_MODE=auto; review schema diffs before deploying")
		}
		middleware.Logger.InfoContext(ctx, "Running GORM AutoMigrate",
			slog.String("dialect", plan.Dialect),
			slog.String("mode", plan.Mode),
		)
		if err := m.db.WithContext(ctx).AutoMigrate(PersistentModels()...); err != nil {
			return fmt.Errorf("auto-migrate: %w", err)
		}
	}
	return nil
}

// Applied lists recorded migrations in version order. A database that never
// ran a migration has no ledger table and reports none.
func (m *Migrator) Applied(ctx context.Context) ([]AppliedMigration, error) {
	db := m.db.WithContext(ctx)
	if !db.Migrator().HasTable(&AppliedMigration{}) {
		return nil, nil
	}
	var rows []AppliedMigration
	if err := db.Order("version ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("read %s: %w", MigrationTable, err)
	}
	return rows, nil
}

// Pending lists registered migrations that are not recorded yet.
func (m *Migrator) Pending(ctx context.Context) ([]Migration, error) {
	applied, err := m.Applied(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.verify(applied); err != nil {
		return nil, err
	}
	return m.pending(applied), nil
}

// Up applies every pending migration, each in its own transaction, and
// returns what it applied.
func (m *Migrator) Up(ctx context.Context) ([]Migration, error) {
	db := m.db.WithContext(ctx)
	if !db.Migrator().HasTable(&AppliedMigration{}) {
		if err := db.Migrator().CreateTable(&AppliedMigration{}); err != nil {
			return nil, fmt.Errorf("create %s: %w", MigrationTable, err)
		}
	}

	applied, err := m.Applied(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.verify(applied); err != nil {
		return nil, err
	}

	var done []Migration
	for _, mig := range m.pending(applied) {
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec(mig.UpScript).Error; err != nil {
				return err
			}
			return tx.Create(&AppliedMigration{
				Version:   mig.Version,
				Name:      mig.Name,
				Checksum:  mig.Checksum,
				AppliedAt: time.Now().UTC(),
			}).Error
		})
		if err != nil {
			return done, fmt.Errorf("apply %s (%s): %w", mig, m.set.Dialect, err)
		}
		middleware.Logger.InfoContext(ctx, "Migration applied",
			slog.String("migration", mig.String()),
			slog.String("dialect", m.set.Dialect),
		)
		done = append(done, mig)
	}
	return done, nil
}

// Down reverts applied migrations newest first until target has been
// reverted. target 0 reverts only the newest one.
func (m *Migrator) Down(ctx context.Context, target int) ([]Migration, error) {
	applied, err := m.Applied(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.verify(applied); err != nil {
		return nil, err
	}
	if len(applied) == 0 {
		return nil, errors.New("no migrations have been applied")
	}

	if target == 0 {
		target = applied[len(applied)-1].Version
	}
	if m.set.Get(target) == nil {
		return nil, fmt.Errorf("migration version %d not found", target)
	}
	if !containsVersion(applied, target) {
		return nil, fmt.Errorf("migration %06d has not been applied", target)
	}

	db := m.db.WithContext(ctx)
	var reverted []Migration
	for i := len(applied) - 1; i >= 0 && applied[i].Version >= target; i-- {
		mig := m.set.Get(applied[i].Version)
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec(mig.DownScript).Error; err != nil {
				return err
			}
			return tx.Where("version = ?", mig.Version).Delete(&AppliedMigration{}).Error
		})
		if err != nil {
			return reverted, fmt.Errorf("revert %s (%s): %w", mig, m.set.Dialect, err)
		}
		middleware.Logger.InfoContext(ctx, "Migration rolled back",
			slog.String("migration", mig.String()),
			slog.String("dialect", m.set.Dialect),
		)
		reverted = append(reverted, *mig)
	}
	return reverted, nil
}

func (m *Migrator) pending(applied []AppliedMigration) []Migration {
	var out []Migration
	for _, mig := range m.set.Migrations {
		if !containsVersion(applied, mig.Version) {
			out = append(out, mig)
		}
	}
	return out
}

// verify rejects ledgers that mention versions this build does not ship or
// whose recorded checksum no longer matches the embedded script.
func (m *Migrator) verify(applied []AppliedMigration) error {
	var unknown []int
	for _, row := range applied {
		mig := m.set.Get(row.Version)
		if mig == nil {
			unknown = append(unknown, row.Version)
			continue
		}
		if row.Checksum != "" && row.Checksum != mig.Checksum {
			return fmt.Errorf("%s: migration %s was edited after it was applied", MigrationTable, mig)
		}
	}
	if len(unknown) == 0 {
		return nil
	}

	sort.Ints(unknown)
	parts := make([]string, 0, len(unknown))
	for _, version := range unknown {
		parts = append(parts, fmt.Sprintf("%06d", version))
	}
	return fmt.Errorf("%s contains versions not shipped for %s: %s",
		MigrationTable, m.set.Dialect, strings.Join(parts, ", "))
}

func containsVersion(applied []AppliedMigration, version int) bool {
	for _, row := range applied {
		if row.Version == version {
			return true
		}
	}
	return false
}

func isProdLikeEnv(env string) bool {
	e := strings.ToLower(strings.TrimSpace(env))
	return e == "production" || e == "prod" || e == "staging" || e == "stage"
}
