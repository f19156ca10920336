package database

import (
	"context"
	"path/filepath"
	"testing"
	"testing/fstest"

	"yatube/internal/config"
	"yatube/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(SQLiteDSN(filepath.Join(t.TempDir(), "yatube.db"))), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func versions(ms []Migration) []int {
	out := make([]int, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.Version)
	}
	return out
}

func TestMigrations_DialectsShipTheSameSteps(t *testing.T) {
	pg, err := Migrations(DialectPostgres)
	require.NoError(t, err)
	lite, err := Migrations(DialectSQLite)
	require.NoError(t, err)

	require.NotEmpty(t, pg.Migrations)
	require.Len(t, lite.Migrations, len(pg.Migrations))
	for i, m := range pg.Migrations {
		assert.Equal(t, i+1, m.Version)
		assert.Equal(t, m.String(), lite.Migrations[i].String())
		assert.NotEmpty(t, m.DownScript, m.String())
		assert.Len(t, m.Checksum, 64)
	}
	assert.Equal(t, "000001_init_schema", pg.Migrations[0].String())
	assert.Nil(t, pg.Get(999))

	_, err = Migrations("mysql")
	assert.Error(t, err)
}

func TestLoadMigrations_Errors(t *testing.T) {
	sql := func(s string) *fstest.MapFile { return &fstest.MapFile{Data: []byte(s)} }

	tests := []struct {
		name string
		fs   fstest.MapFS
	}{
		{"missing down script", fstest.MapFS{"000001_init.up.sql": sql("SELECT 1;")}},
		{"no name", fstest.MapFS{"000001.up.sql": sql("SELECT 1;"), "000001.down.sql": sql("SELECT 1;")}},
		{"bad version", fstest.MapFS{"abc_init.up.sql": sql("SELECT 1;"), "abc_init.down.sql": sql("SELECT 1;")}},
		{"duplicate version", fstest.MapFS{
			"000001_a.up.sql": sql("SELECT 1;"), "000001_a.down.sql": sql("SELECT 1;"),
			"1_b.up.sql": sql("SELECT 1;"), "1_b.down.sql": sql("SELECT 1;"),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadMigrations(tt.fs, DialectSQLite)
			assert.Error(t, err)
		})
	}

	set, err := LoadMigrations(fstest.MapFS{
		"000002_b.up.sql":   sql("SELECT 2;"),
		"000002_b.down.sql": sql("SELECT 2;"),
		"000001_a.up.sql":   sql("SELECT 1;"),
		"000001_a.down.sql": sql("SELECT 1;"),
		"README.md":         sql("notes"),
	}, DialectSQLite)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, versions(set.Migrations))
}

func TestMigratorPlan(t *testing.T) {
	tests := []struct {
		name     string
		dialect  string
		cfg      config.Config
		wantSQL  bool
		wantAuto bool
		wantErr  bool
	}{
		{"hybrid dev", DialectPostgres, config.Config{DBSchemaMode: "hybrid", Env: "development"}, true, true, false},
		{"hybrid prod", DialectPostgres, config.Config{DBSchemaMode: "hybrid", Env: "production"}, true, false, false},
		{"empty defaults to hybrid", DialectPostgres, config.Config{Env: "test"}, true, true, false},
		{"sql only", DialectPostgres, config.Config{DBSchemaMode: "sql", Env: "development"}, true, false, false},
		{"auto in prod refused", DialectPostgres, config.Config{DBSchemaMode: "auto", Env: "production"}, false, false, true},
		{"auto in prod allowed", DialectPostgres, config.Config{DBSchemaMode: "auto", Env: "production", DBAutoMigrateAllowDestructive: true}, false, true, false},
		{"sqlite hybrid runs sql only", DialectSQLite, config.Config{DBSchemaMode: "hybrid", Env: "development"}, true, false, false},
		{"sqlite auto", DialectSQLite, config.Config{DBSchemaMode: "auto", Env: "test"}, false, true, false},
		{"unknown mode", DialectPostgres, config.Config{DBSchemaMode: "yolo"}, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Migrator{set: &MigrationSet{Dialect: tt.dialect}}
			plan, err := m.Plan(&tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.dialect, plan.Dialect)
			assert.Equal(t, tt.wantSQL, plan.RunSQL)
			assert.Equal(t, tt.wantAuto, plan.RunAutoMigrate)
		})
	}
}

func TestMigrator_UpAndDownSQLite(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	m, err := NewMigrator(db)
	require.NoError(t, err)

	pending, err := m.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3)

	applied, err := m.Up(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, versions(applied))

	again, err := m.Up(ctx)
	require.NoError(t, err)
	assert.Empty(t, again)

	ledger, err := m.Applied(ctx)
	require.NoError(t, err)
	require.Len(t, ledger, 3)
	assert.Equal(t, "follows_no_self", ledger[1].Name)

	leo := models.User{Username: "leo", Password: "x"}
	anna := models.User{Username: "anna", Password: "x"}
	require.NoError(t, db.Create(&leo).Error)
	require.NoError(t, db.Create(&anna).Error)

	require.NoError(t, db.Create(&models.Follow{UserID: leo.ID, AuthorID: anna.ID}).Error)
	assert.Error(t, db.Create(&models.Follow{UserID: leo.ID, AuthorID: anna.ID}).Error, "pair is unique")
	assert.Error(t, db.Create(&models.Follow{UserID: leo.ID, AuthorID: leo.ID}).Error, "self-follow is rejected")
	assert.Error(t, db.Create(&models.User{Username: "LEO", Password: "x"}).Error, "usernames are unique ignoring case")

	reverted, err := m.Down(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, versions(reverted))
	assert.NoError(t, db.Create(&models.User{Username: "LEO", Password: "x"}).Error)

	reverted, err = m.Down(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, versions(reverted))
	assert.NoError(t, db.Create(&models.Follow{UserID: anna.ID, AuthorID: anna.ID}).Error)

	_, err = m.Down(ctx, 2)
	assert.ErrorContains(t, err, "has not been applied")

	reverted, err = m.Down(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, versions(reverted))
	assert.False(t, db.Migrator().HasTable(&models.Follow{}))
	assert.False(t, db.Migrator().HasTable(&models.User{}))

	_, err = m.Down(ctx, 0)
	assert.Error(t, err)

	applied, err = m.Up(ctx)
	require.NoError(t, err)
	assert.Len(t, applied, 3)
}

func TestMigrator_DownRevertsNewestFirst(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	m, err := NewMigrator(db)
	require.NoError(t, err)
	_, err = m.Up(ctx)
	require.NoError(t, err)

	reverted, err := m.Down(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2, 1}, versions(reverted))

	ledger, err := m.Applied(ctx)
	require.NoError(t, err)
	assert.Empty(t, ledger)
}

func TestMigrator_RejectsDriftedLedger(t *testing.T) {
	ctx := context.Background()

	t.Run("edited script", func(t *testing.T) {
		db := openSQLite(t)
		m, err := NewMigrator(db)
		require.NoError(t, err)
		_, err = m.Up(ctx)
		require.NoError(t, err)

		require.NoError(t, db.Model(&AppliedMigration{}).Where("version = ?", 1).Update("checksum", "deadbeef").Error)
		_, err = m.Up(ctx)
		assert.ErrorContains(t, err, "000001_init_schema was edited")
	})

	t.Run("unknown version", func(t *testing.T) {
		db := openSQLite(t)
		m, err := NewMigrator(db)
		require.NoError(t, err)
		_, err = m.Up(ctx)
		require.NoError(t, err)

		require.NoError(t, db.Create(&AppliedMigration{Version: 99, Name: "from_the_future", Checksum: "x"}).Error)
		_, err = m.Pending(ctx)
		assert.ErrorContains(t, err, "000099")
	})
}

func TestGetSchemaStatus(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	cfg := &config.Config{DBSchemaMode: SchemaModeSQL, Env: "test"}

	status, err := GetSchemaStatus(ctx, db, cfg)
	require.NoError(t, err)
	assert.Empty(t, status.Applied)
	assert.Len(t, status.Pending, 3)
	require.Len(t, status.Tables, len(PersistentModels()))
	for _, ts := range status.Tables {
		assert.False(t, ts.Present, ts.Name)
	}

	require.NoError(t, ApplySchema(ctx, db, cfg))
	require.NoError(t, db.Create(&models.User{Username: "leo", Password: "x"}).Error)

	status, err = GetSchemaStatus(ctx, db, cfg)
	require.NoError(t, err)
	assert.Len(t, status.Applied, 3)
	assert.Empty(t, status.Pending)

	rows := map[string]int64{}
	for _, ts := range status.Tables {
		assert.True(t, ts.Present, ts.Name)
		rows[ts.Name] = ts.Rows
	}
	assert.Equal(t, int64(1), rows["users"])
	assert.Equal(t, int64(0), rows["follows"])
}
