package database

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Dialects with a migration set under migrations/<dialect>.
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// Migration is one numbered schema step with its rollback script.
type Migration struct {
	Version    int
	Name       string
	UpScript   string
	DownScript string
	// Checksum is the hex sha256 of UpScript; it is recorded when applied.
	Checksum string
}

func (m Migration) String() string {
	return fmt.Sprintf("%06d_%s", m.Version, m.Name)
}

// MigrationSet is the ordered list of migrations for one dialect.
type MigrationSet struct {
	Dialect    string
	Migrations []Migration
}

// Get returns the migration with version, or nil.
func (s *MigrationSet) Get(version int) *Migration {
	for i := range s.Migrations {
		if s.Migrations[i].Version == version {
			return &s.Migrations[i]
		}
	}
	return nil
}

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationFS embed.FS

var (
	setsOnce sync.Once
	sets     map[string]*MigrationSet
	setsErr  error
)

// Migrations returns the embedded migration set for dialect.
func Migrations(dialect string) (*MigrationSet, error) {
	setsOnce.Do(func() {
		sets = map[string]*MigrationSet{}
		for _, d := range []string{DialectPostgres, DialectSQLite} {
			sub, err := fs.Sub(migrationFS, path.Join("migrations", d))
			if err != nil {
				setsErr = err
				return
			}
			set, err := LoadMigrations(sub, d)
			if err != nil {
				setsErr = err
				return
			}
			sets[d] = set
		}
	})
	if setsErr != nil {
		return nil, setsErr
	}
	set, ok := sets[dialect]
	if !ok {
		return nil, fmt.Errorf("no migrations for dialect %q", dialect)
	}
	return set, nil
}

// LoadMigrations reads NNNNNN_name.up.sql / NNNNNN_name.down.sql pairs from
// the root of fsys. Every up script needs a matching down script and
// versions must be unique.
func LoadMigrations(fsys fs.FS, dialect string) (*MigrationSet, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read %s migrations: %w", dialect, err)
	}

	set := &MigrationSet{Dialect: dialect}
	seen := map[int]string{}
	for _, entry := range entries {
		file := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(file, ".up.sql") {
			continue
		}

		base := strings.TrimSuffix(file, ".up.sql")
		rawVersion, name, ok := strings.Cut(base, "_")
		if !ok || name == "" {
			return nil, fmt.Errorf("%s migration %q: expected NNNNNN_name.up.sql", dialect, file)
		}
		version, err := strconv.Atoi(rawVersion)
		if err != nil || version <= 0 {
			return nil, fmt.Errorf("%s migration %q: invalid version", dialect, file)
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("%s migrations %q and %q share version %d", dialect, prev, file, version)
		}
		seen[version] = file

		up, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, err
		}
		down, err := fs.ReadFile(fsys, base+".down.sql")
		if err != nil {
			return nil, fmt.Errorf("%s migration %q has no down script: %w", dialect, file, err)
		}

		sum := sha256.Sum256(up)
		set.Migrations = append(set.Migrations, Migration{
			Version:    version,
			Name:       name,
			UpScript:   string(up),
			DownScript: string(down),
			Checksum:   hex.EncodeToString(sum[:]),
		})
	}

	sort.Slice(set.Migrations, func(i, j int) bool {
		return set.Migrations[i].Version < set.Migrations[j].Version
	})
	return set, nil
}
