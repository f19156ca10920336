package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"yatube/internal/database"
	"yatube/internal/models"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// NewTestDB opens an isolated in-memory SQLite database migrated with the
// sqlite migration set.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_foreign_keys=on", name, dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	migrator, err := database.NewMigrator(db)
	require.NoError(t, err)
	_, err = migrator.Up(context.Background())
	require.NoError(t, err)
	return db
}

// testPasswordCost keeps fixture hashing fast.
const testPasswordCost = bcrypt.MinCost

// CreateUser inserts a user whose password equals the username + "-pass".
func CreateUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(username+"-pass"), testPasswordCost)
	require.NoError(t, err)
	u := &models.User{Username: username, Password: string(hash), Email: username + "@example.com"}
	require.NoError(t, db.Create(u).Error)
	return u
}

// CreateGroup inserts a group.
func CreateGroup(t *testing.T, db *gorm.DB, slug, title string) *models.Group {
	t.Helper()
	g := &models.Group{Slug: slug, Title: title, Description: title + " description"}
	require.NoError(t, db.Create(g).Error)
	return g
}

// CreatePost inserts a post by author, optionally in group.
func CreatePost(t *testing.T, db *gorm.DB, author *models.User, group *models.Group, text string) *models.Post {
	t.Helper()
	p := &models.Post{Text: text, AuthorID: author.ID}
	if group != nil {
		p.GroupID = &group.ID
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

// Follow inserts a follow edge.
func Follow(t *testing.T, db *gorm.DB, user, author *models.User) {
	t.Helper()
	require.NoError(t, db.Create(&models.Follow{UserID: user.ID, AuthorID: author.ID}).Error)
}
