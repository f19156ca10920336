// Package seed provides helpers to create demo data for the application
// database. These helpers are intended for development and testing only.
package seed

import (
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"yatube/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultPassword is the password of every seeded user.
const DefaultPassword = "yatube-demo-pass"

// Factory builds domain entities and persists them to the database.
type Factory struct {
	db   *gorm.DB
	opts Options
	rng  *rand.Rand
	// synthetic ID counter when running in DryRun mode
	nextID uint
	// passwordHash is computed once; bcrypt per user makes large seeds slow.
	passwordHash string
}

// NewFactory creates a new Factory bound to the provided Gorm DB.
func NewFactory(db *gorm.DB, opts Options) *Factory {
	seed := opts.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	gofakeit.Seed(seed)
	// #nosec G404: acceptable for seeding
	return &Factory{db: db, opts: opts, rng: rand.New(rand.NewSource(seed)), nextID: 1000}
}

func (f *Factory) password() (string, error) {
	if f.passwordHash != "" {
		return f.passwordHash, nil
	}
	if f.opts.SkipBcrypt {
		f.passwordHash = DefaultPassword
		return f.passwordHash, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	f.passwordHash = string(hash)
	return f.passwordHash, nil
}

// CreateUser constructs and persists a sample user.
// Optional override functions may modify the generated user before saving.
func (f *Factory) CreateUser(overrides ...func(*models.User)) (*models.User, error) {
	hash, err := f.password()
	if err != nil {
		return nil, err
	}
	first, last := gofakeit.FirstName(), gofakeit.LastName()
	user := &models.User{
		Username:  fmt.Sprintf("%s_%s%d", strings.ToLower(first), strings.ToLower(last), gofakeit.Number(10, 9999)),
		Email:     gofakeit.Email(),
		FirstName: first,
		LastName:  last,
		Password:  hash,
	}
	user.Username = sanitizeUsername(user.Username)

	for _, override := range overrides {
		override(user)
	}

	if f.opts.DryRun {
		f.nextID++
		user.ID = f.nextID
		log.Printf("[dry-run] CreateUser: %s", user.Username)
		return user, nil
	}
	if err := f.db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// BuildPost constructs a post with a publication date spread over the last
// MaxDays days but does not persist it.
func (f *Factory) BuildPost(author *models.User, group *models.Group, overrides ...func(*models.Post)) *models.Post {
	post := &models.Post{
		Text:     gofakeit.Paragraph(1, f.rng.Intn(4)+1, 12, "\n"),
		AuthorID: author.ID,
		PubDate:  f.pastTime(),
	}
	if group != nil {
		post.GroupID = &group.ID
	}
	for _, override := range overrides {
		override(post)
	}
	return post
}

// CreatePostsBatch persists multiple posts in batches.
func (f *Factory) CreatePostsBatch(posts []*models.Post) error {
	if f.opts.DryRun {
		for _, p := range posts {
			f.nextID++
			p.ID = f.nextID
		}
		log.Printf("[dry-run] CreatePostsBatch: %d posts (no DB write)", len(posts))
		return nil
	}
	if len(posts) == 0 {
		return nil
	}
	return f.db.CreateInBatches(&posts, f.batchSize()).Error
}

// CreateComment constructs and persists a sample comment on post.
func (f *Factory) CreateComment(author *models.User, post *models.Post, overrides ...func(*models.Comment)) (*models.Comment, error) {
	comment := &models.Comment{
		PostID:   post.ID,
		AuthorID: author.ID,
		Text:     gofakeit.Sentence(f.rng.Intn(12) + 3),
		Created:  post.PubDate.Add(time.Duration(f.rng.Intn(72)+1) * time.Hour),
	}
	if comment.Created.After(time.Now()) {
		comment.Created = time.Now()
	}
	for _, override := range overrides {
		override(comment)
	}

	if f.opts.DryRun {
		f.nextID++
		comment.ID = f.nextID
		return comment, nil
	}
	if err := f.db.Create(comment).Error; err != nil {
		return nil, err
	}
	return comment, nil
}

// CreateFollow persists a follow edge; existing edges are left alone.
func (f *Factory) CreateFollow(user, author *models.User) error {
	if user.ID == author.ID || f.opts.DryRun {
		return nil
	}
	return f.db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.Follow{UserID: user.ID, AuthorID: author.ID}).Error
}

func (f *Factory) pastTime() time.Time {
	maxDays := f.opts.MaxDays
	if maxDays <= 0 {
		maxDays = 90
	}
	back := time.Duration(f.rng.Intn(maxDays))*24*time.Hour +
		time.Duration(f.rng.Intn(24))*time.Hour +
		time.Duration(f.rng.Intn(60))*time.Minute
	return time.Now().Add(-back).UTC()
}

func (f *Factory) batchSize() int {
	if f.opts.BatchSize > 0 {
		return f.opts.BatchSize
	}
	return 100
}

// sanitizeUsername keeps generated names inside the signup character set.
func sanitizeUsername(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		}
	}
	out := strings.Trim(b.String(), "_")
	if len(out) > 30 {
		out = out[:30]
	}
	if len(out) < 3 {
		out = fmt.Sprintf("user%d", time.Now().UnixNano()%100000)
	}
	return out
}
