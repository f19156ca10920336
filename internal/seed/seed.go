package seed

import (
	"context"
	"fmt"
	"log"

	"yatube/internal/models"

	"gorm.io/gorm"
)

// Options configuration for the seeder
type Options struct {
	NumUsers        int
	PostsPerUser    int
	CommentsPerPost int
	FollowsPerUser  int
	ShouldClean     bool
	SkipBcrypt      bool
	DryRun          bool
	MaxDays         int
	BatchSize       int
	RandomSeed      int64
	// Groups are upserted before any post is created. Nil means the built-in list.
	Groups []GroupFixture
}

// Summary counts what a Seed run created.
type Summary struct {
	Groups   int
	Users    int
	Posts    int
	Comments int
	Follows  int
}

// Seed populates the database with demo data.
func Seed(ctx context.Context, db *gorm.DB, opts Options) (*Summary, error) {
	log.Printf("🌱 Starting database seeding with %d users...", opts.NumUsers)

	if opts.ShouldClean && !opts.DryRun {
		if err := clearData(db); err != nil {
			return nil, fmt.Errorf("clear data: %w", err)
		}
	}

	fixtures := opts.Groups
	if fixtures == nil {
		var err error
		if fixtures, err = DefaultGroups(); err != nil {
			return nil, err
		}
	}
	var groups []*models.Group
	if !opts.DryRun {
		var err error
		if groups, err = Groups(ctx, db, fixtures); err != nil {
			return nil, err
		}
	}
	log.Printf("✓ %d groups available", len(groups))

	f := NewFactory(db.WithContext(ctx), opts)
	summary := &Summary{Groups: len(groups)}

	users := make([]*models.User, 0, opts.NumUsers)
	for i := 0; i < opts.NumUsers; i++ {
		u, err := f.CreateUser()
		if err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		users = append(users, u)
	}
	summary.Users = len(users)
	log.Printf("✓ %d users created (password %q)", len(users), DefaultPassword)

	posts := make([]*models.Post, 0, len(users)*opts.PostsPerUser)
	for _, u := range users {
		for i := 0; i < opts.PostsPerUser; i++ {
			var group *models.Group
			// Roughly a third of posts stay outside any group.
			if len(groups) > 0 && f.rng.Intn(3) != 0 {
				group = groups[f.rng.Intn(len(groups))]
			}
			posts = append(posts, f.BuildPost(u, group))
		}
	}
	if err := f.CreatePostsBatch(posts); err != nil {
		return nil, fmt.Errorf("failed to create posts: %w", err)
	}
	summary.Posts = len(posts)
	log.Printf("✓ %d posts created", len(posts))

	if len(users) > 0 {
		for _, p := range posts {
			for i := 0; i < opts.CommentsPerPost; i++ {
				if _, err := f.CreateComment(users[f.rng.Intn(len(users))], p); err != nil {
					return nil, fmt.Errorf("failed to create comment: %w", err)
				}
				summary.Comments++
			}
		}
	}
	log.Printf("✓ %d comments created", summary.Comments)

	if err := seedFollows(f, users, opts.FollowsPerUser, summary); err != nil {
		return nil, err
	}
	log.Printf("✓ %d follow edges created", summary.Follows)

	log.Println("✅ Database seeding completed successfully!")
	return summary, nil
}

// seedFollows makes each user follow up to n distinct other users.
func seedFollows(f *Factory, users []*models.User, n int, summary *Summary) error {
	if n <= 0 || len(users) < 2 {
		return nil
	}
	if n > len(users)-1 {
		n = len(users) - 1
	}
	for i, u := range users {
		created := 0
		for _, j := range f.rng.Perm(len(users)) {
			if created == n {
				break
			}
			if j == i {
				continue
			}
			if err := f.CreateFollow(u, users[j]); err != nil {
				return fmt.Errorf("failed to create follow: %w", err)
			}
			created++
			summary.Follows++
		}
	}
	return nil
}

// clearData removes seeded content, children first. Groups are kept.
func clearData(db *gorm.DB) error {
	for _, model := range []any{&models.Comment{}, &models.Follow{}, &models.Post{}, &models.User{}} {
		if err := db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
			return err
		}
	}
	log.Println("✓ Existing users, posts, comments and follows removed")
	return nil
}
