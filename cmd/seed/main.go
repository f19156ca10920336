// Command seed fills the database with demo users, groups, posts, comments and follows.
package main

import (
	"context"
	"flag"
	"log"

	"yatube/internal/config"
	"yatube/internal/database"
	"yatube/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 20, "Number of users to create")
	postsPerUser := flag.Int("posts", 8, "Posts per user")
	commentsPerPost := flag.Int("comments", 2, "Comments per post")
	followsPerUser := flag.Int("follows", 5, "Authors each user follows")
	shouldClean := flag.Bool("clean", false, "Remove users, posts, comments and follows before seeding")
	groupsFile := flag.String("groups", "", "YAML file with group fixtures (default: built-in list)")
	groupsOnly := flag.Bool("groups-only", false, "Only upsert groups")
	dryRun := flag.Bool("dry-run", false, "Generate data without writing it")
	fast := flag.Bool("fast", false, "Skip bcrypt hashing (development only)")
	flag.Parse()

	log.Println("🌱 Database Seeder")
	log.Println("==================")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *fast && cfg.IsProduction() {
		log.Fatal("-fast is not allowed in production")
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	ctx := context.Background()
	if err := database.ApplySchema(ctx, db, cfg); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}

	fixtures, err := seed.LoadGroupsFile(*groupsFile)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	if *groupsOnly {
		groups, err := seed.Groups(ctx, db, fixtures)
		if err != nil {
			log.Fatalf("❌ Group seeding failed: %v", err)
		}
		log.Printf("✨ %d groups upserted", len(groups))
		return
	}

	summary, err := seed.Seed(ctx, db, seed.Options{
		NumUsers:        *numUsers,
		PostsPerUser:    *postsPerUser,
		CommentsPerPost: *commentsPerPost,
		FollowsPerUser:  *followsPerUser,
		ShouldClean:     *shouldClean,
		SkipBcrypt:      *fast,
		DryRun:          *dryRun,
		Groups:          fixtures,
	})
	if err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	log.Printf("✨ All done! groups=%d users=%d posts=%d comments=%d follows=%d",
		summary.Groups, summary.Users, summary.Posts, summary.Comments, summary.Follows)
	log.Printf("📧 All seeded users have the password: %s", seed.DefaultPassword)
}
