// Package main provides admin management utilities for yatube.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"yatube/internal/config"
	"yatube/internal/database"
	"yatube/internal/models"
	"yatube/internal/repository"
	"yatube/internal/service"
)

func usage() {
	fmt.Println("Usage:")
	fmt.Println("  go run ./cmd/admin create-group <slug> <title> [description]  - Create or update a group")
	fmt.Println("  go run ./cmd/admin list-groups                                - List all groups")
	fmt.Println("  go run ./cmd/admin promote <username>                         - Promote user to admin")
	fmt.Println("  go run ./cmd/admin demote <username>                          - Demote user from admin")
	fmt.Println("  go run ./cmd/admin list-admins                                - List all admins")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	ctx := context.Background()
	users := service.NewUserService(repository.NewUserRepository(db))
	groups := service.NewGroupService(repository.NewGroupRepository(db))

	command := os.Args[1]
	switch command {
	case "create-group":
		if len(os.Args) < 4 {
			usage()
			os.Exit(1)
		}
		g, err := groups.Upsert(ctx, service.UpsertGroupInput{
			Slug:        os.Args[2],
			Title:       os.Args[3],
			Description: strings.Join(os.Args[4:], " "),
		})
		exitOnError(err)
		fmt.Printf("Group %q saved (ID: %d, slug: %s)\n", g.Title, g.ID, g.Slug)

	case "list-groups":
		list, err := groups.List(ctx)
		exitOnError(err)
		if len(list) == 0 {
			fmt.Println("No groups found")
			return
		}
		for _, g := range list {
			fmt.Printf("  - %s (ID: %d, slug: %s)\n", g.Title, g.ID, g.Slug)
		}

	case "promote", "demote":
		if len(os.Args) < 3 {
			usage()
			os.Exit(1)
		}
		exitOnError(users.SetAdmin(ctx, os.Args[2], command == "promote"))
		if command == "promote" {
			fmt.Printf("User %s is now an admin\n", os.Args[2])
		} else {
			fmt.Printf("User %s is no longer an admin\n", os.Args[2])
		}

	case "list-admins":
		admins, err := users.ListAdmins(ctx)
		exitOnError(err)
		if len(admins) == 0 {
			fmt.Println("No admins found")
			return
		}
		fmt.Printf("Found %d admin(s):\n", len(admins))
		for _, a := range admins {
			fmt.Printf("  - %s (ID: %d, Email: %s)\n", a.Username, a.ID, a.Email)
		}

	default:
		fmt.Printf("Unknown command: %s\n", command)
		usage()
		os.Exit(1)
	}
}

func exitOnError(err error) {
	if err == nil {
		return
	}
	if models.IsCode(err, models.CodeNotFound) || models.IsCode(err, models.CodeValidation) {
		fmt.Println(err.Error())
		os.Exit(1)
	}
	log.Fatalf("Database error: %v", err)
}
