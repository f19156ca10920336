// Command migrate inspects and changes the yatube schema.
//
//	migrate up             apply pending SQL migrations
//	migrate auto           run GORM AutoMigrate over the models
//	migrate status         show the plan, the migration ledger and table sizes
//	migrate down [version] revert the newest migration, or everything down to version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"yatube/internal/config"
	"yatube/internal/database"

	"gorm.io/gorm"
)

var errUsage = errors.New("usage: migrate <up|auto|status|down [version]>")

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	flag.Parse()
	if flag.NArg() < 1 {
		return errUsage
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := database.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	migrator, err := database.NewMigrator(db)
	if err != nil {
		return err
	}

	ctx := context.Background()
	switch strings.ToLower(strings.TrimSpace(flag.Arg(0))) {
	case "up":
		applied, err := migrator.Up(ctx)
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			log.Println("schema is up to date")
		}
		for _, m := range applied {
			log.Printf("applied %s", m)
		}
	case "auto":
		cfg.DBSchemaMode = database.SchemaModeAuto
		plan, err := migrator.Plan(cfg)
		if err != nil {
			return err
		}
		if err := migrator.Apply(ctx, plan); err != nil {
			return err
		}
		log.Println("models migrated")
	case "status":
		return printStatus(ctx, db, cfg)
	case "down":
		target := 0
		if flag.NArg() > 1 {
			if target, err = strconv.Atoi(flag.Arg(1)); err != nil || target <= 0 {
				return fmt.Errorf("invalid version %q", flag.Arg(1))
			}
		}
		reverted, err := migrator.Down(ctx, target)
		for _, m := range reverted {
			log.Printf("reverted %s", m)
		}
		return err
	default:
		return errUsage
	}
	return nil
}

func printStatus(ctx context.Context, db *gorm.DB, cfg *config.Config) error {
	status, err := database.GetSchemaStatus(ctx, db, cfg)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	p := status.Plan
	fmt.Fprintf(w, "dialect\t%s\nmode\t%s\nenv\t%s\nsql migrations\t%t\nautomigrate\t%t\n\n",
		p.Dialect, p.Mode, p.Env, p.RunSQL, p.RunAutoMigrate)

	fmt.Fprintln(w, "MIGRATION\tSTATE\tAPPLIED AT")
	for _, a := range status.Applied {
		fmt.Fprintf(w, "%06d_%s\tapplied\t%s\n", a.Version, a.Name, a.AppliedAt.Format("2006-01-02 15:04:05"))
	}
	for _, m := range status.Pending {
		fmt.Fprintf(w, "%s\tpending\t-\n", m)
	}

	fmt.Fprintln(w, "\nTABLE\tPRESENT\tROWS")
	for _, t := range status.Tables {
		rows := "-"
		if t.Present {
			rows = strconv.FormatInt(t.Rows, 10)
		}
		fmt.Fprintf(w, "%s\t%t\t%s\n", t.Name, t.Present, rows)
	}
	return w.Flush()
}
