package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/akriventsev/commerce/framework/config"
	"github.com/akriventsev/commerce/framework/migrations"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	dbURL := flag.String("database-url", "", "PostgreSQL connection string (default: postgres.dsn from config)")
	configPath := flag.String("config", "", "Path to config file")
	migrationsDir := flag.String("migrations-dir", "./framework/migrations/sql", "Directory for new migrations")

	if err := flag.CommandLine.Parse(os.Args[2:]); err != nil {
		os.Exit(1)
	}

	ctx := context.Background()

	if command == "create" {
		if len(flag.Args()) == 0 {
			fmt.Fprintf(os.Stderr, "Error: migration name is required\n")
			os.Exit(1)
		}
		path, err := migrations.CreateMigration(*migrationsDir, flag.Args()[0])
		exitOnError("Error creating migration", err)
		fmt.Printf("Created migration: %s\n", path)
		return
	}

	dsn := *dbURL
	if dsn == "" {
		cfg, err := config.Load(*configPath)
		exitOnError("Error loading config", err)
		dsn = cfg.Postgres.DSN
	}
	if dsn == "" {
		fmt.Fprintf(os.Stderr, "Error: --database-url or postgres.dsn is required\n")
		os.Exit(1)
	}

	db, err := migrations.Open(dsn)
	exitOnError("Error", err)
	defer closeDB(db)

	switch command {
	case "up":
		err := migrations.RunMigrationsLimited(ctx, db, stepsArg(0))
		exitOnError("Error applying migrations", err)
		fmt.Println("Migrations applied successfully")
	case "down":
		steps := stepsArg(1)
		err := migrations.RollbackMigrations(ctx, db, steps)
		exitOnError("Error rolling back migrations", err)
		fmt.Printf("Rolled back %d migration(s)\n", steps)
	case "status":
		runStatus(ctx, db)
	case "version":
		version, err := migrations.GetCurrentVersion(ctx, db)
		exitOnError("Error getting version", err)
		if version == 0 {
			fmt.Println("No migrations applied")
			return
		}
		fmt.Println(version)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Commerce Migration Tool")
	fmt.Println()
	fmt.Println("Usage: commerce-migrate <command> [flags] [args]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  up [N]        - Apply all pending migrations (or N migrations)")
	fmt.Println("  down [N]      - Rollback N migrations (default: 1)")
	fmt.Println("  status        - Show status of all migrations")
	fmt.Println("  version       - Show current migration version")
	fmt.Println("  create <name> - Create a new migration")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --database-url    - PostgreSQL connection string")
	fmt.Println("  --config          - Config file with postgres.dsn")
	fmt.Println("  --migrations-dir  - Directory for new migrations")
}

func runStatus(ctx context.Context, db *sql.DB) {
	statuses, err := migrations.GetMigrationStatus(ctx, db)
	exitOnError("Error getting status", err)

	fmt.Println("Migration Status:")
	fmt.Println("================")
	for _, status := range statuses {
		fmt.Printf("[%s] %05d - %s", status.Status, status.Version, status.Name)
		if status.AppliedAt != nil {
			fmt.Printf(" (applied at %s)", status.AppliedAt.Format("2006-01-02 15:04:05"))
		}
		fmt.Println()
	}
}

func stepsArg(def int64) int64 {
	if len(flag.Args()) > 0 {
		if n, err := strconv.ParseInt(flag.Args()[0], 10, 64); err == nil {
			return n
		}
	}
	return def
}

func exitOnError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
		os.Exit(1)
	}
}

func closeDB(db *sql.DB) {
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
	}
}
