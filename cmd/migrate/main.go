package main

import (
	"database/sql"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/straye-as/pipeline-api/internal/config"
)

// migration runs one goose command against the pipeline schema
type migration struct {
	needsDB bool
	run     func(db *sql.DB, dir string, args []string) error
}

var commands = map[string]migration{
	"up": {needsDB: true, run: func(db *sql.DB, dir string, _ []string) error {
		return goose.Up(db, dir)
	}},
	"up-to": {needsDB: true, run: func(db *sql.DB, dir string, args []string) error {
		version, err := versionArg(args)
		if err != nil {
			return err
		}
		return goose.UpTo(db, dir, version)
	}},
	"down": {needsDB: true, run: func(db *sql.DB, dir string, _ []string) error {
		return goose.Down(db, dir)
	}},
	"down-to": {needsDB: true, run: func(db *sql.DB, dir string, args []string) error {
		version, err := versionArg(args)
		if err != nil {
			return err
		}
		return goose.DownTo(db, dir, version)
	}},
	"redo": {needsDB: true, run: func(db *sql.DB, dir string, _ []string) error {
		return goose.Redo(db, dir)
	}},
	"reset": {needsDB: true, run: func(db *sql.DB, dir string, _ []string) error {
		return goose.Reset(db, dir)
	}},
	"status": {needsDB: true, run: func(db *sql.DB, dir string, _ []string) error {
		return goose.Status(db, dir)
	}},
	"version": {needsDB: true, run: func(db *sql.DB, dir string, _ []string) error {
		return goose.Version(db, dir)
	}},
	// create only writes a file, so it works without a reachable database
	"create": {run: func(db *sql.DB, dir string, args []string) error {
		if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
			return fmt.Errorf("create requires a migration name")
		}
		return goose.Create(db, dir, args[0], "sql")
	}},
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Migration error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: migrate [%s] [args]", strings.Join(commandNames(), "|"))
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// sqlite deployments are migrated from the gorm models at startup
	if cfg.Database.IsSQLite() {
		return fmt.Errorf("goose migrations target postgres; set database.autoMigrate for sqlite")
	}

	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("unknown command: %s", args[0])
	}

	var db *sql.DB
	if cmd.needsDB {
		db, err = sql.Open("postgres", cfg.Database.ConnectionString())
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		if err := db.Ping(); err != nil {
			return fmt.Errorf("failed to ping database: %w", err)
		}
	}

	return execute(db, cfg.Database.MigrationsDir, args[0], args[1:])
}

// execute runs a known command against dir
func execute(db *sql.DB, dir, name string, args []string) error {
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command: %s", name)
	}

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}

	if err := cmd.run(db, dir, args); err != nil {
		return fmt.Errorf("migrate %s (%s): %w", name, dir, err)
	}
	return nil
}

func versionArg(args []string) (int64, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("a target version is required")
	}
	version, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || version < 0 {
		return 0, fmt.Errorf("invalid version %q", args[0])
	}
	return version, nil
}

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
