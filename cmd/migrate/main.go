package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/edgesync/backend/internal/infrastructure/config"
	"github.com/edgesync/backend/internal/infrastructure/logger"
	"github.com/edgesync/backend/internal/infrastructure/migration"
	"github.com/edgesync/backend/migrations"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// command is one migrate subcommand. Commands with a nil run work offline;
// the others get a migrator connected to the configured database.
type command struct {
	usage   string
	help    string
	offline func(args []string, log *zap.Logger) error
	run     func(m *migration.Migrator, args []string, log *zap.Logger) error
}

var commands = map[string]command{
	"up": {
		usage: "up",
		help:  "Apply all pending migrations",
		run:   func(m *migration.Migrator, _ []string, _ *zap.Logger) error { return m.Up() },
	},
	"down": {
		usage: "down",
		help:  "Roll back all migrations",
		run:   func(m *migration.Migrator, _ []string, _ *zap.Logger) error { return m.Down() },
	},
	"step": {
		usage: "step <n>",
		help:  "Apply n migrations (negative rolls back)",
		run: func(m *migration.Migrator, args []string, _ *zap.Logger) error {
			n, err := intArg(args)
			if err != nil {
				return err
			}
			return m.Steps(n)
		},
	},
	"force": {
		usage: "force <version>",
		help:  "Mark version as applied and clear the dirty flag",
		run: func(m *migration.Migrator, args []string, _ *zap.Logger) error {
			v, err := intArg(args)
			if err != nil {
				return err
			}
			return m.Force(v)
		},
	},
	"version": {
		usage: "version",
		help:  "Show the applied version",
		run: func(m *migration.Migrator, _ []string, log *zap.Logger) error {
			version, dirty, err := m.Version()
			if err == nil {
				log.Info("Current migration version", zap.Uint("version", version), zap.Bool("dirty", dirty))
			}
			return err
		},
	},
	"list": {
		usage: "list",
		help:  "List the migrations compiled into this binary",
		offline: func(_ []string, _ *zap.Logger) error {
			files, err := migration.List(migrations.FS)
			for _, f := range files {
				fmt.Printf("  %06d  %s\n", f.Version, f.Name)
			}
			return err
		},
	},
}

func main() {
	dir := flag.String("dir", "migrations", "Directory new migrations are written to")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Usage = printUsage
	flag.Parse()

	commands["create"] = command{
		usage: "create <name>",
		help:  "Write a new empty migration pair to -dir",
		offline: func(args []string, log *zap.Logger) error {
			if len(args) < 2 {
				return fmt.Errorf("create needs a migration name")
			}
			f, err := migration.Create(*dir, args[1])
			if err == nil {
				log.Info("Migration created", zap.Uint("version", f.Version), zap.String("up_file", f.UpPath))
			}
			return err
		},
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", args[0])
		printUsage()
		os.Exit(2)
	}

	log, err := logger.New(&logger.Config{Level: *logLevel, Format: "console", Output: "stdout"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if cmd.offline != nil {
		err = cmd.offline(args, log)
	} else {
		err = withMigrator(log, func(m *migration.Migrator) error { return cmd.run(m, args, log) })
	}
	if err != nil {
		log.Fatal("Migration command failed", zap.String("command", args[0]), zap.Error(err))
	}
}

// withMigrator connects to the configured postgres database and hands fn a migrator over it.
func withMigrator(log *zap.Logger, fn func(*migration.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Database.Driver != "postgres" {
		return fmt.Errorf("SQL migrations target postgres; the %s store builds its schema at startup", cfg.Database.Driver)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	m, err := migration.New(db, log)
	if err != nil {
		_ = db.Close()
		return err
	}
	defer func() { _ = m.Close() }()
	return fn(m)
}

func intArg(args []string) (int, error) {
	if len(args) < 2 {
		return 0, fmt.Errorf("%s needs a numeric argument", args[0])
	}
	return strconv.Atoi(args[1])
}

func printUsage() {
	var b strings.Builder
	b.WriteString("edgesync schema migrations\n\nUsage:\n  migrate [flags] <command> [arguments]\n\nCommands:\n")
	for _, name := range []string{"up", "down", "step", "force", "version", "list", "create"} {
		if c, ok := commands[name]; ok {
			fmt.Fprintf(&b, "  %-16s %s\n", c.usage, c.help)
		}
	}
	b.WriteString("\nFlags:\n")
	fmt.Fprint(os.Stderr, b.String())
	flag.PrintDefaults()
	fmt.Fprintln(os.Stderr, "\nDatabase settings come from config.toml or EDGESYNC_DATABASE_* variables.")
}
