package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"github.com/unihub/backend/internal/infrastructure/config"
	"github.com/unihub/backend/internal/infrastructure/logger"
	"github.com/unihub/backend/internal/infrastructure/migration"
	"go.uber.org/zap"
)

const defaultMigrationsPath = "migrations"

type rootOptions struct {
	path     string
	logLevel string
	log      *zap.Logger
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the unihub database schema",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			log, err := logger.New(config.LogConfig{Level: opts.logLevel, Format: "console", Output: "stderr"})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			opts.log = log

			if opts.path == "" {
				opts.path = findMigrations()
			}
			abs, err := filepath.Abs(opts.path)
			if err != nil {
				return fmt.Errorf("resolve migrations path: %w", err)
			}
			opts.path = abs
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.log != nil {
				_ = opts.log.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.path, "path", "", "migrations directory (default: ./migrations)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level (debug|info|warn|error)")

	cmd.AddCommand(
		newUpCommand(opts),
		newDownCommand(opts),
		newGotoCommand(opts),
		newVersionCommand(opts),
		newForceCommand(opts),
		newCreateCommand(opts),
		newListCommand(opts),
	)
	return cmd
}

// findMigrations prefers ./migrations and falls back to the directory two
// levels above the binary, which is where `go build -o bin/` puts it.
func findMigrations() string {
	if _, err := os.Stat(defaultMigrationsPath); err == nil {
		return defaultMigrationsPath
	}
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), "..", "..", defaultMigrationsPath)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return defaultMigrationsPath
}

// withMigrator opens the configured database for the duration of fn.
func withMigrator(opts *rootOptions, fn func(*migration.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping database: %w", err)
	}

	m, err := migration.New(db, opts.path, opts.log)
	if err != nil {
		_ = db.Close()
		return err
	}
	defer func() {
		if cerr := m.Close(); cerr != nil {
			opts.log.Warn("close migrator", zap.Error(cerr))
		}
	}()
	return fn(m)
}

func newUpCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "up [n]",
		Short: "Apply all pending migrations, or the next n",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := optionalCount(args)
			if err != nil {
				return err
			}
			return withMigrator(opts, func(m *migration.Migrator) error {
				if n == 0 {
					return m.Up()
				}
				return m.Steps(n)
			})
		},
	}
}

func newDownCommand(opts *rootOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "down [n]",
		Short: "Roll back the last n migrations (default 1)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := optionalCount(args)
			if err != nil {
				return err
			}
			if n == 0 {
				n = 1
			}
			return withMigrator(opts, func(m *migration.Migrator) error {
				if all {
					return m.Down()
				}
				return m.Steps(-n)
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "roll back every applied migration")
	return cmd
}

func newGotoCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "goto <version>",
		Short: "Migrate up or down to a specific version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid version %q", args[0])
			}
			return withMigrator(opts, func(m *migration.Migrator) error {
				return m.GoTo(uint(v))
			})
		},
	}
}

func newVersionCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(opts, func(m *migration.Migrator) error {
				v, dirty, err := m.Version()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if v == 0 {
					fmt.Fprintln(out, "no migrations applied")
					return nil
				}
				if dirty {
					fmt.Fprintf(out, "%d (dirty)\n", v)
					return nil
				}
				fmt.Fprintln(out, v)
				return nil
			})
		},
	}
}

func newForceCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "force <version>",
		Short: "Mark a version as applied and clear the dirty flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version %q", args[0])
			}
			return withMigrator(opts, func(m *migration.Migrator) error {
				return m.Force(v)
			})
		},
	}
}

func newCreateCommand(opts *rootOptions) *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Scaffold the next up/down migration pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mf, err := migration.CreateMigration(opts.path, args[0], description)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), mf.UpPath)
			fmt.Fprintln(cmd.OutOrStdout(), mf.DownPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "comment written into the new files")
	return cmd
}

func newListCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List migrations found on disk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			migrations, err := migration.ListMigrations(opts.path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(migrations) == 0 {
				fmt.Fprintln(out, "no migrations in", opts.path)
				return nil
			}
			for _, m := range migrations {
				suffix := ""
				if !m.HasDown {
					suffix = "  (no down)"
				}
				fmt.Fprintf(out, "%06d  %s%s\n", m.Version, m.Name, suffix)
			}
			return nil
		},
	}
}

func optionalCount(args []string) (int, error) {
	if len(args) == 0 {
		return 0, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		return 0, fmt.Errorf("count must be a positive integer, got %q", args[0])
	}
	return n, nil
}
