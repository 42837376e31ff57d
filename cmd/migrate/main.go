// Command migrate manages the ledger database schema.
//
// Database settings come from the config file or LEDGER_DATABASE_* variables.
// Without --path the migrations embedded in the binary are used.
package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/erp/customer-ledger/internal/infrastructure/config"
	"github.com/erp/customer-ledger/internal/infrastructure/logger"
	"github.com/erp/customer-ledger/internal/infrastructure/migration"
	"github.com/erp/customer-ledger/migrations"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type options struct {
	path       string
	configFile string
	logLevel   string
	log        *zap.Logger
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Customer ledger migration tool",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log, err := logger.New(&logger.Config{
				Level:      opts.logLevel,
				Format:     "console",
				Output:     "stdout",
				TimeFormat: "2006-01-02 15:04:05",
			})
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			opts.log = log
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = opts.log.Sync()
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&opts.path, "path", "", "Migrations directory (default: the migrations built into this binary)")
	f.StringVar(&opts.configFile, "config", "", "Config file (default: search ., ./config, /app)")
	f.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn, error")

	root.AddCommand(
		opts.migratorCmd("up", "Apply all pending migrations", cobra.NoArgs,
			func(m *migration.Migrator, _ []string) error { return m.Up() }),
		opts.migratorCmd("down", "Roll back all migrations", cobra.NoArgs,
			func(m *migration.Migrator, _ []string) error { return m.Down() }),
		opts.migratorCmd("step <n>", "Apply n migrations, negative n rolls back", cobra.ExactArgs(1),
			func(m *migration.Migrator, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid step count %q", args[0])
				}
				return m.Steps(n)
			}),
		opts.migratorCmd("force <version>", "Set the version after repairing a dirty schema", cobra.ExactArgs(1),
			func(m *migration.Migrator, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version %q", args[0])
				}
				return m.Force(v)
			}),
		opts.migratorCmd("version", "Show the applied version", cobra.NoArgs,
			func(m *migration.Migrator, _ []string) error {
				version, dirty, err := m.Version()
				if err != nil {
					return err
				}
				opts.log.Info("Current migration version", zap.Uint("version", version), zap.Bool("dirty", dirty))
				return nil
			}),
		opts.createCmd(),
		opts.listCmd(),
	)
	return root
}

// migratorCmd builds a subcommand that needs a database connection
func (o *options) migratorCmd(use, short string, args cobra.PositionalArgs, run func(*migration.Migrator, []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := o.openMigrator()
			if err != nil {
				return err
			}
			defer m.Close()
			if err := run(m, args); err != nil {
				return fmt.Errorf("%s: %w", cmd.Name(), err)
			}
			return nil
		},
	}
}

func (o *options) openMigrator() (*migration.Migrator, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configFile != "" {
		cfg, err = config.LoadFile(o.configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	var m *migration.Migrator
	if o.path == "" {
		m, err = migration.NewFromFS(db, migrations.FS, o.log)
	} else {
		abs, absErr := filepath.Abs(o.path)
		if absErr != nil {
			_ = db.Close()
			return nil, absErr
		}
		m, err = migration.New(db, abs, o.log)
	}
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return m, nil
}

func (o *options) dir() string {
	if o.path == "" {
		return "migrations"
	}
	return o.path
}

func (o *options) createCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <name> [description]",
		Short: "Create an empty up/down migration pair",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(_ *cobra.Command, args []string) error {
			description := ""
			if len(args) == 2 {
				description = args[1]
			}
			mf, err := migration.CreateMigration(o.dir(), args[0], description)
			if err != nil {
				return err
			}
			o.log.Info("Migration created",
				zap.String("version", mf.Version),
				zap.String("up_file", mf.UpPath),
				zap.String("down_file", mf.DownPath),
			)
			return nil
		},
	}
}

func (o *options) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List migrations in the directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := migration.ListMigrations(o.dir())
			if err != nil {
				return err
			}
			for _, name := range list {
				fmt.Fprintln(cmd.OutOrStdout(), "  -", name)
			}
			return nil
		},
	}
}
