package main

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/arklim/deadline-jail/internal/infra/config"
	"github.com/arklim/deadline-jail/internal/infra/database"
	"github.com/arklim/deadline-jail/internal/infra/logger"
	postgresrepo "github.com/arklim/deadline-jail/internal/repository/postgres"
	sqliterepo "github.com/arklim/deadline-jail/internal/repository/sqlite"
)

type MigrateCmd struct {
	driver     string
	sqlitePath string
	steps      int

	cfg *config.AppConfig
	log *zap.Logger
}

func NewMigrateCmd() *MigrateCmd {
	return &MigrateCmd{}
}

func (cmd *MigrateCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "migrate",
		Usage:       "Manage the task store schema",
		UsageText:   "jailctl migrate [options] command",
		Description: "Connection settings come from the JAIL_* environment; the flags override the driver and sqlite path.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "driver",
				Usage:       "storage driver (sqlite, postgres)",
				Destination: &cmd.driver,
			},
			&cli.StringFlag{
				Name:        "sqlite-path",
				Usage:       "sqlite database file",
				Destination: &cmd.sqlitePath,
			},
		},
		Before: cmd.load,
		Commands: []*cli.Command{
			cmd.upCmd(),
			cmd.downCmd(),
			cmd.versionCmd(),
		},
	})
	return app
}

func (cmd *MigrateCmd) load(ctx context.Context, _ *cli.Command) (context.Context, error) {
	cfg, err := config.Load()
	if err != nil {
		return ctx, fmt.Errorf("load config: %w", err)
	}
	if cmd.driver != "" {
		cfg.Storage.Driver = cmd.driver
	}
	if cmd.sqlitePath != "" {
		cfg.Storage.SQLitePath = cmd.sqlitePath
	}

	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return ctx, fmt.Errorf("setup logger: %w", err)
	}

	cmd.cfg = cfg
	cmd.log = log
	return ctx, nil
}

func (cmd *MigrateCmd) upCmd() *cli.Command {
	return &cli.Command{
		Name:  "up",
		Usage: "Apply all pending migrations",
		Action: func(ctx context.Context, c *cli.Command) error {
			switch cmd.cfg.Storage.Driver {
			case config.StoragePostgres:
				pool, err := database.NewPostgresPool(ctx, cmd.cfg.Postgres, cmd.log)
				if err != nil {
					return err
				}
				defer pool.Close()
				return postgresrepo.Migrate(ctx, pool, cmd.log)
			case config.StorageSQLite:
				return cmd.withSQLite(ctx, func(db *sqlx.DB) error {
					if err := sqliterepo.Migrate(ctx, db, cmd.log); err != nil {
						return err
					}
					return cmd.printVersion(ctx, c, db)
				})
			}
			return fmt.Errorf("driver %q has no schema to migrate", cmd.cfg.Storage.Driver)
		},
	}
}

func (cmd *MigrateCmd) downCmd() *cli.Command {
	return &cli.Command{
		Name:  "down",
		Usage: "Revert applied sqlite migrations, newest first",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "steps",
				Aliases:     []string{"n"},
				Value:       1,
				Destination: &cmd.steps,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return cmd.withSQLite(ctx, func(db *sqlx.DB) error {
				if err := sqliterepo.MigrateDown(ctx, db, cmd.steps, cmd.log); err != nil {
					return err
				}
				return cmd.printVersion(ctx, c, db)
			})
		},
	}
}

func (cmd *MigrateCmd) versionCmd() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print the applied sqlite schema version",
		Action: func(ctx context.Context, c *cli.Command) error {
			return cmd.withSQLite(ctx, func(db *sqlx.DB) error {
				return cmd.printVersion(ctx, c, db)
			})
		},
	}
}

func (cmd *MigrateCmd) withSQLite(ctx context.Context, fn func(db *sqlx.DB) error) error {
	if cmd.cfg.Storage.Driver != config.StorageSQLite {
		return fmt.Errorf("only the sqlite driver supports this command, got %q", cmd.cfg.Storage.Driver)
	}
	db, err := database.NewSQLiteDB(ctx, cmd.cfg.Storage.SQLitePath, cmd.log)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

func (cmd *MigrateCmd) printVersion(ctx context.Context, c *cli.Command, db *sqlx.DB) error {
	version, err := sqliterepo.SchemaVersion(ctx, db)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.Root().Writer, "schema version %d\n", version)
	return nil
}
