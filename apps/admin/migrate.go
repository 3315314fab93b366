package main

import (
	"path/filepath"

	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/storage/database"
)

var gooseRunFunc = goose.RunContext // mockable

func (cli *commandLine) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate COMMAND [ARGS...]",
		Short: "Run a goose migration command (up, up-to VERSION, down, down-to VERSION, redo, reset, status, version, create NAME [go|sql], fix)",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return help(cmd, args)
			}
			return cli.migrate(cmd, args[0], args[1:])
		},
	}
}

func (cli *commandLine) migrate(cmd *cobra.Command, command string, args []string) error {
	engine := cli.conf.Database.Engine
	if err := goose.SetDialect(database.Dialect(engine)); err != nil {
		return err
	}

	dir := "."
	if command == "create" || command == "fix" {
		// these write migration files: work on the source tree
		goose.SetBaseFS(nil)
		dir = filepath.Join(core.Getwd(), "storage", "database", "migrations", engine)
	} else {
		goose.SetBaseFS(database.Migrations(engine))
	}
	return gooseRunFunc(cmd.Context(), command, cli.db.DB, dir, args...)
}
