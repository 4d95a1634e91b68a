package main

import (
	"context"
	"os"

	"github.com/fatih/color"
	_ "github.com/jackc/pgx/v5/stdlib"

	"sales-dialer/internal/audit"
	"sales-dialer/internal/calls"
	"sales-dialer/internal/cli"
	"sales-dialer/internal/config"
	"sales-dialer/internal/leads"
	"sales-dialer/pkg/utils"
)

func main() {
	if err := config.LoadEnvFile(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}

	open := func(ctx context.Context) (cli.Store, func(), error) {
		dbCfg, err := config.LoadStore()
		if err != nil {
			return cli.Store{}, nil, err
		}
		db, err := utils.OpenPostgres(ctx, "pgx", dbCfg.DSN(), utils.PostgresPoolConfig{MaxOpenConns: 2})
		if err != nil {
			return cli.Store{}, nil, err
		}
		return cli.Store{
			Leads:  leads.NewPostgresRepo(db),
			Calls:  calls.NewPostgresRepo(db),
			Events: audit.NewPostgresRepo(db),
		}, func() { _ = db.Close() }, nil
	}

	if err := cli.NewRootCmd(open).Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}
