package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haimi-h/shopify-clone-sub000/internal/db"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Relay database management commands",
	}

	cmd.AddCommand(newDBMigrateCmd())
	return cmd
}

func newDBMigrateCmd() *cobra.Command {
	var (
		configPath string
		create     bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the relay history tables",
		Long:  "Migrates the relay database. With --create the MySQL database itself is created first.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBMigrate(cmd, configPath, create)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to helpline config file")
	cmd.Flags().BoolVar(&create, "create", false, "create the MySQL database if it does not exist")
	return cmd
}

func runDBMigrate(cmd *cobra.Command, configPath string, create bool) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	dbCfg := cfg.Relay.Database

	if create {
		if dbCfg.Driver != "mysql" {
			return fmt.Errorf("db: --create only applies to the mysql driver (configured: %s)", dbCfg.Driver)
		}
		adminDB, err := db.ConnectAdmin(dbCfg.User, dbCfg.Host, dbCfg.Port)
		if err != nil {
			return fmt.Errorf("connect to MySQL at %s:%d: %w", dbCfg.Host, dbCfg.Port, err)
		}
		if err := db.CreateDatabase(adminDB, dbCfg.Name); err != nil {
			return err
		}
		fmt.Fprintf(out, "Database %s ready\n", dbCfg.Name)
	}

	gormDB, err := db.Open(dbCfg)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables (%s)\n", len(db.AllModels()), dbCfg.Driver)
	return nil
}
