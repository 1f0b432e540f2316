package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"github.com/yourusername/craft-server-manager/internal/config"
	"github.com/yourusername/craft-server-manager/internal/database"
	"github.com/yourusername/craft-server-manager/internal/logging"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if err := setupLogging(cfg); err != nil {
				return fmt.Errorf("failed to set up logging: %w", err)
			}
			defer logging.Close()

			db, err := database.NewDB(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			defer db.Close()

			pending, err := db.Pending()
			if err != nil {
				return fmt.Errorf("failed to read migration state: %w", err)
			}
			if len(pending) == 0 {
				log.Printf("Database at %s is up to date", db.Path())
				return nil
			}
			for _, name := range pending {
				log.Printf("Pending migration: %s", name)
			}

			if err := db.Migrate(); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Printf("Applied %d migrations to %s", len(pending), db.Path())
			return nil
		},
	}
}

func openDatabase(cfg *config.Config) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	db.SetPoolSize(cfg.Database.MaxConnections)

	log.Println("Running database migrations...")
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Println("Migrations completed successfully")
	return db, nil
}
