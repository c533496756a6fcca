package main

import (
	"watchparty/internal/config"
	"watchparty/internal/db"
)

func runMigrate(cfg *config.Config) error {
	database, err := db.NewGorm(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	return database.Migrate()
}
