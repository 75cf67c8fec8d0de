package di

import (
	"fmt"

	"github.com/aristath/minerva/internal/config"
	"github.com/aristath/minerva/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabase opens the database and applies the schema.
func InitializeDatabase(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	db, err := database.New(database.Config{
		Path:    cfg.DatabasePath,
		Profile: database.ProfileLedger,
		Name:    "minerva",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Info().Str("path", db.Path()).Msg("Database initialized")
	return &Container{DB: db}, nil
}
