package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	v "github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	v.AutomaticEnv()
	v.SetDefault("migrations_dir", "migrations")

	dsn := v.GetString("database_url")
	if dsn == "" {
		zap.L().Fatal("DATABASE_URL environment variable not set")
	}

	if len(os.Args) < 2 {
		zap.L().Fatal("Usage: migrate <up|down|version|force <version>>")
	}

	m, err := migrate.New("file://"+v.GetString("migrations_dir"), dsn)
	if err != nil {
		zap.L().Fatal("Failed to create migrate instance", zap.Error(err))
	}
	defer m.Close()

	switch os.Args[1] {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			zap.L().Fatal("Failed to run migrations", zap.Error(err))
		}
		zap.L().Info("Migrations applied successfully")

	case "down":
		if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			zap.L().Fatal("Failed to rollback migration", zap.Error(err))
		}
		zap.L().Info("Migration rolled back successfully")

	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			zap.L().Fatal("Failed to get version", zap.Error(err))
		}
		zap.L().Info("Schema version", zap.Uint("version", version), zap.Bool("dirty", dirty))

	case "force":
		if len(os.Args) < 3 {
			zap.L().Fatal("Usage: migrate force <version>")
		}
		var version int
		if _, err := fmt.Sscanf(os.Args[2], "%d", &version); err != nil {
			zap.L().Fatal("Invalid version", zap.Error(err))
		}
		if err := m.Force(version); err != nil {
			zap.L().Fatal("Failed to force version", zap.Error(err))
		}
		zap.L().Info("Forced schema version", zap.Int("version", version))

	default:
		zap.L().Fatal("Unknown command", zap.String("command", os.Args[1]))
	}
}
