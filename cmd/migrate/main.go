// Command migrate applies or rolls back the Postgres schema.
//
//	DATABASE_URL=postgres://... migrate -direction up
package main

import (
	"flag"
	"log"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mitoc/membership-api/internal/adapters/postgres/migrate"
	"github.com/mitoc/membership-api/internal/platform/logging"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up or down")
	flag.Parse()

	// Only the database settings matter here; the full API config would demand JWT settings.
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig()
	v.AutomaticEnv()
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")

	logger, err := logging.New(v.GetString("LOG_LEVEL"), v.GetString("LOG_FORMAT"), "membership-migrate")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	dir, err := migrate.ParseDirection(*direction)
	if err != nil {
		logger.Fatal("invalid direction", zap.Error(err))
	}
	if err := migrate.Run(v.GetString("DATABASE_URL"), dir); err != nil {
		logger.Fatal("migration failed", zap.String("direction", string(dir)), zap.Error(err))
	}
	logger.Info("migrations applied", zap.String("direction", string(dir)))
}
