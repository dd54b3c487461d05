package main

import (
	"flag"
	"fmt"
	"os"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/openarchive/preserv-backend/internal/config"
	"github.com/openarchive/preserv-backend/internal/migration"
	"github.com/openarchive/preserv-backend/internal/platform"
	pkglogger "github.com/openarchive/preserv-backend/pkg/logger"
)

func main() {
	configPath := flag.String("config", "configs/config.local.yaml", "config file path")
	withPlatform := flag.Bool("platform", false, "also create the platform item tables (standalone deployments)")
	flag.Parse()

	config.LoadDotEnv()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	pkglogger.InitStructured(cfg.App.Env)
	log := pkglogger.Component("migrate")

	db, err := gorm.Open(mysql.Open(cfg.Database.GetDSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}

	if err := migration.Run(db); err != nil {
		log.Fatal().Err(err).Msg("versioning schema migration failed")
	}
	log.Info().Msg("versioning schema up to date")

	if *withPlatform {
		if err := platform.Migrate(db); err != nil {
			log.Fatal().Err(err).Msg("platform schema migration failed")
		}
		log.Info().Msg("platform schema up to date")
	}
}
