package config

import (
	"github.com/smallbiznis/quotara/pkg/db"
	"go.uber.org/fx"
)

// Module wires application configuration and the derived db config.
var Module = fx.Module("config",
	fx.Provide(
		Load,
		provideDBConfig,
	),
)

func provideDBConfig(cfg Config) db.Config {
	return db.Config{
		Type:            cfg.DBType,
		Host:            cfg.DBHost,
		Port:            cfg.DBPort,
		Name:            cfg.DBName,
		User:            cfg.DBUser,
		Password:        cfg.DBPassword,
		SSLMode:         cfg.DBSSLMode,
		MaxIdleConn:     cfg.DBMaxIdleConn,
		MaxOpenConn:     cfg.DBMaxOpenConn,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	}
}
