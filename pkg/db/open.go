package db

import (
	"time"

	"github.com/vidra-ai/vidra/internal/config"
	"github.com/vidra-ai/vidra/internal/observability/logger"
	"go.uber.org/fx"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Module wires the gorm database handle.
var Module = fx.Module("db",
	fx.Provide(FromAppConfig, Open),
)

// Config carries the connection settings for the database handle.
type Config struct {
	Type     string
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
	Pool     PoolConfig
}

// PoolConfig bounds the sql.DB connection pool. Zero values keep the
// driver defaults.
type PoolConfig struct {
	MaxIdle     int
	MaxOpen     int
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// FromAppConfig maps application config onto the database config.
func FromAppConfig(cfg config.Config) Config {
	return Config{
		Type:     cfg.DBType,
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		Name:     cfg.DBName,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		SSLMode:  cfg.DBSSLMode,
		Pool: PoolConfig{
			MaxIdle:     cfg.DBMaxIdleConn,
			MaxOpen:     cfg.DBMaxOpenConn,
			MaxLifetime: time.Duration(cfg.DBConnMaxLifetime) * time.Second,
			MaxIdleTime: time.Duration(cfg.DBConnMaxIdleTime) * time.Second,
		},
	}
}

// Open connects to the configured database and applies pool settings.
func Open(cfg Config) (*gorm.DB, error) {
	dialector, err := Dialect(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.NewGormLogger(logger.GormLoggerConfig{
			Level:         gormlogger.Warn,
			SlowThreshold: 200 * time.Millisecond,
		}),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	pool := cfg.Pool
	if pool.MaxIdle > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdle)
	}
	if pool.MaxOpen > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpen)
	}
	if pool.MaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(pool.MaxLifetime)
	}
	if pool.MaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(pool.MaxIdleTime)
	}

	return conn, nil
}
