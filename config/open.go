package config

import (
	"io"
	"log/slog"

	"github.com/redis/go-redis/v9"

	// Register the pgx database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/syssam/relq"
	"github.com/syssam/relq/cache"
	"github.com/syssam/relq/dialect/sql"
	"github.com/syssam/relq/schema"
)

// Open opens the configured database and wraps it in a StatsDriver that
// reports slow statements to logger.
func (c *Config) Open(logger *slog.Logger) (*sql.StatsDriver, error) {
	d := c.Database
	drv, err := sql.Open(d.Driver, d.DSN)
	if err != nil {
		return nil, &ConfigError{Option: "database.driver", Value: d.Driver, Message: "opening", Err: err}
	}
	db := drv.DB()
	db.SetMaxOpenConns(d.MaxOpenConns)
	db.SetMaxIdleConns(d.MaxIdleConns)
	db.SetConnMaxLifetime(d.ConnMaxLifetime)
	if logger == nil {
		logger = slog.Default()
	}
	return sql.NewStatsDriver(drv,
		sql.WithSlowThreshold(d.SlowThreshold),
		sql.WithSlowQueryLog(logger),
	), nil
}

// Logger returns a logger writing to w in the configured format. The level
// is read from level, which is set to the configured level.
func (c *Config) Logger(w io.Writer, level *slog.LevelVar) *slog.Logger {
	lv, _ := c.Log.level()
	level.Set(lv)
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// NewCache returns the configured result cache, or nil when caching is
// disabled.
func (c *Config) NewCache() relq.Cache {
	switch c.Cache.Driver {
	case "memory":
		return cache.NewMemory()
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: c.Cache.Addr, DB: c.Cache.DB})
		return cache.NewRedis(rdb, cache.WithPrefix(c.Cache.Prefix))
	}
	return nil
}

// RegistryOptions returns the schema.Registry options of the
// configuration.
func (c *Config) RegistryOptions() []schema.Option {
	if c.Database.TablePrefix == "" {
		return nil
	}
	return []schema.Option{schema.WithTablePrefix(c.Database.TablePrefix)}
}

// ClientOptions returns the relq.Client options of the configuration.
func (c *Config) ClientOptions(logger *slog.Logger, rc relq.Cache) []relq.Option {
	opts := []relq.Option{relq.WithLogger(logger), relq.WithLoadConcurrency(c.Eager.Concurrency)}
	if rc != nil {
		opts = append(opts, relq.WithCache(rc))
	}
	return opts
}

// Apply updates the settings of a running application that can change
// without a restart: the slow query threshold and the log level.
func (c *Config) Apply(drv *sql.StatsDriver, level *slog.LevelVar) {
	if drv != nil {
		drv.SetSlowThreshold(c.Database.SlowThreshold)
	}
	if level != nil {
		if lv, err := c.Log.level(); err == nil {
			level.Set(lv)
		}
	}
}
