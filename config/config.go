package config

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/syssam/relq/dialect"
	"github.com/syssam/relq/dialect/sql"
)

// Config is the root of the configuration file.
type Config struct {
	Database Database `yaml:"database"`
	Log      Log      `yaml:"log"`
	Cache    Cache    `yaml:"cache"`
	Eager    Eager    `yaml:"eager"`
}

// Database configures the driver and its pool.
type Database struct {
	// Driver is one of mysql, postgres, pgx or sqlite.
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	// SlowThreshold is the duration above which statements are logged
	// and counted as slow.
	SlowThreshold time.Duration `yaml:"slow_threshold"`
	TablePrefix   string        `yaml:"table_prefix"`
}

// Log configures the logger.
type Log struct {
	Level  string `yaml:"level"`  // debug, info, warn or error
	Format string `yaml:"format"` // text or json
}

// Cache configures the query result cache. An empty driver disables it.
type Cache struct {
	Driver string `yaml:"driver"` // memory or redis
	Addr   string `yaml:"addr"`
	DB     int    `yaml:"db"`
	Prefix string `yaml:"prefix"`
}

// Eager configures relation loading.
type Eager struct {
	// Concurrency bounds the relation queries run at once by one load.
	Concurrency int `yaml:"concurrency"`
}

// Default returns the configuration used for missing settings.
func Default() *Config {
	return &Config{
		Database: Database{
			MaxOpenConns:  10,
			MaxIdleConns:  5,
			SlowThreshold: 100 * time.Millisecond,
		},
		Log:   Log{Level: "info", Format: "text"},
		Eager: Eager{Concurrency: 4},
	}
}

type options struct {
	envFiles []string
	lookup   func(string) (string, bool)
}

// Option configures Load.
type Option func(*options) error

// WithEnvFiles loads the given .env files before expansion. Without this
// option a ".env" file in the working directory is loaded when present.
// Variables already set in the environment are not overridden.
func WithEnvFiles(files ...string) Option {
	return func(o *options) error {
		if len(files) == 0 {
			return NewConfigError("env files", nil, "at least one file is required")
		}
		o.envFiles = files
		return nil
	}
}

// WithLookup replaces os.LookupEnv for expansion.
func WithLookup(fn func(string) (string, bool)) Option {
	return func(o *options) error {
		if fn == nil {
			return NewConfigError("lookup", nil, "lookup function cannot be nil")
		}
		o.lookup = fn
		return nil
	}
}

// Load reads, expands and validates the configuration file at path.
func Load(path string, opts ...Option) (*Config, error) {
	o := options{lookup: os.LookupEnv}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}
	if o.envFiles != nil {
		if err := godotenv.Load(o.envFiles...); err != nil {
			return nil, &ConfigError{Option: "env files", Value: strings.Join(o.envFiles, ","), Message: "loading", Err: err}
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, &ConfigError{Option: "env files", Value: ".env", Message: "loading", Err: err}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, &ConfigError{Option: "file", Value: path, Message: "opening", Err: err}
	}
	defer f.Close()
	return Parse(f, o.lookup)
}

// Parse decodes a configuration from r, expanding ${VAR} and
// ${VAR:-default} with lookup, and validates it. Unknown keys are errors.
// References are expanded inside scalar values only, so substituted text
// never changes the structure of the document.
func Parse(r io.Reader, lookup func(string) (string, bool)) (*Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, &ConfigError{Option: "file", Message: "decoding", Err: err}
	}
	cfg := Default()
	if doc.Kind != 0 {
		if err := expandNode(&doc, lookup); err != nil {
			return nil, err
		}
		b, err := yaml.Marshal(&doc)
		if err != nil {
			return nil, &ConfigError{Option: "file", Message: "encoding", Err: err}
		}
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, &ConfigError{Option: "file", Message: "decoding", Err: err}
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandNode expands the scalars under n. Plain scalars lose their
// resolved tag, so "${PORT}" decodes as the number it expands to.
func expandNode(n *yaml.Node, lookup func(string) (string, bool)) error {
	var missing []string
	var walk func(*yaml.Node) error
	walk = func(n *yaml.Node) error {
		if n.Kind == yaml.ScalarNode && strings.Contains(n.Value, "$") {
			v, miss, err := expand(n.Value, lookup)
			if err != nil {
				return err
			}
			missing = append(missing, miss...)
			if v != n.Value && n.Style&(yaml.SingleQuotedStyle|yaml.DoubleQuotedStyle|yaml.LiteralStyle|yaml.FoldedStyle) == 0 {
				n.Tag = ""
			}
			n.Value = v
			return nil
		}
		for _, c := range n.Content {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(n); err != nil {
		return err
	}
	if len(missing) > 0 {
		return NewConfigError("expand", strings.Join(missing, ","), "variables are not set")
	}
	return nil
}

// Expand replaces ${VAR} and ${VAR:-default} references in s. A referenced
// variable that is unset and has no default is an error. "$$" is a literal
// dollar sign.
func Expand(s string, lookup func(string) (string, bool)) (string, error) {
	out, missing, err := expand(s, lookup)
	if err != nil {
		return "", err
	}
	if len(missing) > 0 {
		return "", NewConfigError("expand", strings.Join(missing, ","), "variables are not set")
	}
	return out, nil
}

// expand returns s with its references replaced and the names of the
// unset variables without a default.
func expand(s string, lookup func(string) (string, bool)) (string, []string, error) {
	var (
		b       strings.Builder
		missing []string
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '$' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		switch s[i+1] {
		case '$':
			b.WriteByte('$')
			i++
			continue
		case '{':
		default:
			b.WriteByte(c)
			continue
		}
		end := strings.IndexByte(s[i+2:], '}')
		if end < 0 {
			return "", nil, NewConfigError("expand", s[i:], "unterminated variable reference")
		}
		ref := s[i+2 : i+2+end]
		name, def, hasDef := strings.Cut(ref, ":-")
		if v, ok := lookup(name); ok && (v != "" || !hasDef) {
			b.WriteString(v)
		} else if hasDef {
			b.WriteString(def)
		} else {
			missing = append(missing, name)
		}
		i += end + 2
	}
	return b.String(), missing, nil
}

// Validate checks the settings and reports the first invalid one.
func (c *Config) Validate() error {
	d := c.Database
	if _, err := sql.GrammarFor(d.Driver); err != nil || d.Driver == "" {
		return NewConfigError("database.driver", d.Driver, "must be one of mysql, postgres, pgx or sqlite")
	}
	if d.DSN == "" {
		return NewConfigError("database.dsn", nil, "cannot be empty")
	}
	if d.Driver == dialect.MySQL {
		if _, err := mysql.ParseDSN(d.DSN); err != nil {
			return &ConfigError{Option: "database.dsn", Message: "invalid MySQL DSN", Err: err}
		}
	}
	switch {
	case d.MaxOpenConns < 0:
		return NewConfigError("database.max_open_conns", d.MaxOpenConns, "cannot be negative")
	case d.MaxIdleConns < 0:
		return NewConfigError("database.max_idle_conns", d.MaxIdleConns, "cannot be negative")
	case d.ConnMaxLifetime < 0:
		return NewConfigError("database.conn_max_lifetime", d.ConnMaxLifetime, "cannot be negative")
	case d.SlowThreshold < 0:
		return NewConfigError("database.slow_threshold", d.SlowThreshold, "cannot be negative")
	}
	if _, err := c.Log.level(); err != nil {
		return &ConfigError{Option: "log.level", Value: c.Log.Level, Message: "unknown level", Err: err}
	}
	if f := c.Log.Format; f != "text" && f != "json" {
		return NewConfigError("log.format", f, "must be text or json")
	}
	switch c.Cache.Driver {
	case "", "memory":
	case "redis":
		if c.Cache.Addr == "" {
			return NewConfigError("cache.addr", nil, "required by the redis cache")
		}
	default:
		return NewConfigError("cache.driver", c.Cache.Driver, "must be memory or redis")
	}
	if c.Eager.Concurrency < 1 {
		return NewConfigError("eager.concurrency", c.Eager.Concurrency, "must be positive")
	}
	return nil
}

func (l Log) level() (slog.Level, error) {
	var lv slog.Level
	err := lv.UnmarshalText([]byte(l.Level))
	return lv, err
}
