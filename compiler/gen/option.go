package gen

import (
	"errors"
	"path"
	"runtime"
)

// DefaultHeader is written at the top of every generated file.
const DefaultHeader = "Code generated by relqgen. DO NOT EDIT."

// Config holds the code generation settings.
type Config struct {
	// Target is the output directory.
	Target string
	// Package is the import path of Target, for example
	// "github.com/org/project/models".
	Package string
	// Header is the comment written at the top of every file.
	Header string
	// IDType is the primary key type of entities that do not declare one.
	IDType string
	// Workers bounds the number of files rendered in parallel.
	Workers int
}

// Option configures code generation.
type Option func(*Config) error

// nonEmpty returns an option setting *dst to v, or a ConfigError for an
// empty v.
func nonEmpty(name, v string, dst func(*Config) *string) Option {
	return func(c *Config) error {
		if v == "" {
			return NewConfigError(name, nil, "cannot be empty")
		}
		*dst(c) = v
		return nil
	}
}

// WithTarget sets the output directory.
func WithTarget(dir string) Option {
	return nonEmpty("Target", dir, func(c *Config) *string { return &c.Target })
}

// WithPackage sets the import path of the output directory.
func WithPackage(pkg string) Option {
	return nonEmpty("Package", pkg, func(c *Config) *string { return &c.Package })
}

// WithHeader sets the file header comment.
func WithHeader(header string) Option {
	return func(c *Config) error {
		c.Header = header
		return nil
	}
}

// WithIDType sets the default primary key type.
// Supported types: "int", "int64", "uint64", "string", "uuid".
func WithIDType(t string) Option {
	return func(c *Config) error {
		if !validIDType(t) {
			return NewConfigError("IDType", t, "unsupported ID type; use int, int64, uint64, string, or uuid")
		}
		c.IDType = t
		return nil
	}
}

// WithWorkers sets the number of parallel workers.
func WithWorkers(n int) Option {
	return func(c *Config) error {
		if n <= 0 {
			return NewConfigError("Workers", n, "must be positive")
		}
		c.Workers = n
		return nil
	}
}

// Apply runs opts in order and stops at the first error.
func (c *Config) Apply(opts ...Option) error {
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return err
		}
	}
	return nil
}

// ApplyAll runs every option and joins their errors.
func (c *Config) ApplyAll(opts ...Option) error {
	errs := make([]error, 0, len(opts))
	for _, opt := range opts {
		errs = append(errs, opt(c))
	}
	return errors.Join(errs...)
}

// PackageName returns the name of the generated root package.
func (c *Config) PackageName() string {
	return path.Base(c.Package)
}

// NewConfig returns a Config with defaults and the given options applied.
// Target and Package are required.
func NewConfig(opts ...Option) (*Config, error) {
	c := &Config{
		Header:  DefaultHeader,
		IDType:  "int64",
		Workers: runtime.GOMAXPROCS(0),
	}
	if err := c.ApplyAll(opts...); err != nil {
		return nil, err
	}
	switch {
	case c.Target == "":
		return nil, NewConfigError("Target", nil, "target directory is required")
	case c.Package == "":
		return nil, NewConfigError("Package", nil, "package is required")
	}
	return c, nil
}

// MustNewConfig is like NewConfig but panics on error. It is meant for
// tests and static configurations.
func MustNewConfig(opts ...Option) *Config {
	c, err := NewConfig(opts...)
	if err != nil {
		panic(err)
	}
	return c
}
