// Package config resolves run settings from a .env file, the environment and
// command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ormasoftchile/sprocket/pkg/dbconn"
	"github.com/ormasoftchile/sprocket/pkg/logging"
	"github.com/ormasoftchile/sprocket/pkg/render"
)

// Environment variables read by ApplyEnv.
const (
	EnvDriver     = "SPROCKET_DRIVER"
	EnvConnection = "SPROCKET_CONNECTION"
	EnvTimeout    = "SPROCKET_TIMEOUT"
	EnvLogLevel   = "SPROCKET_LOG_LEVEL"
)

// DefaultEnvFile is loaded when present in the working directory.
const DefaultEnvFile = ".env"

// DefaultDriver is the database sprocket was built for.
const DefaultDriver = "sqlserver"

// connectionBarebone is the shortest ADO-style SQL Server connection string
// that can name a server and a database.
const connectionBarebone = "Server=;Database=;"

// Config holds everything a run needs.
type Config struct {
	Driver           string
	ConnectionString string
	CallTimeout      time.Duration
	Verbose          bool
	Format           string
	FailFast         bool
	LogLevel         string
	LogJSON          bool
	TracePath        string
	Vars             map[string]any
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Driver:      DefaultDriver,
		CallTimeout: dbconn.DefaultCallTimeout,
		Format:      render.FormatTree,
		LogLevel:    logging.DefaultLevel,
	}
}

// LoadEnvFile loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = DefaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays values from the environment. getenv is usually os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv(EnvDriver); v != "" {
		c.Driver = v
	}
	if v := getenv(EnvConnection); v != "" {
		c.ConnectionString = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := getenv(EnvTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTimeout, err)
		}
		c.CallTimeout = d
	}
	return nil
}

// NormalizeDriver maps accepted aliases onto registered database/sql driver
// names.
func NormalizeDriver(driver string) string {
	switch d := strings.ToLower(strings.TrimSpace(driver)); d {
	case "mssql":
		return "sqlserver"
	case "postgres", "postgresql":
		return "pgx"
	case "sqlite":
		return "sqlite3"
	default:
		return d
	}
}

// Validate checks that the configuration can be used for a run and
// normalizes the driver name.
func (c *Config) Validate() error {
	var problems []string

	c.Driver = NormalizeDriver(c.Driver)
	if !slices.Contains(dbconn.Drivers(), c.Driver) {
		problems = append(problems, fmt.Sprintf("unsupported driver %q (use: %s)", c.Driver, strings.Join(dbconn.Drivers(), ", ")))
	}

	tcs := strings.TrimSpace(c.ConnectionString)
	switch {
	case tcs == "":
		problems = append(problems, "connection string is required (--tcs or "+EnvConnection+")")
	case c.Driver == "sqlserver" && !strings.Contains(tcs, "://") && len(tcs) < len(connectionBarebone):
		problems = append(problems, fmt.Sprintf("connection string %q is too short", c.Redacted()))
	}

	if c.CallTimeout < 0 {
		problems = append(problems, "timeout must not be negative")
	}
	if !slices.Contains(render.Formats(), c.Format) {
		problems = append(problems, fmt.Sprintf("unknown format %q (use: %s)", c.Format, strings.Join(render.Formats(), ", ")))
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
