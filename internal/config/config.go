// Package config loads service settings from the environment and the
// connection registry from a TOML file.
package config

import (
	"errors"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	apperrors "github.com/JonMunkholm/WebDbChat/internal/errors"
	"github.com/JonMunkholm/WebDbChat/internal/llm"
	"github.com/JonMunkholm/WebDbChat/internal/logging"
	"github.com/JonMunkholm/WebDbChat/internal/query"
)

// Config is the complete runtime configuration.
type Config struct {
	Addr            string `env:"ADDR" envDefault:":8080"`
	ConnectionsFile string `env:"CONNECTIONS_FILE"`

	Logging logging.Config `envPrefix:"LOG_"`
	LLM     llm.Config     `envPrefix:"LLM_"`

	// Used when no CONNECTIONS_FILE is set; registered as "default".
	Default ConnectionRecord `envPrefix:"DB_"`

	QueryMaxRows            int           `env:"QUERY_MAX_ROWS" envDefault:"1000"`
	QueryTimeout            time.Duration `env:"QUERY_TIMEOUT" envDefault:"30s"`
	SchemaCacheTTL          time.Duration `env:"SCHEMA_CACHE_TTL" envDefault:"10m"`
	SchemaIntrospectTimeout time.Duration `env:"SCHEMA_INTROSPECT_TIMEOUT" envDefault:"30s"`
	StrictClean             bool          `env:"SQL_STRICT_CLEAN" envDefault:"false"`
}

// Limits returns the execution bounds for one query.
func (c Config) Limits() query.Limits {
	return query.Limits{MaxRows: c.QueryMaxRows, Timeout: c.QueryTimeout}
}

// Load reads dotEnvPath (if it exists) into the process environment and then
// parses Config from it. An empty dotEnvPath means ".env".
func Load(dotEnvPath string) (Config, error) {
	if dotEnvPath == "" {
		dotEnvPath = ".env"
	}
	if err := godotenv.Load(dotEnvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, apperrors.Wrapf(err, apperrors.KindConfig, "Could not read %s", dotEnvPath)
	}
	return Parse(env.Options{})
}

// Parse builds Config from opts. Tests pass opts.Environment to avoid the
// process environment.
func Parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, apperrors.Wrap(err, apperrors.KindConfig, "Invalid configuration: "+err.Error())
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch {
	case c.QueryMaxRows <= 0:
		return apperrors.New(apperrors.KindConfig, "QUERY_MAX_ROWS must be positive")
	case c.QueryTimeout <= 0:
		return apperrors.New(apperrors.KindConfig, "QUERY_TIMEOUT must be positive")
	case c.SchemaCacheTTL < 0:
		return apperrors.New(apperrors.KindConfig, "SCHEMA_CACHE_TTL must not be negative")
	case c.SchemaIntrospectTimeout <= 0:
		return apperrors.New(apperrors.KindConfig, "SCHEMA_INTROSPECT_TIMEOUT must be positive")
	}
	return nil
}
