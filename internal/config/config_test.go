package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/WebDbChat/internal/engine"
	apperrors "github.com/JonMunkholm/WebDbChat/internal/errors"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(env.Options{Environment: map[string]string{}})
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 256, cfg.LLM.MaxTokens)
	assert.InDelta(t, 0.1, cfg.LLM.Temperature, 1e-9)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 1000, cfg.QueryMaxRows)
	assert.Equal(t, 30*time.Second, cfg.QueryTimeout)
	assert.Equal(t, 10*time.Minute, cfg.SchemaCacheTTL)
	assert.False(t, cfg.StrictClean)
}

func TestParseOverrides(t *testing.T) {
	cfg, err := Parse(env.Options{Environment: map[string]string{
		"ADDR":             "127.0.0.1:9000",
		"LOG_LEVEL":        "debug",
		"LOG_FORMAT":       "console",
		"LLM_PROVIDER":     "anthropic",
		"LLM_API_KEY":      "sk-test",
		"LLM_TIMEOUT":      "5s",
		"QUERY_MAX_ROWS":   "50",
		"QUERY_TIMEOUT":    "2s",
		"SQL_STRICT_CLEAN": "true",
		"DB_ENGINE":        "sqlite",
		"DB_DATABASE":      "/tmp/app.db",
	}})
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Addr)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, 5*time.Second, cfg.LLM.Timeout)
	assert.True(t, cfg.StrictClean)
	assert.Equal(t, 50, cfg.Limits().MaxRows)
	assert.Equal(t, 2*time.Second, cfg.Limits().Timeout)
	assert.Equal(t, "sqlite", cfg.Default.Engine)
}

func TestParseRejectsBadValues(t *testing.T) {
	tests := map[string]map[string]string{
		"zero rows":       {"QUERY_MAX_ROWS": "0"},
		"not a number":    {"QUERY_MAX_ROWS": "many"},
		"negative ttl":    {"SCHEMA_CACHE_TTL": "-1m"},
		"bad duration":    {"QUERY_TIMEOUT": "soon"},
		"zero introspect": {"SCHEMA_INTROSPECT_TIMEOUT": "0s"},
	}
	for name, environ := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(env.Options{Environment: environ})
			require.Error(t, err)
			assert.True(t, apperrors.IsKind(err, apperrors.KindConfig))
		})
	}
}

func TestLoadMissingDotEnvIsIgnored(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
}

func lookupFrom(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestReadRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connections.toml")
	content := `
[[connection]]
name = "school"
engine = "postgresql"
host = "db.internal"
port = 5432
database = "school"
username = "reader"
password_env = "SCHOOL_PASSWORD"
sslmode = "require"

[[connection]]
name = "shop"
engine = "mysql"
host = "127.0.0.1"
database = "shop"
username = "ro"
password = "inline"

[[connection]]
name = "local"
engine = "sqlite"
database = "/var/data/local.db"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	reg, err := ReadRegistry(path, lookupFrom(map[string]string{"SCHOOL_PASSWORD": "s3cret"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"local", "school", "shop"}, reg.Names())

	school, err := reg.Lookup("school")
	require.NoError(t, err)
	assert.Equal(t, engine.Config{
		Kind:     engine.Postgres,
		Host:     "db.internal",
		Port:     5432,
		Database: "school",
		Username: "reader",
		Password: "s3cret",
		SSLMode:  "require",
	}, school)

	shop, err := reg.Lookup("shop")
	require.NoError(t, err)
	assert.Equal(t, engine.MySQL, shop.Kind)
	assert.Equal(t, "inline", shop.Password)

	local, err := reg.Lookup("local")
	require.NoError(t, err)
	assert.Equal(t, engine.SQLite, local.Kind)

	_, err = reg.Lookup("missing")
	assert.True(t, apperrors.IsKind(err, apperrors.KindConfig))
}

func TestParseRegistryErrors(t *testing.T) {
	tests := []struct {
		name string
		toml string
		kind apperrors.Kind
	}{
		{"unsupported engine", "[[connection]]\nname = \"x\"\nengine = \"oracle\"\ndatabase = \"d\"", apperrors.KindUnsupportedEngine},
		{"missing name", "[[connection]]\nengine = \"mysql\"\ndatabase = \"d\"", apperrors.KindConfig},
		{"missing database", "[[connection]]\nname = \"x\"\nengine = \"mysql\"", apperrors.KindConfig},
		{"duplicate", "[[connection]]\nname = \"x\"\nengine = \"sqlite\"\ndatabase = \"a\"\n[[connection]]\nname = \"x\"\nengine = \"sqlite\"\ndatabase = \"b\"", apperrors.KindConfig},
		{"unknown key", "[[connection]]\nname = \"x\"\nengine = \"sqlite\"\ndatabase = \"a\"\npasword = \"typo\"", apperrors.KindConfig},
		{"unset password env", "[[connection]]\nname = \"x\"\nengine = \"mysql\"\ndatabase = \"a\"\npassword_env = \"NOPE\"", apperrors.KindConfig},
		{"malformed", "[[connection]\nname = ", apperrors.KindConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRegistry(tt.toml, lookupFrom(nil))
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperrors.KindOf(err))
		})
	}
}

func TestLoadRegistryFromEnvironment(t *testing.T) {
	cfg, err := Parse(env.Options{Environment: map[string]string{
		"DB_ENGINE":   "sqlite",
		"DB_DATABASE": "/tmp/app.db",
	}})
	require.NoError(t, err)

	reg, err := LoadRegistry(cfg, lookupFrom(nil))
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultConnection}, reg.Names())

	empty, err := LoadRegistry(Config{}, lookupFrom(nil))
	require.NoError(t, err)
	assert.Empty(t, empty.Names())
}
