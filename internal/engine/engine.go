// Package engine describes the supported database engines and how to open a
// short-lived, read-only connection to each of them.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite" // pure-Go SQLite driver

	apperrors "github.com/JonMunkholm/WebDbChat/internal/errors"
)

// Kind identifies a database engine. The set is closed: adding an engine means
// adding a constant here plus one catalog strategy and one session guard.
type Kind string

const (
	Postgres Kind = "postgres"
	MySQL    Kind = "mysql"
	SQLite   Kind = "sqlite"
)

const connectTimeout = 10 * time.Second

// ParseKind maps a user-supplied engine name to a Kind.
func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	case "mysql", "mariadb":
		return MySQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return "", apperrors.Newf(apperrors.KindUnsupportedEngine, "Database type %q is not supported", raw)
	}
}

// DriverName returns the database/sql driver name for the engine.
func (k Kind) DriverName() string {
	switch k {
	case Postgres:
		return "postgres"
	case MySQL:
		return "mysql"
	case SQLite:
		return "sqlite"
	default:
		return ""
	}
}

// Dialect returns a human-readable dialect name for prompts.
func (k Kind) Dialect() string {
	switch k {
	case Postgres:
		return "PostgreSQL"
	case MySQL:
		return "MySQL"
	case SQLite:
		return "SQLite"
	default:
		return "SQL"
	}
}

// Config holds already-decrypted credentials for one target database.
type Config struct {
	Kind     Kind   `json:"engine"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"` // database name, or file path for SQLite
	Username string `json:"username"`
	Password string `json:"-"`
	SSLMode  string `json:"sslMode,omitempty"` // postgres only
}

// DSN builds the driver connection string for the config.
func (c Config) DSN() (string, error) {
	switch c.Kind {
	case Postgres:
		return c.postgresDSN(), nil
	case MySQL:
		return c.mysqlDSN(), nil
	case SQLite:
		return sqliteReadOnlyURI(c.Database)
	default:
		return "", apperrors.Newf(apperrors.KindUnsupportedEngine, "Database type %q is not supported", c.Kind)
	}
}

func (c Config) postgresDSN() string {
	port := c.Port
	if port == 0 {
		port = 5432
	}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(port)),
		Path:   "/" + c.Database,
	}
	if c.Username != "" {
		u.User = url.UserPassword(c.Username, c.Password)
	}
	q := url.Values{}
	q.Set("sslmode", sslMode)
	q.Set("connect_timeout", strconv.Itoa(int(connectTimeout.Seconds())))
	u.RawQuery = q.Encode()
	return u.String()
}

func (c Config) mysqlDSN() string {
	port := c.Port
	if port == 0 {
		port = 3306
	}
	cfg := mysql.NewConfig()
	cfg.User = c.Username
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(c.Host, strconv.Itoa(port))
	cfg.DBName = c.Database
	cfg.ParseTime = true
	cfg.InterpolateParams = true
	cfg.Loc = time.UTC
	cfg.Timeout = connectTimeout
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

// sqliteReadOnlyURI converts a path or file: URI into a read-only file URI.
func sqliteReadOnlyURI(dsn string) (string, error) {
	if dsn == "" {
		return "", apperrors.New(apperrors.KindConfig, "SQLite database path is required")
	}
	if dsn == ":memory:" || dsn == "file::memory:" || strings.Contains(dsn, "mode=memory") {
		return "", apperrors.New(apperrors.KindConfig, "in-memory SQLite databases are not supported")
	}
	if !strings.HasPrefix(dsn, "file:") {
		return "file:" + dsn + "?mode=ro", nil
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.KindConfig, "invalid SQLite URI")
	}
	q := u.Query()
	q.Set("mode", "ro")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Opener opens a database handle for a config. Tests substitute fakes.
type Opener func(ctx context.Context, cfg Config) (*sql.DB, error)

// Open opens a single-connection handle and verifies it with a ping.
// The caller owns the returned handle and must close it.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(cfg.Kind.DriverName(), dsn)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.KindConnectivity, "open %s", cfg.Kind)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, apperrors.Wrapf(err, apperrors.KindConnectivity, "ping %s", cfg.Kind)
	}
	return db, nil
}

// String renders the config without its password, for logs.
func (c Config) String() string {
	if c.Kind == SQLite {
		return fmt.Sprintf("%s:%s", c.Kind, c.Database)
	}
	return fmt.Sprintf("%s://%s@%s:%d/%s", c.Kind, c.Username, c.Host, c.Port, c.Database)
}
