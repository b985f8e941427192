package config

import (
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/JonMunkholm/WebDbChat/internal/engine"
	apperrors "github.com/JonMunkholm/WebDbChat/internal/errors"
)

// DefaultConnection is the registry name of the DB_* environment connection.
const DefaultConnection = "default"

// ConnectionRecord is one [[connection]] entry of the registry file.
type ConnectionRecord struct {
	Name        string `toml:"name"`
	Engine      string `toml:"engine" env:"ENGINE"`
	Host        string `toml:"host" env:"HOST"`
	Port        int    `toml:"port" env:"PORT"`
	Database    string `toml:"database" env:"DATABASE"`
	Username    string `toml:"username" env:"USERNAME"`
	Password    string `toml:"password" env:"PASSWORD"`
	PasswordEnv string `toml:"password_env" env:"PASSWORD_ENV"` // read the password from this variable instead
	SSLMode     string `toml:"sslmode" env:"SSLMODE"`
}

type registryFile struct {
	Connections []ConnectionRecord `toml:"connection"`
}

// Registry maps connection names to database configs.
type Registry struct {
	conns map[string]engine.Config
}

// LoadRegistry builds the registry from cfg: the TOML file when
// CONNECTIONS_FILE is set, otherwise the DB_* connection if DB_ENGINE is set.
func LoadRegistry(cfg Config, lookupEnv func(string) (string, bool)) (*Registry, error) {
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	if cfg.ConnectionsFile != "" {
		return ReadRegistry(cfg.ConnectionsFile, lookupEnv)
	}
	r := &Registry{conns: make(map[string]engine.Config)}
	if strings.TrimSpace(cfg.Default.Engine) == "" {
		return r, nil
	}
	rec := cfg.Default
	rec.Name = DefaultConnection
	if err := r.add(rec, lookupEnv); err != nil {
		return nil, err
	}
	return r, nil
}

// ReadRegistry parses a TOML registry file.
func ReadRegistry(path string, lookupEnv func(string) (string, bool)) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.KindConfig, "Could not read connections file %s", path)
	}
	return ParseRegistry(string(data), lookupEnv)
}

// ParseRegistry parses registry TOML. Unknown keys are rejected so a typo
// cannot silently drop a setting.
func ParseRegistry(data string, lookupEnv func(string) (string, bool)) (*Registry, error) {
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	var file registryFile
	md, err := toml.Decode(data, &file)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindConfig, "Invalid connections file: "+err.Error())
	}
	if unknown := md.Undecoded(); len(unknown) > 0 {
		keys := make([]string, len(unknown))
		for i, k := range unknown {
			keys[i] = k.String()
		}
		return nil, apperrors.New(apperrors.KindConfig, "Unknown connection keys: "+strings.Join(keys, ", "))
	}

	r := &Registry{conns: make(map[string]engine.Config, len(file.Connections))}
	for _, rec := range file.Connections {
		if err := r.add(rec, lookupEnv); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) add(rec ConnectionRecord, lookupEnv func(string) (string, bool)) error {
	name := strings.TrimSpace(rec.Name)
	if name == "" {
		return apperrors.New(apperrors.KindConfig, "Every connection needs a name")
	}
	if _, dup := r.conns[name]; dup {
		return apperrors.Newf(apperrors.KindConfig, "Connection %q is defined twice", name)
	}
	kind, err := engine.ParseKind(rec.Engine)
	if err != nil {
		return err
	}
	if strings.TrimSpace(rec.Database) == "" {
		return apperrors.Newf(apperrors.KindConfig, "Connection %q has no database", name)
	}

	password := rec.Password
	if rec.PasswordEnv != "" {
		v, ok := lookupEnv(rec.PasswordEnv)
		if !ok {
			return apperrors.Newf(apperrors.KindConfig, "Connection %q: %s is not set", name, rec.PasswordEnv)
		}
		password = v
	}

	r.conns[name] = engine.Config{
		Kind:     kind,
		Host:     rec.Host,
		Port:     rec.Port,
		Database: rec.Database,
		Username: rec.Username,
		Password: password,
		SSLMode:  rec.SSLMode,
	}
	return nil
}

// Lookup returns the config registered under name.
func (r *Registry) Lookup(name string) (engine.Config, error) {
	cfg, ok := r.conns[name]
	if !ok {
		return engine.Config{}, apperrors.Newf(apperrors.KindConfig, "Connection %q not found", name)
	}
	return cfg, nil
}

// Names lists registered connections in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.conns))
	for n := range r.conns {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
