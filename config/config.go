// Package config loads connection sets from YAML or TOML files.
//
//	# mirrorm.yaml
//	connections:
//	  - name: primary
//	    dialect: postgres
//	    host: localhost
//	    database: app
//	    user: postgres
//	    password: ${PG_PASSWORD}
//	  - name: shadow-1
//	    dialect: mysql
//	    database: app
//	    user: root
//	    password: ${MYSQL_PASSWORD}
//
// The first connection is the primary, the rest are shadows in file order.
// ${VAR} references are expanded from the environment after an optional
// .env file next to the configuration file was loaded.
package config

import (
	"bytes"
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/syssam/mirrorm/dialect"
	"github.com/syssam/mirrorm/dialect/sql"
)

// Supported file formats.
const (
	YAML = "yaml"
	TOML = "toml"
)

// Connection is one entry of the connections list.
type Connection struct {
	Name   string
	Config sql.Config
}

// Set is an ordered connection set. The first entry is the primary.
type Set struct {
	Connections []Connection
}

// fileConnection is the on-disk key mapping of one connection.
type fileConnection struct {
	Name     string            `yaml:"name" toml:"name"`
	Dialect  string            `yaml:"dialect" toml:"dialect"`
	Host     string            `yaml:"host" toml:"host"`
	Port     int               `yaml:"port" toml:"port"`
	Database string            `yaml:"database" toml:"database"`
	User     string            `yaml:"user" toml:"user"`
	Password string            `yaml:"password" toml:"password"`
	Params   map[string]string `yaml:"params" toml:"params"`
}

type fileConfig struct {
	Connections []fileConnection `yaml:"connections" toml:"connections"`
}

// Load reads the configuration file at path. The format is chosen by
// extension (.yaml, .yml or .toml). A .env file in the same directory, if
// present, is loaded into the environment first; variables already set take
// precedence.
func Load(path string) (*Set, error) {
	format, err := formatOf(path)
	if err != nil {
		return nil, err
	}
	envFile := filepath.Join(filepath.Dir(path), ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load config: %s: %w", envFile, err)
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	set, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", path, err)
	}
	return set, nil
}

// Parse decodes data in the given format, expanding ${VAR} references from
// the environment.
func Parse(data []byte, format string) (*Set, error) {
	data, err := expand(data)
	if err != nil {
		return nil, err
	}
	var raw fileConfig
	switch format {
	case YAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	case TOML:
		meta, err := toml.Decode(string(data), &raw)
		if err != nil {
			return nil, fmt.Errorf("parse toml: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("parse toml: unknown key %q", undecoded[0].String())
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}
	return build(raw)
}

func build(raw fileConfig) (*Set, error) {
	if len(raw.Connections) == 0 {
		return nil, fmt.Errorf("no connections defined")
	}
	set := &Set{Connections: make([]Connection, 0, len(raw.Connections))}
	names := make(map[string]bool)
	for i, c := range raw.Connections {
		d := dialect.Normalize(c.Dialect)
		if !supported(d) {
			return nil, fmt.Errorf("connection %d: unsupported dialect %q (expected one of %s)",
				i, c.Dialect, strings.Join(dialect.Supported(), ", "))
		}
		if c.Port < 0 || c.Port > 65535 {
			return nil, fmt.Errorf("connection %d: invalid port %d", i, c.Port)
		}
		if d != dialect.SQLite && strings.TrimSpace(c.Database) == "" {
			return nil, fmt.Errorf("connection %d: database is required for %s", i, d)
		}
		cfg := sql.Config{
			Dialect:  d,
			Host:     strings.TrimSpace(c.Host),
			Port:     c.Port,
			Database: strings.TrimSpace(c.Database),
			User:     c.User,
			Password: c.Password,
			Params:   c.Params,
		}
		// Unnamed entries are identified by their address.
		name := strings.TrimSpace(c.Name)
		switch id := cmp.Or(name, cfg.String()); {
		case names[id] && name != "":
			return nil, fmt.Errorf("connection %d: duplicate name %q", i, name)
		case names[id]:
			return nil, fmt.Errorf("connection %d: duplicate backend %q, set a name", i, id)
		default:
			names[id] = true
		}
		set.Connections = append(set.Connections, Connection{Name: name, Config: cfg})
	}
	return set, nil
}

// Primary returns the primary connection entry.
func (s *Set) Primary() Connection {
	return s.Connections[0]
}

// Shadows returns the shadow entries in binding order.
func (s *Set) Shadows() []Connection {
	return s.Connections[1:]
}

// Open returns one unopened *sql.Connection per entry, in order, ready to
// be passed to model.Bind. opts are applied to every connection.
func (s *Set) Open(opts ...sql.Option) []*sql.Connection {
	conns := make([]*sql.Connection, len(s.Connections))
	for i, c := range s.Connections {
		o := opts
		if c.Name != "" {
			o = append(append([]sql.Option(nil), opts...), sql.WithName(c.Name))
		}
		conns[i] = sql.NewConnection(c.Config, o...)
	}
	return conns
}

var varRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expand replaces ${VAR} references. Undefined variables are an error so
// that a missing secret is not silently replaced by an empty string.
func expand(data []byte) ([]byte, error) {
	var missing []string
	out := varRe.ReplaceAllFunc(data, func(m []byte) []byte {
		name := string(varRe.FindSubmatch(m)[1])
		v, ok := os.LookupEnv(name)
		if !ok {
			missing = append(missing, name)
			return m
		}
		return []byte(v)
	})
	if len(missing) > 0 {
		return nil, fmt.Errorf("undefined environment variable(s): %s", strings.Join(missing, ", "))
	}
	return out, nil
}

func formatOf(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML, nil
	case ".toml":
		return TOML, nil
	default:
		return "", fmt.Errorf("load config: unsupported file extension %q", filepath.Ext(path))
	}
}

func supported(d string) bool {
	for _, s := range dialect.Supported() {
		if s == d {
			return true
		}
	}
	return false
}
