package sql

import (
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/go-sql-driver/mysql"

	"github.com/syssam/mirrorm/dialect"
)

// Config holds the parameters of one backend connection.
type Config struct {
	Dialect  string            `yaml:"dialect" toml:"dialect"`
	Host     string            `yaml:"host" toml:"host"`
	Port     int               `yaml:"port" toml:"port"`
	Database string            `yaml:"database" toml:"database"`
	User     string            `yaml:"user" toml:"user"`
	Password string            `yaml:"password" toml:"password"`
	Params   map[string]string `yaml:"params" toml:"params"`
}

func (c Config) withDefaults() Config {
	c.Dialect = dialect.Normalize(c.Dialect)
	if c.Dialect == dialect.SQLite {
		if c.Database == "" {
			c.Database = ":memory:"
		}
		return c
	}
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = dialect.DefaultPort(c.Dialect)
	}
	return c
}

// String renders the connection identity as host:port@database, or the
// database path for SQLite. The password is never included.
func (c Config) String() string {
	c = c.withDefaults()
	if c.Dialect == dialect.SQLite {
		return "sqlite@" + c.Database
	}
	return fmt.Sprintf("%s:%d@%s", c.Host, c.Port, c.Database)
}

// DSN renders the data source name understood by the dialect's driver.
func (c Config) DSN() (string, error) {
	c = c.withDefaults()
	addr := net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	switch c.Dialect {
	case dialect.Postgres:
		q := url.Values{}
		for k, v := range c.Params {
			q.Set(k, v)
		}
		if q.Get("sslmode") == "" {
			q.Set("sslmode", "disable")
		}
		u := url.URL{
			Scheme:   "postgres",
			Host:     addr,
			Path:     "/" + c.Database,
			RawQuery: q.Encode(),
		}
		if c.User != "" {
			u.User = url.UserPassword(c.User, c.Password)
		}
		return u.String(), nil
	case dialect.MySQL:
		mc := mysql.NewConfig()
		mc.User = c.User
		mc.Passwd = c.Password
		mc.Net = "tcp"
		mc.Addr = addr
		mc.DBName = c.Database
		mc.ParseTime = true
		if len(c.Params) > 0 {
			mc.Params = make(map[string]string, len(c.Params))
			for k, v := range c.Params {
				mc.Params[k] = v
			}
		}
		return mc.FormatDSN(), nil
	case dialect.SQLite:
		if len(c.Params) == 0 {
			return c.Database, nil
		}
		q := url.Values{}
		for k, v := range c.Params {
			q.Set(k, v)
		}
		return c.Database + "?" + q.Encode(), nil
	default:
		return "", fmt.Errorf("mirrorm: unsupported dialect %q", c.Dialect)
	}
}
