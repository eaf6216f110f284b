package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/syssam/mirrorm"
	"github.com/syssam/mirrorm/dialect"

	// Drivers of the built-in dialects.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// validIdentifierRe validates SQL identifiers (alphanumeric, underscores, dots for schema.name)
var validIdentifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.]*$`)

// ValidIdentifier checks if the string is a valid SQL identifier. Table and
// column names are concatenated into statements unquoted, so every name
// must pass this check first.
func ValidIdentifier(s string) bool {
	return s != "" && len(s) <= 128 && validIdentifierRe.MatchString(s)
}

// ExecQuerier wraps the standard Exec and Query methods.
// It is implemented by *sql.DB, *sql.Conn and *sql.Tx.
type ExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// OpenFunc opens a database handle. It matches sql.Open.
type OpenFunc func(driverName, dsn string) (*sql.DB, error)

// Observer receives one call per executed statement.
type Observer interface {
	ObserveStatement(dialect, kind string, d time.Duration, err error)
}

// Connection is a handle to one backend, tagged with its dialect. The live
// *sql.DB is opened by Connect and reopened on demand by DB after Disconnect.
//
// A Connection is owned by the bindings that reference it. It is not safe
// to Disconnect it while statements are in flight.
type Connection struct {
	cfg     Config
	dialect string
	name    string
	open    OpenFunc
	db      *sql.DB
	wrapped bool // db was supplied by the caller and cannot be reopened
	closed  bool

	stats         *QueryStats
	slowThreshold time.Duration
	slowHook      SlowQueryHook
	debug         func(context.Context, ...any)
	observer      Observer
	logger        *slog.Logger
}

// Option configures a Connection.
type Option func(*Connection)

// WithName sets the identity used in logs and mirror errors.
// It defaults to the Config's host:port@database rendering.
func WithName(name string) Option {
	return func(c *Connection) {
		c.name = name
	}
}

// WithOpener replaces sql.Open. Mostly useful in tests.
func WithOpener(open OpenFunc) Option {
	return func(c *Connection) {
		c.open = open
	}
}

// WithLogger sets the logger for connection lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(c *Connection) {
		c.logger = l
	}
}

// WithObserver registers an Observer notified of every statement.
func WithObserver(o Observer) Option {
	return func(c *Connection) {
		c.observer = o
	}
}

// WithDebug logs every statement through logf.
func WithDebug(logf func(context.Context, ...any)) Option {
	return func(c *Connection) {
		c.debug = logf
	}
}

// NewConnection returns a Connection for cfg. No I/O is performed until
// Connect or DB is called.
func NewConnection(cfg Config, opts ...Option) *Connection {
	cfg = cfg.withDefaults()
	c := &Connection{
		cfg:     cfg,
		dialect: cfg.Dialect,
		open:    sql.Open,
	}
	c.init(opts)
	return c
}

// OpenDB wraps an already opened *sql.DB. The resulting Connection cannot
// reopen the handle once it was disconnected.
func OpenDB(name string, db *sql.DB, opts ...Option) *Connection {
	d := dialect.Normalize(name)
	c := &Connection{
		cfg:     Config{Dialect: d},
		dialect: d,
		db:      db,
		wrapped: true,
	}
	c.init(opts)
	return c
}

func (c *Connection) init(opts []Option) {
	c.stats = &QueryStats{}
	c.slowThreshold = 100 * time.Millisecond
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.name == "" && c.wrapped {
		c.name = c.dialect
	}
	if c.name == "" {
		c.name = c.cfg.String()
	}
}

// Dialect returns the dialect tag of the connection.
func (c *Connection) Dialect() string {
	return c.dialect
}

// Config returns the connection parameters.
func (c *Connection) Config() Config {
	return c.cfg
}

// String returns the connection identity.
func (c *Connection) String() string {
	return c.name
}

// Connect establishes or re-establishes the live handle. Failures are
// reported as *mirrorm.ConnectionError and are never retried.
func (c *Connection) Connect(ctx context.Context) error {
	if c.wrapped {
		if c.closed || c.db == nil {
			return &mirrorm.ConnectionError{Backend: c.name, Err: errors.New("handle closed and cannot be reopened")}
		}
		if err := c.db.PingContext(ctx); err != nil {
			return &mirrorm.ConnectionError{Backend: c.name, Err: err}
		}
		return nil
	}
	dsn, err := c.cfg.DSN()
	if err != nil {
		return &mirrorm.ConnectionError{Backend: c.name, Err: err}
	}
	db, err := c.open(dialect.DriverName(c.dialect), dsn)
	if err != nil {
		c.logger.Error("connect failed", "backend", c.name, "error", err)
		return &mirrorm.ConnectionError{Backend: c.name, Err: err}
	}
	if c.dialect == dialect.SQLite {
		// In-memory databases live and die with their connection.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		c.logger.Error("connect failed", "backend", c.name, "error", err)
		return &mirrorm.ConnectionError{Backend: c.name, Err: err}
	}
	if c.db != nil && !c.closed {
		_ = c.db.Close()
	}
	c.db, c.closed = db, false
	c.logger.Debug("connected", "backend", c.name, "dialect", c.dialect)
	return nil
}

// Disconnect releases the live handle. It is idempotent.
func (c *Connection) Disconnect() error {
	if c.db == nil || c.closed {
		return nil
	}
	c.closed = true
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("mirrorm: disconnect %s: %w", c.name, err)
	}
	c.logger.Debug("connection closed", "backend", c.name)
	return nil
}

// Connected reports whether a live handle is held.
func (c *Connection) Connected() bool {
	return c.db != nil && !c.closed
}

// DB returns the live handle, connecting first if it is absent or closed.
func (c *Connection) DB(ctx context.Context) (*sql.DB, error) {
	if !c.Connected() {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}
	return c.db, nil
}

// Stats returns the statement statistics of the connection.
func (c *Connection) Stats() *QueryStats {
	return c.stats
}

type (
	// Result is an alias to sql.Result.
	Result = sql.Result
	// Rows is an alias to sql.Rows.
	Rows = sql.Rows
	// Tx is an alias to sql.Tx.
	Tx = sql.Tx
	// TxOptions holds the transaction options to be used in DB.BeginTx.
	TxOptions = sql.TxOptions
)
