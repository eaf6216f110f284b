package ops

import (
	"sync"

	"github.com/syssam/mirrorm"
	"github.com/syssam/mirrorm/dialect"
	"github.com/syssam/mirrorm/dialect/sql"
)

// Factory constructs the Operations of one dialect.
type Factory func() Operations

// Registry maps dialect tags to their Operations. Each dialect is built on
// first use and cached for the lifetime of the registry.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	cache     map[string]Operations
}

// Default is the process-wide registry, preloaded with the built-in dialects.
var Default = NewRegistry()

// NewRegistry returns a registry with the built-in dialects registered.
func NewRegistry() *Registry {
	r := &Registry{
		factories: make(map[string]Factory),
		cache:     make(map[string]Operations),
	}
	r.Register(dialect.Postgres, NewPostgres)
	r.Register(dialect.MySQL, NewMySQL)
	r.Register(dialect.SQLite, NewSQLite)
	return r
}

// Register sets the factory of a dialect, replacing any cached instance.
func (r *Registry) Register(name string, f Factory) {
	name = dialect.Normalize(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
	delete(r.cache, name)
}

// Get returns the Operations for the dialect of conn.
func (r *Registry) Get(conn *sql.Connection) (Operations, error) {
	if conn == nil {
		return nil, mirrorm.NewConfigurationError("ops", "nil connection")
	}
	return r.Lookup(conn.Dialect())
}

// Lookup returns the Operations registered under the dialect name.
// Unknown dialects are reported as *mirrorm.ConfigurationError.
func (r *Registry) Lookup(name string) (Operations, error) {
	name = dialect.Normalize(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.cache[name]; ok {
		return o, nil
	}
	f, ok := r.factories[name]
	if !ok {
		return nil, mirrorm.NewConfigurationError("ops", "unsupported dialect %q", name)
	}
	o := f()
	r.cache[name] = o
	return o, nil
}
