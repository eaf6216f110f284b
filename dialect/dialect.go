package dialect

import "strings"

// Dialect names for external usage.
const (
	Postgres = "postgres"
	MySQL    = "mysql"
	SQLite   = "sqlite"
)

// Supported returns the built-in dialects.
func Supported() []string {
	return []string{Postgres, MySQL, SQLite}
}

// Normalize maps common aliases ("postgresql", "pgx", "sqlite3", "mariadb")
// to the dialect constants. Unknown names are returned lower-cased.
func Normalize(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "postgresql", "pg", "pgx":
		return Postgres
	case "sqlite3":
		return SQLite
	case "mariadb":
		return MySQL
	}
	return name
}

// DefaultPort returns the conventional TCP port of the dialect, or 0 when
// the dialect is file based or unknown.
func DefaultPort(name string) int {
	switch Normalize(name) {
	case Postgres:
		return 5432
	case MySQL:
		return 3306
	default:
		return 0
	}
}

// DriverName returns the database/sql driver name registered for the dialect.
func DriverName(name string) string {
	switch d := Normalize(name); d {
	case Postgres:
		return "postgres"
	case MySQL:
		return "mysql"
	case SQLite:
		return "sqlite"
	default:
		return d
	}
}
