// Package dialect defines the identifiers of the SQL dialects mirrorm can
// talk to.
//
// # Supported Dialects
//
// Each dialect is identified by a constant string:
//
//	dialect.Postgres = "postgres"
//	dialect.MySQL    = "mysql"
//	dialect.SQLite   = "sqlite"
//
// The identifier doubles as the key of the operations registry
// (dialect/sql/ops) and selects the database/sql driver used to open a
// connection (dialect/sql).
//
// # Sub-packages
//
//   - dialect/sql: connections, DSN rendering and query statistics
//   - dialect/sql/ops: per-dialect SQL generation and result normalization
//   - dialect/sql/schema: table definitions and their validation
//   - dialect/sql/sqlerr: classification of backend errors
package dialect
