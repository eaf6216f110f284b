// Package sql provides the Connection type: a handle to one relational
// backend tagged with its dialect.
//
// A Connection is built from a Config and opened lazily:
//
//	conn := sql.NewConnection(sql.Config{
//	    Dialect:  dialect.Postgres,
//	    Host:     "localhost",
//	    Database: "app",
//	    User:     "postgres",
//	    Password: "secret",
//	})
//	if err := conn.Connect(ctx); err != nil {
//	    // *mirrorm.ConnectionError
//	}
//	defer conn.Disconnect()
//
// DB returns the live *sql.DB, reconnecting when the handle was closed.
// An already opened handle (for example one created by go-sqlmock) is
// wrapped with OpenDB:
//
//	conn := sql.OpenDB(dialect.MySQL, db, sql.WithName("shadow-1"))
//
// # Statistics
//
// Every statement executed through the operations layer is reported to
// Connection.Observe, which maintains QueryStats, calls the slow statement
// hook and forwards to an optional Observer (see package metrics):
//
//	conn := sql.NewConnection(cfg,
//	    sql.WithSlowThreshold(200*time.Millisecond),
//	    sql.WithSlowQueryLog(),
//	)
//	fmt.Println(conn.Stats().Stats())
package sql
