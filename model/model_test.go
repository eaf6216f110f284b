package model_test

import (
	"bytes"
	"context"
	stdsql "database/sql"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/mirrorm"
	"github.com/syssam/mirrorm/cache"
	"github.com/syssam/mirrorm/dialect"
	"github.com/syssam/mirrorm/dialect/sql"
	"github.com/syssam/mirrorm/dialect/sql/schema"
	"github.com/syssam/mirrorm/model"
)

var userColumns = schema.Columns("name", "TEXT", "age", "INTEGER")

func sqliteConn(t *testing.T, name string) *sql.Connection {
	t.Helper()
	conn := sql.NewConnection(sql.Config{Dialect: dialect.SQLite}, sql.WithName(name))
	t.Cleanup(func() { conn.Disconnect() })
	return conn
}

// unreachable returns a connection whose every connect attempt fails.
func unreachable(name string, touched *bool) *sql.Connection {
	return sql.NewConnection(sql.Config{Dialect: dialect.MySQL, Host: "10.255.255.1", Database: "ormtest_m1"},
		sql.WithName(name),
		sql.WithOpener(func(string, string) (*stdsql.DB, error) {
			if touched != nil {
				*touched = true
			}
			return nil, errors.New("dial tcp 10.255.255.1:3306: connect: connection refused")
		}),
	)
}

func newUsers(t *testing.T, opts ...model.Option) (*model.Model, *sql.Connection) {
	t.Helper()
	primary := sqliteConn(t, "primary")
	users := model.New("users", opts...)
	require.NoError(t, users.Bind(primary))
	require.NoError(t, users.CreateTable(context.Background(), userColumns, true))
	return users, primary
}

func TestTableName(t *testing.T) {
	tests := map[string]string{
		"User":        "users",
		"UserProfile": "user_profiles",
		"Person":      "people",
		"Category":    "categories",
	}
	for in, want := range tests {
		assert.Equal(t, want, model.TableName(in), in)
	}
}

func TestConfiguration(t *testing.T) {
	ctx := context.Background()

	t.Run("unbound", func(t *testing.T) {
		users := model.New("users")
		_, err := users.Create(ctx, mirrorm.NewRecord().Set("name", "John"))
		assert.True(t, mirrorm.IsConfigurationError(err))
		_, err = users.FindByID(ctx, 1)
		assert.True(t, mirrorm.IsConfigurationError(err))
		_, err = users.FindAll(ctx, "")
		assert.True(t, mirrorm.IsConfigurationError(err))
		_, err = users.DeleteByID(ctx, 1)
		assert.True(t, mirrorm.IsConfigurationError(err))
		assert.True(t, mirrorm.IsConfigurationError(users.CreateTable(ctx, userColumns, true)))
		assert.True(t, mirrorm.IsConfigurationError(users.DropTable(ctx, true)))
		assert.True(t, mirrorm.IsConfigurationError(users.Disconnect()))
	})

	t.Run("no table", func(t *testing.T) {
		var touched bool
		users := model.New("")
		require.NoError(t, users.Bind(unreachable("db", &touched)))
		err := users.CreateTable(ctx, userColumns, true)
		require.Error(t, err)
		assert.True(t, mirrorm.IsConfigurationError(err))
		assert.Contains(t, err.Error(), "table name not specified")
		assert.False(t, touched)
	})

	t.Run("bind", func(t *testing.T) {
		users := model.New("users")
		assert.True(t, mirrorm.IsConfigurationError(users.Bind()))
		assert.True(t, mirrorm.IsConfigurationError(users.Bind(nil)))
		err := users.Bind(sql.NewConnection(sql.Config{Dialect: "oracle"}))
		assert.True(t, mirrorm.IsConfigurationError(err))

		primary, shadow := sqliteConn(t, "p"), sqliteConn(t, "s")
		require.NoError(t, users.Bind(primary, shadow))
		assert.Same(t, primary, users.Primary())
		assert.Equal(t, []*sql.Connection{shadow}, users.Shadows())
		assert.Equal(t, "users", users.Table())
		assert.Equal(t, "id", users.PrimaryKey())
	})

	t.Run("duplicate identity", func(t *testing.T) {
		users := model.New("users")
		a := sql.NewConnection(sql.Config{Dialect: dialect.SQLite})
		b := sql.NewConnection(sql.Config{Dialect: dialect.SQLite})
		require.Equal(t, a.String(), b.String())
		err := users.Bind(sqliteConn(t, "primary"), a, b)
		require.Error(t, err)
		assert.True(t, mirrorm.IsConfigurationError(err))
		assert.Contains(t, err.Error(), `duplicate backend "sqlite@:memory:"`)
		assert.Nil(t, users.Primary(), "binding unchanged")

		require.NoError(t, users.Bind(sqliteConn(t, "primary"),
			sql.NewConnection(sql.Config{Dialect: dialect.SQLite}, sql.WithName("shadow-1")),
			sql.NewConnection(sql.Config{Dialect: dialect.SQLite}, sql.WithName("shadow-2")),
		))
	})

	t.Run("invalid table definition", func(t *testing.T) {
		var touched bool
		users := model.New("users")
		require.NoError(t, users.Bind(unreachable("db", &touched)))
		err := users.CreateTable(ctx, schema.Columns("name", "TEXT", "name", "TEXT"), true)
		assert.True(t, mirrorm.IsValidationError(err))
		assert.False(t, touched)
	})
}

func TestCreateWithoutFields(t *testing.T) {
	var touched bool
	users := model.New("users")
	require.NoError(t, users.Bind(unreachable("db", &touched)))

	_, err := users.Create(context.Background(), mirrorm.NewRecord().Set("id", 5).Set("name", nil).Set("age", nil))
	require.Error(t, err)
	assert.True(t, mirrorm.IsValidationError(err))
	assert.False(t, touched, "no I/O")

	_, err = users.Create(context.Background(), mirrorm.NewRecord().Set("name; --", "x"))
	assert.True(t, mirrorm.IsValidationError(err))
	assert.False(t, touched)
}

func TestMirroredCRUD(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))

	primary := sqliteConn(t, "sqlite-primary")
	shadow := sqliteConn(t, "sqlite-shadow")
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	mysqlShadow := sql.OpenDB(dialect.MySQL, db, sql.WithName("mysql-shadow"))

	users := model.New("users", model.WithLogger(logger))
	require.NoError(t, users.Bind(primary, shadow, mysqlShadow))

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users (id INT AUTO_INCREMENT PRIMARY KEY, name TEXT, age INTEGER)").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	require.NoError(t, users.CreateTable(ctx, userColumns, true))

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users (name, age, id) VALUES (?, ?, ?)").
		WithArgs("John", int64(30), int64(1)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	u, err := users.Create(ctx, mirrorm.NewRecord().Set("name", "John").Set("age", 30))
	require.NoError(t, err)
	assert.Equal(t, int64(1), u.ID(), "first key of a fresh table")
	assert.False(t, u.Dirty())
	assert.Equal(t, "users{id: 1, name: John, age: 30}", u.String())

	found, err := users.FindByID(ctx, u.ID())
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, u.Record().Map(), found.Record().Map())

	// The SQLite shadow holds the identical row under the same key.
	replica := model.New("users")
	require.NoError(t, replica.Bind(shadow))
	copied, err := replica.FindByID(ctx, int64(1))
	require.NoError(t, err)
	require.NotNil(t, copied)
	assert.Equal(t, u.Record().Map(), copied.Record().Map())

	// Update is applied everywhere and the entity takes the primary's row.
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE users SET name = ?, age = ? WHERE id = ?").
		WithArgs("John", int64(31), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT * FROM users WHERE id = ?").WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "age"}).AddRow(int64(1), "John", int64(31)))
	mock.ExpectCommit()
	mock.ExpectQuery("DESCRIBE users").
		WillReturnRows(sqlmock.NewRows([]string{"Field", "Type"}).
			AddRow("id", "int").AddRow("name", "text").AddRow("age", "int"))
	u.Set("age", 31)
	assert.True(t, u.Dirty())
	require.NoError(t, u.Update(ctx, nil))
	assert.False(t, u.Dirty())
	age, _ := u.Get("age")
	assert.Equal(t, int64(31), age)
	copied, err = replica.FindByID(ctx, int64(1))
	require.NoError(t, err)
	assert.Equal(t, int64(31), copied.Record().Value("age"))

	// Delete reports the primary's outcome.
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM users WHERE id = ?").WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	ok, err := u.Delete(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	gone, err := users.FindByID(ctx, int64(1))
	require.NoError(t, err)
	assert.Nil(t, gone)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM users WHERE id = ?").WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	ok, err = users.DeleteByID(ctx, int64(1))
	require.NoError(t, err)
	assert.False(t, ok, "already absent")

	mock.ExpectBegin()
	mock.ExpectExec("DROP TABLE IF EXISTS users").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	require.NoError(t, users.DropTable(ctx, true))

	mock.ExpectClose()
	require.NoError(t, users.Disconnect())
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Contains(t, logs.String(), `"action":"create","table":"users","backend":"sqlite-primary","record_id":1,"success":true`)
	assert.Contains(t, logs.String(), `"action":"delete_by_id"`)
}

func TestShadowFailure(t *testing.T) {
	ctx := context.Background()
	primary := sqliteConn(t, "primary")
	users := model.New("users")
	require.NoError(t, users.Bind(primary, unreachable("mysql-unreachable", nil)))

	err := users.CreateTable(ctx, userColumns, true)
	me, ok := mirrorm.AsMirrorError(err)
	require.True(t, ok)
	assert.Equal(t, "create_table", me.Op)

	u, err := users.Create(ctx, mirrorm.NewRecord().Set("name", "John").Set("age", 30))
	require.NotNil(t, u, "the primary write is kept")
	assert.Equal(t, int64(1), u.ID())
	me, ok = mirrorm.AsMirrorError(err)
	require.True(t, ok)
	assert.Equal(t, "create", me.Op)
	assert.Equal(t, []string{"mysql-unreachable"}, me.Shadows())
	assert.True(t, mirrorm.IsConnectionError(me.Failures[0].Err))
	assert.False(t, mirrorm.IsExecutionError(err), "the primary insert committed")
	assert.False(t, mirrorm.IsConnectionError(err))
	assert.Contains(t, err.Error(), "mysql-unreachable")

	found, err := users.FindByID(ctx, u.ID())
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "John", found.Record().Value("name"))

	// Update and delete keep the primary's outcome too.
	u.Set("age", 40)
	err = u.Update(ctx, nil)
	assert.True(t, mirrorm.IsMirrorError(err))
	assert.Equal(t, int64(40), u.Record().Value("age"))

	deleted, err := u.Delete(ctx)
	assert.True(t, deleted)
	assert.True(t, mirrorm.IsMirrorError(err))
}

func TestPrimaryFailure(t *testing.T) {
	ctx := context.Background()
	var touched bool
	primary := sqliteConn(t, "primary")
	users := model.New("users")
	require.NoError(t, users.Bind(primary, unreachable("shadow", &touched)))

	// The table does not exist on the primary: nothing reaches the shadow.
	_, err := users.Create(ctx, mirrorm.NewRecord().Set("name", "John"))
	require.Error(t, err)
	assert.True(t, mirrorm.IsExecutionError(err))
	assert.False(t, mirrorm.IsMirrorError(err))
	assert.False(t, touched)

	_, err = users.DeleteByID(ctx, 1)
	assert.True(t, mirrorm.IsExecutionError(err))
	assert.False(t, touched)
}

func TestFind(t *testing.T) {
	ctx := context.Background()
	users, _ := newUsers(t)

	missing, err := users.FindByID(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, missing)

	all, err := users.FindAll(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, all)

	for _, r := range []*mirrorm.Record{
		mirrorm.NewRecord().Set("name", "John").Set("age", 30),
		mirrorm.NewRecord().Set("name", "Jane").Set("age", 17),
		mirrorm.NewRecord().Set("name", "Jim"),
	} {
		_, err := users.Create(ctx, r)
		require.NoError(t, err)
	}

	adults, err := users.FindAll(ctx, "age >= ?", 18)
	require.NoError(t, err)
	require.Len(t, adults, 1)
	assert.Equal(t, "John", adults[0].Record().Value("name"))
	assert.Equal(t, []string{"id", "name", "age"}, adults[0].Record().Keys())

	all, err = users.FindAll(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	jim, _ := all[2].Get("age")
	assert.Nil(t, jim, "nil fields are omitted on insert")

	n, err := users.Count(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	n, err = users.Count(ctx, "name LIKE ?", "J%m")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = users.FindAll(ctx, "no_such_column = 1")
	assert.True(t, mirrorm.IsExecutionError(err))
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	users, primary := newUsers(t)

	u, err := users.Create(ctx, mirrorm.NewRecord().Set("name", "John").Set("age", 30))
	require.NoError(t, err)
	loaded, err := users.FindByID(ctx, u.ID())
	require.NoError(t, err)

	t.Run("no-op", func(t *testing.T) {
		before := primary.Stats().Stats()
		require.NoError(t, loaded.Update(ctx, nil))
		require.NoError(t, loaded.Update(ctx, mirrorm.NewRecord().Set("id", 7)))
		assert.Equal(t, before, primary.Stats().Stats(), "no statement issued")
		assert.Equal(t, u.Record().Map(), loaded.Record().Map())
	})

	t.Run("explicit data", func(t *testing.T) {
		require.NoError(t, loaded.Update(ctx, mirrorm.NewRecord().Set("age", nil)))
		assert.Nil(t, loaded.Record().Value("age"), "nil is written as NULL")
		assert.Equal(t, "John", loaded.Record().Value("name"))
		assert.Equal(t, u.ID(), loaded.ID())
	})

	t.Run("missing key", func(t *testing.T) {
		e := users.NewEntity(mirrorm.NewRecord().Set("name", "Nobody"))
		err := e.Update(ctx, mirrorm.NewRecord().Set("age", 1))
		assert.True(t, mirrorm.IsValidationError(err))
		_, err = e.Delete(ctx)
		assert.True(t, mirrorm.IsValidationError(err))
		_, err = users.DeleteByID(ctx, nil)
		assert.True(t, mirrorm.IsValidationError(err))
	})

	t.Run("vanished row", func(t *testing.T) {
		e := users.NewEntity(mirrorm.NewRecord().Set("id", 99).Set("name", "Ghost"))
		err := e.Update(ctx, nil)
		assert.True(t, mirrorm.IsRecoveryError(err))
	})
}

func TestSave(t *testing.T) {
	ctx := context.Background()
	users, _ := newUsers(t)

	e := users.NewEntity(mirrorm.NewRecord().Set("name", "Jane").Set("age", 25))
	assert.Nil(t, e.ID())
	assert.True(t, e.Dirty())
	require.NoError(t, e.Save(ctx))
	assert.Equal(t, int64(1), e.ID())
	assert.False(t, e.Dirty())

	e.Set("age", 26)
	require.NoError(t, e.Save(ctx))
	n, err := users.Count(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "existing key updates")
	found, err := users.FindByID(ctx, int64(1))
	require.NoError(t, err)
	assert.Equal(t, int64(26), found.Record().Value("age"))

	// A key absent from the primary creates a new row.
	orphan := users.NewEntity(mirrorm.NewRecord().Set("id", 50).Set("name", "Orphan"))
	require.NoError(t, orphan.Save(ctx))
	assert.Equal(t, int64(2), orphan.ID())
}

type cacheMetrics struct {
	hits, misses int
}

func (m *cacheMetrics) MirrorCompleted(string, int, int, time.Duration) {}
func (m *cacheMetrics) ShadowFailed(string, string)                     {}
func (m *cacheMetrics) CacheHit(string)                                 { m.hits++ }
func (m *cacheMetrics) CacheMiss(string)                                { m.misses++ }

func TestCache(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemory()
	mt := &cacheMetrics{}
	users, primary := newUsers(t, model.WithCache(mem), model.WithCacheTTL(time.Minute), model.WithMetrics(mt))

	u, err := users.Create(ctx, mirrorm.NewRecord().Set("name", "John").Set("age", 30))
	require.NoError(t, err)

	first, err := users.FindByID(ctx, u.ID())
	require.NoError(t, err)
	before := primary.Stats().Stats()
	second, err := users.FindByID(ctx, u.ID())
	require.NoError(t, err)
	assert.Equal(t, before, primary.Stats().Stats(), "served from cache")
	assert.Equal(t, first.Record().Map(), second.Record().Map())
	assert.Equal(t, first.Record().Keys(), second.Record().Keys())
	assert.Equal(t, 1, mt.hits)
	assert.Equal(t, 1, mt.misses)

	// Writes invalidate the cached row.
	second.Set("age", 31)
	require.NoError(t, second.Update(ctx, nil))
	assert.Zero(t, mem.Len())
	third, err := users.FindByID(ctx, u.ID())
	require.NoError(t, err)
	assert.Equal(t, int64(31), third.Record().Value("age"))

	_, err = third.Delete(ctx)
	require.NoError(t, err)
	gone, err := users.FindByID(ctx, u.ID())
	require.NoError(t, err)
	assert.Nil(t, gone)
}
