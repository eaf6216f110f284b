package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColumns(t *testing.T) {
	cols := Columns("name", "TEXT", "age", "INTEGER", "dangling")
	require.Len(t, cols, 2)
	assert.Equal(t, &Column{Name: "name", Type: "TEXT"}, cols[0])
	assert.Equal(t, &Column{Name: "age", Type: "INTEGER"}, cols[1])

	tbl := &Table{Name: "users", Columns: cols}
	assert.True(t, tbl.HasColumn("age"))
	assert.False(t, tbl.HasColumn("id"))
	assert.Nil(t, Lookup(cols, "id"))
}

func TestColumnNullable(t *testing.T) {
	assert.True(t, Col("age", "INTEGER").Nullable())
	assert.False(t, Col("name", "varchar(100) not null").Nullable())
	assert.False(t, Col("id", "SERIAL PRIMARY KEY").Nullable())
}

func TestValidateTable(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		r := ValidateTable(&Table{
			Name:       "users",
			PrimaryKey: "u_id",
			Columns: Columns(
				"name", "VARCHAR(100) NOT NULL",
				"email", "VARCHAR(255) NOT NULL",
				"age", "INTEGER",
				"created_at", "TIMESTAMP DEFAULT CURRENT_TIMESTAMP",
			),
		})
		assert.False(t, r.HasErrors())
		assert.False(t, r.HasWarnings())
		assert.NoError(t, r.Err())
		assert.Equal(t, "No issues found", r.String())
	})

	t.Run("errors", func(t *testing.T) {
		r := ValidateTable(&Table{
			Name:       "users; --",
			PrimaryKey: "id",
			Columns: []*Column{
				Col("name", "TEXT"),
				Col("name", "TEXT"),
				Col("bad name", "TEXT"),
				Col("age", " "),
				nil,
			},
		})
		require.True(t, r.HasErrors())
		assert.Len(t, r.Errors, 5)
		err := r.Err()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid table name")
		assert.Contains(t, err.Error(), "duplicate column name")
		assert.Contains(t, err.Error(), "invalid column name")
		assert.Contains(t, err.Error(), "missing column type")
		assert.Contains(t, err.Error(), "column 4 is nil")
		assert.Contains(t, r.String(), "Errors:")
	})

	t.Run("warnings", func(t *testing.T) {
		r := ValidateTable(&Table{
			Name:       "posts",
			PrimaryKey: "p_id",
			Columns:    Columns("p_id", "INTEGER"),
		})
		assert.False(t, r.HasErrors())
		require.Len(t, r.Warnings, 1)
		assert.Equal(t, "posts.p_id: primary key column declared without PRIMARY KEY constraint", r.Warnings[0].Error())

		r = ValidateTable(&Table{Name: "empty", PrimaryKey: "id"})
		assert.True(t, r.HasWarnings())
		assert.Contains(t, r.String(), "Warnings:")
	})

	t.Run("invalid primary key", func(t *testing.T) {
		r := ValidateTable(&Table{Name: "t", PrimaryKey: "1id", Columns: Columns("a", "TEXT")})
		require.Len(t, r.Errors, 1)
		assert.Equal(t, "t.1id: invalid primary key name", r.Errors[0].Error())
	})
}
