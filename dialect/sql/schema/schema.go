// Package schema holds table definitions passed to CREATE TABLE and their
// validation. Column types are raw backend-native text and are not parsed.
package schema

import "strings"

// Column is one column definition: a name and its raw type/constraint text,
// e.g. "VARCHAR(100) NOT NULL".
type Column struct {
	Name string
	Type string
}

// Table is an ordered table definition.
type Table struct {
	Name       string
	PrimaryKey string
	Columns    []*Column
}

// Col returns a new Column.
func Col(name, typ string) *Column {
	return &Column{Name: name, Type: typ}
}

// Columns builds an ordered column list from name/type pairs:
//
//	schema.Columns("name", "TEXT", "age", "INTEGER")
//
// A trailing name without a type is ignored.
func Columns(pairs ...string) []*Column {
	cols := make([]*Column, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		cols = append(cols, Col(pairs[i], pairs[i+1]))
	}
	return cols
}

// HasColumn reports whether a column with the given name exists.
func (t *Table) HasColumn(name string) bool {
	return Lookup(t.Columns, name) != nil
}

// Lookup returns the column with the given name, or nil.
func Lookup(cols []*Column, name string) *Column {
	for _, c := range cols {
		if c != nil && c.Name == name {
			return c
		}
	}
	return nil
}

// Nullable reports whether the raw type text allows NULL values.
func (c *Column) Nullable() bool {
	t := strings.ToUpper(c.Type)
	return !strings.Contains(t, "NOT NULL") && !strings.Contains(t, "PRIMARY KEY")
}
