package mirrorm_test

import (
	"database/sql"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/mirrorm"
)

func TestRecordOrder(t *testing.T) {
	t.Parallel()

	r := mirrorm.NewRecord().
		Set("name", "John").
		Set("age", 30).
		Set("email", "john@example.com")

	assert.Equal(t, []string{"name", "age", "email"}, r.Keys())
	assert.Equal(t, []any{"John", int64(30), "john@example.com"}, r.Values())
	assert.Equal(t, 3, r.Len())

	// Overwriting keeps the original position.
	r.Set("name", "Jane")
	assert.Equal(t, []string{"name", "age", "email"}, r.Keys())
	assert.Equal(t, "Jane", r.Value("name"))

	r.Delete("age")
	assert.Equal(t, []string{"name", "email"}, r.Keys())
	assert.False(t, r.Has("age"))
	r.Delete("missing")
	assert.Equal(t, 2, r.Len())

	assert.Equal(t, "{name: Jane, email: john@example.com}", r.String())
}

func TestRecordOf(t *testing.T) {
	t.Parallel()

	r := mirrorm.RecordOf([]string{"id", "name", "age"}, []any{int32(1), []byte("John"), nil})
	assert.Equal(t, []string{"id", "name", "age"}, r.Keys())
	assert.Equal(t, int64(1), r.Value("id"))
	assert.Equal(t, "John", r.Value("name"))
	v, ok := r.Get("age")
	assert.True(t, ok)
	assert.Nil(t, v)

	short := mirrorm.RecordOf([]string{"id", "name"}, []any{int64(1)})
	assert.Equal(t, []string{"id"}, short.Keys())
}

func TestRecordCloneAndMap(t *testing.T) {
	t.Parallel()

	r := mirrorm.NewRecord().Set("a", 1).Set("b", "x")
	c := r.Clone()
	c.Set("a", 2)
	c.Set("c", true)

	assert.Equal(t, int64(1), r.Value("a"))
	assert.False(t, r.Has("c"))
	assert.Equal(t, map[string]any{"a": int64(2), "b": "x", "c": true}, c.Map())

	var seen []string
	c.Range(func(k string, _ any) bool {
		seen = append(seen, k)
		return k != "b"
	})
	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestRecordNil(t *testing.T) {
	t.Parallel()

	var r *mirrorm.Record
	assert.Equal(t, 0, r.Len())
	assert.Nil(t, r.Keys())
	assert.False(t, r.Has("x"))
	require.NotPanics(t, func() { r.Range(func(string, any) bool { return true }) })
}

func TestCoerce(t *testing.T) {
	t.Parallel()

	now := time.Now()
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"bytes", []byte("abc"), "abc"},
		{"nil bytes", []byte(nil), nil},
		{"int", 5, int64(5)},
		{"int8", int8(-5), int64(-5)},
		{"int16", int16(5), int64(5)},
		{"int32", int32(5), int64(5)},
		{"uint8", uint8(5), int64(5)},
		{"uint32", uint32(5), int64(5)},
		{"uint64 small", uint64(5), int64(5)},
		{"uint64 large", uint64(math.MaxUint64), uint64(math.MaxUint64)},
		{"float32", float32(1.5), float64(1.5)},
		{"float64", 2.5, 2.5},
		{"bool", true, true},
		{"string", "s", "s"},
		{"time", now, now},
		{"valuer", sql.NullString{String: "v", Valid: true}, "v"},
		{"null valuer", sql.NullInt64{}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mirrorm.Coerce(tt.in))
		})
	}
}

func TestCacheKey(t *testing.T) {
	t.Parallel()

	k := mirrorm.CacheKey{Table: "users", ID: int64(3)}
	assert.Equal(t, "mirrorm:users:", k.Prefix())
	assert.Equal(t, "mirrorm:users:3", k.String())
}
