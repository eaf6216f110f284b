package mirrorm

import (
	"database/sql/driver"
	"fmt"
	"math"
	"strings"
)

// Record is an ordered column-name to value mapping. Records are produced by
// normalizing a backend row and back every Entity; they are also used as
// ordered input for create and update operations.
//
// Values are coerced when stored:
//
//   - []byte becomes string (copied)
//   - every signed integer kind and unsigned kinds up to math.MaxInt64 become int64
//   - float32 becomes float64
//   - driver.Valuer is resolved through its Value method
//   - nil, bool, string, int64, float64 and time.Time are stored as-is
//   - any other type is stored unchanged
//
// A Record is not safe for concurrent mutation.
type Record struct {
	keys   []string
	values map[string]any
}

// NewRecord returns an empty Record.
func NewRecord() *Record {
	return &Record{values: make(map[string]any)}
}

// RecordOf zips columns and values into a Record. Extra values or columns
// beyond the shorter slice are ignored.
func RecordOf(columns []string, values []any) *Record {
	r := &Record{
		keys:   make([]string, 0, len(columns)),
		values: make(map[string]any, len(columns)),
	}
	n := min(len(columns), len(values))
	for i := 0; i < n; i++ {
		r.Set(columns[i], values[i])
	}
	return r
}

// Set stores v under key, appending key if it is new, and returns the
// Record for chaining.
func (r *Record) Set(key string, v any) *Record {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = Coerce(v)
	return r
}

// Get returns the value stored under key.
func (r *Record) Get(key string) (any, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r.values[key]
	return v, ok
}

// Value returns the value stored under key, or nil.
func (r *Record) Value(key string) any {
	v, _ := r.Get(key)
	return v
}

// Has reports whether key is present.
func (r *Record) Has(key string) bool {
	_, ok := r.Get(key)
	return ok
}

// Delete removes key from the Record.
func (r *Record) Delete(key string) {
	if _, ok := r.values[key]; !ok {
		return
	}
	delete(r.values, key)
	for i, k := range r.keys {
		if k == key {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (r *Record) Keys() []string {
	if r == nil {
		return nil
	}
	keys := make([]string, len(r.keys))
	copy(keys, r.keys)
	return keys
}

// Values returns the values in key order.
func (r *Record) Values() []any {
	if r == nil {
		return nil
	}
	vs := make([]any, len(r.keys))
	for i, k := range r.keys {
		vs[i] = r.values[k]
	}
	return vs
}

// Len returns the number of keys.
func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}

// Range calls fn for every key in order until fn returns false.
func (r *Record) Range(fn func(key string, v any) bool) {
	if r == nil {
		return
	}
	for _, k := range r.keys {
		if !fn(k, r.values[k]) {
			return
		}
	}
}

// Clone returns a shallow copy.
func (r *Record) Clone() *Record {
	c := NewRecord()
	r.Range(func(k string, v any) bool {
		c.keys = append(c.keys, k)
		c.values[k] = v
		return true
	})
	return c
}

// Map returns the values as an unordered map.
func (r *Record) Map() map[string]any {
	m := make(map[string]any, r.Len())
	r.Range(func(k string, v any) bool {
		m[k] = v
		return true
	})
	return m
}

// String renders the record as {k: v, ...} in key order.
func (r *Record) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	first := true
	r.Range(func(k string, v any) bool {
		if !first {
			sb.WriteString(", ")
		}
		first = false
		fmt.Fprintf(&sb, "%s: %v", k, v)
		return true
	})
	sb.WriteByte('}')
	return sb.String()
}

// Coerce converts a backend-native value into the representation stored in
// a Record. See Record for the rules.
func Coerce(v any) any {
	switch v := v.(type) {
	case nil:
		return nil
	case []byte:
		if v == nil {
			return nil
		}
		return string(v)
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case uint:
		return coerceUint(uint64(v))
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		return coerceUint(v)
	case float32:
		return float64(v)
	case driver.Valuer:
		dv, err := v.Value()
		if err != nil {
			return v
		}
		return Coerce(dv)
	default:
		return v
	}
}

func coerceUint(v uint64) any {
	if v > math.MaxInt64 {
		return v
	}
	return int64(v)
}
